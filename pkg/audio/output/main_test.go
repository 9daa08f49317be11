// ABOUTME: Test entry point for the output package
// ABOUTME: Silences the global logger so test output stays readable
package output

import (
	"os"
	"testing"

	"github.com/rs/zerolog"
)

func TestMain(m *testing.M) {
	zerolog.SetGlobalLevel(zerolog.Disabled)
	os.Exit(m.Run())
}

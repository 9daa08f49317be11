// ABOUTME: Test entry point for the input package
// ABOUTME: Silences the global logger so test output stays readable
package input

import (
	"os"
	"testing"

	"github.com/rs/zerolog"
)

func TestMain(m *testing.M) {
	zerolog.SetGlobalLevel(zerolog.Disabled)
	os.Exit(m.Run())
}

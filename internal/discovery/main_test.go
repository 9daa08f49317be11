// ABOUTME: Test entry point for the discovery package
// ABOUTME: Silences the global logger so test output stays readable
package discovery

import (
	"os"
	"testing"

	"github.com/rs/zerolog"
)

func TestMain(m *testing.M) {
	zerolog.SetGlobalLevel(zerolog.Disabled)
	os.Exit(m.Run())
}

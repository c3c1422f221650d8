// Package testing flips the process into test mode when blank-imported from
// a test binary.
package testing

import (
	"os"
	stdtesting "testing"
)

const testModeEnv = "FLEETDESK_TEST_MODE"

func init() {
	if os.Getenv(testModeEnv) == "" {
		_ = os.Setenv(testModeEnv, "1")
	}
}

// TestMain can be reused by packages that want the default runner.
func TestMain(m *stdtesting.M) {
	os.Exit(m.Run())
}

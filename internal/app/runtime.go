package app

import (
	"os"
	"sync"
)

// TestModeEnv set to "1" makes the binaries exit before dialing Redis or the
// backend, so packages importing them stay testable.
const TestModeEnv = "FLEETDESK_TEST_MODE"

var testMode = sync.OnceValue(func() bool {
	return os.Getenv(TestModeEnv) == "1"
})

// InTestMode reports whether runtime startup should be skipped.
func InTestMode() bool {
	return testMode()
}

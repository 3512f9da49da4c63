package app

import (
	"os"
	"sync"
)

// TestModeEnv makes the binaries return before touching Redis or the network.
const TestModeEnv = "PORTAL_TEST_MODE"

var testMode = sync.OnceValue(func() bool {
	return os.Getenv(TestModeEnv) == "1"
})

// InTestMode reports whether the process runs under go test with the guard
// package loaded. The value is read once.
func InTestMode() bool {
	return testMode()
}

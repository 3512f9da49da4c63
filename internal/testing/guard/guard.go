// Package guard is imported for its side effect by tests that load the
// application config or link the cmd packages. It switches the process to
// test mode and fills in placeholder values for required settings that the
// environment leaves unset.
package guard

import "os"

// Defaults are applied only where the variable is unset.
var Defaults = map[string]string{
	"PORTAL_TEST_MODE": "1",
	"API_BASE_URL":     "http://127.0.0.1:0/api",
	"SESSION_SECRET":   "test-session-secret",
	"CSRF_SECRET":      "test-csrf-secret",
}

func init() {
	for key, value := range Defaults {
		if _, ok := os.LookupEnv(key); !ok {
			_ = os.Setenv(key, value)
		}
	}
}

// Package testing switches the binaries into test mode. Test packages import
// it for side effects only.
package testing

import "os"

// env holds the variables set on import. Values already present in the
// environment are kept, except the test mode flag itself.
var env = map[string]string{
	"SESSION_SECRET": "test-session-secret",
	"CSRF_SECRET":    "test-csrf-secret",
	"APP_ENV":        "test",
}

func init() {
	_ = os.Setenv("KSADMIN_TEST_MODE", "true")
	for key, value := range env {
		if _, ok := os.LookupEnv(key); !ok {
			_ = os.Setenv(key, value)
		}
	}
}

// Package guard switches the process into test mode when imported, so
// packages under test never start background listeners.
package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("PORTAL_TEST_MODE") == "" {
			_ = os.Setenv("PORTAL_TEST_MODE", "1")
		}
	})
}

package testing

import (
	"os"
	"sync"
	stdtesting "testing"
)

var once sync.Once

func ensureTestMode() {
	once.Do(func() {
		_ = os.Setenv("FACILITYDESK_TEST_MODE", "1")
		if os.Getenv("EVENTS_SINK") == "" {
			_ = os.Setenv("EVENTS_SINK", "none")
		}
	})
}

func init() {
	ensureTestMode()
}

func TestMain(m *stdtesting.M) {
	ensureTestMode()
	os.Exit(m.Run())
}

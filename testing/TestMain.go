package testing

import (
	"os"
	"sync"
	stdtesting "testing"
)

var once sync.Once

// ensureTestMode flags the process as a test run so application entry
// points skip runtime side effects.
func ensureTestMode() {
	once.Do(func() {
		_ = os.Setenv("PRAXIS_TEST_MODE", "1")
	})
}

func init() {
	ensureTestMode()
}

func TestMain(m *stdtesting.M) {
	ensureTestMode()
	os.Exit(m.Run())
}

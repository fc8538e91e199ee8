package app

import (
	"os"
	"sync"
	"sync/atomic"
)

const testModeEnv = "CALYPSO_TEST_MODE"

var (
	testModeFlag atomic.Bool
	testModeOnce sync.Once
)

// InTestMode reports whether the binaries should exit before opening any
// external connections. CALYPSO_TEST_MODE=1 lets the test harness exercise
// main wiring without Postgres or Redis present. The flag is sampled once.
func InTestMode() bool {
	testModeOnce.Do(func() {
		testModeFlag.Store(os.Getenv(testModeEnv) == "1")
	})
	return testModeFlag.Load()
}

// RefreshTestMode re-samples the flag; tests that flip the env var mid-run
// call this to make the change visible.
func RefreshTestMode() {
	testModeFlag.Store(os.Getenv(testModeEnv) == "1")
}

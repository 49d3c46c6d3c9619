package app

import (
	"os"
	"strconv"
	"sync/atomic"
)

// TestModeEnv, when set to a true value, makes the binaries return before
// they touch Postgres or Redis.
const TestModeEnv = "KSADMIN_TEST_MODE"

// 0 means unread; otherwise testModeOff or testModeOn.
var testMode atomic.Int32

const (
	testModeOff int32 = iota + 1
	testModeOn
)

// InTestMode reports the cached TestModeEnv value, reading it on first use.
func InTestMode() bool {
	switch testMode.Load() {
	case testModeOn:
		return true
	case testModeOff:
		return false
	}
	return RefreshTestMode()
}

// RefreshTestMode re-reads TestModeEnv and returns the new value.
func RefreshTestMode() bool {
	on, _ := strconv.ParseBool(os.Getenv(TestModeEnv))
	if on {
		testMode.Store(testModeOn)
	} else {
		testMode.Store(testModeOff)
	}
	return on
}

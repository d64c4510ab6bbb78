package engine

import "time"

// Scheduler runs f once after d and returns a function that cancels the
// pending call. cancel reports whether the call was stopped before it ran.
//
// f runs on an arbitrary goroutine; the session only enqueues from it.
type Scheduler func(d time.Duration, f func()) (cancel func() bool)

// TimerScheduler schedules with time.AfterFunc.
func TimerScheduler(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

package playback

import "time"

// Timer is a scheduled one-shot action.
type Timer interface {
	Stop() bool
}

// Scheduler runs f once after d. The recovery reload is the only delayed
// action in the engine.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// SchedulerFunc adapts a function to Scheduler.
type SchedulerFunc func(d time.Duration, f func()) Timer

func (fn SchedulerFunc) AfterFunc(d time.Duration, f func()) Timer { return fn(d, f) }

// RealScheduler schedules on the wall clock via time.AfterFunc.
var RealScheduler Scheduler = SchedulerFunc(func(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
})

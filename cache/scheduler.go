package cache

import "time"

// Timer is a pending one-shot callback.
type Timer interface {
	Stop() bool
}

// Scheduler arms one-shot callbacks. The default uses time.AfterFunc; tests inject a
// manual implementation to drive expiration without sleeping. fn must not run before
// AfterFunc returns: the cache arms timers while holding its lock.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) Timer
}

// SchedulerFunc adapts a plain function to Scheduler.
type SchedulerFunc func(d time.Duration, fn func()) Timer

func (f SchedulerFunc) AfterFunc(d time.Duration, fn func()) Timer {
	return f(d, fn)
}

type wallScheduler struct{}

func (wallScheduler) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

// WallScheduler returns the Scheduler backed by the runtime timer heap.
func WallScheduler() Scheduler {
	return wallScheduler{}
}

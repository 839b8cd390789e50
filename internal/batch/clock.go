package batch

import "time"

// Clock abstracts the debounce timer so flush timing is testable
// without wall-clock waits.
type Clock interface {
	Now() time.Time
	// AfterFunc runs fn after d elapses and returns a stop function.
	AfterFunc(d time.Duration, fn func()) (stop func() bool)
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, fn func()) func() bool {
	t := time.AfterFunc(d, fn)
	return t.Stop
}

// RealClock returns the wall clock.
func RealClock() Clock { return realClock{} }

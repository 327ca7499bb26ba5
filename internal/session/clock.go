package session

import "time"

// Clock abstracts time for the grace-period timer so tests can drive it
// deterministically.
type Clock interface {
	Now() time.Time
	// AfterFunc schedules f to run after d and returns a handle that can
	// cancel it.
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a cancellable scheduled call.
type Timer interface {
	// Stop cancels the timer. Returns false if it already fired.
	Stop() bool
}

// realClock is the wall-clock implementation used outside tests.
type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// RealClock returns the wall-clock Clock.
func RealClock() Clock { return realClock{} }

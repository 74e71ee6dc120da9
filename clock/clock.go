// Package clock abstracts the two time primitives the throttle wrappers
// depend on, reading the current time and scheduling a one-shot callback,
// so that tests can drive time by hand.
package clock

//go:generate mockgen -source=clock.go -destination=../internal/mocks/clock.go -package=mocks

import "time"

// Clock reports the current time and schedules deferred callbacks.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a handle to a callback scheduled with AfterFunc.
//
// Stop reports whether the call prevented the callback from running. As with
// time.Timer, a false result means the callback already ran or is running.
type Timer interface {
	Stop() bool
}

type realClock struct{}

// Real returns the wall clock.
func Real() Clock {
	return realClock{}
}

func (realClock) Now() time.Time {
	return time.Now()
}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Package clock abstracts wall-clock access so reconciliation timing
// (watermarks, alert backoff, deferred label checks) is testable.
package clock

import "time"

type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// System returns the real wall clock in UTC.
func System() Clock { return systemClock{} }

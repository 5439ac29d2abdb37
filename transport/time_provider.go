package transport

import "time"

// TimeProvider is the clock Manager.Tick measures elapsed time with.
// Tests substitute a clock they advance by hand.
type TimeProvider interface {
	Now() time.Time
}

// DefaultTimeProvider reads the wall clock.
type DefaultTimeProvider struct{}

func (DefaultTimeProvider) Now() time.Time { return time.Now() }

package service

import "time"

// Clock supplies the current time. Injected so tests can pin instants and
// simulate the reservation deadline passing.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the wall clock.
func SystemClock() Clock { return systemClock{} }

package service

import (
	"time"

	"election-backend/models"
)

// Clock supplies the current instant for lifecycle checks.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now()
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time {
	return f()
}

func nowNanos(clock Clock) int64 {
	return clock.Now().UnixNano()
}

func phaseOf(election *models.Election, clock Clock) models.Phase {
	return election.PhaseAt(nowNanos(clock))
}

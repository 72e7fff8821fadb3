package transport

import (
	"time"
)

// Policy bounds the reconnect loop. Delay grows geometrically per attempt
// and is capped by MaxDelay; MaxAttempts <= 0 retries indefinitely (each
// attempt still individually bounded by MaxDelay).
type Policy struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	MaxAttempts  int
}

// DefaultPolicy returns the documented defaults: 1s base, doubling, 30s
// ceiling, 10 attempts.
func DefaultPolicy() Policy {
	return Policy{
		InitialDelay: time.Second,
		Multiplier:   2.0,
		MaxDelay:     30 * time.Second,
		MaxAttempts:  10,
	}
}

// Delay returns how long to wait before the given attempt (1-based).
func (p Policy) Delay(attempt int) time.Duration {
	if attempt <= 1 {
		return p.InitialDelay
	}

	delay := p.InitialDelay
	for i := 1; i < attempt; i++ {
		delay = time.Duration(float64(delay) * p.Multiplier)
		if delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

// Exhausted reports whether the given attempt (1-based) exceeds the budget.
func (p Policy) Exhausted(attempt int) bool {
	if p.MaxAttempts <= 0 {
		return false
	}
	return attempt > p.MaxAttempts
}

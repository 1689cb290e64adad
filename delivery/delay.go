package delivery

import (
	"math"
	"time"
)

// DelayFunc returns the requeue delay after a given failed attempt.
type DelayFunc func(attempt int) time.Duration

// Fixed returns a DelayFunc with the same delay for every attempt.
func Fixed(delay time.Duration) DelayFunc {
	return func(attempt int) time.Duration {
		return delay
	}
}

// Exponential returns a DelayFunc that doubles the delay per attempt, capped
// at maxDelay. Attempt 0 yields the initial delay.
func Exponential(delay time.Duration, maxDelay time.Duration) DelayFunc {
	// Cap the shift count so delay << n cannot overflow.
	logDelay := math.Floor(math.Log2(float64(delay)))
	var maxShifts uint
	if logDelay >= 62 {
		maxShifts = 0
	} else {
		maxShifts = 62 - uint(logDelay)
	}

	return func(attempt int) time.Duration {
		if attempt <= 0 {
			return min(delay, maxDelay)
		}
		n := min(uint(attempt), maxShifts)
		return min(delay<<n, maxDelay)
	}
}

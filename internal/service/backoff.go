package service

import "time"

// MaxBackoff caps the auto-restart delay.
const MaxBackoff = time.Minute

// Backoff returns the delay before restart attempt number attempt (1-based):
// base doubled for every previous attempt, capped at max.
func Backoff(attempt int, base, max time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	if attempt <= 1 {
		return min(base, max)
	}
	if attempt > 32 {
		return max
	}
	d := base << (attempt - 1)
	if d <= 0 || d > max {
		return max
	}
	return d
}

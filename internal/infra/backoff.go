package infra

import (
	"math"
	"time"
)

const (
	backoffBase = 1 * time.Second
	backoffMax  = 60 * time.Second
)

// CalculateBackoff returns the reconnect delay for the given attempt (0-based):
// 1s, 2s, 4s ... capped at 60s.
func CalculateBackoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	// 2^6 already exceeds the cap
	if attempt > 6 {
		return backoffMax
	}
	delay := backoffBase * time.Duration(math.Pow(2, float64(attempt)))
	if delay > backoffMax {
		delay = backoffMax
	}
	return delay
}

package syncer

import (
	"math"
	"time"
)

const (
	backoffBaseSeconds = 2
	backoffCapSeconds  = 300
)

// Backoff returns the wait before the given retry attempt (1-based):
// 2s, 4s, 8s, ... capped at 300s.
func Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	seconds := backoffBaseSeconds * math.Pow(2, float64(attempt-1))
	if seconds > backoffCapSeconds {
		seconds = backoffCapSeconds
	}
	return time.Duration(seconds * float64(time.Second))
}

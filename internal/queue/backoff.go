package queue

import (
	"math"
	"time"
)

// Backoff computes the wait before the next attempt after a failure.
type Backoff struct {
	Base       time.Duration
	Multiplier float64
}

// DefaultBackoff waits 5, 20 and 80 minutes after successive failures.
var DefaultBackoff = Backoff{Base: 5 * time.Minute, Multiplier: 4}

// Delay returns Base * Multiplier^retryCount, where retryCount is the count
// before this failure is recorded.
func (b Backoff) Delay(retryCount int) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}
	return time.Duration(float64(b.Base) * math.Pow(b.Multiplier, float64(retryCount)))
}

package runner

import (
	"math"
	"time"
)

// RetryStrategy returns the delay before the next attempt. attempt is zero
// based and counts failures seen so far.
type RetryStrategy interface {
	SleepDuration(attempt int, err error) time.Duration
}

// NoDelayStrategy retries immediately.
type NoDelayStrategy struct{}

func (NoDelayStrategy) SleepDuration(int, error) time.Duration { return 0 }

// FixedDelayStrategy waits the same Delay between every attempt.
type FixedDelayStrategy struct {
	Delay time.Duration
}

func (f FixedDelayStrategy) SleepDuration(int, error) time.Duration {
	if f.Delay < 0 {
		return 0
	}
	return f.Delay
}

// ExponentialBackoffStrategy grows the delay by Factor on each attempt,
// starting at Base and capped at Max when Max is positive.
type ExponentialBackoffStrategy struct {
	Base   time.Duration
	Factor float64
	Max    time.Duration
}

func (e ExponentialBackoffStrategy) SleepDuration(attempt int, _ error) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	factor := e.Factor
	if factor < 1 {
		factor = 1
	}
	delay := float64(e.Base) * math.Pow(factor, float64(attempt))
	if e.Max > 0 && delay > float64(e.Max) {
		return e.Max
	}
	return time.Duration(delay)
}

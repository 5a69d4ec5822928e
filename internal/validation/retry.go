package validation

import (
	"math"
	"time"
)

// RetryConfig bounds retries of transient domain check failures.
type RetryConfig struct {
	MaxAttempts  int           `json:"max_attempts"`
	InitialDelay time.Duration `json:"initial_delay"`
	MaxDelay     time.Duration `json:"max_delay"`
	Multiplier   float64       `json:"multiplier"`
}

// NewRetryConfig returns the default retry configuration.
func NewRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		Multiplier:   2.0,
	}
}

// delay returns the wait before the given retry attempt (2 is the first retry).
func (c RetryConfig) delay(attempt int) time.Duration {
	if attempt < 2 {
		return 0
	}
	d := time.Duration(float64(c.InitialDelay) * math.Pow(c.Multiplier, float64(attempt-2)))
	if d > c.MaxDelay || d < 0 {
		d = c.MaxDelay
	}
	return d
}

package retry

import (
	"math"
	"time"

	"code.cloudfoundry.org/clock"
)

type Policy struct {
	MaxAttempts       int
	BaseDelay         time.Duration
	BackoffMultiplier float64
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:       10,
		BaseDelay:         10 * time.Millisecond,
		BackoffMultiplier: 1,
	}
}

// Delay is the pause after the given zero-based attempt. A multiplier of 1
// or less gives a fixed delay.
func (p Policy) Delay(attempt int) time.Duration {
	if p.BackoffMultiplier <= 1 || attempt <= 0 {
		return p.BaseDelay
	}
	return time.Duration(float64(p.BaseDelay) * math.Pow(p.BackoffMultiplier, float64(attempt)))
}

// Run calls attempt until it reports done, returns an error, or MaxAttempts
// tries have been made. It reports whether attempt finished.
func (p Policy) Run(clock clock.Clock, attempt func() (bool, error)) (bool, error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	for i := 0; i < maxAttempts; i++ {
		done, err := attempt()
		if err != nil {
			return false, err
		}
		if done {
			return true, nil
		}

		if i < maxAttempts-1 {
			clock.Sleep(p.Delay(i))
		}
	}

	return false, nil
}

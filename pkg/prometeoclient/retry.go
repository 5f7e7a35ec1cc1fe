package prometeoclient

import (
	"context"
	"time"
)

// RetryPolicy bounds how often a request answered with 502 is repeated.
// MaxAttempts counts every HTTP call, the first one included.
type RetryPolicy struct {
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	MaxAttempts    int
}

// DefaultRetryPolicy doubles from 100ms up to 3s over at most five calls.
var DefaultRetryPolicy = RetryPolicy{
	InitialBackoff: 100 * time.Millisecond,
	MaxBackoff:     3000 * time.Millisecond,
	MaxAttempts:    5,
}

// WithInitialBackoff returns a copy of p starting from d.
func (p RetryPolicy) WithInitialBackoff(d time.Duration) RetryPolicy {
	p.InitialBackoff = d
	return p
}

// Delay is the wait before the attempt following attempt (1-based).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	d := p.InitialBackoff
	for i := 1; i < attempt; i++ {
		d *= 2
		if p.MaxBackoff > 0 && d >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	if p.MaxBackoff > 0 && d > p.MaxBackoff {
		return p.MaxBackoff
	}
	return d
}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the default Sleeper.
func SleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

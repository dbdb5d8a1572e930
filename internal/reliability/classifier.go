package reliability

import (
	"context"
	"time"
)

// IsRetryableHTTPStatus classifies retryable HTTP status codes.
func IsRetryableHTTPStatus(code int) bool {
	switch code {
	case 429, 500, 502, 504:
		return true
	default:
		return false
	}
}

// ExponentialBackoff computes a deterministic capped backoff duration.
func ExponentialBackoff(attempt int, base, cap time.Duration) time.Duration {
	if attempt <= 0 {
		return base
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= cap {
			return cap
		}
	}
	return d
}

// LinearBackoff computes base*(attempt+1); attempt is zero-based.
func LinearBackoff(attempt int, base time.Duration) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	return base * time.Duration(attempt+1)
}

// Policy describes a bounded retry loop. Sleep is injectable so tests can
// run without wall-clock delays.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Classify    func(error) bool
	Sleep       func(ctx context.Context, d time.Duration) error
}

// Do runs fn up to MaxAttempts times, sleeping a linear backoff between
// attempts. Classify decides whether an error is worth another attempt;
// a non-retryable error is returned immediately.
func (p Policy) Do(ctx context.Context, fn func() error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = SleepContext
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if p.Classify != nil && !p.Classify(lastErr) {
			return lastErr
		}
		if attempt == attempts-1 {
			break
		}
		if err := sleep(ctx, LinearBackoff(attempt, p.BaseDelay)); err != nil {
			return err
		}
	}
	return lastErr
}

// SleepContext sleeps for d or until ctx is done.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

package stream

import "time"

// GrabRetryConfig bounds the retry loop around transient grab failures.
//
// Some compressed formats fail a grab sporadically and recover on the
// next attempt; retrying forever on a dead file would burn a core, so
// the budget is bounded and the delay grows exponentially.
type GrabRetryConfig struct {
	MaxRetries   int           // attempts after the first failure (default: 5)
	InitialDelay time.Duration // delay before the first retry (default: 10ms)
	MaxDelay     time.Duration // backoff cap (default: 1 second)
}

// DefaultGrabRetryConfig returns the default retry budget.
func DefaultGrabRetryConfig() GrabRetryConfig {
	return GrabRetryConfig{
		MaxRetries:   5,
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     time.Second,
	}
}

// withDefaults fills zero fields so a zero-valued config is usable.
func (c GrabRetryConfig) withDefaults() GrabRetryConfig {
	d := DefaultGrabRetryConfig()
	if c.MaxRetries <= 0 {
		c.MaxRetries = d.MaxRetries
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = d.InitialDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = d.MaxDelay
	}
	return c
}

// nextDelay doubles the backoff delay up to the configured cap.
func (c GrabRetryConfig) nextDelay(current time.Duration) time.Duration {
	next := current * 2
	if next > c.MaxDelay {
		next = c.MaxDelay
	}
	return next
}

package paging

import "time"

// RetryPolicy bounds automatic retries of transient load failures. Upstream
// failures are never retried automatically.
type RetryPolicy struct {
	Attempts   int // total attempts per load, including the first
	Backoff    time.Duration
	MaxBackoff time.Duration
}

// DefaultRetryPolicy is used when Options.Retry is the zero value.
var DefaultRetryPolicy = RetryPolicy{
	Attempts:   3,
	Backoff:    500 * time.Millisecond,
	MaxBackoff: 4 * time.Second,
}

// NoRetry makes every load a single attempt.
var NoRetry = RetryPolicy{Attempts: 1}

// delay returns the wait before attempt n (n >= 2), doubling from Backoff and
// capped at MaxBackoff.
func (p RetryPolicy) delay(n int) time.Duration {
	d := p.Backoff
	for i := 2; i < n; i++ {
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
	if p.Attempts < 1 {
		return 1
	}
	return p.Attempts
}

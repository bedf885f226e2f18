package webhook

import "time"

// RetryPolicy decides whether, and after how long, a failed attempt is retried.
// Attempts are numbered from 0; the delay before attempt n+1 is Delays[n].
type RetryPolicy struct {
	MaxAttempts int
	Delays      []time.Duration
}

// DefaultRetryPolicy allows five attempts in total.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 5,
		Delays: []time.Duration{
			1 * time.Minute,
			5 * time.Minute,
			30 * time.Minute,
			2 * time.Hour,
			24 * time.Hour,
		},
	}
}

// NewRetryPolicy builds a policy from configured values, falling back to the defaults for
// anything unset.
func NewRetryPolicy(maxAttempts int, delays []time.Duration) RetryPolicy {
	p := DefaultRetryPolicy()
	if maxAttempts > 0 {
		p.MaxAttempts = maxAttempts
	}
	if len(delays) > 0 {
		p.Delays = append([]time.Duration(nil), delays...)
	}
	return p
}

// Next returns the delay before the attempt following a failed attempt, or false when the
// job is exhausted.
func (p RetryPolicy) Next(attempt int) (time.Duration, bool) {
	if attempt < 0 || attempt+1 >= p.MaxAttempts || attempt >= len(p.Delays) {
		return 0, false
	}
	return p.Delays[attempt], true
}

package transport

import "github.com/cenkalti/backoff/v4"

// SetTimer replaces the timer used between retries.
func (r *Retrier) SetTimer(t backoff.Timer) {
	r.timer = t
}

package transport

import (
	"context"
	"math"
	"net/http"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/cenkalti/backoff/v4"
)

// Policy configures how long a Retrier keeps repeating requests the service
// rejected as overloaded.
type Policy struct {
	// Limit is the maximum number of retries after the first attempt.
	// Default: 10
	Limit int

	// Wait is the sleep before the first retry.
	// Default: 10 seconds
	Wait time.Duration

	// Multiplier grows the wait after every failed retry.
	// Default: 1.2
	Multiplier float64

	// MaxWait caps the growing wait. Zero leaves it uncapped.
	// Default: 2 minutes
	MaxWait time.Duration
}

// DefaultPolicy returns the default overload retry policy.
func DefaultPolicy() Policy {
	return Policy{
		Limit:      10,
		Wait:       10 * time.Second,
		Multiplier: 1.2,
		MaxWait:    2 * time.Minute,
	}
}

// Retrier repeats requests answered with 503 Service Unavailable, sleeping
// with a growing wait in between, and turns every other non-2xx response into
// a *RequestError. Successful responses are returned unchanged.
type Retrier struct {
	next   Sender
	policy Policy
	logger log.Logger
	timer  backoff.Timer
}

// NewRetrier decorates next with policy.
func NewRetrier(next Sender, policy Policy, logger log.Logger) *Retrier {
	if policy.Multiplier < 1 {
		policy.Multiplier = 1
	}
	return &Retrier{
		next:   next,
		policy: policy,
		logger: logger,
	}
}

// Send ...
func (r *Retrier) Send(ctx context.Context, req Request) (Response, error) {
	var resp Response
	attempts := 0

	operation := func() error {
		attempts++

		var err error
		resp, err = r.next.Send(ctx, req)
		if err != nil {
			return backoff.Permanent(err)
		}

		switch {
		case resp.successful():
			return nil
		case resp.StatusCode == http.StatusServiceUnavailable:
			return newRequestError(resp, attempts)
		default:
			return backoff.Permanent(newRequestError(resp, attempts))
		}
	}

	notify := func(err error, wait time.Duration) {
		r.logger.Warnf("Service overloaded (attempt %d/%d), retrying in %s", attempts, r.policy.Limit+1, wait.Round(time.Millisecond))
	}

	if err := backoff.RetryNotifyWithTimer(operation, backoff.WithContext(r.schedule(), ctx), notify, r.timer); err != nil {
		return Response{}, err
	}
	return resp, nil
}

func (r *Retrier) schedule() backoff.BackOff {
	if r.policy.Limit <= 0 {
		return &backoff.StopBackOff{}
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.policy.Wait
	b.Multiplier = r.policy.Multiplier
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.MaxInterval = r.policy.MaxWait
	if b.MaxInterval <= 0 {
		b.MaxInterval = time.Duration(math.MaxInt64)
	}
	b.Reset()

	return backoff.WithMaxRetries(b, uint64(r.policy.Limit))
}

package speech

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/hammamikhairi/iqra/internal/logger"
)

// Compile-time interface check.
var _ Synthesizer = (*Retrying)(nil)

// RetryOption configures a Retrying synthesizer.
type RetryOption func(*Retrying)

// WithMaxTries caps the number of attempts, including the first.
func WithMaxTries(n uint) RetryOption {
	return func(r *Retrying) {
		r.maxTries = n
	}
}

// WithRetryInterval sets the first and the largest wait between attempts.
func WithRetryInterval(initial, maxWait time.Duration) RetryOption {
	return func(r *Retrying) {
		r.initial = initial
		r.maxWait = maxWait
	}
}

// Retrying retries a synthesizer with exponential backoff. Client errors
// (4xx other than 429) are not retried.
type Retrying struct {
	next     Synthesizer
	log      *logger.Logger
	maxTries uint
	initial  time.Duration
	maxWait  time.Duration
}

// NewRetrying wraps next.
func NewRetrying(next Synthesizer, log *logger.Logger, opts ...RetryOption) *Retrying {
	r := &Retrying{
		next:     next,
		log:      log,
		maxTries: 3,
		initial:  250 * time.Millisecond,
		maxWait:  2 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Voice returns the wrapped synthesizer's voice.
func (r *Retrying) Voice() string { return r.next.Voice() }

// Synthesize calls the wrapped synthesizer until it succeeds, fails
// permanently, runs out of tries or ctx is done.
func (r *Retrying) Synthesize(ctx context.Context, text string) ([]byte, error) {
	op := func() ([]byte, error) {
		audio, err := r.next.Synthesize(ctx, text)
		if err == nil {
			return audio, nil
		}
		if ctx.Err() != nil {
			return nil, backoff.Permanent(ctx.Err())
		}
		var se *StatusError
		if errors.As(err, &se) && !se.Temporary() {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}
	return backoff.Retry(ctx, op,
		backoff.WithBackOff(newBackOff(r.initial, r.maxWait)),
		backoff.WithMaxTries(r.maxTries),
		backoff.WithNotify(func(err error, wait time.Duration) {
			r.log.Warn("synthesis failed, retrying in %s: %v", wait.Round(time.Millisecond), err)
		}),
	)
}

func newBackOff(initial, maxWait time.Duration) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	b.MaxInterval = maxWait
	return b
}

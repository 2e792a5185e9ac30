package speech

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/hammamikhairi/iqra/internal/domain"
	"github.com/hammamikhairi/iqra/internal/logger"
)

// ReciterOption configures the Reciter.
type ReciterOption func(*Reciter)

// WithReciterClient sets the HTTP client used to fetch recitations.
func WithReciterClient(c *http.Client) ReciterOption {
	return func(r *Reciter) {
		r.client = c
	}
}

// WithFetchRetry sets the attempts and first backoff for opening a stream.
func WithFetchRetry(tries uint, initial time.Duration) ReciterOption {
	return func(r *Reciter) {
		r.tries = tries
		r.initial = initial
	}
}

// Reciter streams chapter recitations from their audio URL through the
// player. Playback starts while the file is still downloading.
type Reciter struct {
	sink    AudioSink
	client  *http.Client
	log     *logger.Logger
	tries   uint
	initial time.Duration
}

// NewReciter creates a reciter playing through sink.
func NewReciter(sink AudioSink, log *logger.Logger, opts ...ReciterOption) *Reciter {
	r := &Reciter{
		sink: sink,
		// No overall timeout: recitations can run for many minutes.
		client:  &http.Client{Transport: http.DefaultTransport},
		log:     log,
		tries:   3,
		initial: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Recite plays the chapter until it ends, ctx is done or the player is
// stopped. A stopped player yields domain.ErrInterrupted.
func (r *Reciter) Recite(ctx context.Context, chapter *domain.Chapter) error {
	r.log.Info("reciting chapter %d (%s)", chapter.Number, chapter.Name)

	body, err := r.open(ctx, chapter.AudioURL)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("fetching chapter %d: %w", chapter.Number, err)
	}
	defer body.Close()

	if err := r.sink.PlayStream(ctx, body); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, domain.ErrInterrupted) {
			return err
		}
		return fmt.Errorf("playing chapter %d: %w", chapter.Number, err)
	}
	r.log.Debug("chapter %d finished", chapter.Number)
	return nil
}

// open GETs the audio URL, retrying transport errors and 5xx replies.
func (r *Reciter) open(ctx context.Context, url string) (io.ReadCloser, error) {
	op := func() (io.ReadCloser, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, backoff.Permanent(fmt.Errorf("creating request: %w", err))
		}
		resp, err := r.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, backoff.Permanent(ctx.Err())
			}
			return nil, err
		}
		if resp.StatusCode != http.StatusOK {
			serr := statusError("recitation", resp)
			resp.Body.Close()
			if !serr.Temporary() {
				return nil, backoff.Permanent(serr)
			}
			return nil, serr
		}
		return resp.Body, nil
	}
	return backoff.Retry(ctx, op,
		backoff.WithBackOff(newBackOff(r.initial, 8*r.initial)),
		backoff.WithMaxTries(r.tries),
		backoff.WithNotify(func(err error, wait time.Duration) {
			r.log.Warn("fetch failed, retrying in %s: %v", wait.Round(time.Millisecond), err)
		}),
	)
}

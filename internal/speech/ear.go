package speech

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/hammamikhairi/iqra/internal/domain"
	"github.com/hammamikhairi/iqra/internal/logger"
)

// EarOption configures the Ear.
type EarOption func(*Ear)

// WithRecordDuration sets how long each recording chunk lasts.
func WithRecordDuration(d time.Duration) EarOption {
	return func(e *Ear) { e.recordDuration = d }
}

// WithListenTimeout caps a whole Listen call.
func WithListenTimeout(d time.Duration) EarOption {
	return func(e *Ear) { e.listenTimeout = d }
}

// WithSilenceChunks sets how many empty chunks end a listen: before the
// user has said anything, and after they have.
func WithSilenceChunks(before, after int) EarOption {
	return func(e *Ear) {
		e.graceEmpty = before
		e.postSpeechEmpty = after
	}
}

// WithRecorderRetry sets how often a failing recognizer is retried per
// chunk and the first wait between attempts.
func WithRecorderRetry(tries uint, initial time.Duration) EarOption {
	return func(e *Ear) {
		e.recordTries = tries
		e.retryInitial = initial
	}
}

// Ear is the listen-for-utterance primitive. Each Listen call records
// chunks until the user stops talking, then returns everything heard.
// Two listens never overlap.
type Ear struct {
	rec Recognizer
	log *logger.Logger

	recordDuration  time.Duration
	listenTimeout   time.Duration
	graceEmpty      int // empty chunks tolerated before first speech
	postSpeechEmpty int // empty chunks tolerated after speech started
	recordTries     uint
	retryInitial    time.Duration

	sem chan struct{} // held for the duration of a Listen
}

// NewEar creates a listener on top of a recognizer.
func NewEar(rec Recognizer, log *logger.Logger, opts ...EarOption) *Ear {
	e := &Ear{
		rec:             rec,
		log:             log,
		recordDuration:  defaultRecordDuration,
		listenTimeout:   defaultListenTimeout,
		graceEmpty:      3,
		postSpeechEmpty: 1,
		recordTries:     3,
		retryInitial:    300 * time.Millisecond,
		sem:             make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// IsListening reports whether a Listen call is in progress.
func (e *Ear) IsListening() bool {
	return len(e.sem) > 0
}

// Listen records until silence or the listen timeout and returns the
// transcript. It returns domain.ErrNoSpeech when nothing was said,
// domain.ErrBusy if another Listen is running, and ctx.Err() when
// cancelled. Recognizer failures that survive retries are wrapped in
// domain.ErrSpeechUnavailable.
func (e *Ear) Listen(ctx context.Context) (string, error) {
	select {
	case e.sem <- struct{}{}:
	default:
		return "", domain.ErrBusy
	}
	defer func() { <-e.sem }()

	listenCtx, cancel := context.WithTimeout(ctx, e.listenTimeout)
	defer cancel()

	e.log.Debug("listening (timeout=%s)", e.listenTimeout)

	var parts []string
	emptyRuns := 0
	for {
		chunk, err := e.record(listenCtx)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			if listenCtx.Err() != nil {
				e.log.Debug("listen timeout reached")
				break
			}
			return "", fmt.Errorf("%w: %v", domain.ErrSpeechUnavailable, err)
		}

		chunk = cleanTranscription(chunk)
		if chunk == "" {
			emptyRuns++
			maxEmpty := e.graceEmpty
			if len(parts) > 0 {
				maxEmpty = e.postSpeechEmpty
			}
			if emptyRuns >= maxEmpty {
				e.log.Debug("silence detected (heard_speech=%v)", len(parts) > 0)
				break
			}
			continue
		}

		emptyRuns = 0
		e.log.Debug("chunk: %q", chunk)
		parts = append(parts, chunk)
	}

	combined := strings.TrimSpace(strings.Join(parts, " "))
	if combined == "" {
		return "", domain.ErrNoSpeech
	}
	e.log.Info("heard %q", combined)
	return combined, nil
}

// record captures one chunk, retrying recognizer failures with backoff.
func (e *Ear) record(ctx context.Context) (string, error) {
	op := func() (string, error) {
		text, err := e.rec.Record(ctx, e.recordDuration)
		if err != nil && ctx.Err() != nil {
			return "", backoff.Permanent(ctx.Err())
		}
		return text, err
	}
	return backoff.Retry(ctx, op,
		backoff.WithBackOff(newBackOff(e.retryInitial, 4*e.retryInitial)),
		backoff.WithMaxTries(e.recordTries),
		backoff.WithNotify(func(err error, wait time.Duration) {
			e.log.Warn("recognizer failed, retrying in %s: %v", wait.Round(time.Millisecond), err)
		}),
	)
}

// ── Transcription cleanup ────────────────────────────────────────

// annotation matches whisper's bracketed sound annotations like
// "[BLANK_AUDIO]", "(keyboard clicking)" or "[Music]".
var annotation = regexp.MustCompile(`[\(\[][A-Za-z_][A-Za-z_\s'-]*[\)\]]`)

// timestamp matches prefixes like "[00:00:00.000 --> 00:00:05.000]".
var timestamp = regexp.MustCompile(`\[\d{2}:\d{2}[:\d.]*\s*-->\s*\d{2}:\d{2}[:\d.]*\]`)

// hallucinations are phrases whisper produces on silence. A transcript that
// is only one of these is discarded.
var hallucinations = map[string]bool{
	"...":                     true,
	"you":                     true,
	"thank you.":              true,
	"thank you":               true,
	"thanks for watching!":    true,
	"thank you for watching.": true,
	"the end.":                true,
}

// cleanTranscription removes timestamps, sound annotations and newlines, and
// discards transcripts that are only a known hallucination.
func cleanTranscription(s string) string {
	s = timestamp.ReplaceAllString(s, " ")
	s = annotation.ReplaceAllString(s, " ")
	s = strings.Join(strings.Fields(s), " ")
	if hallucinations[strings.ToLower(s)] {
		return ""
	}
	return s
}

package speech

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// Synthesizer turns text into encoded audio (WAV or MP3). Implementations
// must be safe for concurrent use.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
	// Voice names the voice, so cached audio follows voice changes.
	Voice() string
}

// AudioSink plays encoded audio. Play and PlayStream block until playback
// ends, Stop is called (domain.ErrInterrupted) or ctx is done (ctx.Err()).
type AudioSink interface {
	Play(ctx context.Context, audio []byte) error
	PlayStream(ctx context.Context, r io.Reader) error
	Stop()
}

// StatusError is a non-200 reply from an HTTP speech backend.
type StatusError struct {
	Backend string
	Code    int
	Body    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s error %d: %s", e.Backend, e.Code, e.Body)
}

// Temporary reports whether retrying could help.
func (e *StatusError) Temporary() bool {
	return e.Code >= 500 || e.Code == http.StatusTooManyRequests
}

// statusError builds a StatusError from a response, reading a bounded
// amount of the body.
func statusError(backend string, resp *http.Response) *StatusError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &StatusError{Backend: backend, Code: resp.StatusCode, Body: string(body)}
}

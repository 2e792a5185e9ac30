package speech

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	audiotranscriber "github.com/sklyt/whisper/pkg"

	"github.com/hammamikhairi/iqra/internal/logger"
)

// Recognizer records from the microphone for a fixed duration and returns
// what was said. An empty string means silence.
type Recognizer interface {
	Record(ctx context.Context, d time.Duration) (string, error)
}

// Compile-time interface check.
var _ Recognizer = (*WhisperRecognizer)(nil)

var errTranscribeTimeout = errors.New("transcription timed out")

// WhisperRecognizer records a WAV clip and transcribes it with a local
// whisper.cpp binary and GGML model.
type WhisperRecognizer struct {
	bin              string
	model            string
	tempDir          string
	transcribeWithin time.Duration
	log              *logger.Logger
}

// NewWhisperRecognizer creates a recognizer. tempDir holds the recorded
// clips.
func NewWhisperRecognizer(bin, model, tempDir string, log *logger.Logger) *WhisperRecognizer {
	if _, err := exec.LookPath(bin); err != nil {
		log.Error("whisper binary %q not found in PATH: %v", bin, err)
	}
	return &WhisperRecognizer{
		bin:              bin,
		model:            model,
		tempDir:          tempDir,
		transcribeWithin: 20 * time.Second,
		log:              log,
	}
}

// Record captures d of audio and returns its transcription. Cancelling ctx
// stops the recording early and returns ctx.Err().
func (w *WhisperRecognizer) Record(ctx context.Context, d time.Duration) (string, error) {
	// Buffered so a late callback never blocks the transcriber.
	result := make(chan string, 1)
	callback := func(text string) {
		select {
		case result <- text:
		default:
		}
	}

	verbose := w.log.GetLevel() >= logger.LevelVerbose
	t, err := audiotranscriber.NewTranscriber(w.bin, w.model, w.tempDir, "wav", callback, verbose)
	if err != nil {
		return "", fmt.Errorf("transcriber init: %w", err)
	}
	if err := t.Start(); err != nil {
		return "", fmt.Errorf("recording start: %w", err)
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		t.Stop()
		return "", ctx.Err()
	}
	t.Stop()

	wait := time.NewTimer(w.transcribeWithin)
	defer wait.Stop()
	select {
	case text := <-result:
		return text, nil
	case <-wait.C:
		return "", errTranscribeTimeout
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Package httpapi serves the synthesis proxy: devices post text and get
// audio back, and the Azure key stays on the server.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hammamikhairi/iqra/internal/logger"
	"github.com/hammamikhairi/iqra/internal/speech"
)

// VoiceFunc returns a synthesizer for a named voice.
type VoiceFunc func(voice string) speech.Synthesizer

// Option configures the server.
type Option func(*Server)

// WithTimeout bounds each synthesis request.
func WithTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.timeout = d
	}
}

// WithMaxChars caps the text length per request.
func WithMaxChars(n int) Option {
	return func(s *Server) {
		s.maxChars = n
	}
}

// WithVoices lets requests pick a voice. Without it the "voice" field is
// ignored and every request uses the default synthesizer.
func WithVoices(fn VoiceFunc) Option {
	return func(s *Server) {
		s.voices = fn
	}
}

// Server is the proxy's HTTP handler.
type Server struct {
	tts      speech.Synthesizer
	voices   VoiceFunc
	log      *logger.Logger
	timeout  time.Duration
	maxChars int
	mux      *http.ServeMux
}

// NewServer creates the proxy handler around the upstream synthesizer.
func NewServer(tts speech.Synthesizer, log *logger.Logger, opts ...Option) *Server {
	s := &Server{
		tts:      tts,
		log:      log,
		timeout:  20 * time.Second,
		maxChars: 1000,
		mux:      http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /tts", s.handleTTS)
	s.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
}

type ttsRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice,omitempty"`
}

// voiceName matches Azure voice names such as en-US-AvaMultilingualNeural.
// Voices end up inside SSML, so nothing else is accepted.
var voiceName = regexp.MustCompile(`^[A-Za-z]{2,3}(-[A-Za-z0-9]+)+$`)

func (s *Server) handleTTS(w http.ResponseWriter, r *http.Request) {
	id := uuid.NewString()
	w.Header().Set("X-Request-ID", id)

	// Room for the JSON around maxChars of multi-byte text.
	r.Body = http.MaxBytesReader(w, r.Body, int64(s.maxChars)*4+1024)

	var body ttsRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			httpError(w, http.StatusRequestEntityTooLarge, "text too long")
			return
		}
		httpError(w, http.StatusBadRequest, "invalid json")
		return
	}

	text := strings.TrimSpace(body.Text)
	switch {
	case text == "":
		httpError(w, http.StatusBadRequest, "text is required")
		return
	case utf8.RuneCountInString(text) > s.maxChars:
		httpError(w, http.StatusRequestEntityTooLarge, "text too long")
		return
	}

	synth, err := s.synthFor(body.Voice)
	if err != nil {
		httpError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	start := time.Now()
	audio, err := synth.Synthesize(ctx, text)
	if err != nil {
		s.log.Error("tts %s: upstream (%s): %v", id, synth.Voice(), err)
		httpError(w, http.StatusBadGateway, "tts error")
		return
	}
	s.log.Info("tts %s: %d chars, voice %s, %d bytes in %s",
		id, len(text), synth.Voice(), len(audio), time.Since(start).Round(time.Millisecond))

	w.Header().Set("Content-Type", contentType(audio))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(audio); err != nil {
		s.log.Warn("tts %s: writing response: %v", id, err)
	}
}

func (s *Server) synthFor(voice string) (speech.Synthesizer, error) {
	if voice == "" || s.voices == nil || voice == s.tts.Voice() {
		return s.tts, nil
	}
	if !voiceName.MatchString(voice) {
		return nil, errors.New("invalid voice")
	}
	return s.voices(voice), nil
}

// contentType guesses the audio type from its first bytes.
func contentType(audio []byte) string {
	switch {
	case len(audio) >= 12 && string(audio[:4]) == "RIFF" && string(audio[8:12]) == "WAVE":
		return "audio/wav"
	case len(audio) >= 3 && string(audio[:3]) == "ID3",
		len(audio) >= 2 && audio[0] == 0xff && audio[1]&0xe0 == 0xe0:
		return "audio/mpeg"
	default:
		return "application/octet-stream"
	}
}

func httpError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(code)
	_, _ = io.WriteString(w, msg)
}

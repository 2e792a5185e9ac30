package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hammamikhairi/iqra/internal/logger"
	"github.com/hammamikhairi/iqra/internal/speech"
)

var wavHeader = []byte("RIFF\x00\x00\x00\x00WAVEfmt ")

type fakeSynth struct {
	voice string
	err   error
	delay time.Duration

	mu    sync.Mutex
	texts []string
}

func (f *fakeSynth) Voice() string { return f.voice }

func (f *fakeSynth) Synthesize(ctx context.Context, text string) ([]byte, error) {
	f.mu.Lock()
	f.texts = append(f.texts, text)
	f.mu.Unlock()
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return append(append([]byte{}, wavHeader...), text...), nil
}

func quietLog() *logger.Logger { return logger.New(logger.LevelOff, nil) }

func post(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/tts", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestTTS(t *testing.T) {
	synth := &fakeSynth{voice: "en-US-AvaMultilingualNeural"}
	srv := NewServer(synth, quietLog())

	rec := post(t, srv, `{"text":"  Bismillah.  "}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	if got := rec.Header().Get("Content-Type"); got != "audio/wav" {
		t.Errorf("content type = %q", got)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("missing request id")
	}
	if !strings.HasSuffix(rec.Body.String(), "Bismillah.") {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestTTSRejects(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{"bad json", `{"text":`, http.StatusBadRequest},
		{"empty text", `{"text":"   "}`, http.StatusBadRequest},
		{"missing text", `{}`, http.StatusBadRequest},
		{"too long", `{"text":"` + strings.Repeat("a", 11) + `"}`, http.StatusRequestEntityTooLarge},
		{"huge body", `{"text":"` + strings.Repeat("a", 5000) + `"}`, http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			synth := &fakeSynth{voice: "v"}
			srv := NewServer(synth, quietLog(), WithMaxChars(10))
			if rec := post(t, srv, tt.body); rec.Code != tt.want {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.want, rec.Body)
			}
			if len(synth.texts) != 0 {
				t.Fatal("rejected request reached the upstream")
			}
		})
	}
}

func TestTTSUpstreamFailure(t *testing.T) {
	srv := NewServer(&fakeSynth{voice: "v", err: errors.New("azure down")}, quietLog())
	rec := post(t, srv, `{"text":"hello"}`)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "azure down") {
		t.Fatal("upstream error leaked to the client")
	}
}

func TestTTSTimeout(t *testing.T) {
	srv := NewServer(&fakeSynth{voice: "v", delay: time.Second}, quietLog(), WithTimeout(20*time.Millisecond))
	start := time.Now()
	rec := post(t, srv, `{"text":"hello"}`)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d", rec.Code)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Fatal("request outlived its timeout")
	}
}

func TestTTSVoices(t *testing.T) {
	def := &fakeSynth{voice: "en-US-AvaMultilingualNeural"}
	made := map[string]*fakeSynth{}
	srv := NewServer(def, quietLog(), WithVoices(func(voice string) speech.Synthesizer {
		s := &fakeSynth{voice: voice}
		made[voice] = s
		return s
	}))

	tests := []struct {
		name  string
		body  string
		want  int
		voice string
	}{
		{"default", `{"text":"a"}`, http.StatusOK, ""},
		{"same as default", `{"text":"a","voice":"en-US-AvaMultilingualNeural"}`, http.StatusOK, ""},
		{"other voice", `{"text":"a","voice":"ar-SA-HamedNeural"}`, http.StatusOK, "ar-SA-HamedNeural"},
		{"ssml injection", `{"text":"a","voice":"x'><audio src='y"}`, http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := post(t, srv, tt.body); rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
			if tt.voice != "" && made[tt.voice] == nil {
				t.Fatalf("voice %s not used", tt.voice)
			}
		})
	}
	if len(made) != 1 {
		t.Fatalf("made %d voices, want 1", len(made))
	}
}

func TestHealthz(t *testing.T) {
	srv := httptest.NewServer(NewServer(&fakeSynth{voice: "v"}, quietLog()))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || string(body) != "ok" {
		t.Fatalf("healthz = %d %q", resp.StatusCode, body)
	}

	resp2, err := http.Get(srv.URL + "/tts")
	if err != nil {
		t.Fatal(err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("GET /tts = %d", resp2.StatusCode)
	}
}

func TestProxyClientRoundTrip(t *testing.T) {
	srv := httptest.NewServer(NewServer(&fakeSynth{voice: "v"}, quietLog()))
	defer srv.Close()

	client := speech.NewProxyClient(srv.URL, quietLog())
	audio, err := client.Synthesize(context.Background(), "Assalamu alaikum")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if !strings.HasSuffix(string(audio), "Assalamu alaikum") {
		t.Fatalf("audio = %q", audio)
	}
}

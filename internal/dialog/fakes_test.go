package dialog

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hammamikhairi/iqra/internal/domain"
	"github.com/hammamikhairi/iqra/internal/logger"
	"github.com/hammamikhairi/iqra/internal/speech"
)

func quietLog() *logger.Logger { return logger.New(logger.LevelOff, nil) }

// ── Speech fakes ─────────────────────────────────────────────────

type echoSynth struct{}

func (echoSynth) Voice() string { return "echo" }

func (echoSynth) Synthesize(ctx context.Context, text string) ([]byte, error) {
	return []byte(text), nil
}

// gatedSink plays instantly unless hold is set, in which case Play blocks
// until release or ctx. A cancelled Play takes stopDelay to return, like a
// device draining its buffer.
type gatedSink struct {
	hold      atomic.Bool
	playing   atomic.Bool
	stopDelay time.Duration
	release   chan struct{}
	started   chan string

	mu     sync.Mutex
	played []string
}

func newGatedSink(hold bool) *gatedSink {
	s := &gatedSink{release: make(chan struct{}), started: make(chan string, 16)}
	s.hold.Store(hold)
	return s
}

func (s *gatedSink) Play(ctx context.Context, audio []byte) error {
	s.playing.Store(true)
	defer s.playing.Store(false)
	select {
	case s.started <- string(audio):
	default:
	}
	if s.hold.Load() {
		select {
		case <-s.release:
		case <-ctx.Done():
			time.Sleep(s.stopDelay)
			return ctx.Err()
		}
	}
	s.mu.Lock()
	s.played = append(s.played, string(audio))
	s.mu.Unlock()
	return nil
}

func (s *gatedSink) PlayStream(ctx context.Context, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	return s.Play(ctx, data)
}

func (s *gatedSink) Stop() {}

func (s *gatedSink) Played() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.played...)
}

// startMouth runs a mouth until the test ends.
func startMouth(t *testing.T, sink speech.AudioSink) *speech.Mouth {
	t.Helper()
	m := speech.NewMouth(echoSynth{}, sink, quietLog())
	ctx, cancel := context.WithCancel(context.Background())
	m.Start(ctx)
	t.Cleanup(func() {
		cancel()
		m.Wait()
	})
	return m
}

// ── Listener / reciter fakes ─────────────────────────────────────

type heard struct {
	text string
	err  error
}

// scriptedListener replays results; once empty it reports no speech.
// onListen, when set, runs at the start of every call.
type scriptedListener struct {
	mu       sync.Mutex
	results  []heard
	calls    int
	block    bool
	onListen func()
}

func (l *scriptedListener) Listen(ctx context.Context) (string, error) {
	l.mu.Lock()
	l.calls++
	hook := l.onListen
	block := l.block
	var r heard
	if len(l.results) > 0 {
		r = l.results[0]
		l.results = l.results[1:]
	} else {
		r = heard{err: domain.ErrNoSpeech}
	}
	l.mu.Unlock()

	if hook != nil {
		hook()
	}
	if block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return r.text, r.err
}

func (l *scriptedListener) Calls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

// fakeReciter finishes right away with err, or blocks until ctx when block
// is set. onRecite, when set, runs at the start of every call.
type fakeReciter struct {
	err      error
	block    bool
	started  chan int
	onRecite func()
}

func newFakeReciter(block bool, err error) *fakeReciter {
	return &fakeReciter{err: err, block: block, started: make(chan int, 4)}
}

func (r *fakeReciter) Recite(ctx context.Context, ch *domain.Chapter) error {
	if r.onRecite != nil {
		r.onRecite()
	}
	r.started <- ch.Number
	if r.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return r.err
}

// ── Output ───────────────────────────────────────────────────────

// recorder is an Output that keeps every printed line.
type recorder struct {
	mu    sync.Mutex
	lines []string
}

func (r *recorder) add(kind, text string) {
	r.mu.Lock()
	r.lines = append(r.lines, kind+": "+text)
	r.mu.Unlock()
}

func (r *recorder) PrintChat(text string)        { r.add("chat", text) }
func (r *recorder) PrintStep(text string)        { r.add("step", text) }
func (r *recorder) PrintInstruction(text string) { r.add("text", text) }
func (r *recorder) PrintHint(text string)        { r.add("hint", text) }
func (r *recorder) PrintUrgent(text string)      { r.add("urgent", text) }
func (r *recorder) PrintVoice(text string)       { r.add("voice", text) }

func (r *recorder) contains(substr string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.lines {
		if strings.Contains(l, substr) {
			return true
		}
	}
	return false
}

func (r *recorder) count(substr string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, l := range r.lines {
		if strings.Contains(l, substr) {
			n++
		}
	}
	return n
}

func (r *recorder) dump() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return strings.Join(r.lines, "\n")
}

// waitFor polls until a printed line contains substr.
func (r *recorder) waitFor(t *testing.T, substr string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !r.contains(substr) {
		if time.Now().After(deadline) {
			t.Fatalf("never printed %q; output:\n%s", substr, r.dump())
		}
		time.Sleep(2 * time.Millisecond)
	}
}

// ── Helpers ──────────────────────────────────────────────────────

func nextEvent(t *testing.T, c *Conductor) Event {
	t.Helper()
	select {
	case ev := <-c.C():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no event")
		return Event{}
	}
}

func noEvent(t *testing.T, c *Conductor, within time.Duration) {
	t.Helper()
	select {
	case ev := <-c.C():
		if c.Current(ev) {
			t.Fatalf("unexpected event: %+v", ev)
		}
	case <-time.After(within):
	}
}

func waitTurn(t *testing.T, c *Conductor, want Turn) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for c.Turn() != want {
		if time.Now().After(deadline) {
			t.Fatalf("turn = %s, want %s", c.Turn(), want)
		}
		time.Sleep(time.Millisecond)
	}
}

func mustBe(t *testing.T, ev Event, kind EventKind) {
	t.Helper()
	if ev.Kind != kind {
		t.Fatalf("event kind = %d, want %d (%s)", ev.Kind, kind, fmt.Sprint(ev.Err))
	}
}

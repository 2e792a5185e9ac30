package speech

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/hammamikhairi/iqra/internal/domain"
)

func startMouth(t *testing.T, synth Synthesizer, sink AudioSink, opts ...MouthOption) (*Mouth, func()) {
	t.Helper()
	m := NewMouth(synth, sink, quietLog(), opts...)
	ctx, cancel := context.WithCancel(context.Background())
	m.Start(ctx)
	return m, func() {
		cancel()
		m.Wait()
	}
}

func waitDone(t *testing.T, u *Utterance) error {
	t.Helper()
	select {
	case <-u.Done():
		return u.Err()
	case <-time.After(2 * time.Second):
		t.Fatalf("utterance %q never completed", u.Text)
		return nil
	}
}

func TestSayPlaysAndCompletes(t *testing.T) {
	defer goleak.VerifyNone(t)

	sink := newFakeSink(false)
	m, stop := startMouth(t, newFakeSynth(), sink)
	defer stop()

	u := m.Say("Bismillah, let us begin the lesson today.", PriorityNormal)
	if err := waitDone(t, u); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := sink.Played(); len(got) != 1 || got[0] != "audio:Bismillah, let us begin the lesson today." {
		t.Fatalf("unexpected playback: %v", got)
	}
	if m.LastSpoken() != u.Text {
		t.Fatalf("LastSpoken = %q", m.LastSpoken())
	}
}

func TestInterruptCompletesEveryUtterance(t *testing.T) {
	defer goleak.VerifyNone(t)

	sink := newFakeSink(true)
	m, stop := startMouth(t, newFakeSynth(), sink)
	defer stop()

	first := m.Say("first", PriorityNormal)
	<-sink.started // first is now playing
	second := m.Say("second", PriorityNormal)

	m.Interrupt()

	for _, u := range []*Utterance{first, second} {
		if err := waitDone(t, u); !errors.Is(err, domain.ErrInterrupted) {
			t.Fatalf("%s: expected ErrInterrupted, got %v", u.Text, err)
		}
	}
	if m.IsSpeaking() || m.QueueLen() != 0 {
		t.Fatal("mouth should be idle after interrupt")
	}

	// The mouth keeps working after an interrupt.
	sink.hold.Store(false)
	third := m.Say("third", PriorityNormal)
	if err := waitDone(t, third); err != nil {
		t.Fatalf("third: %v", err)
	}
}

func TestInterruptWaitsForPlayingUtterance(t *testing.T) {
	defer goleak.VerifyNone(t)

	sink := newFakeSink(true)
	sink.stopDelay = 100 * time.Millisecond
	m, stop := startMouth(t, newFakeSynth(), sink)
	defer stop()

	playing := m.Say("The first verse of the chapter.", PriorityNormal)
	<-sink.started
	queued := m.Say("The second verse of the chapter.", PriorityNormal)

	silent := m.Interrupt()
	if err := waitDone(t, queued); !errors.Is(err, domain.ErrInterrupted) {
		t.Fatalf("queued: %v", err)
	}

	select {
	case <-silent:
	case <-time.After(2 * time.Second):
		t.Fatal("interrupt never reported silence")
	}
	if sink.playing.Load() {
		t.Fatal("silence reported while the sink was still playing")
	}
	select {
	case <-playing.Done():
	default:
		t.Fatal("playing utterance should be finished once silent")
	}

	// Nothing playing: the channel is already closed.
	select {
	case <-m.Interrupt():
	default:
		t.Fatal("interrupting an idle mouth should not block")
	}
}

func TestCancelQueuedUtterance(t *testing.T) {
	defer goleak.VerifyNone(t)

	sink := newFakeSink(true)
	m, stop := startMouth(t, newFakeSynth(), sink)
	defer stop()

	playing := m.Say("playing", PriorityNormal)
	<-sink.started
	queued := m.Say("queued", PriorityNormal)

	queued.Cancel()
	queued.Cancel() // idempotent
	if err := waitDone(t, queued); !errors.Is(err, domain.ErrInterrupted) {
		t.Fatalf("expected ErrInterrupted, got %v", err)
	}

	close(sink.release)
	if err := waitDone(t, playing); err != nil {
		t.Fatalf("playing: %v", err)
	}
	for _, p := range sink.Played() {
		if p == "audio:queued" {
			t.Fatal("cancelled utterance was played")
		}
	}
}

func TestCancelPlayingUtterance(t *testing.T) {
	defer goleak.VerifyNone(t)

	sink := newFakeSink(true)
	m, stop := startMouth(t, newFakeSynth(), sink)
	defer stop()

	u := m.Say("long recitation intro", PriorityNormal)
	<-sink.started
	u.Cancel()
	if err := waitDone(t, u); !errors.Is(err, domain.ErrInterrupted) {
		t.Fatalf("expected ErrInterrupted, got %v", err)
	}
}

func TestPriorityOrder(t *testing.T) {
	defer goleak.VerifyNone(t)

	sink := newFakeSink(true)
	m, stop := startMouth(t, newFakeSynth(), sink)
	defer stop()

	blocker := m.Say("blocker", PriorityNormal)
	<-sink.started

	normal := m.Say("normal", PriorityNormal)
	critical := m.Say("critical", PriorityCritical)
	sink.hold.Store(false)
	close(sink.release)

	for _, u := range []*Utterance{blocker, normal, critical} {
		if err := waitDone(t, u); err != nil {
			t.Fatalf("%s: %v", u.Text, err)
		}
	}
	got := strings.Join(sink.Played(), ",")
	if got != "audio:blocker,audio:critical,audio:normal" {
		t.Fatalf("unexpected order: %s", got)
	}
}

func TestNormalSpeechFlushesLowPriority(t *testing.T) {
	defer goleak.VerifyNone(t)

	sink := newFakeSink(true)
	m, stop := startMouth(t, newFakeSynth(), sink)
	defer stop()

	blocker := m.Say("blocker", PriorityNormal)
	<-sink.started
	nudge := m.Say("are you still there", PriorityLow)
	m.Say("answer", PriorityNormal)

	if err := waitDone(t, nudge); !errors.Is(err, domain.ErrInterrupted) {
		t.Fatalf("expected flushed nudge to be interrupted, got %v", err)
	}
	blocker.Cancel()
}

func TestSynthesisFailure(t *testing.T) {
	defer goleak.VerifyNone(t)

	synth := newFakeSynth()
	boom := errors.New("boom")
	synth.fail["broken"] = boom
	m, stop := startMouth(t, synth, newFakeSink(false))
	defer stop()

	if err := waitDone(t, m.Say("broken", PriorityNormal)); !errors.Is(err, boom) {
		t.Fatalf("expected synthesis error, got %v", err)
	}
}

func TestChunkedSpeechUsesCache(t *testing.T) {
	defer goleak.VerifyNone(t)

	synth := newFakeSynth()
	sink := newFakeSink(false)
	m, stop := startMouth(t, synth, sink, WithChunkSize(20))
	defer stop()

	text := "First sentence here. Second sentence here. Third one."
	if err := waitDone(t, m.Say(text, PriorityNormal)); err != nil {
		t.Fatal(err)
	}
	if err := waitDone(t, m.Say(text, PriorityNormal)); err != nil {
		t.Fatal(err)
	}

	played := sink.Played()
	if len(played) != 6 {
		t.Fatalf("expected 3 chunks played twice, got %v", played)
	}
	if played[0] != "audio:First sentence here." || played[2] != "audio:Third one." {
		t.Fatalf("chunks out of order: %v", played)
	}
	if n := synth.count("Second sentence here."); n != 1 {
		t.Fatalf("expected one synthesis per chunk, got %d", n)
	}
}

func TestPrefetchWarmsCache(t *testing.T) {
	defer goleak.VerifyNone(t)

	synth := newFakeSynth()
	m, stop := startMouth(t, synth, newFakeSink(false))

	m.Prefetch(context.Background(), "warm me up", "", "and me")
	stop() // waits for the prefetch too

	if !m.Cache().Has("warm me up") || !m.Cache().Has("and me") {
		t.Fatal("prefetched text should be cached")
	}
	if synth.count("") != 0 {
		t.Fatal("empty text should not be synthesized")
	}
}

func TestSayAfterStop(t *testing.T) {
	defer goleak.VerifyNone(t)

	m, stop := startMouth(t, newFakeSynth(), newFakeSink(false))
	stop()

	if err := waitDone(t, m.Say("too late", PriorityNormal)); !errors.Is(err, domain.ErrSpeechUnavailable) {
		t.Fatalf("expected ErrSpeechUnavailable, got %v", err)
	}
}

func TestSplitChunks(t *testing.T) {
	m := &Mouth{chunkSize: 30}

	tests := []struct {
		name string
		text string
		want int
	}{
		{"short", "Hello.", 1},
		{"two sentences", "This is the first sentence. And this is the second.", 2},
		{"no punctuation", strings.Repeat("word ", 20), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := m.splitChunks(tt.text); len(got) != tt.want {
				t.Fatalf("got %d chunks %q, want %d", len(got), got, tt.want)
			}
		})
	}
}

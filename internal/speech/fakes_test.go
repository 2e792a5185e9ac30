package speech

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hammamikhairi/iqra/internal/domain"
	"github.com/hammamikhairi/iqra/internal/logger"
)

func quietLog() *logger.Logger { return logger.New(logger.LevelOff, nil) }

// fakeSynth returns "audio:<text>" and counts calls per text.
type fakeSynth struct {
	mu    sync.Mutex
	calls map[string]int
	fail  map[string]error
	delay time.Duration
}

func newFakeSynth() *fakeSynth {
	return &fakeSynth{calls: make(map[string]int), fail: make(map[string]error)}
}

func (f *fakeSynth) Voice() string { return "fake" }

func (f *fakeSynth) Synthesize(ctx context.Context, text string) ([]byte, error) {
	f.mu.Lock()
	f.calls[text]++
	err := f.fail[text]
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return []byte("audio:" + text), nil
}

func (f *fakeSynth) count(text string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[text]
}

// fakeSink records what it played. When hold is set, Play blocks until
// release, Stop or ctx. stopDelay makes it slow to let go after ctx is
// cancelled, like a device draining its buffer; playing is true while
// Play has not returned.
type fakeSink struct {
	mu        sync.Mutex
	played    []string
	hold      atomic.Bool
	playing   atomic.Bool
	stopDelay time.Duration
	started   chan string
	release chan struct{}
	stop    chan struct{}
}

func newFakeSink(hold bool) *fakeSink {
	s := &fakeSink{
		started: make(chan string, 16),
		release: make(chan struct{}),
		stop:    make(chan struct{}, 1),
	}
	s.hold.Store(hold)
	return s
}

func (s *fakeSink) Play(ctx context.Context, audio []byte) error {
	s.playing.Store(true)
	defer s.playing.Store(false)
	select {
	case s.started <- string(audio):
	default:
	}
	if s.hold.Load() {
		select {
		case <-s.release:
		case <-s.stop:
			return domain.ErrInterrupted
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

func (s *fakeSink) PlayStream(ctx context.Context, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	return s.Play(ctx, data)
}

func (s *fakeSink) Stop() {
	select {
	case s.stop <- struct{}{}:
	default:
	}
}

func (s *fakeSink) Played() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.played))
	copy(out, s.played)
	return out
}

// encodeWAV wraps 16-bit PCM in a minimal RIFF header.
func encodeWAV(pcm []byte, format pcmFormat) []byte {
	var b bytes.Buffer
	blockAlign := format.channels * 2
	b.WriteString("RIFF")
	binary.Write(&b, binary.LittleEndian, uint32(36+len(pcm)))
	b.WriteString("WAVEfmt ")
	binary.Write(&b, binary.LittleEndian, uint32(16))
	binary.Write(&b, binary.LittleEndian, uint16(1))
	binary.Write(&b, binary.LittleEndian, uint16(format.channels))
	binary.Write(&b, binary.LittleEndian, uint32(format.rate))
	binary.Write(&b, binary.LittleEndian, uint32(format.rate*blockAlign))
	binary.Write(&b, binary.LittleEndian, uint16(blockAlign))
	binary.Write(&b, binary.LittleEndian, uint16(BitDepth))
	b.WriteString("data")
	binary.Write(&b, binary.LittleEndian, uint32(len(pcm)))
	b.Write(pcm)
	return b.Bytes()
}

// samples encodes int16 samples as little-endian bytes.
func samples(vals ...int16) []byte {
	out := make([]byte, 2*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(v))
	}
	return out
}

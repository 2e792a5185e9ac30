package speech

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/hammamikhairi/iqra/internal/domain"
	"github.com/hammamikhairi/iqra/internal/logger"
)

// Compile-time interface check.
var _ AudioSink = (*Player)(nil)

// Player plays WAV and MP3 audio through a single oto context. One clip or
// stream plays at a time; later calls wait their turn.
type Player struct {
	otoCtx *oto.Context
	log    *logger.Logger

	playMu sync.Mutex // serializes playback

	mu     sync.Mutex
	active *oto.Player   // currently playing, nil when idle
	stop   chan struct{} // closed by Stop for the active playback
}

// NewPlayer initializes the system audio device. Returns an error if the
// device is unavailable.
func NewPlayer(log *logger.Logger) (*Player, error) {
	op := &oto.NewContextOptions{
		SampleRate:   SampleRate,
		ChannelCount: ChannelCount,
		Format:       oto.FormatSignedInt16LE,
	}

	otoCtx, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSpeechUnavailable, err)
	}
	<-ready

	log.Debug("initialized (rate=%d, channels=%d)", SampleRate, ChannelCount)
	return &Player{otoCtx: otoCtx, log: log}, nil
}

// Play decodes and plays an in-memory clip.
func (p *Player) Play(ctx context.Context, audio []byte) error {
	pcm, err := decodeAudio(bytes.NewReader(audio))
	if err != nil {
		return err
	}
	return p.play(ctx, pcm)
}

// PlayStream decodes and plays audio as it arrives from r.
func (p *Player) PlayStream(ctx context.Context, r io.Reader) error {
	pcm, err := decodeAudio(r)
	if err != nil {
		return err
	}
	return p.play(ctx, pcm)
}

func (p *Player) play(ctx context.Context, pcm io.Reader) error {
	p.playMu.Lock()
	defer p.playMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	player := p.otoCtx.NewPlayer(pcm)
	defer player.Close()

	stop := make(chan struct{})
	p.mu.Lock()
	p.active = player
	p.stop = stop
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.active = nil
		p.stop = nil
		p.mu.Unlock()
	}()

	player.Play()
	p.log.Debug("playing")

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for player.IsPlaying() {
		select {
		case <-ctx.Done():
			player.Pause()
			p.log.Debug("cancelled")
			return ctx.Err()
		case <-stop:
			return domain.ErrInterrupted
		case <-ticker.C:
		}
	}
	if err := player.Err(); err != nil {
		return fmt.Errorf("playback: %w", err)
	}
	return nil
}

// Stop interrupts the current playback, if any. Safe to call concurrently
// and when nothing is playing.
func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stop == nil {
		return
	}
	p.active.Pause()
	close(p.stop)
	p.stop = nil
	p.log.Debug("interrupted")
}

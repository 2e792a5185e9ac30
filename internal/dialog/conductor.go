// Package dialog coordinates speaking, listening and reciting so they never
// overlap, and runs the conversation loop on top of the engine.
package dialog

import (
	"context"
	"errors"
	"sync"

	"github.com/hammamikhairi/iqra/internal/domain"
	"github.com/hammamikhairi/iqra/internal/logger"
	"github.com/hammamikhairi/iqra/internal/speech"
)

// Turn is what the audio channel is busy with.
type Turn int

const (
	TurnIdle Turn = iota
	TurnSpeaking
	TurnListening
	TurnReciting
)

// String returns a short turn name for the status bar.
func (t Turn) String() string {
	switch t {
	case TurnIdle:
		return "idle"
	case TurnSpeaking:
		return "speaking"
	case TurnListening:
		return "listening"
	case TurnReciting:
		return "reciting"
	default:
		return "unknown"
	}
}

// EventKind classifies a conductor event.
type EventKind int

const (
	EventHeard            EventKind = iota // Text holds the transcript
	EventNoSpeech                          // the user said nothing
	EventListenFailed                      // Err holds the recognizer failure
	EventRecitationDone                    // Chapter played to the end
	EventRecitationFailed                  // Chapter could not be played, see Err
)

// Event reports the outcome of a listen or a recitation.
type Event struct {
	Kind    EventKind
	Text    string
	Chapter *domain.Chapter
	Err     error

	gen uint64
}

// Listener records one user utterance. *speech.Ear implements it.
type Listener interface {
	Listen(ctx context.Context) (string, error)
}

// Reciter plays a chapter to the end. *speech.Reciter implements it.
type Reciter interface {
	Recite(ctx context.Context, chapter *domain.Chapter) error
}

// ConductorOption configures the Conductor.
type ConductorOption func(*Conductor)

// WithMouth enables spoken output.
func WithMouth(m *speech.Mouth) ConductorOption {
	return func(c *Conductor) { c.mouth = m }
}

// WithListener enables voice input.
func WithListener(l Listener) ConductorOption {
	return func(c *Conductor) { c.ear = l }
}

// WithReciter enables chapter recitation.
func WithReciter(r Reciter) ConductorOption {
	return func(c *Conductor) { c.reciter = r }
}

// op is the running listen or recitation.
type op struct {
	kind   Turn
	gen    uint64
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// Conductor owns the single audio channel. At most one of speaking,
// listening and reciting is active; the recognizer never runs while audio
// plays. Every Interrupt starts a new generation and events from older
// generations are dropped.
//
// Without a mouth the conductor is text-only: Say is a no-op and prompts
// go straight to listening.
type Conductor struct {
	mouth   *speech.Mouth
	ear     Listener
	reciter Reciter
	log     *logger.Logger

	mu  sync.Mutex
	gen uint64
	cur *op

	events chan Event
	wg     sync.WaitGroup
}

// NewConductor creates a conductor. All outputs are optional.
func NewConductor(log *logger.Logger, opts ...ConductorOption) *Conductor {
	c := &Conductor{
		log:    log,
		events: make(chan Event, 8),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// C delivers listen and recitation outcomes. Receivers must drop events
// for which Current reports false.
func (c *Conductor) C() <-chan Event { return c.events }

// Current reports whether ev belongs to the current generation.
func (c *Conductor) Current(ev Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ev.gen == c.gen
}

// CanSpeak reports whether spoken output is available.
func (c *Conductor) CanSpeak() bool { return c.mouth != nil }

// CanListen reports whether voice input is available.
func (c *Conductor) CanListen() bool { return c.ear != nil }

// CanRecite reports whether recitations can be played.
func (c *Conductor) CanRecite() bool { return c.reciter != nil }

// Turn reports what the audio channel is doing.
func (c *Conductor) Turn() Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.turnLocked()
}

func (c *Conductor) turnLocked() Turn {
	if c.mouth != nil && (c.mouth.IsSpeaking() || c.mouth.QueueLen() > 0) {
		return TurnSpeaking
	}
	if c.cur != nil {
		return c.cur.kind
	}
	return TurnIdle
}

// LastSpoken returns the last completed utterance, or "".
func (c *Conductor) LastSpoken() string {
	if c.mouth == nil {
		return ""
	}
	return c.mouth.LastSpoken()
}

// Say stops any listen or recitation and queues text. It returns nil when
// the conductor is text-only.
func (c *Conductor) Say(text string, priority speech.Priority) *speech.Utterance {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
	return c.sayLocked(text, priority)
}

func (c *Conductor) sayLocked(text string, priority speech.Priority) *speech.Utterance {
	if c.mouth == nil || text == "" {
		return nil
	}
	return c.mouth.Say(text, priority)
}

// Prompt speaks text and then listens for the reply. The listen starts
// only if the utterance played to the end and nothing interrupted it; the
// outcome arrives on C.
func (c *Conductor) Prompt(ctx context.Context, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	prev := c.stopLocked()
	u := c.sayLocked(text, speech.PriorityNormal)
	if c.ear == nil {
		return
	}
	c.startLocked(ctx, TurnListening, prev, func(o *op) {
		if u != nil {
			if err := u.Wait(o.ctx); err != nil {
				c.log.Debug("prompt did not finish, not listening: %v", err)
				return
			}
		}
		c.listen(o)
	})
}

// Listen cuts off speech and any recitation and listens right away.
func (c *Conductor) Listen(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ear == nil {
		return
	}
	silent := c.interruptLocked()
	prev := c.stopLocked()
	c.startLocked(ctx, TurnListening, prev, func(o *op) {
		// The recognizer must not hear the tail of the cut-off speech.
		if !waitSilent(o.ctx, silent) {
			return
		}
		c.listen(o)
	})
}

// Recite announces the chapter with intro, then streams its recitation.
// An EventRecitationDone or EventRecitationFailed follows unless the
// recitation is interrupted.
func (c *Conductor) Recite(ctx context.Context, chapter *domain.Chapter, intro string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.reciter == nil {
		return
	}
	silent := c.interruptLocked()
	prev := c.stopLocked()
	u := c.sayLocked(intro, speech.PriorityNormal)
	c.startLocked(ctx, TurnReciting, prev, func(o *op) {
		ctx := o.ctx
		if !waitSilent(ctx, silent) {
			return
		}
		if u != nil {
			err := u.Wait(ctx)
			if ctx.Err() != nil || errors.Is(err, domain.ErrInterrupted) {
				return
			}
			if err != nil {
				c.log.Warn("intro failed, reciting anyway: %v", err)
			}
		}

		err := c.reciter.Recite(ctx, chapter)
		switch {
		// A cancelled recitation was stopped on purpose.
		case ctx.Err() != nil, errors.Is(err, domain.ErrInterrupted):
			return
		case err != nil:
			c.emit(o, Event{Kind: EventRecitationFailed, Chapter: chapter, Err: err})
		default:
			c.emit(o, Event{Kind: EventRecitationDone, Chapter: chapter})
		}
	})
}

// Interrupt starts a new generation: speech, listening and recitation all
// stop and their pending events are discarded.
func (c *Conductor) Interrupt() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.interruptLocked()
	c.stopLocked()
}

// interruptLocked returns a channel closed once the speaker is silent.
func (c *Conductor) interruptLocked() <-chan struct{} {
	c.gen++
	if c.mouth == nil {
		return nil
	}
	return c.mouth.Interrupt()
}

// waitSilent blocks until silent is closed. A nil channel means there is
// no speaker to wait for.
func waitSilent(ctx context.Context, silent <-chan struct{}) bool {
	if silent == nil {
		return ctx.Err() == nil
	}
	select {
	case <-silent:
		return true
	case <-ctx.Done():
		return false
	}
}

// SpeakIfIdle speaks text at low priority when nothing else is going on.
// It returns domain.ErrBusy otherwise.
func (c *Conductor) SpeakIfIdle(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.turnLocked() != TurnIdle {
		return domain.ErrBusy
	}
	c.sayLocked(text, speech.PriorityLow)
	return nil
}

// Close interrupts everything and waits for background work to exit.
func (c *Conductor) Close() {
	c.Interrupt()
	c.wg.Wait()
}

// stopLocked cancels the running operation and returns a channel closed
// once it has fully exited, or nil.
func (c *Conductor) stopLocked() <-chan struct{} {
	if c.cur == nil {
		return nil
	}
	c.cur.cancel()
	done := c.cur.done
	c.cur = nil
	return done
}

// startLocked runs fn in the background as the current operation, after
// prev (if any) has exited.
func (c *Conductor) startLocked(ctx context.Context, kind Turn, prev <-chan struct{}, fn func(*op)) {
	opCtx, cancel := context.WithCancel(ctx)
	o := &op{kind: kind, gen: c.gen, ctx: opCtx, cancel: cancel, done: make(chan struct{})}
	c.cur = o

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer close(o.done)
		defer cancel()
		defer func() {
			c.mu.Lock()
			if c.cur == o {
				c.cur = nil
			}
			c.mu.Unlock()
		}()

		if prev != nil {
			select {
			case <-prev:
			case <-opCtx.Done():
				return
			}
		}
		fn(o)
	}()
}

func (c *Conductor) listen(o *op) {
	text, err := c.ear.Listen(o.ctx)
	if o.ctx.Err() != nil {
		return
	}
	switch {
	case err == nil:
		c.emit(o, Event{Kind: EventHeard, Text: text})
	case errors.Is(err, domain.ErrNoSpeech):
		c.emit(o, Event{Kind: EventNoSpeech})
	case errors.Is(err, domain.ErrBusy):
		c.log.Warn("listen skipped: recognizer busy")
	default:
		c.emit(o, Event{Kind: EventListenFailed, Err: err})
	}
}

// emit delivers the final outcome of o. Under the lock it either finds o
// stopped, and drops the event, or detaches o so that no later stop can
// claim it: a replaced operation never delivers.
func (c *Conductor) emit(o *op, ev Event) {
	ev.gen = o.gen
	c.mu.Lock()
	if o.ctx.Err() != nil || ev.gen != c.gen {
		c.mu.Unlock()
		c.log.Debug("dropping stale event %d (gen %d)", ev.Kind, o.gen)
		return
	}
	if c.cur == o {
		c.cur = nil
	}
	c.mu.Unlock()

	select {
	case c.events <- ev:
	case <-o.ctx.Done():
	}
}

package speech

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"

	"golang.org/x/sync/errgroup"

	"github.com/hammamikhairi/iqra/internal/domain"
	"github.com/hammamikhairi/iqra/internal/logger"
)

// MouthOption configures the Mouth.
type MouthOption func(*Mouth)

// WithChunkSize sets the approximate max character count per TTS chunk.
// Longer text is split at sentence boundaries and the chunks are
// synthesized in parallel.
func WithChunkSize(n int) MouthOption {
	return func(m *Mouth) {
		m.chunkSize = n
	}
}

// WithParallelism bounds concurrent synthesis requests per utterance and
// per prefetch batch.
func WithParallelism(n int) MouthOption {
	return func(m *Mouth) {
		if n > 0 {
			m.parallel = n
		}
	}
}

// WithCache sets the audio cache. By default an in-memory cache keyed by
// the synthesizer's voice is used.
func WithCache(c *AudioCache) MouthOption {
	return func(m *Mouth) {
		m.cache = c
	}
}

// Utterance is a handle on one queued piece of speech. It completes exactly
// once: with nil after playing, with domain.ErrInterrupted when cancelled
// or interrupted, or with the synthesis or playback error.
type Utterance struct {
	Text     string
	Priority Priority

	queuedAt time.Time
	ctx      context.Context
	cancel   context.CancelFunc
	mouth    *Mouth

	once sync.Once
	done chan struct{}
	err  error
}

// Done is closed when the utterance has finished.
func (u *Utterance) Done() <-chan struct{} { return u.done }

// Err returns the outcome. Only meaningful after Done is closed.
func (u *Utterance) Err() error {
	select {
	case <-u.done:
		return u.err
	default:
		return nil
	}
}

// Wait blocks until the utterance finishes or ctx is done.
func (u *Utterance) Wait(ctx context.Context) error {
	select {
	case <-u.done:
		return u.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cancel drops the utterance from the queue, or stops it mid-playback.
// Safe to call at any time, any number of times.
func (u *Utterance) Cancel() {
	u.cancel()
	if u.mouth != nil && u.mouth.remove(u) {
		u.finish(domain.ErrInterrupted)
	}
}

func (u *Utterance) finish(err error) {
	u.once.Do(func() {
		u.err = err
		u.cancel()
		close(u.done)
	})
}

// Mouth is the central speech dispatcher. It serializes all speech output
// through a single pipeline: queue -> chunk -> synthesize (parallel) -> play
// (sequential). Only one thing speaks at a time; higher priority items are
// spoken first. Identical text is synthesized once thanks to the cache.
type Mouth struct {
	tts  Synthesizer
	sink AudioSink
	log  *logger.Logger

	cache     *AudioCache
	chunkSize int
	parallel  int

	mu         sync.Mutex
	queue      []*Utterance
	current    *Utterance
	lastSpoken string
	closed     bool
	notify     chan struct{}

	wg sync.WaitGroup // loop and prefetch goroutines
}

// NewMouth creates a speech dispatcher.
func NewMouth(tts Synthesizer, sink AudioSink, log *logger.Logger, opts ...MouthOption) *Mouth {
	m := &Mouth{
		tts:       tts,
		sink:      sink,
		log:       log,
		chunkSize: defaultChunkSize,
		parallel:  defaultSynthParallel,
		notify:    make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.cache == nil {
		m.cache = NewAudioCache(tts.Voice(), log.With("cache"))
	}
	return m
}

// Say queues text at the given priority and returns its handle. Queuing
// something at PriorityNormal or above drops pending PriorityLow items.
func (m *Mouth) Say(text string, priority Priority) *Utterance {
	ctx, cancel := context.WithCancel(context.Background())
	u := &Utterance{
		Text:     text,
		Priority: priority,
		queuedAt: time.Now(),
		ctx:      ctx,
		cancel:   cancel,
		mouth:    m,
		done:     make(chan struct{}),
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		u.finish(domain.ErrSpeechUnavailable)
		return u
	}
	var dropped []*Utterance
	if priority >= PriorityNormal {
		dropped = m.flushLowLocked()
	}
	m.queue = append(m.queue, u)
	qLen := len(m.queue)
	m.mu.Unlock()

	for _, d := range dropped {
		d.finish(domain.ErrInterrupted)
	}
	m.log.Debug("queued (priority=%s, queue_len=%d): %s", priority, qLen, truncate(text, 60))

	select {
	case m.notify <- struct{}{}:
	default:
	}
	return u
}

// flushLowLocked removes PriorityLow items and returns them.
// Must be called with m.mu held.
func (m *Mouth) flushLowLocked() []*Utterance {
	var dropped []*Utterance
	n := 0
	for _, u := range m.queue {
		if u.Priority > PriorityLow {
			m.queue[n] = u
			n++
		} else {
			dropped = append(dropped, u)
		}
	}
	m.queue = m.queue[:n]
	if len(dropped) > 0 {
		m.log.Debug("flushed %d low-priority items", len(dropped))
	}
	return dropped
}

// remove takes u out of the queue. Reports whether it was still queued.
func (m *Mouth) remove(u *Utterance) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, q := range m.queue {
		if q == u {
			m.queue = append(m.queue[:i], m.queue[i+1:]...)
			return true
		}
	}
	return false
}

// IsSpeaking reports whether something is being synthesized or played.
func (m *Mouth) IsSpeaking() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current != nil
}

// QueueLen returns the number of pending utterances.
func (m *Mouth) QueueLen() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// Interrupt clears the queue and stops the current utterance. Every
// affected utterance completes with domain.ErrInterrupted. The returned
// channel is closed once the sink has let go of the utterance that was
// playing, so callers can wait for silence before opening the mic.
func (m *Mouth) Interrupt() <-chan struct{} {
	m.mu.Lock()
	queued := m.queue
	m.queue = nil
	current := m.current
	m.mu.Unlock()

	for _, u := range queued {
		u.finish(domain.ErrInterrupted)
	}
	m.log.Debug("interrupted (%d dropped)", len(queued))
	if current == nil {
		return closedChan
	}
	current.cancel()
	return current.done
}

var closedChan = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// Start begins the speech processing goroutine. When ctx is done the queue
// is abandoned and later Say calls fail with domain.ErrSpeechUnavailable.
func (m *Mouth) Start(ctx context.Context) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.processLoop(ctx)
	}()
	m.log.Info("started")
}

// Wait blocks until the processing loop and any prefetches have exited.
func (m *Mouth) Wait() { m.wg.Wait() }

func (m *Mouth) processLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			m.mu.Lock()
			m.closed = true
			m.mu.Unlock()
			m.Interrupt()
			m.log.Info("stopped")
			return
		case <-m.notify:
			m.drain(ctx)
		}
	}
}

// drain speaks queued items, highest priority first.
func (m *Mouth) drain(ctx context.Context) {
	for ctx.Err() == nil {
		u, ok := m.dequeue()
		if !ok {
			return
		}

		// Stop the utterance if the loop shuts down mid-speech.
		stop := context.AfterFunc(ctx, u.cancel)
		err := m.speak(u)
		stop()

		m.mu.Lock()
		m.current = nil
		if err == nil && len(u.Text) > 20 {
			m.lastSpoken = u.Text
		}
		m.mu.Unlock()

		u.finish(err)
	}
}

// dequeue removes the highest priority item and marks it current.
func (m *Mouth) dequeue() (*Utterance, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.queue) == 0 {
		return nil, false
	}
	best := 0
	for i, u := range m.queue {
		if u.Priority > m.queue[best].Priority {
			best = i
		}
	}
	u := m.queue[best]
	m.queue = append(m.queue[:best], m.queue[best+1:]...)
	m.current = u
	return u, true
}

// speak synthesizes all chunks in parallel, then plays them in order.
func (m *Mouth) speak(u *Utterance) error {
	ctx := u.ctx
	if ctx.Err() != nil {
		return domain.ErrInterrupted
	}
	if strings.TrimSpace(u.Text) == "" {
		return nil
	}
	m.log.Debug("speaking (priority=%s, waited=%s): %s",
		u.Priority, time.Since(u.queuedAt).Round(time.Millisecond), truncate(u.Text, 60))

	chunks := m.splitChunks(u.Text)
	audio := make([][]byte, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.parallel)
	for i, chunk := range chunks {
		g.Go(func() error {
			a, err := m.synthesize(gctx, chunk)
			if err != nil {
				return fmt.Errorf("synthesizing chunk %d: %w", i, err)
			}
			audio[i] = a
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return domain.ErrInterrupted
		}
		m.log.Error("%v", err)
		return err
	}

	for i, a := range audio {
		if err := m.sink.Play(ctx, a); err != nil {
			if ctx.Err() != nil || errors.Is(err, domain.ErrInterrupted) {
				return domain.ErrInterrupted
			}
			m.log.Error("chunk %d playback failed: %v", i, err)
			return fmt.Errorf("playing chunk %d: %w", i, err)
		}
	}
	return nil
}

// synthesize checks the cache first, otherwise calls the synthesizer and
// stores the result.
func (m *Mouth) synthesize(ctx context.Context, text string) ([]byte, error) {
	if audio, ok := m.cache.Get(text); ok {
		return audio, nil
	}
	audio, err := m.tts.Synthesize(ctx, text)
	if err != nil {
		return nil, err
	}
	m.cache.Put(text, audio)
	return audio, nil
}

// ── Prefetching / Cache ──────────────────────────────────────────

// Prefetch synthesizes texts in the background so a later Say starts
// instantly. Already cached chunks are skipped. Non-blocking.
func (m *Mouth) Prefetch(ctx context.Context, texts ...string) {
	var todo []string
	for _, text := range texts {
		if text == "" {
			continue
		}
		for _, chunk := range m.splitChunks(text) {
			if !m.cache.Has(chunk) {
				todo = append(todo, chunk)
			}
		}
	}
	if len(todo) == 0 {
		return
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		var g errgroup.Group
		g.SetLimit(m.parallel)
		for _, chunk := range todo {
			g.Go(func() error {
				if ctx.Err() != nil {
					return nil
				}
				if _, err := m.synthesize(ctx, chunk); err != nil {
					m.log.Warn("prefetch failed for %q: %v", truncate(chunk, 40), err)
				}
				return nil
			})
		}
		g.Wait()
		m.log.Debug("prefetched %d chunks", len(todo))
	}()
}

// LastSpoken returns the most recently completed non-trivial text.
func (m *Mouth) LastSpoken() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastSpoken
}

// Cache returns the audio cache used by this Mouth.
func (m *Mouth) Cache() *AudioCache { return m.cache }

// ── Chunking ─────────────────────────────────────────────────────

// splitChunks breaks text into sentence-boundary chunks of roughly
// m.chunkSize characters.
func (m *Mouth) splitChunks(text string) []string {
	if m.chunkSize <= 0 || len(text) <= m.chunkSize {
		return []string{text}
	}

	var chunks []string
	var current strings.Builder
	for _, s := range splitSentences(text) {
		if current.Len() > 0 && current.Len()+len(s) > m.chunkSize {
			chunks = append(chunks, strings.TrimSpace(current.String()))
			current.Reset()
		}
		current.WriteString(s)
	}
	if current.Len() > 0 {
		chunks = append(chunks, strings.TrimSpace(current.String()))
	}

	out := chunks[:0]
	for _, c := range chunks {
		if c != "" {
			out = append(out, c)
		}
	}
	return out
}

// splitSentences splits at . ! ? keeping the punctuation and trailing
// whitespace with the sentence.
func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		current.WriteRune(runes[i])
		if runes[i] == '.' || runes[i] == '!' || runes[i] == '?' {
			for i+1 < len(runes) && unicode.IsSpace(runes[i+1]) {
				i++
				current.WriteRune(runes[i])
			}
			sentences = append(sentences, current.String())
			current.Reset()
		}
	}
	if current.Len() > 0 {
		sentences = append(sentences, current.String())
	}
	return sentences
}

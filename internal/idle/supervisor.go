// Package idle watches active sessions and nudges users who have gone
// quiet.
package idle

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hammamikhairi/iqra/internal/domain"
	"github.com/hammamikhairi/iqra/internal/logger"
	"github.com/hammamikhairi/iqra/internal/speech"
)

// Option configures the supervisor.
type Option func(*Supervisor)

// WithTickInterval sets how often the supervisor checks sessions.
func WithTickInterval(d time.Duration) Option {
	return func(s *Supervisor) {
		s.tickInterval = d
	}
}

// WithIdleAfter sets how long a session must be inactive before the first
// nudge.
func WithIdleAfter(d time.Duration) Option {
	return func(s *Supervisor) {
		s.idleAfter = d
	}
}

// WithNotifyCooldown sets the minimum time between nudges.
func WithNotifyCooldown(d time.Duration) Option {
	return func(s *Supervisor) {
		s.notifyCooldown = d
	}
}

// WithMaxNudges sets how many nudges a quiet session gets before the
// supervisor gives up on it.
func WithMaxNudges(n int) Option {
	return func(s *Supervisor) {
		s.maxNudges = n
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Supervisor) {
		s.now = now
	}
}

// nudgeState is what the supervisor remembers about one session.
type nudgeState struct {
	activity  time.Time // LastActivityAt the nudges were counted against
	nudges    int
	lastNudge time.Time
}

// Supervisor runs in the background and nudges idle sessions.
type Supervisor struct {
	store          domain.SessionStore
	notifier       domain.Notifier
	log            *logger.Logger
	tickInterval   time.Duration
	idleAfter      time.Duration
	notifyCooldown time.Duration
	maxNudges      int
	now            func() time.Time

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	states  map[string]*nudgeState
}

// New creates an idle supervisor.
func New(store domain.SessionStore, notifier domain.Notifier, log *logger.Logger, opts ...Option) *Supervisor {
	s := &Supervisor{
		store:          store,
		notifier:       notifier,
		log:            log,
		tickInterval:   5 * time.Second,
		idleAfter:      45 * time.Second,
		notifyCooldown: 60 * time.Second,
		maxNudges:      2,
		now:            time.Now,
		states:         make(map[string]*nudgeState),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins the background loop. Non-blocking.
func (s *Supervisor) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		s.log.Warn("idle supervisor already running")
		return
	}

	childCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true

	go s.loop(childCtx, s.done)

	s.log.Info("idle supervisor started (tick=%s, idle after=%s)", s.tickInterval, s.idleAfter)
}

// Stop shuts the supervisor down and waits for the loop to exit.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.cancel()
	s.running = false
	done := s.done
	s.mu.Unlock()

	<-done
	s.log.Info("idle supervisor stopped")
}

func (s *Supervisor) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick checks every active session once.
func (s *Supervisor) tick(ctx context.Context) {
	sessions, err := s.store.ListActive(ctx)
	if err != nil {
		s.log.Error("idle: listing active sessions: %v", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]bool, len(sessions))
	for _, session := range sessions {
		seen[session.ID] = true
		s.processSession(ctx, session)
	}
	for id := range s.states {
		if !seen[id] {
			delete(s.states, id)
		}
	}
}

func (s *Supervisor) processSession(ctx context.Context, session *domain.Session) {
	// Listening to a recitation is not being idle.
	if session.NowPlaying != 0 {
		return
	}

	st, ok := s.states[session.ID]
	if !ok || !st.activity.Equal(session.LastActivityAt) {
		st = &nudgeState{activity: session.LastActivityAt}
		s.states[session.ID] = st
	}
	if st.nudges >= s.maxNudges {
		return
	}

	now := s.now()
	if now.Sub(session.LastActivityAt) < s.idleAfter {
		return
	}
	if !st.lastNudge.IsZero() && now.Sub(st.lastNudge) < s.notifyCooldown {
		return
	}

	msg := speech.LineNudge(session.Screen, st.nudges+1)
	err := s.notifier.Notify(ctx, msg)
	switch {
	case errors.Is(err, domain.ErrBusy):
		// Something is playing; try again next tick.
		s.log.Debug("idle: session %s busy, nudge deferred", session.ID)
		return
	case err != nil:
		s.log.Error("idle: nudging session %s: %v", session.ID, err)
		return
	}

	st.nudges++
	st.lastNudge = now
	s.log.Debug("idle: nudged session %s (%d/%d)", session.ID, st.nudges, s.maxNudges)
}

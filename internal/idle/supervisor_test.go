package idle

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/hammamikhairi/iqra/internal/domain"
	"github.com/hammamikhairi/iqra/internal/logger"
	"github.com/hammamikhairi/iqra/internal/speech"
	"github.com/hammamikhairi/iqra/internal/storage"
)

// mockNotifier collects notifications. While busy is set it refuses them.
type mockNotifier struct {
	mu       sync.Mutex
	busy     bool
	messages []string
}

func (m *mockNotifier) Notify(_ context.Context, msg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.busy {
		return domain.ErrBusy
	}
	m.messages = append(m.messages, msg)
	return nil
}

func (m *mockNotifier) NotifyUrgent(ctx context.Context, msg string) error {
	return m.Notify(ctx, msg)
}

func (m *mockNotifier) setBusy(b bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.busy = b
}

func (m *mockNotifier) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.messages)
}

func (m *mockNotifier) last() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.messages) == 0 {
		return ""
	}
	return m.messages[len(m.messages)-1]
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	store    *storage.MemoryStore
	notifier *mockNotifier
	clock    *fakeClock
	sup      *Supervisor
	start    time.Time
}

func newFixture(t *testing.T, session *domain.Session) *fixture {
	t.Helper()
	log := logger.New(logger.LevelOff, nil)
	start := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
	f := &fixture{
		store:    storage.NewMemoryStore(log),
		notifier: &mockNotifier{},
		clock:    &fakeClock{now: start},
		start:    start,
	}
	f.sup = New(f.store, f.notifier, log,
		WithIdleAfter(30*time.Second),
		WithNotifyCooldown(time.Minute),
		WithMaxNudges(2),
		WithClock(f.clock.Now),
	)
	if session != nil {
		session.LastActivityAt = start
		if err := f.store.Save(context.Background(), session); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	return f
}

func activeSession(screen domain.Screen) *domain.Session {
	return &domain.Session{ID: "s1", Screen: screen, Status: domain.SessionActive}
}

func TestNudgesAfterInactivity(t *testing.T) {
	f := newFixture(t, activeSession(domain.ScreenSupplications))
	ctx := context.Background()

	f.clock.advance(10 * time.Second)
	f.sup.tick(ctx)
	if f.notifier.count() != 0 {
		t.Fatal("nudged an active user")
	}

	f.clock.advance(25 * time.Second)
	f.sup.tick(ctx)
	if f.notifier.count() != 1 {
		t.Fatalf("nudges = %d, want 1", f.notifier.count())
	}
	if got, want := f.notifier.last(), speech.LineNudge(domain.ScreenSupplications, 1); got != want {
		t.Fatalf("nudge = %q, want %q", got, want)
	}
}

func TestEscalatesWithCooldownAndStops(t *testing.T) {
	f := newFixture(t, activeSession(domain.ScreenHome))
	ctx := context.Background()

	steps := []struct {
		advance time.Duration
		want    int
	}{
		{31 * time.Second, 1},
		{10 * time.Second, 1}, // cooling down
		{60 * time.Second, 2},
		{5 * time.Minute, 2}, // max reached
	}
	for i, st := range steps {
		f.clock.advance(st.advance)
		f.sup.tick(ctx)
		if got := f.notifier.count(); got != st.want {
			t.Fatalf("step %d: nudges = %d, want %d", i, got, st.want)
		}
	}
	if got, want := f.notifier.last(), speech.LineNudge(domain.ScreenHome, 2); got != want {
		t.Fatalf("second nudge = %q, want %q", got, want)
	}
}

func TestActivityResetsNudges(t *testing.T) {
	f := newFixture(t, activeSession(domain.ScreenQuiz))
	ctx := context.Background()

	f.clock.advance(31 * time.Second)
	f.sup.tick(ctx)
	f.clock.advance(61 * time.Second)
	f.sup.tick(ctx)
	if f.notifier.count() != 2 {
		t.Fatalf("nudges = %d, want 2", f.notifier.count())
	}

	// The user comes back.
	s, _ := f.store.Load(ctx, "s1")
	s.LastActivityAt = f.clock.Now()
	f.store.Save(ctx, s)

	f.clock.advance(31 * time.Second)
	f.sup.tick(ctx)
	if f.notifier.count() != 3 {
		t.Fatalf("nudges after activity = %d, want 3", f.notifier.count())
	}
	if got, want := f.notifier.last(), speech.LineNudge(domain.ScreenQuiz, 1); got != want {
		t.Fatalf("nudge after reset = %q, want the first-level line", got)
	}
}

func TestBusyNotifierDoesNotCount(t *testing.T) {
	f := newFixture(t, activeSession(domain.ScreenListen))
	ctx := context.Background()

	f.notifier.setBusy(true)
	f.clock.advance(31 * time.Second)
	f.sup.tick(ctx)

	f.notifier.setBusy(false)
	f.clock.advance(time.Second)
	f.sup.tick(ctx)
	if f.notifier.count() != 1 {
		t.Fatalf("nudges = %d, want 1", f.notifier.count())
	}
	if got, want := f.notifier.last(), speech.LineNudge(domain.ScreenListen, 1); got != want {
		t.Fatalf("deferred nudge = %q, want the first-level line", got)
	}
}

func TestSkipsRecitationAndEndedSessions(t *testing.T) {
	playing := activeSession(domain.ScreenListen)
	playing.NowPlaying = 112
	f := newFixture(t, playing)
	ctx := context.Background()

	ended := &domain.Session{ID: "s2", Status: domain.SessionEnded, LastActivityAt: f.start}
	f.store.Save(ctx, ended)

	f.clock.advance(10 * time.Minute)
	f.sup.tick(ctx)
	if f.notifier.count() != 0 {
		t.Fatalf("nudged %d times: %q", f.notifier.count(), f.notifier.last())
	}
}

func TestForgetsEndedSessions(t *testing.T) {
	f := newFixture(t, activeSession(domain.ScreenHome))
	ctx := context.Background()

	f.clock.advance(31 * time.Second)
	f.sup.tick(ctx)
	f.store.Delete(ctx, "s1")
	f.sup.tick(ctx)

	f.sup.mu.Lock()
	defer f.sup.mu.Unlock()
	if len(f.sup.states) != 0 {
		t.Fatalf("state kept for %d gone sessions", len(f.sup.states))
	}
}

func TestStartStop(t *testing.T) {
	defer goleak.VerifyNone(t)

	log := logger.New(logger.LevelOff, nil)
	store := storage.NewMemoryStore(log)
	notifier := &mockNotifier{}
	ctx := context.Background()

	store.Save(ctx, &domain.Session{
		ID:             "live",
		Screen:         domain.ScreenHome,
		Status:         domain.SessionActive,
		LastActivityAt: time.Now().Add(-time.Hour),
	})

	sup := New(store, notifier, log, WithTickInterval(10*time.Millisecond), WithIdleAfter(time.Second))
	sup.Start(ctx)
	sup.Start(ctx) // second start is a no-op

	deadline := time.Now().Add(2 * time.Second)
	for notifier.count() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("running supervisor never nudged")
		}
		time.Sleep(5 * time.Millisecond)
	}
	sup.Stop()
	sup.Stop()
}

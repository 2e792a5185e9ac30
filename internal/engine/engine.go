// Package engine implements the screen state machine: which screen a
// session is on, what is playing, which supplication is open and how far
// the quiz has progressed.
package engine

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/hammamikhairi/iqra/internal/domain"
	"github.com/hammamikhairi/iqra/internal/logger"
)

// Option configures the engine.
type Option func(*Engine)

// WithQuizLength caps the number of questions per quiz run. Zero or less
// uses the whole bank.
func WithQuizLength(n int) Option {
	return func(e *Engine) {
		e.quizLength = n
	}
}

// WithShuffle randomizes question order using the given seed.
func WithShuffle(seed uint64) Option {
	return func(e *Engine) {
		e.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// Engine manages sessions. It depends only on interfaces and is fully
// testable with in-memory implementations.
type Engine struct {
	content    domain.ContentSource
	store      domain.SessionStore
	log        *logger.Logger
	quizLength int
	now        func() time.Time

	rngMu sync.Mutex
	rng   *rand.Rand // nil keeps catalog order
}

// AnswerResult reports the outcome of answering a quiz question.
type AnswerResult struct {
	Question *domain.Question
	Choice   int
	Correct  bool
	Score    int
	Total    int
	Last     bool // this was the final question of the run
}

// New creates an engine with the given dependencies and options.
func New(content domain.ContentSource, store domain.SessionStore, log *logger.Logger, opts ...Option) *Engine {
	e := &Engine{
		content:    content,
		store:      store,
		log:        log,
		quizLength: 5,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Content exposes the catalog the engine was built with.
func (e *Engine) Content() domain.ContentSource { return e.content }

// StartSession begins a new session on the home screen.
func (e *Engine) StartSession(ctx context.Context) (*domain.Session, error) {
	now := e.now()
	session := &domain.Session{
		ID:             generateID(),
		Screen:         domain.ScreenHome,
		Previous:       domain.ScreenHome,
		Status:         domain.SessionActive,
		StartedAt:      now,
		UpdatedAt:      now,
		LastActivityAt: now,
	}
	if err := e.store.Save(ctx, session); err != nil {
		return nil, fmt.Errorf("saving session: %w", err)
	}
	e.log.Info("started session %s", session.ID)
	return session, nil
}

// Session returns the current session state.
func (e *Engine) Session(ctx context.Context, sessionID string) (*domain.Session, error) {
	return e.store.Load(ctx, sessionID)
}

// load fetches an active session.
func (e *Engine) load(ctx context.Context, sessionID string) (*domain.Session, error) {
	session, err := e.store.Load(ctx, sessionID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrNoSession
		}
		return nil, fmt.Errorf("loading session: %w", err)
	}
	if session.Status != domain.SessionActive {
		return nil, domain.ErrNoSession
	}
	return session, nil
}

func (e *Engine) save(ctx context.Context, session *domain.Session) error {
	now := e.now()
	session.UpdatedAt = now
	session.LastActivityAt = now
	if err := e.store.Save(ctx, session); err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	return nil
}

// Touch records user activity without changing anything else.
func (e *Engine) Touch(ctx context.Context, sessionID string) error {
	session, err := e.load(ctx, sessionID)
	if err != nil {
		return err
	}
	return e.save(ctx, session)
}

// End marks the session as ended.
func (e *Engine) End(ctx context.Context, sessionID string) error {
	session, err := e.load(ctx, sessionID)
	if err != nil {
		return err
	}
	session.Status = domain.SessionEnded
	session.NowPlaying = 0
	if err := e.save(ctx, session); err != nil {
		return err
	}
	e.log.Info("session %s ended", sessionID)
	return nil
}

// ── Navigation ───────────────────────────────────────────────────

// Navigate switches to the target screen. The state owned by the screen
// being left (now-playing chapter, open supplication, quiz run) is cleared.
func (e *Engine) Navigate(ctx context.Context, sessionID string, target domain.Screen) (*domain.Session, error) {
	session, err := e.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	e.switchScreen(session, target)
	if err := e.save(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// Back returns to the previous screen, or home.
func (e *Engine) Back(ctx context.Context, sessionID string) (*domain.Session, error) {
	session, err := e.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	target := session.Previous
	if target == session.Screen {
		target = domain.ScreenHome
	}
	e.switchScreen(session, target)
	if err := e.save(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

func (e *Engine) switchScreen(session *domain.Session, target domain.Screen) {
	if session.Screen == target {
		return
	}
	switch session.Screen {
	case domain.ScreenListen:
		session.NowPlaying = 0
	case domain.ScreenSupplications:
		session.Supplication = ""
	case domain.ScreenQuiz:
		session.Quiz = nil
	}
	e.log.Debug("session %s: %s -> %s", session.ID, session.Screen, target)
	session.Previous = session.Screen
	session.Screen = target
}

// ── Listen ───────────────────────────────────────────────────────

// SelectChapter resolves the query to a chapter and marks it as playing.
// Selecting from another screen moves the session to the listen screen.
func (e *Engine) SelectChapter(ctx context.Context, sessionID, query string) (*domain.Chapter, error) {
	session, err := e.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	chapter, err := e.content.FindChapter(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("chapter %q: %w", query, err)
	}

	e.switchScreen(session, domain.ScreenListen)
	session.NowPlaying = chapter.Number
	if err := e.save(ctx, session); err != nil {
		return nil, err
	}
	e.log.Info("session %s playing chapter %d (%s)", sessionID, chapter.Number, chapter.Name)
	return chapter, nil
}

// NowPlaying returns the chapter being recited.
func (e *Engine) NowPlaying(ctx context.Context, sessionID string) (*domain.Chapter, error) {
	session, err := e.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.NowPlaying == 0 {
		return nil, domain.ErrNothingPlaying
	}
	return e.content.Chapter(ctx, session.NowPlaying)
}

// StopChapter clears the now-playing chapter.
func (e *Engine) StopChapter(ctx context.Context, sessionID string) error {
	session, err := e.load(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.NowPlaying == 0 {
		return domain.ErrNothingPlaying
	}
	session.NowPlaying = 0
	return e.save(ctx, session)
}

// ChapterFinished clears the now-playing chapter if it is still the given
// one. A recitation that ends after the user already moved on is ignored.
func (e *Engine) ChapterFinished(ctx context.Context, sessionID string, number int) error {
	session, err := e.load(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.NowPlaying != number {
		return nil
	}
	session.NowPlaying = 0
	session.UpdatedAt = e.now()
	if err := e.store.Save(ctx, session); err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	return nil
}

// ── Supplications ────────────────────────────────────────────────

// SelectSupplication resolves the query and opens the supplication.
func (e *Engine) SelectSupplication(ctx context.Context, sessionID, query string) (*domain.Supplication, error) {
	session, err := e.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	sup, err := e.content.FindSupplication(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("supplication %q: %w", query, err)
	}

	e.switchScreen(session, domain.ScreenSupplications)
	session.Supplication = sup.ID
	if err := e.save(ctx, session); err != nil {
		return nil, err
	}
	return sup, nil
}

// CurrentSupplication returns the open supplication.
func (e *Engine) CurrentSupplication(ctx context.Context, sessionID string) (*domain.Supplication, error) {
	session, err := e.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Supplication == "" {
		return nil, domain.ErrNotFound
	}
	return e.content.Supplication(ctx, session.Supplication)
}

// ── Quiz ─────────────────────────────────────────────────────────

// StartQuiz begins a new quiz run, replacing any run in progress, and
// returns the first question.
func (e *Engine) StartQuiz(ctx context.Context, sessionID string) (*domain.Question, error) {
	session, err := e.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	bank, err := e.content.Questions(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading questions: %w", err)
	}
	if len(bank) == 0 {
		return nil, domain.ErrNoMoreQuestions
	}

	ids := make([]string, len(bank))
	for i, q := range bank {
		ids[i] = q.ID
	}
	e.shuffle(ids)
	if e.quizLength > 0 && len(ids) > e.quizLength {
		ids = ids[:e.quizLength]
	}

	e.switchScreen(session, domain.ScreenQuiz)
	session.Quiz = &domain.QuizState{QuestionIDs: ids, LastChoice: -1}
	if err := e.save(ctx, session); err != nil {
		return nil, err
	}

	e.log.Info("session %s started quiz with %d questions", sessionID, len(ids))
	return e.content.Question(ctx, ids[0])
}

func (e *Engine) shuffle(ids []string) {
	if e.rng == nil {
		return
	}
	e.rngMu.Lock()
	defer e.rngMu.Unlock()
	e.rng.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
}

func (e *Engine) quiz(session *domain.Session) (*domain.QuizState, error) {
	if session.Screen != domain.ScreenQuiz {
		return nil, domain.ErrWrongScreen
	}
	if session.Quiz == nil {
		return nil, domain.ErrNoQuiz
	}
	return session.Quiz, nil
}

// CurrentQuestion returns the question being asked and the run's state.
func (e *Engine) CurrentQuestion(ctx context.Context, sessionID string) (*domain.Question, *domain.QuizState, error) {
	session, err := e.load(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	quiz, err := e.quiz(session)
	if err != nil {
		return nil, nil, err
	}
	if quiz.Finished || quiz.Index >= len(quiz.QuestionIDs) {
		return nil, quiz, domain.ErrNoMoreQuestions
	}
	q, err := e.content.Question(ctx, quiz.QuestionIDs[quiz.Index])
	if err != nil {
		return nil, nil, fmt.Errorf("loading question: %w", err)
	}
	return q, quiz, nil
}

// Answer records the user's choice for the current question.
func (e *Engine) Answer(ctx context.Context, sessionID string, choice int) (*AnswerResult, error) {
	session, err := e.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	quiz, err := e.quiz(session)
	if err != nil {
		return nil, err
	}
	if quiz.Finished || quiz.Index >= len(quiz.QuestionIDs) {
		return nil, domain.ErrNoMoreQuestions
	}
	if quiz.Answered {
		return nil, domain.ErrAlreadyAnswered
	}

	q, err := e.content.Question(ctx, quiz.QuestionIDs[quiz.Index])
	if err != nil {
		return nil, fmt.Errorf("loading question: %w", err)
	}
	if choice < 0 || choice >= len(q.Choices) {
		return nil, domain.ErrInvalidChoice
	}

	correct := choice == q.Answer
	quiz.Answered = true
	quiz.LastChoice = choice
	if correct {
		quiz.Score++
	}
	if err := e.save(ctx, session); err != nil {
		return nil, err
	}

	e.log.Debug("session %s answered %s with %d (correct=%v, score=%d/%d)",
		sessionID, q.ID, choice, correct, quiz.Score, quiz.Total())

	return &AnswerResult{
		Question: q,
		Choice:   choice,
		Correct:  correct,
		Score:    quiz.Score,
		Total:    quiz.Total(),
		Last:     quiz.Index == len(quiz.QuestionIDs)-1,
	}, nil
}

// NextQuestion moves past an answered question. It returns
// ErrNotAnswered if the current question is still open and
// ErrNoMoreQuestions once the run is finished.
func (e *Engine) NextQuestion(ctx context.Context, sessionID string) (*domain.Question, error) {
	session, err := e.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	quiz, err := e.quiz(session)
	if err != nil {
		return nil, err
	}
	if quiz.Finished {
		return nil, domain.ErrNoMoreQuestions
	}
	if !quiz.Answered {
		return nil, domain.ErrNotAnswered
	}

	quiz.Index++
	quiz.Answered = false
	quiz.LastChoice = -1
	if quiz.Index >= len(quiz.QuestionIDs) {
		quiz.Finished = true
		if err := e.save(ctx, session); err != nil {
			return nil, err
		}
		e.log.Info("session %s finished quiz: %d/%d", sessionID, quiz.Score, quiz.Total())
		return nil, domain.ErrNoMoreQuestions
	}
	if err := e.save(ctx, session); err != nil {
		return nil, err
	}
	return e.content.Question(ctx, quiz.QuestionIDs[quiz.Index])
}

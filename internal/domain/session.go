package domain

import "time"

// Session is one user's walk through the screens.
type Session struct {
	ID             string
	Screen         Screen
	Previous       Screen
	NowPlaying     int    // chapter number being recited, 0 when idle
	Supplication   string // supplication currently open, "" when none
	Quiz           *QuizState
	Status         SessionStatus
	StartedAt      time.Time
	UpdatedAt      time.Time
	LastActivityAt time.Time
}

// SessionStatus tracks the lifecycle of a session.
type SessionStatus int

const (
	SessionActive SessionStatus = iota
	SessionEnded
)

// String returns a human-readable session status.
func (s SessionStatus) String() string {
	switch s {
	case SessionActive:
		return "active"
	case SessionEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// QuizState tracks progress through one quiz run.
type QuizState struct {
	QuestionIDs []string
	Index       int
	Score       int
	Answered    bool // current question has been answered
	LastChoice  int  // choice given for the current question, -1 if none
	Finished    bool
}

// Total returns the number of questions in the run.
func (q *QuizState) Total() int { return len(q.QuestionIDs) }

// AwaitingAnswer reports whether the current question still needs an answer.
func (q *QuizState) AwaitingAnswer() bool {
	return q != nil && !q.Finished && !q.Answered && q.Index < len(q.QuestionIDs)
}

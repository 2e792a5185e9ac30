package domain

import "context"

// ContentSource provides the static catalog: chapters, supplications and
// quiz questions.
type ContentSource interface {
	Chapters(ctx context.Context) ([]Chapter, error)
	Chapter(ctx context.Context, number int) (*Chapter, error)
	FindChapter(ctx context.Context, query string) (*Chapter, error)

	Supplications(ctx context.Context) ([]Supplication, error)
	Supplication(ctx context.Context, id string) (*Supplication, error)
	FindSupplication(ctx context.Context, query string) (*Supplication, error)

	Questions(ctx context.Context) ([]Question, error)
	Question(ctx context.Context, id string) (*Question, error)
}

// SessionStore persists sessions.
type SessionStore interface {
	Save(ctx context.Context, session *Session) error
	Load(ctx context.Context, id string) (*Session, error)
	Delete(ctx context.Context, id string) error
	ListActive(ctx context.Context) ([]*Session, error)
}

// IntentParser converts raw user input into structured intents. The session
// gives the parser the current screen.
type IntentParser interface {
	Parse(ctx context.Context, input string, session *Session) (*Intent, error)
}

// Notifier delivers messages to the user.
type Notifier interface {
	Notify(ctx context.Context, message string) error
	NotifyUrgent(ctx context.Context, message string) error
}

package domain

import "errors"

// Sentinel errors used across layers.
var (
	ErrNotFound          = errors.New("not found")
	ErrNoSession         = errors.New("no session")
	ErrWrongScreen       = errors.New("not available on this screen")
	ErrNoQuiz            = errors.New("no quiz in progress")
	ErrNoMoreQuestions   = errors.New("no more questions in quiz")
	ErrAlreadyAnswered   = errors.New("question already answered")
	ErrNotAnswered       = errors.New("question not answered yet")
	ErrInvalidChoice     = errors.New("invalid choice")
	ErrNothingPlaying    = errors.New("nothing is playing")
	ErrBusy              = errors.New("busy")
	ErrInterrupted       = errors.New("interrupted")
	ErrNoSpeech          = errors.New("no speech detected")
	ErrSpeechUnavailable = errors.New("speech unavailable")
	ErrAlreadyExists     = errors.New("already exists")
)

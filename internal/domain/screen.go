package domain

import "strings"

// Screen is one of the application's top-level views. Exactly one screen is
// current per session.
type Screen int

const (
	ScreenHome Screen = iota
	ScreenListen
	ScreenQuiz
	ScreenSupplications
)

// String returns the lowercase screen name.
func (s Screen) String() string {
	switch s {
	case ScreenHome:
		return "home"
	case ScreenListen:
		return "listen"
	case ScreenQuiz:
		return "quiz"
	case ScreenSupplications:
		return "supplications"
	default:
		return "unknown"
	}
}

// Title returns the display title of the screen.
func (s Screen) Title() string {
	switch s {
	case ScreenHome:
		return "Home"
	case ScreenListen:
		return "Listen"
	case ScreenQuiz:
		return "Quiz"
	case ScreenSupplications:
		return "Supplications"
	default:
		return "?"
	}
}

// ScreenFromString parses a screen name. The second result is false for
// unrecognized names.
func ScreenFromString(name string) (Screen, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "home":
		return ScreenHome, true
	case "listen":
		return ScreenListen, true
	case "quiz":
		return ScreenQuiz, true
	case "supplications":
		return ScreenSupplications, true
	}
	return ScreenHome, false
}

package domain

// IntentType classifies what the user wants to do.
type IntentType int

const (
	IntentUnknown IntentType = iota
	IntentGoHome
	IntentGoListen
	IntentGoQuiz
	IntentGoSupplications
	IntentBack
	IntentSelectChapter      // payload: chapter number or name
	IntentStop               // stop recitation / speech
	IntentSelectSupplication // payload: supplication number, id or keyword
	IntentStartQuiz
	IntentAnswer // payload: raw answer text
	IntentNextQuestion
	IntentRepeat     // re-read what the current screen is about
	IntentRepeatLast // replay the last thing spoken
	IntentList       // list items on the current screen
	IntentStatus
	IntentHelp
	IntentMic // start listening now
	IntentQuit
)

// String returns a snake_case intent name.
func (i IntentType) String() string {
	if name, ok := intentNames[i]; ok {
		return name
	}
	return "unknown"
}

var intentNames = map[IntentType]string{
	IntentGoHome:             "go_home",
	IntentGoListen:           "go_listen",
	IntentGoQuiz:             "go_quiz",
	IntentGoSupplications:    "go_supplications",
	IntentBack:               "back",
	IntentSelectChapter:      "select_chapter",
	IntentStop:               "stop",
	IntentSelectSupplication: "select_supplication",
	IntentStartQuiz:          "start_quiz",
	IntentAnswer:             "answer",
	IntentNextQuestion:       "next_question",
	IntentRepeat:             "repeat",
	IntentRepeatLast:         "repeat_last",
	IntentList:               "list",
	IntentStatus:             "status",
	IntentHelp:               "help",
	IntentMic:                "mic",
	IntentQuit:               "quit",
}

// Interrupts reports whether acting on the intent should cut off whatever
// is currently being spoken or played.
func (i IntentType) Interrupts() bool {
	switch i {
	case IntentHelp, IntentStatus, IntentUnknown:
		return false
	}
	return true
}

// Intent represents a parsed user action.
type Intent struct {
	Type    IntentType
	Payload string
}

// NavigationTarget maps navigation intents to their screen.
func (i IntentType) NavigationTarget() (Screen, bool) {
	switch i {
	case IntentGoHome:
		return ScreenHome, true
	case IntentGoListen:
		return ScreenListen, true
	case IntentGoQuiz:
		return ScreenQuiz, true
	case IntentGoSupplications:
		return ScreenSupplications, true
	}
	return ScreenHome, false
}

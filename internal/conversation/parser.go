// Package conversation provides intent parsing and user notification implementations.
package conversation

import (
	"context"
	"regexp"
	"strings"

	"github.com/hammamikhairi/iqra/internal/domain"
	"github.com/hammamikhairi/iqra/internal/logger"
)

// Compile-time interface check.
var _ domain.IntentParser = (*KeywordParser)(nil)

// KeywordParser matches user input to intents using keywords and simple
// patterns. Navigation words work on every screen; everything else is
// interpreted in the context of the session's current screen.
type KeywordParser struct {
	log     *logger.Logger
	global  []patternRule
	screens map[domain.Screen][]patternRule
}

type patternRule struct {
	regex   *regexp.Regexp
	intent  domain.IntentType
	payload bool                       // first capture group becomes the payload
	when    func(*domain.Session) bool // nil matches always
}

func rule(expr string, intent domain.IntentType) patternRule {
	return patternRule{regex: regexp.MustCompile(expr), intent: intent}
}

func capture(expr string, intent domain.IntentType) patternRule {
	return patternRule{regex: regexp.MustCompile(expr), intent: intent, payload: true}
}

func awaitingAnswer(s *domain.Session) bool { return s.Quiz.AwaitingAnswer() }

func noQuizRunning(s *domain.Session) bool { return s.Quiz == nil || s.Quiz.Finished }

// NewKeywordParser creates a keyword-based intent parser.
func NewKeywordParser(log *logger.Logger) *KeywordParser {
	p := &KeywordParser{log: log}

	// Inputs are lowercased, apostrophes dropped and trailing punctuation
	// trimmed before matching.
	p.global = []patternRule{
		rule(`^(home|go home|main menu|menu|start over)$`, domain.IntentGoHome),
		rule(`^(back|go back|previous|return)$`, domain.IntentBack),
		rule(`^(start|begin|new|take)( a| the)? quiz$`, domain.IntentStartQuiz),
		rule(`^(go to |open )?(the )?(listen|listening|recitations?|quran)( screen| page)?$`, domain.IntentGoListen),
		rule(`^(go to |open )?(the )?quiz( screen| page)?$`, domain.IntentGoQuiz),
		rule(`^(go to |open )?(the )?(supplications?|duas?|prayers)( screen| page)?$`, domain.IntentGoSupplications),
		rule(`^(stop|pause|quiet|be quiet|silence|shh+|enough|stop it)$`, domain.IntentStop),
		rule(`^(repeat last|say that again|what did you say|come again|pardon)$`, domain.IntentRepeatLast),
		rule(`^(repeat|again|read it again|one more time)$`, domain.IntentRepeat),
		rule(`^(list|options|show|show all|what can i (choose|pick))$`, domain.IntentList),
		rule(`^(status|where am i|score|progress)$`, domain.IntentStatus),
		rule(`^(help|h|\?|what can i say|what can i do)$`, domain.IntentHelp),
		rule(`^(mic|microphone|talk|voice)$`, domain.IntentMic),
		rule(`^(quit|exit|bye|goodbye|q)$`, domain.IntentQuit),
	}

	p.screens = map[domain.Screen][]patternRule{
		domain.ScreenHome: {
			rule(`^1$`, domain.IntentGoListen),
			rule(`^2$`, domain.IntentGoQuiz),
			rule(`^3$`, domain.IntentGoSupplications),
			capture(`^(?:play|recite)\s+(.+)$`, domain.IntentSelectChapter),
			capture(`^(?:open|read)\s+(?:the\s+)?(?:dua|supplication)\s+(?:for\s+)?(.+)$`, domain.IntentSelectSupplication),
		},
		domain.ScreenListen: {
			capture(`^(?:play|recite|read|open|put on)\s+(.+)$`, domain.IntentSelectChapter),
		},
		domain.ScreenSupplications: {
			capture(`^(?:open|read|show|say)\s+(.+)$`, domain.IntentSelectSupplication),
		},
		domain.ScreenQuiz: {
			{
				regex:   regexp.MustCompile(`^(?:(?:my )?answer is|answer|is it|i think its|i choose|i pick)\s+(.+)$`),
				intent:  domain.IntentAnswer,
				payload: true,
				when:    awaitingAnswer,
			},
			rule(`^(next|next question|continue|go on|next one)$`, domain.IntentNextQuestion),
			{
				regex:  regexp.MustCompile(`^(start|begin|restart|ready|go|lets go|play again|yes)$`),
				intent: domain.IntentStartQuiz,
				when:   noQuizRunning,
			},
		},
	}
	return p
}

// Parse converts user input into an intent. The session may be nil, in
// which case only screen-independent rules apply.
func (p *KeywordParser) Parse(ctx context.Context, input string, session *domain.Session) (*domain.Intent, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return &domain.Intent{Type: domain.IntentUnknown}, nil
	}

	clean := cleanInput(trimmed)
	p.log.Debug("parsing input: %q", clean)

	if intent, ok := match(p.global, clean, session); ok {
		p.log.Debug("matched intent: %s", intent.Type)
		return intent, nil
	}
	if session == nil {
		return &domain.Intent{Type: domain.IntentUnknown, Payload: trimmed}, nil
	}
	if intent, ok := match(p.screens[session.Screen], clean, session); ok {
		p.log.Debug("matched %s intent: %s", session.Screen, intent.Type)
		return intent, nil
	}

	// Free text is a selection on the browsing screens and an answer
	// while a quiz question is open.
	switch session.Screen {
	case domain.ScreenListen:
		return &domain.Intent{Type: domain.IntentSelectChapter, Payload: clean}, nil
	case domain.ScreenSupplications:
		return &domain.Intent{Type: domain.IntentSelectSupplication, Payload: clean}, nil
	case domain.ScreenQuiz:
		if session.Quiz.AwaitingAnswer() {
			return &domain.Intent{Type: domain.IntentAnswer, Payload: clean}, nil
		}
	}

	p.log.Debug("no match, returning unknown intent")
	return &domain.Intent{Type: domain.IntentUnknown, Payload: trimmed}, nil
}

func match(rules []patternRule, clean string, session *domain.Session) (*domain.Intent, bool) {
	for _, r := range rules {
		if r.when != nil && (session == nil || !r.when(session)) {
			continue
		}
		m := r.regex.FindStringSubmatch(clean)
		if m == nil {
			continue
		}
		intent := &domain.Intent{Type: r.intent}
		if r.payload && len(m) > 1 {
			intent.Payload = strings.TrimSpace(m[1])
		}
		return intent, true
	}
	return nil, false
}

// cleanInput lowercases, drops apostrophes, collapses whitespace and trims
// trailing punctuation. A lone "?" survives for the help rule.
func cleanInput(s string) string {
	s = strings.ToLower(s)
	s = strings.NewReplacer("'", "", "’", "").Replace(s)
	s = strings.Join(strings.Fields(s), " ")
	if s != "?" {
		s = strings.TrimRight(s, ".!?,; ")
	}
	return s
}

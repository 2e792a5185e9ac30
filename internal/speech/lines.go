package speech

// Every spoken string lives here. Keep lines short and direct: they are
// read aloud to children and learners.

import (
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/hammamikhairi/iqra/internal/domain"
)

// ── Greeting / Global ────────────────────────────────────────────

func LineWelcome() string {
	return "Assalamu alaikum. Welcome to Iqra. You can listen to the Quran, learn supplications, or take a quiz."
}

func LineBye() string {
	return "Goodbye. Peace be upon you."
}

func LineNothingToRepeat() string {
	return "I haven't said anything yet."
}

func LineUnknown(input string) string {
	return fmt.Sprintf("Sorry, I didn't understand: %s. Say help to hear what you can do.", input)
}

func LineDidNotHear() string {
	return "I didn't hear anything."
}

func LineVoiceUnavailable() string {
	return "Voice input isn't available right now. You can type instead."
}

func LineSomethingWrong() string {
	return "Something went wrong. Please try again."
}

// ── Screens ──────────────────────────────────────────────────────

// LineScreenIntro is spoken when a screen opens.
func LineScreenIntro(screen domain.Screen) string {
	switch screen {
	case domain.ScreenHome:
		return "Home. Say listen, quiz, or supplications."
	case domain.ScreenListen:
		return "Listen. Say the name or number of a chapter to hear it recited."
	case domain.ScreenQuiz:
		return "Quiz time."
	case domain.ScreenSupplications:
		return "Supplications. Say which one you want to learn, for example before sleeping."
	}
	return ""
}

// LineHelp lists what the user can say on a screen.
func LineHelp(screen domain.Screen) string {
	common := " You can always say home, back, stop, repeat, or quit."
	switch screen {
	case domain.ScreenListen:
		return "Say a chapter name like Al-Ikhlas, or a number like 112. Say list to hear the chapters." + common
	case domain.ScreenQuiz:
		return "Answer with A, B, C, or D, or say the answer itself. Say next for the next question, or start for a new quiz." + common
	case domain.ScreenSupplications:
		return "Say what the supplication is for, like eating or travelling, or its number. Say list to hear them all." + common
	default:
		return "Say listen to hear the Quran, quiz for a quiz, or supplications to learn a dua." + common
	}
}

// ── Listen ───────────────────────────────────────────────────────

// LineChapterList reads chapter names with their numbers.
func LineChapterList(chapters []domain.Chapter) string {
	names := make([]string, len(chapters))
	for i, c := range chapters {
		names[i] = fmt.Sprintf("%d, %s", c.Number, c.Name)
	}
	return "The chapters are: " + joinSpoken(names) + "."
}

func LineChapterStarting(c *domain.Chapter) string {
	if c.Translation != "" {
		return fmt.Sprintf("Chapter %d, %s, %s.", c.Number, c.Name, c.Translation)
	}
	return fmt.Sprintf("Chapter %d, %s.", c.Number, c.Name)
}

func LineChapterFinished(c *domain.Chapter) string {
	return fmt.Sprintf("That was %s. Say another chapter, or home.", c.Name)
}

func LineChapterNotFound(query string) string {
	return fmt.Sprintf("I couldn't find a chapter called %s.", query)
}

func LineChapterFailed() string {
	return "I couldn't play that recitation. Check the internet connection and try again."
}

func LineNoAudio() string {
	return "Audio output isn't available, so I can't play recitations."
}

func LineNothingPlaying() string {
	return "Nothing is playing."
}

func LineStopped() string {
	return "Stopped."
}

// ── Supplications ────────────────────────────────────────────────

// LineSupplicationList reads supplication titles with their numbers.
func LineSupplicationList(sups []domain.Supplication) string {
	names := make([]string, len(sups))
	for i, s := range sups {
		names[i] = fmt.Sprintf("%d, %s", i+1, s.Title)
	}
	return "The supplications are: " + joinSpoken(names) + "."
}

// LineSupplication reads a supplication: the transliteration so the user
// can repeat it, then its meaning.
func LineSupplication(s *domain.Supplication) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s. ", s.Title)
	if s.Transliteration != "" {
		fmt.Fprintf(&b, "Say: %s. ", s.Transliteration)
	}
	if s.Translation != "" {
		fmt.Fprintf(&b, "It means: %s", s.Translation)
	}
	return strings.TrimSpace(b.String())
}

func LineSupplicationNotFound(query string) string {
	return fmt.Sprintf("I couldn't find a supplication for %s.", query)
}

func LinePickSupplicationFirst() string {
	return "Pick a supplication first. Say list to hear them."
}

// ── Quiz ─────────────────────────────────────────────────────────

func LineQuizStart(total int) string {
	return fmt.Sprintf("Let's start. %d questions.", total)
}

// LineQuestion reads the question and its lettered choices.
func LineQuestion(index, total int, q *domain.Question) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question %d of %d. %s", index+1, total, q.Prompt)
	for i, c := range q.Choices {
		fmt.Fprintf(&b, " %s: %s.", domain.ChoiceLetter(i), c)
	}
	return b.String()
}

func LineCorrect(q *domain.Question) string {
	return withExplanation(pick(correctLines), q)
}

func LineIncorrect(q *domain.Question) string {
	return withExplanation(fmt.Sprintf("Not quite. The answer is %s: %s.",
		domain.ChoiceLetter(q.Answer), q.CorrectChoice()), q)
}

func withExplanation(s string, q *domain.Question) string {
	if q.Explanation == "" {
		return s
	}
	return s + " " + q.Explanation
}

func LineSayNext() string {
	return "Say next when you're ready."
}

func LineAnswerNotUnderstood() string {
	return "I didn't get your answer. Say A, B, C, or D."
}

func LineAnswerGiveUp() string {
	return "Let's come back to that. Say repeat to hear the question again."
}

func LineAnswerFirst() string {
	return "Answer this one first, or say repeat to hear it again."
}

func LineAlreadyAnswered() string {
	return "You already answered. Say next."
}

func LineNoQuiz() string {
	return "There's no quiz running. Say start to begin."
}

func LineQuizFinished(score, total int) string {
	var verdict string
	switch {
	case score == total:
		verdict = "Perfect score, masha Allah!"
	case score*2 >= total:
		verdict = "Well done."
	default:
		verdict = "Keep learning, you'll get there."
	}
	return fmt.Sprintf("That's the end of the quiz. You got %d out of %d. %s Say start to play again.", score, total, verdict)
}

var correctLines = []string{
	"Correct!",
	"That's right!",
	"Well done, that's correct.",
	"Yes, exactly.",
}

// ── Status ───────────────────────────────────────────────────────

// LineStatus describes where the user is.
func LineStatus(s *domain.Session, playing string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You're on the %s screen.", s.Screen)
	if playing != "" {
		fmt.Fprintf(&b, " Now playing %s.", playing)
	}
	if s.Quiz != nil {
		q := s.Quiz
		if q.Finished {
			fmt.Fprintf(&b, " Quiz finished with %d out of %d.", q.Score, q.Total())
		} else {
			fmt.Fprintf(&b, " Question %d of %d, score %d.", q.Index+1, q.Total(), q.Score)
		}
	}
	return b.String()
}

// ── Idle nudges ──────────────────────────────────────────────────

// LineNudge is a gentle reminder after inactivity. level starts at 1.
func LineNudge(screen domain.Screen, level int) string {
	if level > 1 {
		return "Are you still there? Say help if you're not sure what to do."
	}
	switch screen {
	case domain.ScreenListen:
		return "Would you like to hear a chapter? Try Al-Fatiha."
	case domain.ScreenQuiz:
		return "Take your time. Say repeat to hear the question again."
	case domain.ScreenSupplications:
		return "Which supplication would you like to learn?"
	default:
		return "Say listen, quiz, or supplications to get started."
	}
}

// ── Listening acknowledgment ─────────────────────────────────────

var listeningFillers = []string{
	"I'm listening.",
	"Go ahead.",
	"Yes?",
}

// LineListening returns a random acknowledgment for the mic button.
func LineListening() string {
	return pick(listeningFillers)
}

// Prefetchable returns the fixed lines worth warming the cache with at
// startup.
func Prefetchable() []string {
	out := []string{
		LineWelcome(), LineDidNotHear(), LineAnswerNotUnderstood(), LineSayNext(),
		LineStopped(), LineNothingToRepeat(),
	}
	for _, s := range []domain.Screen{domain.ScreenHome, domain.ScreenListen, domain.ScreenQuiz, domain.ScreenSupplications} {
		out = append(out, LineScreenIntro(s), LineNudge(s, 1))
	}
	out = append(out, listeningFillers...)
	return append(out, correctLines...)
}

// ── Helpers ──────────────────────────────────────────────────────

func pick(lines []string) string {
	return lines[rand.IntN(len(lines))]
}

// joinSpoken joins items as "a, b, and c".
func joinSpoken(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	case 2:
		return items[0] + " and " + items[1]
	}
	return strings.Join(items[:len(items)-1], "; ") + "; and " + items[len(items)-1]
}

package dialog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hammamikhairi/iqra/internal/conversation"
	"github.com/hammamikhairi/iqra/internal/domain"
	"github.com/hammamikhairi/iqra/internal/engine"
	"github.com/hammamikhairi/iqra/internal/logger"
	"github.com/hammamikhairi/iqra/internal/speech"
)

// Output is where the controller writes what the user sees.
// *display.UI implements it.
type Output interface {
	PrintChat(text string)
	PrintStep(text string)
	PrintInstruction(text string)
	PrintHint(text string)
	PrintUrgent(text string)
	PrintVoice(text string)
}

// ControllerOption configures the Controller.
type ControllerOption func(*Controller)

// WithAutoListen makes every prompt open the microphone once it has been
// spoken. It has no effect without voice input.
func WithAutoListen(on bool) ControllerOption {
	return func(c *Controller) { c.autoListen = on }
}

// WithByeTimeout bounds how long quitting waits for the goodbye line.
func WithByeTimeout(d time.Duration) ControllerOption {
	return func(c *Controller) { c.byeTimeout = d }
}

// Controller is the conversation loop. It runs on a single goroutine:
// touch input, mic triggers and conductor events are handled one at a
// time, so session state needs no further locking here.
type Controller struct {
	engine *engine.Engine
	parser domain.IntentParser
	cond   *Conductor
	out    Output
	log    *logger.Logger

	autoListen bool
	byeTimeout time.Duration

	sessionID string
	last      string // last line said, for "repeat last"
	reasked   bool   // the current question was re-asked after a bad answer
}

// NewController wires the loop together.
func NewController(eng *engine.Engine, parser domain.IntentParser, cond *Conductor, out Output, log *logger.Logger, opts ...ControllerOption) *Controller {
	c := &Controller{
		engine:     eng,
		parser:     parser,
		cond:       cond,
		out:        out,
		log:        log,
		byeTimeout: 3 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SessionID returns the session driven by Run, or "" before it starts.
func (c *Controller) SessionID() string { return c.sessionID }

// errQuit ends Run after the user asked to quit.
var errQuit = errors.New("quit")

// Run starts a session and handles input until the user quits, input is
// closed or ctx is done. mic may be nil.
func (c *Controller) Run(ctx context.Context, input <-chan string, mic <-chan struct{}) error {
	session, err := c.engine.StartSession(ctx)
	if err != nil {
		return fmt.Errorf("starting session: %w", err)
	}
	c.sessionID = session.ID
	defer func() {
		if err := c.engine.End(context.WithoutCancel(ctx), c.sessionID); err != nil {
			c.log.Warn("ending session: %v", err)
		}
	}()

	c.say(speech.LineWelcome())
	c.prompt(ctx, speech.LineScreenIntro(domain.ScreenHome))

	for {
		var err error
		select {
		case <-ctx.Done():
			return nil

		case line, ok := <-input:
			if !ok {
				return nil
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			// Touch input always cuts off whatever is playing.
			err = c.handleInput(ctx, line, true)

		case <-mic:
			c.startListening(ctx)

		case ev := <-c.cond.C():
			if !c.cond.Current(ev) {
				continue
			}
			err = c.handleEvent(ctx, ev)
		}

		if errors.Is(err, errQuit) {
			return nil
		}
		if err != nil {
			c.log.Error("%v", err)
			c.say(speech.LineSomethingWrong())
		}
	}
}

// ── Events ───────────────────────────────────────────────────────

func (c *Controller) handleEvent(ctx context.Context, ev Event) error {
	switch ev.Kind {
	case EventHeard:
		c.out.PrintVoice(ev.Text)
		return c.handleInput(ctx, ev.Text, false)

	case EventNoSpeech:
		c.out.PrintHint(speech.LineDidNotHear())
		_ = c.cond.SpeakIfIdle(speech.LineDidNotHear())

	case EventListenFailed:
		c.log.Error("listen failed: %v", ev.Err)
		c.say(speech.LineVoiceUnavailable())

	case EventRecitationDone:
		if err := c.engine.ChapterFinished(ctx, c.sessionID, ev.Chapter.Number); err != nil {
			return err
		}
		c.prompt(ctx, speech.LineChapterFinished(ev.Chapter))

	case EventRecitationFailed:
		c.log.Error("recitation of chapter %d failed: %v", ev.Chapter.Number, ev.Err)
		if err := c.engine.ChapterFinished(ctx, c.sessionID, ev.Chapter.Number); err != nil {
			return err
		}
		c.out.PrintUrgent(speech.LineChapterFailed())
		c.sayOnly(speech.LineChapterFailed())
	}
	return nil
}

// ── Input ────────────────────────────────────────────────────────

func (c *Controller) handleInput(ctx context.Context, input string, touch bool) error {
	if err := c.engine.Touch(ctx, c.sessionID); err != nil {
		return err
	}
	session, err := c.engine.Session(ctx, c.sessionID)
	if err != nil {
		return err
	}

	intent, err := c.parser.Parse(ctx, input, session)
	if err != nil {
		return fmt.Errorf("parsing input: %w", err)
	}
	c.log.Debug("intent: %s (payload=%q)", intent.Type, intent.Payload)

	turn := c.cond.Turn()
	if touch || intent.Type.Interrupts() {
		if err := c.interrupt(ctx, session); err != nil {
			return err
		}
	}
	return c.dispatch(ctx, intent, session, turn)
}

// interrupt stops all audio and keeps the session's now-playing in step.
func (c *Controller) interrupt(ctx context.Context, session *domain.Session) error {
	c.cond.Interrupt()
	if session.NowPlaying == 0 {
		return nil
	}
	if err := c.engine.StopChapter(ctx, c.sessionID); err != nil && !errors.Is(err, domain.ErrNothingPlaying) {
		return err
	}
	return nil
}

func (c *Controller) dispatch(ctx context.Context, intent *domain.Intent, session *domain.Session, turn Turn) error {
	if target, ok := intent.Type.NavigationTarget(); ok {
		s, err := c.engine.Navigate(ctx, c.sessionID, target)
		if err != nil {
			return err
		}
		return c.enterScreen(ctx, s)
	}

	switch intent.Type {
	case domain.IntentBack:
		s, err := c.engine.Back(ctx, c.sessionID)
		if err != nil {
			return err
		}
		return c.enterScreen(ctx, s)
	case domain.IntentSelectChapter:
		return c.selectChapter(ctx, intent.Payload)
	case domain.IntentStop:
		c.stop(session, turn)
	case domain.IntentSelectSupplication:
		return c.selectSupplication(ctx, intent.Payload)
	case domain.IntentStartQuiz:
		return c.startQuiz(ctx)
	case domain.IntentAnswer:
		return c.answer(ctx, intent.Payload)
	case domain.IntentNextQuestion:
		return c.nextQuestion(ctx)
	case domain.IntentRepeat:
		return c.repeat(ctx, session)
	case domain.IntentRepeatLast:
		c.repeatLast()
	case domain.IntentList:
		return c.list(ctx, session)
	case domain.IntentStatus:
		return c.status(ctx, session)
	case domain.IntentHelp:
		c.help(session.Screen)
	case domain.IntentMic:
		c.startListening(ctx)
	case domain.IntentQuit:
		c.quit(ctx)
		return errQuit
	default:
		c.say(speech.LineUnknown(intent.Payload))
	}
	return nil
}

// ── Screens ──────────────────────────────────────────────────────

// enterScreen announces the screen the session is now on. Entering the quiz
// screen without a run starts one.
func (c *Controller) enterScreen(ctx context.Context, s *domain.Session) error {
	c.out.PrintStep("── " + s.Screen.Title() + " ──")

	if s.Screen != domain.ScreenQuiz {
		c.prompt(ctx, speech.LineScreenIntro(s.Screen))
		return nil
	}
	switch {
	case s.Quiz == nil || s.Quiz.Finished:
		return c.startQuiz(ctx)
	case s.Quiz.AwaitingAnswer():
		return c.askCurrent(ctx, "")
	default:
		c.prompt(ctx, speech.LineSayNext())
	}
	return nil
}

// ── Listen ───────────────────────────────────────────────────────

func (c *Controller) selectChapter(ctx context.Context, query string) error {
	if !c.cond.CanRecite() {
		c.say(speech.LineNoAudio())
		return nil
	}

	ch, err := c.engine.SelectChapter(ctx, c.sessionID, query)
	if errors.Is(err, domain.ErrNotFound) {
		c.prompt(ctx, speech.LineChapterNotFound(query))
		return nil
	}
	if err != nil {
		return err
	}

	intro := speech.LineChapterStarting(ch)
	c.out.PrintStep(fmt.Sprintf("Chapter %d: %s", ch.Number, ch.Name))
	if ch.Translation != "" {
		c.out.PrintHint(fmt.Sprintf("%s, %d verses", ch.Translation, ch.Verses))
	}
	c.last = intro
	c.cond.Recite(ctx, ch, intro)
	return nil
}

func (c *Controller) stop(session *domain.Session, turn Turn) {
	switch {
	case session.NowPlaying != 0:
		c.say(speech.LineStopped())
	case turn != TurnIdle:
		c.out.PrintHint(speech.LineStopped())
	default:
		c.say(speech.LineNothingPlaying())
	}
}

// ── Supplications ────────────────────────────────────────────────

func (c *Controller) selectSupplication(ctx context.Context, query string) error {
	sup, err := c.engine.SelectSupplication(ctx, c.sessionID, query)
	if errors.Is(err, domain.ErrNotFound) {
		c.prompt(ctx, speech.LineSupplicationNotFound(query))
		return nil
	}
	if err != nil {
		return err
	}
	c.showSupplication(ctx, sup)
	return nil
}

func (c *Controller) showSupplication(ctx context.Context, sup *domain.Supplication) {
	c.out.PrintStep(sup.Title)
	if sup.Arabic != "" {
		c.out.PrintInstruction(sup.Arabic)
	}
	if sup.Transliteration != "" {
		c.out.PrintHint(sup.Transliteration)
	}
	if sup.Translation != "" {
		c.out.PrintInstruction(sup.Translation)
	}
	c.speakPrompt(ctx, speech.LineSupplication(sup))
}

// ── Quiz ─────────────────────────────────────────────────────────

func (c *Controller) startQuiz(ctx context.Context) error {
	q, err := c.engine.StartQuiz(ctx, c.sessionID)
	if errors.Is(err, domain.ErrNoMoreQuestions) {
		c.say(speech.LineNoQuiz())
		return nil
	}
	if err != nil {
		return err
	}
	_, state, err := c.engine.CurrentQuestion(ctx, c.sessionID)
	if err != nil {
		return err
	}
	c.reasked = false
	c.ask(ctx, q, state, speech.LineQuizStart(state.Total()))
	return nil
}

// askCurrent reads the current question, prefixed with lead.
func (c *Controller) askCurrent(ctx context.Context, lead string) error {
	q, state, err := c.engine.CurrentQuestion(ctx, c.sessionID)
	if err != nil {
		return err
	}
	c.ask(ctx, q, state, lead)
	return nil
}

func (c *Controller) ask(ctx context.Context, q *domain.Question, state *domain.QuizState, lead string) {
	c.out.PrintStep(fmt.Sprintf("Question %d/%d", state.Index+1, state.Total()))
	c.out.PrintInstruction(q.Prompt)
	for i, choice := range q.Choices {
		c.out.PrintHint(fmt.Sprintf("  %s) %s", domain.ChoiceLetter(i), choice))
	}
	text := speech.LineQuestion(state.Index, state.Total(), q)
	if lead != "" {
		text = lead + " " + text
	}
	c.speakPrompt(ctx, text)
}

func (c *Controller) answer(ctx context.Context, raw string) error {
	q, _, err := c.engine.CurrentQuestion(ctx, c.sessionID)
	if errors.Is(err, domain.ErrNoQuiz) || errors.Is(err, domain.ErrWrongScreen) || errors.Is(err, domain.ErrNoMoreQuestions) {
		c.say(speech.LineNoQuiz())
		return nil
	}
	if err != nil {
		return err
	}

	choice, ok := conversation.MatchChoice(raw, q.Choices)
	if !ok {
		// Re-ask once, then let it go until the user tries again.
		if c.reasked {
			c.reasked = false
			c.say(speech.LineAnswerGiveUp())
			return nil
		}
		c.reasked = true
		c.prompt(ctx, speech.LineAnswerNotUnderstood())
		return nil
	}

	res, err := c.engine.Answer(ctx, c.sessionID, choice)
	switch {
	case errors.Is(err, domain.ErrAlreadyAnswered):
		c.prompt(ctx, speech.LineAlreadyAnswered())
		return nil
	case err != nil:
		return err
	}
	c.reasked = false

	verdict := speech.LineIncorrect(res.Question)
	if res.Correct {
		verdict = speech.LineCorrect(res.Question)
	}
	c.out.PrintHint(fmt.Sprintf("Score: %d/%d", res.Score, res.Total))

	if res.Last {
		if _, err := c.engine.NextQuestion(ctx, c.sessionID); err != nil && !errors.Is(err, domain.ErrNoMoreQuestions) {
			return err
		}
		c.say(verdict + " " + speech.LineQuizFinished(res.Score, res.Total))
		return nil
	}
	c.prompt(ctx, verdict+" "+speech.LineSayNext())
	return nil
}

func (c *Controller) nextQuestion(ctx context.Context) error {
	q, err := c.engine.NextQuestion(ctx, c.sessionID)
	switch {
	case errors.Is(err, domain.ErrNotAnswered):
		c.prompt(ctx, speech.LineAnswerFirst())
		return nil
	case errors.Is(err, domain.ErrNoMoreQuestions):
		s, err := c.engine.Session(ctx, c.sessionID)
		if err != nil {
			return err
		}
		c.say(speech.LineQuizFinished(s.Quiz.Score, s.Quiz.Total()))
		return nil
	case errors.Is(err, domain.ErrNoQuiz), errors.Is(err, domain.ErrWrongScreen):
		c.say(speech.LineNoQuiz())
		return nil
	case err != nil:
		return err
	}

	_, state, err := c.engine.CurrentQuestion(ctx, c.sessionID)
	if err != nil {
		return err
	}
	c.reasked = false
	c.ask(ctx, q, state, "")
	return nil
}

// ── Global ───────────────────────────────────────────────────────

// repeat re-reads what the current screen is about.
func (c *Controller) repeat(ctx context.Context, session *domain.Session) error {
	switch {
	case session.Screen == domain.ScreenQuiz && session.Quiz.AwaitingAnswer():
		return c.askCurrent(ctx, "")
	case session.Screen == domain.ScreenSupplications && session.Supplication != "":
		sup, err := c.engine.CurrentSupplication(ctx, c.sessionID)
		if err != nil {
			return err
		}
		c.showSupplication(ctx, sup)
		return nil
	}
	c.prompt(ctx, speech.LineScreenIntro(session.Screen))
	return nil
}

func (c *Controller) repeatLast() {
	last := c.last
	if last == "" {
		last = c.cond.LastSpoken()
	}
	if last == "" {
		c.say(speech.LineNothingToRepeat())
		return
	}
	c.say(last)
}

func (c *Controller) list(ctx context.Context, session *domain.Session) error {
	content := c.engine.Content()
	switch session.Screen {
	case domain.ScreenSupplications:
		sups, err := content.Supplications(ctx)
		if err != nil {
			return err
		}
		c.out.PrintStep("Supplications:")
		for i, s := range sups {
			c.out.PrintInstruction(fmt.Sprintf("[%d] %s", i+1, s.Title))
		}
		c.prompt(ctx, speech.LineSupplicationList(sups))
	case domain.ScreenQuiz:
		c.help(session.Screen)
	default:
		chapters, err := content.Chapters(ctx)
		if err != nil {
			return err
		}
		c.out.PrintStep("Chapters:")
		for _, ch := range chapters {
			c.out.PrintInstruction(fmt.Sprintf("[%d] %s", ch.Number, ch.Name))
			if ch.Translation != "" {
				c.out.PrintHint(ch.Translation)
			}
		}
		c.prompt(ctx, speech.LineChapterList(chapters))
	}
	return nil
}

func (c *Controller) status(ctx context.Context, session *domain.Session) error {
	playing := ""
	if session.NowPlaying != 0 {
		ch, err := c.engine.NowPlaying(ctx, c.sessionID)
		if err != nil && !errors.Is(err, domain.ErrNothingPlaying) {
			return err
		}
		if ch != nil {
			playing = ch.Name
		}
	}

	c.out.PrintStep("Session: " + shortID(session.ID))
	c.out.PrintInstruction("Screen:  " + session.Screen.Title())
	if playing != "" {
		c.out.PrintInstruction("Playing: " + playing)
	}
	if q := session.Quiz; q != nil {
		c.out.PrintInstruction(fmt.Sprintf("Quiz:    %d/%d, score %d", min(q.Index+1, q.Total()), q.Total(), q.Score))
	}
	c.out.PrintHint(fmt.Sprintf("Started: %s ago", time.Since(session.StartedAt).Round(time.Second)))

	c.cond.Say(speech.LineStatus(session, playing), speech.PriorityLow)
	return nil
}

func (c *Controller) help(screen domain.Screen) {
	c.out.PrintStep("Commands:")
	c.out.PrintInstruction("  home / back              Go to the home screen, or the previous one")
	c.out.PrintInstruction("  listen / quiz / duas     Open a screen")
	c.out.PrintInstruction("  play <chapter>           Recite a chapter by name or number")
	c.out.PrintInstruction("  open <supplication>      Read a supplication")
	c.out.PrintInstruction("  a, b, c, d               Answer a quiz question")
	c.out.PrintInstruction("  next / start             Next question, or a new quiz")
	c.out.PrintInstruction("  stop                     Stop the recitation")
	c.out.PrintInstruction("  repeat / repeat last     Hear the screen, or the last line, again")
	c.out.PrintInstruction("  list / status / help     What's here, where you are, this message")
	if c.cond.CanListen() {
		c.out.PrintInstruction("  mic (or Tab)             Speak instead of typing")
	}
	c.out.PrintInstruction("  quit                     Exit")
	c.cond.Say(speech.LineHelp(screen), speech.PriorityNormal)
}

func (c *Controller) startListening(ctx context.Context) {
	if !c.cond.CanListen() {
		c.say(speech.LineVoiceUnavailable())
		return
	}
	if session, err := c.engine.Session(ctx, c.sessionID); err == nil {
		if err := c.interrupt(ctx, session); err != nil {
			c.log.Warn("stopping playback: %v", err)
		}
	}
	c.out.PrintHint(speech.LineListening())
	c.cond.Listen(ctx)
}

func (c *Controller) quit(ctx context.Context) {
	c.out.PrintChat(speech.LineBye())
	u := c.cond.Say(speech.LineBye(), speech.PriorityHigh)
	if u == nil {
		return
	}
	waitCtx, cancel := context.WithTimeout(ctx, c.byeTimeout)
	defer cancel()
	if err := u.Wait(waitCtx); err != nil {
		c.log.Debug("goodbye cut short: %v", err)
	}
}

// ── Output helpers ───────────────────────────────────────────────

// say prints and speaks a line without listening afterwards.
func (c *Controller) say(text string) {
	c.out.PrintChat(text)
	c.sayOnly(text)
}

func (c *Controller) sayOnly(text string) {
	c.last = text
	c.cond.Say(text, speech.PriorityNormal)
}

// prompt prints and speaks a line that expects a reply.
func (c *Controller) prompt(ctx context.Context, text string) {
	c.out.PrintChat(text)
	c.speakPrompt(ctx, text)
}

// speakPrompt speaks without printing, listening afterwards when
// auto-listen is on.
func (c *Controller) speakPrompt(ctx context.Context, text string) {
	c.last = text
	if c.autoListen && c.cond.CanListen() {
		c.cond.Prompt(ctx, text)
		return
	}
	c.cond.Say(text, speech.PriorityNormal)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

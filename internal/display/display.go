// Package display provides the terminal UI using Bubble Tea.
//
// The [UI] type manages a status bar and an input prompt at the bottom of
// the terminal. All application output is printed above the rendered area
// via Program.Println / Printf, so concurrent writes never garble the
// display.
package display

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/hammamikhairi/iqra/internal/domain"
)

// ── Styles ───────────────────────────────────────────────────────

var (
	barBg = lipgloss.NewStyle().
		Background(lipgloss.Color("#27272a")).
		Foreground(lipgloss.Color("#a1a1aa"))

	screenStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#bbf7d0")).
			Bold(true)

	playingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#fde68a"))

	turnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#bae6fd")).
			Italic(true)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#a1a1aa"))

	sepStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#52525b"))

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#94a3b8"))

	// ── Output styles ──

	// BannerStyle is used for the startup banner.
	BannerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#94a3b8"))

	chatStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#bae6fd"))

	stepStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#bbf7d0"))

	primaryStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#d4d4d8"))

	secondaryStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#71717a"))

	urgentOutputStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#fca5a5"))

	userInputEchoStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#a1a1aa"))
)

const prompt = "iqra> "

// ── UI ───────────────────────────────────────────────────────────

// Option configures the UI.
type Option func(*UI)

// WithTurn sets the function the status bar polls for the audio turn
// ("speaking", "listening" and so on).
func WithTurn(fn func() string) Option {
	return func(u *UI) { u.turnFn = fn }
}

// UI manages the terminal through Bubble Tea.
//
// Call [NewUI] then [UI.Run] (blocking). Other goroutines may safely call
// the print helpers and read from [UI.InputChan] and [UI.MicChan] at any
// time after [UI.WaitReady] returns.
type UI struct {
	program *tea.Program
	inputCh chan string
	micCh   chan struct{}
	readyCh chan struct{}
	quitCh  chan struct{}
	store   domain.SessionStore
	content domain.ContentSource
	turnFn  func() string
	done    atomic.Bool
}

// NewUI creates the display. Call Run() to start.
func NewUI(store domain.SessionStore, content domain.ContentSource, opts ...Option) *UI {
	u := &UI{
		store:   store,
		content: content,
		inputCh: make(chan string, 16),
		micCh:   make(chan struct{}, 1),
		readyCh: make(chan struct{}),
		quitCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Println prints a line above the prompt. Thread-safe. Before the program
// starts, and after it exits, lines go to stdout.
func (u *UI) Println(a ...interface{}) {
	if u.program != nil && !u.done.Load() {
		u.program.Println(a...)
	} else {
		fmt.Println(a...)
	}
}

// Printf prints formatted text above the prompt. Thread-safe.
func (u *UI) Printf(format string, a ...interface{}) {
	if u.program != nil && !u.done.Load() {
		u.program.Printf(format, a...)
	} else {
		fmt.Printf(format+"\n", a...)
	}
}

// InputChan returns completed user-input lines.
func (u *UI) InputChan() <-chan string { return u.inputCh }

// MicChan fires when the user presses the microphone key (Tab).
func (u *UI) MicChan() <-chan struct{} { return u.micCh }

// ── Styled print helpers ─────────────────────────────────────────

// PrintChat prints what the assistant says.
func (u *UI) PrintChat(text string) {
	u.Println(chatStyle.Render("  " + text))
}

// PrintStep prints a header like "── Quiz ──" or "Question 2/5".
func (u *UI) PrintStep(text string) {
	u.Println(stepStyle.Render("  " + text))
}

// PrintInstruction prints primary content: a question, a supplication.
func (u *UI) PrintInstruction(text string) {
	u.Println(primaryStyle.Render("  " + text))
}

// PrintHint prints a secondary/dimmed line.
func (u *UI) PrintHint(text string) {
	u.Println(secondaryStyle.Render("  " + text))
}

// PrintUrgent prints an error line.
func (u *UI) PrintUrgent(text string) {
	u.Println(urgentOutputStyle.Render("  " + text))
}

// PrintVoice prints a voice-recognised input line.
func (u *UI) PrintVoice(text string) {
	u.Println(secondaryStyle.Render("[voice] ") + primaryStyle.Render(text))
}

// PrintUserInput echoes the user's typed command into the scrollback.
func (u *UI) PrintUserInput(text string) {
	u.Println(promptStyle.Render("iqra") + secondaryStyle.Render("> ") + userInputEchoStyle.Render(text))
}

// WaitReady blocks until the Bubble Tea event loop is running.
func (u *UI) WaitReady() { <-u.readyCh }

// Quit tells Bubble Tea to exit.
func (u *UI) Quit() {
	if u.program != nil {
		u.program.Quit()
	}
}

// QuitChan is closed when Run returns.
func (u *UI) QuitChan() <-chan struct{} { return u.quitCh }

// Run starts the Bubble Tea event loop. Blocks until quit.
func (u *UI) Run() error {
	ti := textinput.New()
	// A plain-text prompt keeps the textinput width math correct; styled
	// prompts add invisible ANSI bytes.
	ti.Prompt = prompt
	ti.PromptStyle = promptStyle
	ti.TextStyle = userInputEchoStyle
	ti.Cursor.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#94a3b8"))
	ti.Focus()
	ti.CharLimit = 500
	ti.Width = 60 // updated on first WindowSizeMsg

	m := newModel(ti, u)
	u.program = tea.NewProgram(m)
	_, err := u.program.Run()
	u.done.Store(true)
	close(u.quitCh)
	return err
}

// ── Status ───────────────────────────────────────────────────────

// status is what the bar shows.
type status struct {
	screen  string
	turn    string
	playing string
	quiz    string
}

// statusOf summarises a session for the bar.
func statusOf(ctx context.Context, s *domain.Session, content domain.ContentSource) status {
	st := status{screen: s.Screen.Title()}
	if s.NowPlaying != 0 {
		st.playing = fmt.Sprintf("%d", s.NowPlaying)
		if content != nil {
			if ch, err := content.Chapter(ctx, s.NowPlaying); err == nil {
				st.playing = ch.Name
			}
		}
	}
	if q := s.Quiz; q != nil {
		if q.Finished {
			st.quiz = fmt.Sprintf("final %d/%d", q.Score, q.Total())
		} else {
			st.quiz = fmt.Sprintf("Q%d/%d  score %d", q.Index+1, q.Total(), q.Score)
		}
	}
	return st
}

// ── Bubble Tea model ─────────────────────────────────────────────

type model struct {
	store   domain.SessionStore
	content domain.ContentSource
	turnFn  func() string
	input   textinput.Model
	inputCh chan<- string
	micCh   chan struct{}
	readyCh chan struct{}
	echoFn  func(string) // prints user input into scrollback
	status  status
	width   int
}

func newModel(ti textinput.Model, u *UI) model {
	return model{
		store:   u.store,
		content: u.content,
		turnFn:  u.turnFn,
		input:   ti,
		inputCh: u.inputCh,
		micCh:   u.micCh,
		readyCh: u.readyCh,
		echoFn:  u.PrintUserInput,
	}
}

type tickMsg time.Time

func (m model) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		tickCmd(),
		signalReady(m.readyCh),
	)
}

func signalReady(ch chan struct{}) tea.Cmd {
	return func() tea.Msg {
		close(ch)
		return nil
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(250*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			return m, tea.Quit
		case tea.KeyTab:
			// A pending press is enough; extra presses are dropped.
			select {
			case m.micCh <- struct{}{}:
			default:
			}
			return m, nil
		case tea.KeyEnter:
			v := m.input.Value()
			m.input.Reset()
			if strings.TrimSpace(v) != "" {
				m.inputCh <- v
				// Echo from a Cmd so Println does not run inside Update.
				echoFn := m.echoFn
				return m, func() tea.Msg {
					echoFn(v)
					return nil
				}
			}
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		if msg.Width > len(prompt) {
			m.input.Width = msg.Width - len(prompt)
		}
		return m, nil

	case tickMsg:
		m.refreshStatus()
		return m, tea.Batch(tickCmd(), tea.SetWindowTitle(m.titleStr()))
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *model) refreshStatus() {
	ctx := context.Background()
	sessions, err := m.store.ListActive(ctx)
	if err != nil || len(sessions) == 0 {
		m.status = status{}
	} else {
		m.status = statusOf(ctx, sessions[0], m.content)
	}
	if m.turnFn != nil {
		m.status.turn = m.turnFn()
	}
}

func (m model) titleStr() string {
	title := "Iqra"
	if m.status.screen != "" {
		title += " · " + m.status.screen
	}
	if m.status.playing != "" {
		title += " · " + m.status.playing
	}
	return title
}

func (m model) View() string {
	var b strings.Builder

	if m.status.screen != "" {
		b.WriteString(m.renderBar())
		b.WriteByte('\n')
	}

	b.WriteByte('\n')
	b.WriteString(m.input.View())
	return b.String()
}

func (m model) renderBar() string {
	parts := []string{screenStyle.Render(m.status.screen)}
	if m.status.playing != "" {
		parts = append(parts, labelStyle.Render("playing ")+playingStyle.Render(m.status.playing))
	}
	if m.status.quiz != "" {
		parts = append(parts, labelStyle.Render("quiz ")+playingStyle.Render(m.status.quiz))
	}
	if m.status.turn != "" && m.status.turn != "idle" {
		parts = append(parts, turnStyle.Render(m.status.turn))
	}
	parts = append(parts, labelStyle.Render("tab: mic"))

	content := " " + strings.Join(parts, sepStyle.Render("  │  ")) + " "

	w := m.width
	if w <= 0 {
		w = 80
	}
	return barBg.Width(w).Render(content)
}

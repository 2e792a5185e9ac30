package conversation

import (
	"context"
	"fmt"
	"sync"

	"github.com/hammamikhairi/iqra/internal/domain"
	"github.com/hammamikhairi/iqra/internal/logger"
)

// Compile-time interface check.
var _ domain.Notifier = (*CLINotifier)(nil)

// ANSI escape codes for terminal formatting.
const (
	reset  = "\033[0m"
	bold   = "\033[1m"
	red    = "\033[31m"
	cyan   = "\033[36m"
	italic = "\033[3m"
)

// PrintFunc prints one formatted line. Matches display.UI.Printf.
type PrintFunc func(format string, a ...interface{})

// CLINotifier prints hints in cyan italics and urgent messages in bold red.
// It remembers the last message so it can be shown again on request.
type CLINotifier struct {
	log     *logger.Logger
	printFn PrintFunc

	mu   sync.Mutex
	last string
}

// NewCLINotifier creates a terminal notifier. If printFn is nil, lines go
// to stdout.
func NewCLINotifier(log *logger.Logger, printFn PrintFunc) *CLINotifier {
	if printFn == nil {
		printFn = func(format string, a ...interface{}) {
			fmt.Printf(format+"\n", a...)
		}
	}
	return &CLINotifier{log: log, printFn: printFn}
}

// Notify prints a hint.
func (n *CLINotifier) Notify(ctx context.Context, message string) error {
	n.log.Debug("notify: %s", message)
	n.remember(message)
	n.printFn("%s%s%s%s", cyan, italic, message, reset)
	return nil
}

// NotifyUrgent prints a message that needs attention.
func (n *CLINotifier) NotifyUrgent(ctx context.Context, message string) error {
	n.log.Debug("notify-urgent: %s", message)
	n.remember(message)
	n.printFn("%s%s%s%s", red, bold, message, reset)
	return nil
}

// Last returns the most recent message, or "".
func (n *CLINotifier) Last() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.last
}

func (n *CLINotifier) remember(message string) {
	n.mu.Lock()
	n.last = message
	n.mu.Unlock()
}

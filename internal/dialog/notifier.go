package dialog

import (
	"context"
	"regexp"
	"strings"

	"github.com/hammamikhairi/iqra/internal/domain"
	"github.com/hammamikhairi/iqra/internal/logger"
)

// Compile-time interface check.
var _ domain.Notifier = (*SpeakingNotifier)(nil)

// SpeakingNotifier wraps a text notifier and also speaks through the
// Conductor, but only into silence. Background messages never cut off
// speech, a listen or a recitation.
type SpeakingNotifier struct {
	text domain.Notifier
	cond *Conductor
	log  *logger.Logger
}

// NewSpeakingNotifier creates a notifier that prints and speaks.
func NewSpeakingNotifier(text domain.Notifier, cond *Conductor, log *logger.Logger) *SpeakingNotifier {
	return &SpeakingNotifier{
		text: text,
		cond: cond,
		log:  log,
	}
}

// Notify prints and speaks the message if the conductor is idle. It returns
// domain.ErrBusy without printing otherwise, so the caller can try later.
func (n *SpeakingNotifier) Notify(ctx context.Context, message string) error {
	if n.cond.Turn() != TurnIdle {
		return domain.ErrBusy
	}
	if err := n.text.Notify(ctx, message); err != nil {
		return err
	}
	if err := n.cond.SpeakIfIdle(cleanForSpeech(message)); err != nil {
		n.log.Debug("not speaking notification: %v", err)
	}
	return nil
}

// NotifyUrgent always prints, and speaks when idle.
func (n *SpeakingNotifier) NotifyUrgent(ctx context.Context, message string) error {
	if err := n.text.NotifyUrgent(ctx, message); err != nil {
		return err
	}
	if err := n.cond.SpeakIfIdle(cleanForSpeech(message)); err != nil {
		n.log.Debug("not speaking urgent notification: %v", err)
	}
	return nil
}

var (
	bracketPrefix = regexp.MustCompile(`^\[[A-Za-z]+\]\s*`)
	ansiCodes     = regexp.MustCompile(`\x1b\[[0-9;]*m`)
)

// cleanForSpeech strips formatting that shouldn't be spoken.
func cleanForSpeech(msg string) string {
	cleaned := ansiCodes.ReplaceAllString(msg, "")
	cleaned = bracketPrefix.ReplaceAllString(cleaned, "")
	return strings.TrimSpace(cleaned)
}

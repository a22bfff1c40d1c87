package gateway

import (
	"context"

	"github.com/rs/zerolog"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Notifier is the fire-and-forget notification dispatcher invoked on
// terminal hiring transitions. Delivery failures must never roll back the
// state transition that triggered them, so implementations swallow errors
// after logging.
type Notifier interface {
	HiringCompleted(ctx context.Context, userID, hiringID string)
	HiringRejected(ctx context.Context, userID, hiringID string)
	RevisionRequested(ctx context.Context, userID, hiringID, notes string)
	PaymentRejected(ctx context.Context, userID, hiringID, reason string)
}

// LogNotifier dispatches notifications asynchronously and records them in
// the structured log. It stands in for the real email/push collaborator; the
// send path is a goroutine so the caller never blocks on delivery.
type LogNotifier struct {
	Log    zerolog.Logger
	Locale language.Tag
}

// NewLogNotifier builds a notifier writing to the given logger.
func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{Log: log, Locale: language.English}
}

// HiringCompleted implements Notifier.
func (n *LogNotifier) HiringCompleted(_ context.Context, userID, hiringID string) {
	n.dispatch(userID, hiringID, "hiring completed", "")
}

// HiringRejected implements Notifier.
func (n *LogNotifier) HiringRejected(_ context.Context, userID, hiringID string) {
	n.dispatch(userID, hiringID, "hiring rejected", "")
}

// RevisionRequested implements Notifier.
func (n *LogNotifier) RevisionRequested(_ context.Context, userID, hiringID, notes string) {
	n.dispatch(userID, hiringID, "revision requested", notes)
}

// PaymentRejected implements Notifier.
func (n *LogNotifier) PaymentRejected(_ context.Context, userID, hiringID, reason string) {
	n.dispatch(userID, hiringID, "payment rejected", reason)
}

func (n *LogNotifier) dispatch(userID, hiringID, event, detail string) {
	subject := cases.Title(n.Locale).String(event)
	go func() {
		n.Log.Info().
			Str("user_id", userID).
			Str("hiring_id", hiringID).
			Str("subject", subject).
			Str("detail", detail).
			Msg("notification dispatched")
	}()
}

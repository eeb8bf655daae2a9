package notify

import (
	"context"

	"github.com/rs/zerolog"
)

// LogNotifier writes notification requests to the log. Used in development
// where no message broker is available.
type LogNotifier struct {
	log zerolog.Logger
}

func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: log.With().Str("component", "notify").Logger()}
}

func (l *LogNotifier) Notify(_ context.Context, n Notification) error {
	l.log.Info().
		Str("notification_id", n.ID.String()).
		Str("kind", string(n.Kind)).
		Str("recipient", n.Recipient).
		Interface("payload", n.Payload).
		Msg("notification dispatched")
	return nil
}

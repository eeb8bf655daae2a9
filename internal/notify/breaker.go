package notify

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

// BreakerNotifier stops hammering a failing transport. While the breaker is
// open Notify fails fast with gobreaker.ErrOpenState.
type BreakerNotifier struct {
	next Notifier
	cb   *gobreaker.CircuitBreaker[struct{}]
}

func NewBreakerNotifier(next Notifier, log zerolog.Logger) *BreakerNotifier {
	settings := gobreaker.Settings{
		Name:        "notifier",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
		},
	}
	return &BreakerNotifier{next: next, cb: gobreaker.NewCircuitBreaker[struct{}](settings)}
}

func (b *BreakerNotifier) Notify(ctx context.Context, n Notification) error {
	_, err := b.cb.Execute(func() (struct{}, error) {
		return struct{}{}, b.next.Notify(ctx, n)
	})
	return err
}

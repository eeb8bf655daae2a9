// Package payment is the boundary to the payment processor. The engine only
// needs two calls: create an intent for the fee and confirm it.
package payment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

type IntentStatus string

const (
	IntentRequiresConfirmation IntentStatus = "requires_confirmation"
	IntentSucceeded            IntentStatus = "succeeded"
	IntentFailed               IntentStatus = "requires_payment_method"
)

var ErrIntentNotFound = errors.New("payment intent not found")

type Intent struct {
	ID          string
	AmountMinor int64
	Currency    string
	Reference   string
	Status      IntentStatus
}

type Gateway interface {
	CreateIntent(ctx context.Context, amountMinor int64, currency, reference string) (Intent, error)
	ConfirmIntent(ctx context.Context, intentID, methodID string) (Intent, error)
}

// DeclinedMethod is the sandbox payment method that always fails.
const DeclinedMethod = "pm_card_declined"

// SandboxGateway settles intents in memory. Every method except
// DeclinedMethod succeeds.
type SandboxGateway struct {
	mu      sync.Mutex
	intents map[string]Intent
}

func NewSandboxGateway() *SandboxGateway {
	return &SandboxGateway{intents: make(map[string]Intent)}
}

func (g *SandboxGateway) CreateIntent(_ context.Context, amountMinor int64, currency, reference string) (Intent, error) {
	if amountMinor < 0 {
		return Intent{}, fmt.Errorf("negative amount %d", amountMinor)
	}
	in := Intent{
		ID:          "pi_" + uuid.NewString(),
		AmountMinor: amountMinor,
		Currency:    currency,
		Reference:   reference,
		Status:      IntentRequiresConfirmation,
	}

	g.mu.Lock()
	g.intents[in.ID] = in
	g.mu.Unlock()
	return in, nil
}

func (g *SandboxGateway) ConfirmIntent(_ context.Context, intentID, methodID string) (Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	in, ok := g.intents[intentID]
	if !ok {
		return Intent{}, ErrIntentNotFound
	}
	if in.Status == IntentRequiresConfirmation {
		in.Status = IntentSucceeded
		if methodID == DeclinedMethod {
			in.Status = IntentFailed
		}
		g.intents[intentID] = in
	}
	return in, nil
}

// BreakerGateway fails fast while the processor is unhealthy.
type BreakerGateway struct {
	next Gateway
	cb   *gobreaker.CircuitBreaker[Intent]
}

func NewBreakerGateway(next Gateway, log zerolog.Logger) *BreakerGateway {
	settings := gobreaker.Settings{
		Name:        "payment-gateway",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     20 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 10 && float64(counts.TotalFailures)/float64(counts.Requests) >= 0.5
		},
		// a missing intent is a caller error, not gateway health
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrIntentNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
		},
	}
	return &BreakerGateway{next: next, cb: gobreaker.NewCircuitBreaker[Intent](settings)}
}

func (b *BreakerGateway) CreateIntent(ctx context.Context, amountMinor int64, currency, reference string) (Intent, error) {
	return b.cb.Execute(func() (Intent, error) {
		return b.next.CreateIntent(ctx, amountMinor, currency, reference)
	})
}

func (b *BreakerGateway) ConfirmIntent(ctx context.Context, intentID, methodID string) (Intent, error) {
	return b.cb.Execute(func() (Intent, error) {
		return b.next.ConfirmIntent(ctx, intentID, methodID)
	})
}

// Package notify delivers notification requests to the messaging collaborator.
// Rendering templates into email bodies happens downstream; this package only
// carries the recipient, the template kind and its payload fields.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/consultation-scheduling/internal/metrics"
)

// Kind names the mailer template. The values are part of the contract with
// the downstream mailer.
type Kind string

const (
	// Account kinds are emitted by the signup and password flows, which live
	// outside this module; the mailer serves them from the same topic.
	KindWelcome        Kind = "welcome"
	KindPasswordReset  Kind = "password-reset"
	KindConfirmation   Kind = "confirmation"
	KindCancellation   Kind = "cancellation"
	KindReminder       Kind = "reminder"
	KindMeetingLink    Kind = "meeting-link"
	KindReferralInvite Kind = "referral-invite"
)

type Notification struct {
	ID            uuid.UUID         `json:"id"`
	Kind          Kind              `json:"kind"`
	Recipient     string            `json:"recipient"`
	RecipientName string            `json:"recipient_name,omitempty"`
	Payload       map[string]string `json:"payload,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
}

// New stamps an id and creation time on a notification request.
func New(kind Kind, recipient, name string, payload map[string]string) Notification {
	return Notification{
		ID:            uuid.New(),
		Kind:          kind,
		Recipient:     recipient,
		RecipientName: name,
		Payload:       payload,
		CreatedAt:     time.Now().UTC(),
	}
}

type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

type instrumented struct {
	next    Notifier
	metrics *metrics.Collector
}

// Instrumented counts delivery outcomes per kind.
func Instrumented(next Notifier, m *metrics.Collector) Notifier {
	return &instrumented{next: next, metrics: m}
}

func (i *instrumented) Notify(ctx context.Context, n Notification) error {
	err := i.next.Notify(ctx, n)
	result := "sent"
	if err != nil {
		result = "failed"
	}
	i.metrics.Notification(string(n.Kind), result)
	return err
}

// Recorder keeps every notification in memory.
type Recorder struct {
	mu   sync.Mutex
	sent []Notification
	Err  error
}

func (r *Recorder) Notify(_ context.Context, n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.sent = append(r.sent, n)
	return nil
}

func (r *Recorder) Sent() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notification, len(r.sent))
	copy(out, r.sent)
	return out
}

func (r *Recorder) OfKind(kind Kind) []Notification {
	var out []Notification
	for _, n := range r.Sent() {
		if n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}

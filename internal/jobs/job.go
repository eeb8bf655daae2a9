// Package jobs is a durable deferred-job queue. Jobs are rows keyed by a
// deterministic key, claimed with a lease by any number of workers and
// retried with linear backoff.
package jobs

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	KindSendReminder    Kind = "send-reminder"
	KindSendMeetingLink Kind = "send-meeting-link"
	KindMarkCompleted   Kind = "mark-completed"
	KindDailySweep      Kind = "daily-sweep"
)

type State string

const (
	StatePending State = "pending"
	StateRunning State = "running"
	StateDone    State = "done"
	StateFailed  State = "failed"
)

var (
	ErrJobNotFound = errors.New("job not found")

	// ErrPermanent marks a handler failure that must not be retried.
	ErrPermanent = errors.New("permanent job failure")
)

// Permanent wraps err so the scheduler fails the job without retrying.
func Permanent(err error) error {
	return fmt.Errorf("%w: %v", ErrPermanent, err)
}

type Job struct {
	ID          uuid.UUID
	Key         string
	Kind        Kind
	FireAt      time.Time
	Payload     json.RawMessage
	State       State
	Attempts    int
	LastError   *string
	LockedUntil *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Key builds the deduplication key of a job: "<kind>:<subject>".
func Key(kind Kind, subject string) string {
	return string(kind) + ":" + subject
}

// NewJob builds a pending job. Registering the same kind and subject twice
// yields the same key, so the second enqueue is a no-op.
func NewJob(kind Kind, subject string, fireAt time.Time, payload any) (Job, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Job{}, fmt.Errorf("marshal %s payload: %w", kind, err)
	}
	return Job{
		ID:      uuid.New(),
		Key:     Key(kind, subject),
		Kind:    kind,
		FireAt:  fireAt,
		Payload: data,
		State:   StatePending,
	}, nil
}

// Subject is the part of the key after the kind, usually an appointment id.
func (j Job) Subject() string {
	return strings.TrimPrefix(j.Key, string(j.Kind)+":")
}

// Decode unmarshals the payload into v. A malformed payload is permanent.
func (j Job) Decode(v any) error {
	if err := json.Unmarshal(j.Payload, v); err != nil {
		return Permanent(fmt.Errorf("decode %s payload: %w", j.Kind, err))
	}
	return nil
}

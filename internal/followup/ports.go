// Package followup implements the escalation engine: the scheduler that
// owns the timeline of pending follow-up steps per lead, and the executor
// that re-validates state when a step becomes due. Cancellation is soft:
// a generation counter bump invalidates outstanding steps instead of
// revoking them from the delay queue.
package followup

import (
	"context"
	"time"

	"github.com/VentilardorArnor/Avantti-Vitor/internal/conversation/repository"

	"github.com/google/uuid"
)

// Step is one scheduled future escalation action. Steps are immutable
// after creation; advancing to the next tier creates a new step.
type Step struct {
	LeadID     uuid.UUID `json:"leadId"`
	Generation int64     `json:"generation"`
	StepIndex  int       `json:"stepIndex"`
	DueAt      time.Time `json:"dueAt"`
	EnqueuedAt time.Time `json:"enqueuedAt"`
}

// ConversationStore is the slice of the conversation store the engine
// needs. Satisfied by conversation/repository implementations.
type ConversationStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (repository.Conversation, error)
	BeginEscalation(ctx context.Context, id uuid.UUID) (generation int64, started bool, err error)
	CancelEscalation(ctx context.Context, id uuid.UUID) (generation int64, cancelled bool, err error)
	EndEscalation(ctx context.Context, id uuid.UUID, generation int64) (bool, error)
	AddActivity(ctx context.Context, id uuid.UUID, kind string, metadata map[string]interface{}) error
}

// DelayQueue schedules a step for execution at a future time. There is
// deliberately no cancellation method: cancellation happens by generation
// bump, and every consumer re-validates at fire time.
type DelayQueue interface {
	ScheduleAt(ctx context.Context, step Step, at time.Time) error
}

// MessageDelivery is the outbound message port. Send may fail transiently.
type MessageDelivery interface {
	SendMessage(ctx context.Context, phone string, message string) error
}

// SendGuard enforces at-most-once delivery per (lead, generation, step)
// across processes. Acquire returns false when another executor already
// claimed the step.
type SendGuard interface {
	Acquire(ctx context.Context, step Step) (bool, error)
}

// Clock is the injected time source, for deterministic tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// NewClock returns the wall clock.
func NewClock() Clock { return systemClock{} }

package repository

import (
	"context"
	"errors"
	"time"

	"github.com/VentilardorArnor/Avantti-Vitor/internal/qualification"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a conversation does not exist.
// Conversations are created lazily on first inbound activity, never on read.
var ErrNotFound = errors.New("conversation not found")

// Conversation is the authoritative per-lead record.
type Conversation struct {
	ID                   uuid.UUID
	Phone                string
	Qualification        qualification.Values
	LastInboundAt        *time.Time
	EscalationGeneration int64
	EscalationActive     bool
	HandoffRequested     bool
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// QualificationView returns the permission-check view of this conversation.
func (c Conversation) QualificationView() qualification.View {
	return qualification.View{
		State:            c.Qualification.State(),
		Missing:          c.Qualification.Missing(),
		HandoffRequested: c.HandoffRequested,
	}
}

// Store is the persistence interface for conversations. Every method is
// atomic on its own: the conditional updates (SetLastInbound,
// BeginEscalation, CancelEscalation, EndEscalation) commit their check and
// their write in one statement so concurrent writers cannot interleave
// between them.
type Store interface {
	// GetByID returns a snapshot, ErrNotFound when absent.
	GetByID(ctx context.Context, id uuid.UUID) (Conversation, error)

	// GetByPhone returns a snapshot by normalized phone number.
	GetByPhone(ctx context.Context, phone string) (Conversation, error)

	// CreateIfAbsent lazily creates the conversation record for a phone
	// number. The second return value reports whether a new record was
	// created.
	CreateIfAbsent(ctx context.Context, phone string) (Conversation, bool, error)

	// SetLastInbound advances last_inbound_at. It is a no-op (returns
	// false) when at is not later than the stored value.
	SetLastInbound(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)

	// SetQualificationField sets one qualification field and returns the
	// updated snapshot.
	SetQualificationField(ctx context.Context, id uuid.UUID, field qualification.Field, value string) (Conversation, error)

	// SetHandoff sets or clears the handoff flag.
	SetHandoff(ctx context.Context, id uuid.UUID, requested bool) error

	// BeginEscalation marks the escalation sequence active and returns the
	// current generation. started is false when a sequence is already
	// active.
	BeginEscalation(ctx context.Context, id uuid.UUID) (generation int64, started bool, err error)

	// CancelEscalation bumps the generation and clears the active flag.
	// cancelled is false when no sequence was active. The bump and the
	// flag clear commit together.
	CancelEscalation(ctx context.Context, id uuid.UUID) (generation int64, cancelled bool, err error)

	// EndEscalation clears the active flag without bumping the generation,
	// only when the given generation is still current. Used when the
	// ladder is exhausted.
	EndEscalation(ctx context.Context, id uuid.UUID, generation int64) (bool, error)

	// AddActivity appends a timeline entry for the conversation.
	AddActivity(ctx context.Context, id uuid.UUID, kind string, metadata map[string]interface{}) error
}

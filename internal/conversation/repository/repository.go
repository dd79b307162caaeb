package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/VentilardorArnor/Avantti-Vitor/internal/qualification"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository is the PostgreSQL-backed conversation store.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a new conversation repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const conversationColumns = `
	id, phone, purpose, timing, profile, last_inbound_at,
	escalation_generation, escalation_active, handoff_requested,
	created_at, updated_at
`

func scanConversation(row pgx.Row) (Conversation, error) {
	var c Conversation
	err := row.Scan(
		&c.ID, &c.Phone,
		&c.Qualification.Purpose, &c.Qualification.Timing, &c.Qualification.Profile,
		&c.LastInboundAt,
		&c.EscalationGeneration, &c.EscalationActive, &c.HandoffRequested,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Conversation{}, ErrNotFound
	}
	if err != nil {
		return Conversation{}, err
	}
	return c, nil
}

// GetByID returns a conversation snapshot.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (Conversation, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations
		WHERE id = $1
	`, id)
	return scanConversation(row)
}

// GetByPhone returns a conversation snapshot by normalized phone number.
func (r *Repository) GetByPhone(ctx context.Context, phone string) (Conversation, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations
		WHERE phone = $1
	`, phone)
	return scanConversation(row)
}

// CreateIfAbsent lazily creates a conversation record for a phone number.
func (r *Repository) CreateIfAbsent(ctx context.Context, phone string) (Conversation, bool, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO conversations (id, phone)
		VALUES ($1, $2)
		ON CONFLICT (phone) DO NOTHING
		RETURNING `+conversationColumns+`
	`, uuid.New(), phone)

	c, err := scanConversation(row)
	if err == nil {
		return c, true, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Conversation{}, false, err
	}

	// Conflict path: the record already exists.
	c, err = r.GetByPhone(ctx, phone)
	if err != nil {
		return Conversation{}, false, err
	}
	return c, false, nil
}

// SetLastInbound advances last_inbound_at, no-op for stale timestamps.
func (r *Repository) SetLastInbound(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE conversations
		SET last_inbound_at = $2, updated_at = now()
		WHERE id = $1 AND (last_inbound_at IS NULL OR last_inbound_at < $2)
	`, id, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// SetQualificationField sets one qualification field.
func (r *Repository) SetQualificationField(ctx context.Context, id uuid.UUID, field qualification.Field, value string) (Conversation, error) {
	var column string
	switch field {
	case qualification.FieldPurpose:
		column = "purpose"
	case qualification.FieldTiming:
		column = "timing"
	case qualification.FieldProfile:
		column = "profile"
	default:
		return Conversation{}, qualification.ErrUnknownField
	}

	row := r.pool.QueryRow(ctx, fmt.Sprintf(`
		UPDATE conversations
		SET %s = $2, updated_at = now()
		WHERE id = $1
		RETURNING `+conversationColumns, column), id, value)
	return scanConversation(row)
}

// SetHandoff sets or clears the handoff flag.
func (r *Repository) SetHandoff(ctx context.Context, id uuid.UUID, requested bool) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE conversations
		SET handoff_requested = $2, updated_at = now()
		WHERE id = $1
	`, id, requested)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// BeginEscalation marks the sequence active and returns the generation it
// runs under.
func (r *Repository) BeginEscalation(ctx context.Context, id uuid.UUID) (int64, bool, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE conversations
		SET escalation_active = true, updated_at = now()
		WHERE id = $1 AND escalation_active = false
		RETURNING escalation_generation
	`, id)

	var generation int64
	err := row.Scan(&generation)
	if err == nil {
		return generation, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, false, err
	}

	// Either the conversation is missing or a sequence is already active.
	if _, getErr := r.GetByID(ctx, id); getErr != nil {
		return 0, false, getErr
	}
	return 0, false, nil
}

// CancelEscalation bumps the generation and deactivates the sequence in a
// single statement, so an in-flight step observes either the old state or
// the fully cancelled one.
func (r *Repository) CancelEscalation(ctx context.Context, id uuid.UUID) (int64, bool, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE conversations
		SET escalation_generation = escalation_generation + 1,
		    escalation_active = false,
		    updated_at = now()
		WHERE id = $1 AND escalation_active = true
		RETURNING escalation_generation
	`, id)

	var generation int64
	err := row.Scan(&generation)
	if err == nil {
		return generation, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, false, err
	}

	if _, getErr := r.GetByID(ctx, id); getErr != nil {
		return 0, false, getErr
	}
	return 0, false, nil
}

// EndEscalation clears the active flag when the given generation is still
// current (ladder exhausted without cancellation).
func (r *Repository) EndEscalation(ctx context.Context, id uuid.UUID, generation int64) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE conversations
		SET escalation_active = false, updated_at = now()
		WHERE id = $1 AND escalation_active = true AND escalation_generation = $2
	`, id, generation)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// AddActivity appends a timeline entry.
func (r *Repository) AddActivity(ctx context.Context, id uuid.UUID, kind string, metadata map[string]interface{}) error {
	var data []byte
	if metadata != nil {
		var err error
		data, err = json.Marshal(metadata)
		if err != nil {
			return err
		}
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO conversation_activities (id, conversation_id, kind, metadata)
		VALUES ($1, $2, $3, $4)
	`, uuid.New(), id, kind, data)
	return err
}

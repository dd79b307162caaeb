package repository

import (
	"context"
	"sync"
	"time"

	"github.com/VentilardorArnor/Avantti-Vitor/internal/qualification"

	"github.com/google/uuid"
)

// Memory is an in-memory Store used by tests and local development.
// It mirrors the conditional-update semantics of the PostgreSQL store.
type Memory struct {
	mu         sync.Mutex
	byID       map[uuid.UUID]*Conversation
	byPhone    map[string]uuid.UUID
	Activities map[uuid.UUID][]Activity
	now        func() time.Time
}

// Activity is a recorded timeline entry.
type Activity struct {
	Kind     string
	Metadata map[string]interface{}
	At       time.Time
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		byID:       make(map[uuid.UUID]*Conversation),
		byPhone:    make(map[string]uuid.UUID),
		Activities: make(map[uuid.UUID][]Activity),
		now:        time.Now,
	}
}

// SetNowFunc overrides the wall clock, for tests.
func (m *Memory) SetNowFunc(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// GetByID returns a snapshot.
func (m *Memory) GetByID(_ context.Context, id uuid.UUID) (Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.byID[id]
	if !ok {
		return Conversation{}, ErrNotFound
	}
	return *c, nil
}

// GetByPhone returns a snapshot by phone number.
func (m *Memory) GetByPhone(_ context.Context, phone string) (Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.byPhone[phone]
	if !ok {
		return Conversation{}, ErrNotFound
	}
	return *m.byID[id], nil
}

// CreateIfAbsent lazily creates a conversation for a phone number.
func (m *Memory) CreateIfAbsent(_ context.Context, phone string) (Conversation, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.byPhone[phone]; ok {
		return *m.byID[id], false, nil
	}

	now := m.now()
	c := &Conversation{
		ID:        uuid.New(),
		Phone:     phone,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.byID[c.ID] = c
	m.byPhone[phone] = c.ID
	return *c, true, nil
}

// SetLastInbound advances last_inbound_at, no-op for stale timestamps.
func (m *Memory) SetLastInbound(_ context.Context, id uuid.UUID, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.byID[id]
	if !ok {
		return false, ErrNotFound
	}
	if c.LastInboundAt != nil && !c.LastInboundAt.Before(at) {
		return false, nil
	}
	t := at
	c.LastInboundAt = &t
	c.UpdatedAt = m.now()
	return true, nil
}

// SetQualificationField sets one qualification field.
func (m *Memory) SetQualificationField(_ context.Context, id uuid.UUID, field qualification.Field, value string) (Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.byID[id]
	if !ok {
		return Conversation{}, ErrNotFound
	}

	v := value
	switch field {
	case qualification.FieldPurpose:
		c.Qualification.Purpose = &v
	case qualification.FieldTiming:
		c.Qualification.Timing = &v
	case qualification.FieldProfile:
		c.Qualification.Profile = &v
	default:
		return Conversation{}, qualification.ErrUnknownField
	}
	c.UpdatedAt = m.now()
	return *c, nil
}

// SetHandoff sets or clears the handoff flag.
func (m *Memory) SetHandoff(_ context.Context, id uuid.UUID, requested bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	c.HandoffRequested = requested
	c.UpdatedAt = m.now()
	return nil
}

// BeginEscalation marks the sequence active.
func (m *Memory) BeginEscalation(_ context.Context, id uuid.UUID) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.byID[id]
	if !ok {
		return 0, false, ErrNotFound
	}
	if c.EscalationActive {
		return 0, false, nil
	}
	c.EscalationActive = true
	c.UpdatedAt = m.now()
	return c.EscalationGeneration, true, nil
}

// CancelEscalation bumps the generation and deactivates the sequence.
func (m *Memory) CancelEscalation(_ context.Context, id uuid.UUID) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.byID[id]
	if !ok {
		return 0, false, ErrNotFound
	}
	if !c.EscalationActive {
		return 0, false, nil
	}
	c.EscalationGeneration++
	c.EscalationActive = false
	c.UpdatedAt = m.now()
	return c.EscalationGeneration, true, nil
}

// EndEscalation clears the active flag when the generation still matches.
func (m *Memory) EndEscalation(_ context.Context, id uuid.UUID, generation int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.byID[id]
	if !ok {
		return false, ErrNotFound
	}
	if !c.EscalationActive || c.EscalationGeneration != generation {
		return false, nil
	}
	c.EscalationActive = false
	c.UpdatedAt = m.now()
	return true, nil
}

// AddActivity appends a timeline entry.
func (m *Memory) AddActivity(_ context.Context, id uuid.UUID, kind string, metadata map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byID[id]; !ok {
		return ErrNotFound
	}
	m.Activities[id] = append(m.Activities[id], Activity{Kind: kind, Metadata: metadata, At: m.now()})
	return nil
}

// Package conversation owns the authoritative per-lead state: qualification
// values, inbound activity, and the handoff flag. All mutations are
// serialized per lead through LeadLocks; external port calls never happen
// while the lock is held.
package conversation

import (
	"context"
	"sync"
	"time"

	"github.com/VentilardorArnor/Avantti-Vitor/internal/conversation/repository"
	"github.com/VentilardorArnor/Avantti-Vitor/internal/events"
	"github.com/VentilardorArnor/Avantti-Vitor/internal/qualification"
	"github.com/VentilardorArnor/Avantti-Vitor/platform/logger"
	"github.com/VentilardorArnor/Avantti-Vitor/platform/phone"

	"github.com/google/uuid"
)

// Canceller cancels an active escalation sequence for a lead. Satisfied by
// followup.Scheduler, which is the only component allowed to advance the
// escalation generation.
type Canceller interface {
	Cancel(ctx context.Context, leadID uuid.UUID) error
}

// Completeness reports the qualification state after an update.
type Completeness struct {
	State   qualification.State
	Missing []qualification.Field
}

// Service is the conversation state store facade.
type Service struct {
	store repository.Store
	locks *LeadLocks
	bus   events.Bus
	log   *logger.Logger

	mu         sync.RWMutex
	escalation Canceller
}

// New creates the conversation service.
func New(store repository.Store, locks *LeadLocks, bus events.Bus, log *logger.Logger) *Service {
	return &Service{store: store, locks: locks, bus: bus, log: log}
}

// SetEscalationCanceller injects the scheduler after module initialization.
// Needed because the scheduler and this service reference each other.
func (s *Service) SetEscalationCanceller(c Canceller) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.escalation = c
}

func (s *Service) canceller() Canceller {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.escalation
}

// RecordInboundActivity records a message from the lead. The conversation
// record is created lazily on first activity. Repeated calls with the same
// or an earlier timestamp are no-ops. When an escalation sequence is
// active it is cancelled, which invalidates every outstanding step.
func (s *Service) RecordInboundActivity(ctx context.Context, rawPhone string, at time.Time) (repository.Conversation, error) {
	normalized := phone.NormalizeE164(rawPhone)

	conv, created, err := s.store.CreateIfAbsent(ctx, normalized)
	if err != nil {
		return repository.Conversation{}, err
	}
	if created {
		s.log.Info("conversation created", "lead_id", conv.ID, "phone", normalized)
	}

	unlock := s.locks.Lock(conv.ID)
	updated, err := s.store.SetLastInbound(ctx, conv.ID, at)
	if err != nil {
		unlock()
		return repository.Conversation{}, err
	}
	snap, err := s.store.GetByID(ctx, conv.ID)
	unlock()
	if err != nil {
		return repository.Conversation{}, err
	}

	if !updated {
		return snap, nil
	}

	_ = s.store.AddActivity(ctx, conv.ID, "inbound_received", map[string]interface{}{
		"at": at,
	})

	if snap.EscalationActive {
		if c := s.canceller(); c != nil {
			if err := c.Cancel(ctx, conv.ID); err != nil {
				s.log.Error("escalation cancel on inbound failed", "error", err, "lead_id", conv.ID)
			}
		}
	}

	s.bus.Publish(ctx, events.InboundMessageReceived{
		BaseEvent:  events.NewBaseEvent(),
		LeadID:     conv.ID,
		Phone:      normalized,
		ReceivedAt: at,
	})

	return s.store.GetByID(ctx, conv.ID)
}

// UpdateQualification applies one or more qualification field updates.
// Field names are validated up front; an unknown name rejects the whole
// batch with qualification.ErrUnknownField. Fields are applied in the
// canonical order (purpose, timing, profile) so completeness transitions
// are deterministic.
func (s *Service) UpdateQualification(ctx context.Context, leadID uuid.UUID, updates map[string]string) (Completeness, error) {
	parsed := make(map[qualification.Field]string, len(updates))
	for name, value := range updates {
		field, err := qualification.ParseField(name)
		if err != nil {
			return Completeness{}, err
		}
		parsed[field] = value
	}

	unlock := s.locks.Lock(leadID)
	conv, err := s.store.GetByID(ctx, leadID)
	if err != nil {
		unlock()
		return Completeness{}, err
	}
	wasComplete := conv.Qualification.IsComplete()

	for _, field := range qualification.CanonicalOrder {
		value, ok := parsed[field]
		if !ok {
			continue
		}
		conv, err = s.store.SetQualificationField(ctx, leadID, field, value)
		if err != nil {
			unlock()
			return Completeness{}, err
		}
	}
	unlock()

	if !wasComplete && conv.Qualification.IsComplete() {
		_ = s.store.AddActivity(ctx, leadID, "qualified", nil)
		s.bus.Publish(ctx, events.LeadQualified{
			BaseEvent: events.NewBaseEvent(),
			LeadID:    leadID,
		})
	}

	return Completeness{
		State:   conv.Qualification.State(),
		Missing: conv.Qualification.Missing(),
	}, nil
}

// RequestHandoff marks the conversation as human-handled. Automated sends
// are suppressed from this point on and any active escalation is
// cancelled.
func (s *Service) RequestHandoff(ctx context.Context, leadID uuid.UUID) error {
	unlock := s.locks.Lock(leadID)
	if err := s.store.SetHandoff(ctx, leadID, true); err != nil {
		unlock()
		return err
	}
	snap, err := s.store.GetByID(ctx, leadID)
	unlock()
	if err != nil {
		return err
	}

	_ = s.store.AddActivity(ctx, leadID, "handoff_requested", nil)

	if snap.EscalationActive {
		if c := s.canceller(); c != nil {
			if err := c.Cancel(ctx, leadID); err != nil {
				s.log.Error("escalation cancel on handoff failed", "error", err, "lead_id", leadID)
			}
		}
	}

	s.bus.Publish(ctx, events.HandoffRequested{
		BaseEvent: events.NewBaseEvent(),
		LeadID:    leadID,
	})

	return nil
}

// ClearHandoff re-enables automated actions for the conversation. It does
// not resurrect a cancelled escalation; a fresh start is required.
func (s *Service) ClearHandoff(ctx context.Context, leadID uuid.UUID) error {
	unlock := s.locks.Lock(leadID)
	err := s.store.SetHandoff(ctx, leadID, false)
	unlock()
	if err != nil {
		return err
	}

	_ = s.store.AddActivity(ctx, leadID, "handoff_cleared", nil)
	return nil
}

// Get returns a point-in-time snapshot of the conversation.
func (s *Service) Get(ctx context.Context, leadID uuid.UUID) (repository.Conversation, error) {
	return s.store.GetByID(ctx, leadID)
}

// GetByPhone returns a snapshot by normalized phone number.
func (s *Service) GetByPhone(ctx context.Context, rawPhone string) (repository.Conversation, error) {
	return s.store.GetByPhone(ctx, phone.NormalizeE164(rawPhone))
}

// LogActivity appends a timeline entry for the conversation.
func (s *Service) LogActivity(ctx context.Context, leadID uuid.UUID, kind string, metadata map[string]interface{}) {
	if err := s.store.AddActivity(ctx, leadID, kind, metadata); err != nil {
		s.log.Error("activity log write failed", "error", err, "lead_id", leadID, "kind", kind)
	}
}

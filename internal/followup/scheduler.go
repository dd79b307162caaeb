package followup

import (
	"context"
	"errors"

	"github.com/VentilardorArnor/Avantti-Vitor/internal/conversation"
	"github.com/VentilardorArnor/Avantti-Vitor/internal/conversation/repository"
	"github.com/VentilardorArnor/Avantti-Vitor/internal/events"
	"github.com/VentilardorArnor/Avantti-Vitor/platform/logger"
	"github.com/VentilardorArnor/Avantti-Vitor/platform/metrics"

	"github.com/google/uuid"
)

// ErrAlreadyActive is returned by Start when an escalation sequence is
// already in progress for the lead. Duplicate starts are a caller bug and
// are surfaced, not swallowed.
var ErrAlreadyActive = errors.New("escalation already active for lead")

// Scheduler owns the escalation timeline. It is the only component that
// begins, ends, or cancels a sequence, and cancellation is the only path
// that advances the generation counter.
type Scheduler struct {
	store   ConversationStore
	locks   *conversation.LeadLocks
	queue   DelayQueue
	ladder  Ladder
	clock   Clock
	bus     events.Bus
	log     *logger.Logger
	metrics *metrics.Metrics
}

// NewScheduler creates the escalation scheduler. metrics may be nil.
func NewScheduler(store ConversationStore, locks *conversation.LeadLocks, queue DelayQueue, ladder Ladder, clock Clock, bus events.Bus, log *logger.Logger, m *metrics.Metrics) *Scheduler {
	return &Scheduler{
		store:   store,
		locks:   locks,
		queue:   queue,
		ladder:  ladder,
		clock:   clock,
		bus:     bus,
		log:     log,
		metrics: m,
	}
}

// Start begins the escalation sequence for a lead: captures the current
// generation and schedules tier 0. Returns ErrAlreadyActive when a
// sequence is already running.
func (s *Scheduler) Start(ctx context.Context, leadID uuid.UUID) error {
	unlock := s.locks.Lock(leadID)
	generation, started, err := s.store.BeginEscalation(ctx, leadID)
	unlock()
	if err != nil {
		return err
	}
	if !started {
		return ErrAlreadyActive
	}

	now := s.clock.Now()
	step := Step{
		LeadID:     leadID,
		Generation: generation,
		StepIndex:  0,
		DueAt:      now.Add(s.ladder.Tiers[0].Delay),
		EnqueuedAt: now,
	}

	if err := s.queue.ScheduleAt(ctx, step, step.DueAt); err != nil {
		// Roll back the active flag so a later start can succeed. The
		// generation bump also invalidates the step in case it was
		// enqueued after all.
		unlock := s.locks.Lock(leadID)
		_, _, _ = s.store.CancelEscalation(ctx, leadID)
		unlock()
		return err
	}

	if s.metrics != nil {
		s.metrics.EscalationsStarted.Inc()
	}
	s.log.EscalationEvent("escalation_started", leadID.String(), generation, 0)
	_ = s.store.AddActivity(ctx, leadID, "escalation_started", map[string]interface{}{
		"generation": generation,
	})

	return nil
}

// Cancel stops the active sequence by bumping the generation, so every
// outstanding step becomes stale. A no-op when no sequence is active.
// This is the single cancellation point used by the inbound-activity and
// handoff triggers.
func (s *Scheduler) Cancel(ctx context.Context, leadID uuid.UUID) error {
	unlock := s.locks.Lock(leadID)
	generation, cancelled, err := s.store.CancelEscalation(ctx, leadID)
	unlock()
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return err
	}
	if !cancelled {
		return nil
	}

	if s.metrics != nil {
		s.metrics.EscalationsCancelled.Inc()
	}
	s.log.EscalationEvent("escalation_cancelled", leadID.String(), generation, -1)
	_ = s.store.AddActivity(ctx, leadID, "escalation_cancelled", map[string]interface{}{
		"generation": generation,
	})

	s.bus.Publish(ctx, events.EscalationCancelled{
		BaseEvent:  events.NewBaseEvent(),
		LeadID:     leadID,
		Generation: generation,
	})

	return nil
}

// Advance is called by the executor after a tier fires. It no-ops
// silently when the generation is stale. On the final tier it ends the
// sequence; otherwise it schedules the next step under the same
// generation, measured from now rather than cumulatively from the start.
func (s *Scheduler) Advance(ctx context.Context, leadID uuid.UUID, completedStepIndex int, generation int64) error {
	unlock := s.locks.Lock(leadID)
	conv, err := s.store.GetByID(ctx, leadID)
	if err != nil {
		unlock()
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return err
	}

	if conv.EscalationGeneration != generation || !conv.EscalationActive {
		unlock()
		return nil
	}

	if completedStepIndex >= s.ladder.LastIndex() {
		_, err := s.store.EndEscalation(ctx, leadID, generation)
		unlock()
		if err != nil {
			return err
		}
		s.log.EscalationEvent("escalation_completed", leadID.String(), generation, completedStepIndex)
		return nil
	}
	unlock()

	next := completedStepIndex + 1
	now := s.clock.Now()
	step := Step{
		LeadID:     leadID,
		Generation: generation,
		StepIndex:  next,
		DueAt:      now.Add(s.ladder.Tiers[next].Delay),
		EnqueuedAt: now,
	}

	if err := s.queue.ScheduleAt(ctx, step, step.DueAt); err != nil {
		return err
	}

	s.log.EscalationEvent("escalation_advanced", leadID.String(), generation, next)
	return nil
}

package followup

import (
	"context"
	"errors"
	"time"

	"github.com/VentilardorArnor/Avantti-Vitor/internal/conversation"
	"github.com/VentilardorArnor/Avantti-Vitor/internal/conversation/repository"
	"github.com/VentilardorArnor/Avantti-Vitor/internal/events"
	"github.com/VentilardorArnor/Avantti-Vitor/platform/logger"
	"github.com/VentilardorArnor/Avantti-Vitor/platform/metrics"
)

const (
	deliveryAttempts      = 3
	deliveryBackoffBase   = 2 * time.Second
	defaultAttemptTimeout = 10 * time.Second
)

// Executor fires escalation steps when they become due. It holds no state
// of its own: every decision is a function of the step and the current
// conversation snapshot, re-read under the per-lead lock immediately
// before the send decision.
type Executor struct {
	store          ConversationStore
	locks          *conversation.LeadLocks
	scheduler      *Scheduler
	delivery       MessageDelivery
	guard          SendGuard
	ladder         Ladder
	clock          Clock
	bus            events.Bus
	log            *logger.Logger
	metrics        *metrics.Metrics
	attemptTimeout time.Duration
	backoff        time.Duration
}

// NewExecutor creates the step executor. metrics may be nil;
// attemptTimeout <= 0 falls back to the default.
func NewExecutor(store ConversationStore, locks *conversation.LeadLocks, scheduler *Scheduler, delivery MessageDelivery, guard SendGuard, ladder Ladder, clock Clock, bus events.Bus, log *logger.Logger, m *metrics.Metrics, attemptTimeout time.Duration) *Executor {
	if attemptTimeout <= 0 {
		attemptTimeout = defaultAttemptTimeout
	}
	return &Executor{
		store:          store,
		locks:          locks,
		scheduler:      scheduler,
		delivery:       delivery,
		guard:          guard,
		ladder:         ladder,
		clock:          clock,
		bus:            bus,
		log:            log,
		metrics:        m,
		attemptTimeout: attemptTimeout,
		backoff:        deliveryBackoffBase,
	}
}

// Execute processes one due step. A nil return means the step is consumed
// (fired, skipped, or discarded as stale); a non-nil return asks the delay
// queue to redeliver.
func (e *Executor) Execute(ctx context.Context, step Step) error {
	if step.StepIndex < 0 || step.StepIndex >= e.ladder.Len() {
		e.log.Warn("step index out of range, dropping", "lead_id", step.LeadID, "step_index", step.StepIndex)
		return nil
	}

	// Re-read state after acquiring the lock, never from an earlier
	// snapshot, so a cancellation that committed first is always visible.
	unlock := e.locks.Lock(step.LeadID)
	conv, err := e.store.GetByID(ctx, step.LeadID)
	unlock()
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return err
	}

	if conv.EscalationGeneration != step.Generation {
		// Expected under normal cancellation, not an error.
		e.discard("stale")
		return nil
	}

	if conv.HandoffRequested {
		e.discard("handoff")
		e.log.EscalationEvent("step_suppressed_handoff", step.LeadID.String(), step.Generation, step.StepIndex)
		return nil
	}

	if conv.LastInboundAt != nil && conv.LastInboundAt.After(step.EnqueuedAt) {
		// The lead replied after this step was scheduled. Cancellation
		// should already have fired; this re-check closes the window.
		e.discard("replied")
		return nil
	}

	acquired, err := e.guard.Acquire(ctx, step)
	if err != nil {
		return err
	}
	if !acquired {
		// A held guard key means a prior delivery of this step already sent
		// the message. That delivery may have died before scheduling the
		// next tier, so advance again here; Advance is idempotent for a
		// given (generation, stepIndex) because the successor step is
		// deduped by its own guard key and gated by the generation check.
		e.discard("duplicate")
		return e.scheduler.Advance(ctx, step.LeadID, step.StepIndex, step.Generation)
	}

	tier := e.ladder.Tiers[step.StepIndex]
	if err := e.deliver(ctx, step, conv.Phone, tier.Message); err != nil {
		// Delivery exhausted its retries. Skip this tier but keep the
		// cadence going rather than stalling the ladder.
		if e.metrics != nil {
			e.metrics.DeliveryFailures.Inc()
		}
		e.log.Error("tier delivery failed, skipping tier",
			"lead_id", step.LeadID, "step_index", step.StepIndex, "error", err)
		return e.scheduler.Advance(ctx, step.LeadID, step.StepIndex, step.Generation)
	}

	if e.metrics != nil {
		e.metrics.FollowupMessagesSent.WithLabelValues(tierLabel(step.StepIndex)).Inc()
	}
	e.log.EscalationEvent("step_fired", step.LeadID.String(), step.Generation, step.StepIndex)
	_ = e.store.AddActivity(ctx, step.LeadID, "followup_sent", map[string]interface{}{
		"generation": step.Generation,
		"stepIndex":  step.StepIndex,
	})

	e.bus.Publish(ctx, events.FollowupMessageSent{
		BaseEvent:  events.NewBaseEvent(),
		LeadID:     step.LeadID,
		Generation: step.Generation,
		StepIndex:  step.StepIndex,
	})

	return e.scheduler.Advance(ctx, step.LeadID, step.StepIndex, step.Generation)
}

// deliver sends the message with bounded retry and a short per-attempt
// timeout, independent of the tier delay.
func (e *Executor) deliver(ctx context.Context, step Step, phone, message string) error {
	start := e.clock.Now()
	var lastErr error

	for attempt := 1; attempt <= deliveryAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, e.attemptTimeout)
		err := e.delivery.SendMessage(attemptCtx, phone, message)
		cancel()

		if err == nil {
			if e.metrics != nil {
				e.metrics.DeliveryDuration.Observe(e.clock.Now().Sub(start).Seconds())
			}
			return nil
		}

		lastErr = err
		e.log.DeliveryFailure(step.LeadID.String(), attempt, err)

		if attempt < deliveryAttempts {
			select {
			case <-time.After(time.Duration(attempt) * e.backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	return lastErr
}

func (e *Executor) discard(reason string) {
	if e.metrics != nil {
		e.metrics.FollowupStepsDiscarded.WithLabelValues(reason).Inc()
	}
}

func tierLabel(index int) string {
	switch index {
	case 0:
		return "short"
	case 1:
		return "medium"
	case 2:
		return "long"
	default:
		return "unknown"
	}
}

package followup

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/VentilardorArnor/Avantti-Vitor/internal/events"
	"github.com/VentilardorArnor/Avantti-Vitor/platform/logger"
)

type sentMessage struct {
	phone   string
	message string
}

type fakeDelivery struct {
	mu       sync.Mutex
	sent     []sentMessage
	failures int // fail this many calls before succeeding
	calls    int
}

func (d *fakeDelivery) SendMessage(_ context.Context, phone, message string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.calls <= d.failures {
		return errors.New("gateway timeout")
	}
	d.sent = append(d.sent, sentMessage{phone: phone, message: message})
	return nil
}

func (d *fakeDelivery) messages() []sentMessage {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]sentMessage, len(d.sent))
	copy(out, d.sent)
	return out
}

type executorFixture struct {
	*schedulerFixture
	executor *Executor
	delivery *fakeDelivery
	guard    *MemoryGuard
}

func newExecutorFixture(t *testing.T) *executorFixture {
	t.Helper()

	sf := newSchedulerFixture(t)
	log := logger.New("test")
	delivery := &fakeDelivery{}
	guard := NewMemoryGuard()
	bus := events.NewInMemoryBus(log)

	exec := NewExecutor(sf.store, sf.locks, sf.scheduler, delivery, guard, DefaultLadder(), sf.clock, bus, log, nil, time.Second)
	exec.backoff = time.Millisecond

	return &executorFixture{
		schedulerFixture: sf,
		executor:         exec,
		delivery:         delivery,
		guard:            guard,
	}
}

// startAndTake starts an escalation and pops the queued step.
func (f *executorFixture) startAndTake(t *testing.T, phone string) Step {
	t.Helper()
	leadID := f.createLead(t, phone)
	if err := f.scheduler.Start(context.Background(), leadID); err != nil {
		t.Fatal(err)
	}
	steps := f.queue.scheduled()
	return steps[len(steps)-1]
}

func TestExecutorFiresDueStep(t *testing.T) {
	f := newExecutorFixture(t)
	step := f.startAndTake(t, "+5511999990001")
	ctx := context.Background()

	f.clock.Advance(30 * time.Minute)
	if err := f.executor.Execute(ctx, step); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	msgs := f.delivery.messages()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if msgs[0].phone != "+5511999990001" {
		t.Errorf("phone = %q", msgs[0].phone)
	}
	if msgs[0].message != DefaultLadder().Tiers[0].Message {
		t.Errorf("message = %q, want tier 0 text", msgs[0].message)
	}

	// Firing tier 0 must have scheduled tier 1.
	steps := f.queue.scheduled()
	if len(steps) != 2 {
		t.Fatalf("expected tier 1 to be scheduled, got %d steps", len(steps))
	}
	if steps[1].StepIndex != 1 {
		t.Errorf("next step index = %d, want 1", steps[1].StepIndex)
	}

	acts := f.store.Activities[step.LeadID]
	var found bool
	for _, a := range acts {
		if a.Kind == "followup_sent" {
			found = true
		}
	}
	if !found {
		t.Error("expected followup_sent activity")
	}
}

func TestExecutorDiscardsStaleGeneration(t *testing.T) {
	f := newExecutorFixture(t)
	step := f.startAndTake(t, "+5511999990001")
	ctx := context.Background()

	if err := f.scheduler.Cancel(ctx, step.LeadID); err != nil {
		t.Fatal(err)
	}

	f.clock.Advance(30 * time.Minute)
	if err := f.executor.Execute(ctx, step); err != nil {
		t.Fatalf("Execute on stale step: %v", err)
	}
	if len(f.delivery.messages()) != 0 {
		t.Error("stale step must not send")
	}
	if got := len(f.queue.scheduled()); got != 1 {
		t.Errorf("stale step must not advance, got %d steps", got)
	}
}

func TestExecutorSuppressesDuringHandoff(t *testing.T) {
	f := newExecutorFixture(t)
	step := f.startAndTake(t, "+5511999990001")
	ctx := context.Background()

	if err := f.store.SetHandoff(ctx, step.LeadID, true); err != nil {
		t.Fatal(err)
	}

	f.clock.Advance(30 * time.Minute)
	if err := f.executor.Execute(ctx, step); err != nil {
		t.Fatalf("Execute during handoff: %v", err)
	}
	if len(f.delivery.messages()) != 0 {
		t.Error("handoff must suppress the send")
	}
}

func TestExecutorDiscardsAfterReply(t *testing.T) {
	f := newExecutorFixture(t)
	step := f.startAndTake(t, "+5511999990001")
	ctx := context.Background()

	// The lead replied after the step was enqueued but the cancellation
	// never landed. The fire-time re-check must still suppress.
	f.clock.Advance(10 * time.Minute)
	if _, err := f.store.SetLastInbound(ctx, step.LeadID, f.clock.Now()); err != nil {
		t.Fatal(err)
	}

	f.clock.Advance(20 * time.Minute)
	if err := f.executor.Execute(ctx, step); err != nil {
		t.Fatalf("Execute after reply: %v", err)
	}
	if len(f.delivery.messages()) != 0 {
		t.Error("reply after enqueue must suppress the send")
	}
}

func TestExecutorOutOfRangeStepIsDropped(t *testing.T) {
	f := newExecutorFixture(t)
	step := f.startAndTake(t, "+5511999990001")
	step.StepIndex = 99

	if err := f.executor.Execute(context.Background(), step); err != nil {
		t.Fatalf("Execute with bad index: %v", err)
	}
	if len(f.delivery.messages()) != 0 {
		t.Error("out-of-range step must not send")
	}
}

func TestExecutorAtMostOncePerStep(t *testing.T) {
	f := newExecutorFixture(t)
	step := f.startAndTake(t, "+5511999990001")
	ctx := context.Background()
	f.clock.Advance(30 * time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := f.executor.Execute(ctx, step); err != nil {
				t.Errorf("concurrent Execute: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := len(f.delivery.messages()); got != 1 {
		t.Fatalf("expected exactly 1 send for duplicated step, got %d", got)
	}
	// Every executor advances (losers included, in case the winner died
	// before scheduling), so tier 1 may be enqueued more than once. The
	// duplicates share one guard key, so firing them all still sends once.
	steps := f.queue.scheduled()
	for _, s := range steps[1:] {
		if s.StepIndex != 1 {
			t.Fatalf("advanced step index = %d, want 1", s.StepIndex)
		}
	}
	for _, s := range steps[1:] {
		if err := f.executor.Execute(ctx, s); err != nil {
			t.Fatalf("Execute tier 1 copy: %v", err)
		}
	}
	if got := len(f.delivery.messages()); got != 2 {
		t.Fatalf("expected tier 1 to send exactly once across copies, got %d total sends", got)
	}
}

func TestExecutorRedeliveryAfterFailedAdvanceResumesLadder(t *testing.T) {
	f := newExecutorFixture(t)
	step := f.startAndTake(t, "+5511999990001")
	ctx := context.Background()
	f.clock.Advance(30 * time.Minute)

	// The send lands but scheduling the next tier fails, so the step goes
	// back to the queue.
	f.queue.err = errors.New("redis down")
	if err := f.executor.Execute(ctx, step); err == nil {
		t.Fatal("expected Execute to surface the failed advance")
	}
	if got := len(f.delivery.messages()); got != 1 {
		t.Fatalf("expected 1 send before the failed advance, got %d", got)
	}

	// On redelivery the guard key is already held. The message must not go
	// out again, but the ladder has to keep moving.
	f.queue.err = nil
	if err := f.executor.Execute(ctx, step); err != nil {
		t.Fatalf("redelivered Execute: %v", err)
	}
	if got := len(f.delivery.messages()); got != 1 {
		t.Fatalf("redelivery must not resend, got %d messages", got)
	}

	steps := f.queue.scheduled()
	if len(steps) != 2 {
		t.Fatalf("expected tier 1 to be scheduled on redelivery, got %d steps", len(steps))
	}
	if steps[1].StepIndex != 1 {
		t.Errorf("next step index = %d, want 1", steps[1].StepIndex)
	}

	conv, err := f.store.GetByID(ctx, step.LeadID)
	if err != nil {
		t.Fatal(err)
	}
	if !conv.EscalationActive {
		t.Error("escalation should still be active with tier 1 pending")
	}
}

func TestExecutorSkipsTierAfterExhaustedRetries(t *testing.T) {
	f := newExecutorFixture(t)
	step := f.startAndTake(t, "+5511999990001")
	f.delivery.failures = 1000

	f.clock.Advance(30 * time.Minute)
	if err := f.executor.Execute(context.Background(), step); err != nil {
		t.Fatalf("Execute with failing delivery: %v", err)
	}

	if f.delivery.calls != deliveryAttempts {
		t.Errorf("delivery attempts = %d, want %d", f.delivery.calls, deliveryAttempts)
	}
	// The failed tier is skipped but the cadence keeps going.
	steps := f.queue.scheduled()
	if len(steps) != 2 {
		t.Fatalf("expected cadence to advance past the failed tier, got %d steps", len(steps))
	}
	if steps[1].StepIndex != 1 {
		t.Errorf("next step index = %d, want 1", steps[1].StepIndex)
	}
}

func TestExecutorRetriesTransientDeliveryFailure(t *testing.T) {
	f := newExecutorFixture(t)
	step := f.startAndTake(t, "+5511999990001")
	f.delivery.failures = 2

	f.clock.Advance(30 * time.Minute)
	if err := f.executor.Execute(context.Background(), step); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got := len(f.delivery.messages()); got != 1 {
		t.Fatalf("expected send to succeed on the final attempt, got %d messages", got)
	}
}

func TestExecutorFullLadderRunsToCompletion(t *testing.T) {
	f := newExecutorFixture(t)
	ctx := context.Background()
	step := f.startAndTake(t, "+5511999990001")
	leadID := step.LeadID
	ladder := DefaultLadder()

	for i := 0; i < ladder.Len(); i++ {
		f.clock.Advance(ladder.Tiers[i].Delay)
		if err := f.executor.Execute(ctx, step); err != nil {
			t.Fatalf("Execute tier %d: %v", i, err)
		}
		steps := f.queue.scheduled()
		step = steps[len(steps)-1]
	}

	msgs := f.delivery.messages()
	if len(msgs) != ladder.Len() {
		t.Fatalf("expected %d messages, got %d", ladder.Len(), len(msgs))
	}
	for i, m := range msgs {
		if m.message != ladder.Tiers[i].Message {
			t.Errorf("message %d = %q, want tier %d text", i, m.message, i)
		}
	}

	conv, err := f.store.GetByID(ctx, leadID)
	if err != nil {
		t.Fatal(err)
	}
	if conv.EscalationActive {
		t.Error("escalation should end after the last tier fires")
	}
}

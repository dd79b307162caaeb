package conversation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/VentilardorArnor/Avantti-Vitor/internal/conversation/repository"
	"github.com/VentilardorArnor/Avantti-Vitor/internal/events"
	"github.com/VentilardorArnor/Avantti-Vitor/internal/qualification"
	"github.com/VentilardorArnor/Avantti-Vitor/platform/logger"

	"github.com/google/uuid"
)

type fakeCanceller struct {
	mu    sync.Mutex
	calls []uuid.UUID
	err   error
}

func (f *fakeCanceller) Cancel(_ context.Context, leadID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, leadID)
	return f.err
}

func (f *fakeCanceller) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type serviceFixture struct {
	service   *Service
	store     *repository.Memory
	canceller *fakeCanceller
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()

	log := logger.New("test")
	store := repository.NewMemory()
	canceller := &fakeCanceller{}

	service := New(store, NewLeadLocks(), events.NewInMemoryBus(log), log)
	service.SetEscalationCanceller(canceller)

	return &serviceFixture{service: service, store: store, canceller: canceller}
}

func TestRecordInboundActivityCreatesLazily(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	at := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	conv, err := f.service.RecordInboundActivity(ctx, "+5511988887777", at)
	if err != nil {
		t.Fatalf("RecordInboundActivity: %v", err)
	}
	if conv.Phone != "+5511988887777" {
		t.Errorf("phone = %q", conv.Phone)
	}
	if conv.LastInboundAt == nil || !conv.LastInboundAt.Equal(at) {
		t.Errorf("last inbound = %v, want %v", conv.LastInboundAt, at)
	}
	if conv.Qualification.State() != qualification.StateCollecting {
		t.Errorf("new conversation state = %v, want collecting", conv.Qualification.State())
	}
}

func TestRecordInboundActivityNormalizesPhone(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	at := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	first, err := f.service.RecordInboundActivity(ctx, "+55 11 98888-7777", at)
	if err != nil {
		t.Fatal(err)
	}
	second, err := f.service.RecordInboundActivity(ctx, "+5511988887777", at.Add(time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if first.ID != second.ID {
		t.Error("different phone formats must resolve to the same conversation")
	}
}

func TestRecordInboundActivityStaleTimestampIsNoop(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	at := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	if _, err := f.service.RecordInboundActivity(ctx, "+5511988887777", at); err != nil {
		t.Fatal(err)
	}
	conv, err := f.service.RecordInboundActivity(ctx, "+5511988887777", at.Add(-time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if !conv.LastInboundAt.Equal(at) {
		t.Errorf("stale delivery must not move last inbound, got %v", conv.LastInboundAt)
	}
}

func TestRecordInboundActivityCancelsActiveEscalation(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	at := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	conv, err := f.service.RecordInboundActivity(ctx, "+5511988887777", at)
	if err != nil {
		t.Fatal(err)
	}
	if f.canceller.callCount() != 0 {
		t.Fatal("no escalation active yet, cancel must not fire")
	}

	if _, _, err := f.store.BeginEscalation(ctx, conv.ID); err != nil {
		t.Fatal(err)
	}

	if _, err := f.service.RecordInboundActivity(ctx, "+5511988887777", at.Add(time.Hour)); err != nil {
		t.Fatal(err)
	}
	if f.canceller.callCount() != 1 {
		t.Fatalf("cancel calls = %d, want 1", f.canceller.callCount())
	}
}

func TestUpdateQualificationRejectsUnknownFieldBatch(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	conv, _, err := f.store.CreateIfAbsent(ctx, "+5511988887777")
	if err != nil {
		t.Fatal(err)
	}

	_, err = f.service.UpdateQualification(ctx, conv.ID, map[string]string{
		"purpose": "renovation",
		"budget":  "high",
	})
	if !errors.Is(err, qualification.ErrUnknownField) {
		t.Fatalf("err = %v, want ErrUnknownField", err)
	}

	// The whole batch is rejected, including the valid field.
	snap, err := f.store.GetByID(ctx, conv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if snap.Qualification.Purpose != nil {
		t.Error("rejected batch must not apply any field")
	}
}

func TestUpdateQualificationReportsCompleteness(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	conv, _, err := f.store.CreateIfAbsent(ctx, "+5511988887777")
	if err != nil {
		t.Fatal(err)
	}

	result, err := f.service.UpdateQualification(ctx, conv.ID, map[string]string{
		"purpose": "renovation",
	})
	if err != nil {
		t.Fatal(err)
	}
	if result.State != qualification.StateCollecting {
		t.Errorf("state = %v, want collecting", result.State)
	}
	want := []qualification.Field{qualification.FieldTiming, qualification.FieldProfile}
	if len(result.Missing) != len(want) {
		t.Fatalf("missing = %v, want %v", result.Missing, want)
	}
	for i := range want {
		if result.Missing[i] != want[i] {
			t.Errorf("missing[%d] = %v, want %v", i, result.Missing[i], want[i])
		}
	}

	result, err = f.service.UpdateQualification(ctx, conv.ID, map[string]string{
		"timing":  "next month",
		"profile": "homeowner",
	})
	if err != nil {
		t.Fatal(err)
	}
	if result.State != qualification.StateQualified {
		t.Errorf("state = %v, want qualified", result.State)
	}
	if len(result.Missing) != 0 {
		t.Errorf("missing = %v, want empty", result.Missing)
	}

	var qualifiedLogged bool
	for _, a := range f.store.Activities[conv.ID] {
		if a.Kind == "qualified" {
			qualifiedLogged = true
		}
	}
	if !qualifiedLogged {
		t.Error("expected qualified activity on completion")
	}
}

func TestUpdateQualificationIsIdempotent(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	conv, _, err := f.store.CreateIfAbsent(ctx, "+5511988887777")
	if err != nil {
		t.Fatal(err)
	}

	update := map[string]string{
		"purpose": "renovation",
		"timing":  "next month",
		"profile": "homeowner",
	}
	first, err := f.service.UpdateQualification(ctx, conv.ID, update)
	if err != nil {
		t.Fatal(err)
	}
	snapAfterFirst, err := f.store.GetByID(ctx, conv.ID)
	if err != nil {
		t.Fatal(err)
	}

	// The same batch again must land on identical state.
	second, err := f.service.UpdateQualification(ctx, conv.ID, update)
	if err != nil {
		t.Fatal(err)
	}
	if second.State != first.State {
		t.Errorf("state after repeat = %v, want %v", second.State, first.State)
	}
	if len(second.Missing) != len(first.Missing) {
		t.Errorf("missing after repeat = %v, want %v", second.Missing, first.Missing)
	}

	snapAfterSecond, err := f.store.GetByID(ctx, conv.ID)
	if err != nil {
		t.Fatal(err)
	}
	for _, field := range qualification.CanonicalOrder {
		before := snapAfterFirst.Qualification.Get(field)
		after := snapAfterSecond.Qualification.Get(field)
		if before == nil || after == nil || *before != *after {
			t.Errorf("field %s after repeat = %v, want %v", field, after, before)
		}
	}

	var qualifiedCount int
	for _, a := range f.store.Activities[conv.ID] {
		if a.Kind == "qualified" {
			qualifiedCount++
		}
	}
	if qualifiedCount != 1 {
		t.Errorf("qualified activities = %d, repeat must not log again", qualifiedCount)
	}
}

func TestQualifiedStateIsTerminal(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	conv, _, err := f.store.CreateIfAbsent(ctx, "+5511988887777")
	if err != nil {
		t.Fatal(err)
	}

	_, err = f.service.UpdateQualification(ctx, conv.ID, map[string]string{
		"purpose": "renovation",
		"timing":  "next month",
		"profile": "homeowner",
	})
	if err != nil {
		t.Fatal(err)
	}

	// Overwriting a field with a new value keeps the state qualified.
	result, err := f.service.UpdateQualification(ctx, conv.ID, map[string]string{
		"timing": "this week",
	})
	if err != nil {
		t.Fatal(err)
	}
	if result.State != qualification.StateQualified {
		t.Errorf("state = %v, overwrite must not leave qualified", result.State)
	}
}

func TestRequestHandoffCancelsEscalation(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	conv, _, err := f.store.CreateIfAbsent(ctx, "+5511988887777")
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := f.store.BeginEscalation(ctx, conv.ID); err != nil {
		t.Fatal(err)
	}

	if err := f.service.RequestHandoff(ctx, conv.ID); err != nil {
		t.Fatalf("RequestHandoff: %v", err)
	}

	snap, err := f.store.GetByID(ctx, conv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !snap.HandoffRequested {
		t.Error("handoff flag not set")
	}
	if f.canceller.callCount() != 1 {
		t.Errorf("cancel calls = %d, want 1", f.canceller.callCount())
	}
}

func TestClearHandoffDoesNotResurrectEscalation(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	conv, _, err := f.store.CreateIfAbsent(ctx, "+5511988887777")
	if err != nil {
		t.Fatal(err)
	}
	if err := f.service.RequestHandoff(ctx, conv.ID); err != nil {
		t.Fatal(err)
	}

	if err := f.service.ClearHandoff(ctx, conv.ID); err != nil {
		t.Fatalf("ClearHandoff: %v", err)
	}

	snap, err := f.store.GetByID(ctx, conv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if snap.HandoffRequested {
		t.Error("handoff flag not cleared")
	}
	if snap.EscalationActive {
		t.Error("clearing handoff must not start an escalation")
	}
}

func TestGetUnknownConversation(t *testing.T) {
	f := newServiceFixture(t)
	_, err := f.service.Get(context.Background(), uuid.New())
	if !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/VentilardorArnor/Avantti-Vitor/internal/conversation/repository"
	"github.com/VentilardorArnor/Avantti-Vitor/internal/crm"
	"github.com/VentilardorArnor/Avantti-Vitor/internal/followup"
	"github.com/VentilardorArnor/Avantti-Vitor/internal/pricing"
	"github.com/VentilardorArnor/Avantti-Vitor/internal/qualification"
	"github.com/VentilardorArnor/Avantti-Vitor/platform/apperr"
	"github.com/VentilardorArnor/Avantti-Vitor/platform/logger"

	"github.com/google/uuid"
)

type memConversations struct {
	store *repository.Memory
}

func (m memConversations) Get(ctx context.Context, leadID uuid.UUID) (repository.Conversation, error) {
	return m.store.GetByID(ctx, leadID)
}

func (m memConversations) LogActivity(ctx context.Context, leadID uuid.UUID, kind string, metadata map[string]interface{}) {
	_ = m.store.AddActivity(ctx, leadID, kind, metadata)
}

type fakeCrm struct {
	mu       sync.Mutex
	payloads []crm.LeadPayload
	err      error
}

func (f *fakeCrm) PushLead(_ context.Context, _ uuid.UUID, payload crm.LeadPayload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.payloads = append(f.payloads, payload)
	return nil
}

type fakeSender struct {
	mu   sync.Mutex
	sent []string
}

func (f *fakeSender) SendMessage(_ context.Context, _ string, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, message)
	return nil
}

type fakePricing struct {
	quotes map[string]pricing.Quote
}

func (f *fakePricing) GetQuote(_ context.Context, resource string) (pricing.Quote, error) {
	q, ok := f.quotes[resource]
	if !ok {
		return pricing.Quote{}, pricing.ErrNotFound
	}
	return q, nil
}

type fakeStarter struct {
	mu     sync.Mutex
	starts []uuid.UUID
	err    error
}

func (f *fakeStarter) Start(_ context.Context, leadID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.starts = append(f.starts, leadID)
	return nil
}

type gateFixture struct {
	gate    *Gate
	store   *repository.Memory
	crm     *fakeCrm
	sender  *fakeSender
	pricing *fakePricing
	starter *fakeStarter
}

func newGateFixture(t *testing.T) *gateFixture {
	t.Helper()

	store := repository.NewMemory()
	crmFake := &fakeCrm{}
	sender := &fakeSender{}
	pricingFake := &fakePricing{quotes: map[string]pricing.Quote{
		"solar-basic": {Resource: "solar-basic", AmountCents: 1500000, Currency: "BRL", UpdatedAt: time.Now()},
	}}
	starter := &fakeStarter{}

	gate := NewGate(memConversations{store: store}, crmFake, sender, pricingFake, starter, logger.New("test"))

	return &gateFixture{
		gate:    gate,
		store:   store,
		crm:     crmFake,
		sender:  sender,
		pricing: pricingFake,
		starter: starter,
	}
}

func (f *gateFixture) createLead(t *testing.T, qualified bool) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	conv, _, err := f.store.CreateIfAbsent(ctx, "+5511988887777")
	if err != nil {
		t.Fatal(err)
	}
	if qualified {
		for field, value := range map[qualification.Field]string{
			qualification.FieldPurpose: "installation",
			qualification.FieldTiming:  "this month",
			qualification.FieldProfile: "homeowner",
		} {
			if _, err := f.store.SetQualificationField(ctx, conv.ID, field, value); err != nil {
				t.Fatal(err)
			}
		}
	}
	return conv.ID
}

func TestDispatchUnknownAction(t *testing.T) {
	f := newGateFixture(t)
	leadID := f.createLead(t, false)

	_, err := f.gate.Dispatch(context.Background(), leadID, Request{Action: "deleteEverything"})
	if apperr.GetKind(err) != apperr.KindBadRequest {
		t.Fatalf("kind = %v, want bad request", apperr.GetKind(err))
	}
}

func TestDispatchUnknownLead(t *testing.T) {
	f := newGateFixture(t)

	_, err := f.gate.Dispatch(context.Background(), uuid.New(), Request{Action: "sendWhatsapp", Message: "oi"})
	if apperr.GetKind(err) != apperr.KindNotFound {
		t.Fatalf("kind = %v, want not found", apperr.GetKind(err))
	}
}

func TestDispatchPushToCRMRequiresQualified(t *testing.T) {
	f := newGateFixture(t)
	leadID := f.createLead(t, false)

	_, err := f.gate.Dispatch(context.Background(), leadID, Request{Action: "pushToCrm"})
	if apperr.GetKind(err) != apperr.KindForbidden {
		t.Fatalf("kind = %v, want forbidden", apperr.GetKind(err))
	}
	if len(f.crm.payloads) != 0 {
		t.Error("denied push must not reach the CRM")
	}
}

func TestDispatchPushToCRMWhenQualified(t *testing.T) {
	f := newGateFixture(t)
	leadID := f.createLead(t, true)

	result, err := f.gate.Dispatch(context.Background(), leadID, Request{Action: "pushToCrm", Summary: "hot lead"})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if result.Action != "pushToCrm" {
		t.Errorf("result action = %q", result.Action)
	}
	if len(f.crm.payloads) != 1 {
		t.Fatalf("crm pushes = %d, want 1", len(f.crm.payloads))
	}
	p := f.crm.payloads[0]
	if p.Purpose != "installation" || p.Timing != "this month" || p.Profile != "homeowner" {
		t.Errorf("payload fields = %+v", p)
	}
	if p.Summary != "hot lead" {
		t.Errorf("summary = %q", p.Summary)
	}
}

func TestDispatchSendMessageWhileCollecting(t *testing.T) {
	f := newGateFixture(t)
	leadID := f.createLead(t, false)

	_, err := f.gate.Dispatch(context.Background(), leadID, Request{Action: "sendWhatsapp", Message: "oi"})
	if err != nil {
		t.Fatalf("sendWhatsapp must be allowed while collecting: %v", err)
	}
	if len(f.sender.sent) != 1 {
		t.Fatalf("messages sent = %d, want 1", len(f.sender.sent))
	}
}

func TestDispatchHandoffSuppressesAutomatedActions(t *testing.T) {
	f := newGateFixture(t)
	leadID := f.createLead(t, true)
	ctx := context.Background()
	if err := f.store.SetHandoff(ctx, leadID, true); err != nil {
		t.Fatal(err)
	}

	for _, action := range []string{"pushToCrm", "quotePrice", "enableAutoFollowup", "sendWhatsapp"} {
		_, err := f.gate.Dispatch(ctx, leadID, Request{Action: action, Message: "oi", Resource: "solar-basic"})
		if apperr.GetKind(err) != apperr.KindForbidden {
			t.Errorf("action %s during handoff: kind = %v, want forbidden", action, apperr.GetKind(err))
		}
	}

	// A human operator may still send messages.
	_, err := f.gate.Dispatch(ctx, leadID, Request{Action: "sendWhatsapp", Message: "oi", HumanInitiated: true})
	if err != nil {
		t.Fatalf("human send during handoff: %v", err)
	}
	if len(f.sender.sent) != 1 {
		t.Fatalf("messages sent = %d, want 1", len(f.sender.sent))
	}
}

func TestDispatchSendMessageRequiresBody(t *testing.T) {
	f := newGateFixture(t)
	leadID := f.createLead(t, false)

	_, err := f.gate.Dispatch(context.Background(), leadID, Request{Action: "sendWhatsapp"})
	if apperr.GetKind(err) != apperr.KindValidation {
		t.Fatalf("kind = %v, want validation", apperr.GetKind(err))
	}
}

func TestDispatchQuotePrice(t *testing.T) {
	f := newGateFixture(t)
	leadID := f.createLead(t, false)
	ctx := context.Background()

	result, err := f.gate.Dispatch(ctx, leadID, Request{Action: "quotePrice", Resource: "solar-basic"})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if result.Quote == nil || result.Quote.AmountCents != 1500000 {
		t.Fatalf("quote = %+v", result.Quote)
	}

	_, err = f.gate.Dispatch(ctx, leadID, Request{Action: "quotePrice", Resource: "unknown"})
	if apperr.GetKind(err) != apperr.KindNotFound {
		t.Fatalf("kind = %v, want not found", apperr.GetKind(err))
	}
}

func TestDispatchEnableAutoFollowup(t *testing.T) {
	f := newGateFixture(t)
	leadID := f.createLead(t, false)
	ctx := context.Background()

	result, err := f.gate.Dispatch(ctx, leadID, Request{Action: "enableAutoFollowup"})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if result.AlreadyActive {
		t.Error("first enable must not report already active")
	}
	if len(f.starter.starts) != 1 {
		t.Fatalf("starts = %d, want 1", len(f.starter.starts))
	}

	// A second enable while running is an idempotent success.
	f.starter.err = followup.ErrAlreadyActive
	result, err = f.gate.Dispatch(ctx, leadID, Request{Action: "enableAutoFollowup"})
	if err != nil {
		t.Fatalf("duplicate enable: %v", err)
	}
	if !result.AlreadyActive {
		t.Error("duplicate enable must report already active")
	}
}

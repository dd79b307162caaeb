// Package dispatch is the single choke point between the reasoning loop
// and the side-effecting tools. Every tool call passes the qualification
// permission check here before anything leaves the system.
package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/VentilardorArnor/Avantti-Vitor/internal/conversation/repository"
	"github.com/VentilardorArnor/Avantti-Vitor/internal/crm"
	"github.com/VentilardorArnor/Avantti-Vitor/internal/followup"
	"github.com/VentilardorArnor/Avantti-Vitor/internal/pricing"
	"github.com/VentilardorArnor/Avantti-Vitor/internal/qualification"
	"github.com/VentilardorArnor/Avantti-Vitor/platform/apperr"
	"github.com/VentilardorArnor/Avantti-Vitor/platform/logger"

	"github.com/google/uuid"
)

// Conversations is the slice of the conversation service the gate needs.
type Conversations interface {
	Get(ctx context.Context, leadID uuid.UUID) (repository.Conversation, error)
	LogActivity(ctx context.Context, leadID uuid.UUID, kind string, metadata map[string]interface{})
}

// CrmSync pushes qualified leads to the CRM. Satisfied by crm.Client.
type CrmSync interface {
	PushLead(ctx context.Context, leadID uuid.UUID, payload crm.LeadPayload) error
}

// MessageDelivery sends outbound messages. Satisfied by whatsapp.Client.
type MessageDelivery interface {
	SendMessage(ctx context.Context, phone string, message string) error
}

// PricingLookup resolves price quotes. Satisfied by pricing.Repository.
type PricingLookup interface {
	GetQuote(ctx context.Context, resource string) (pricing.Quote, error)
}

// FollowupStarter begins the escalation sequence. Satisfied by
// followup.Scheduler.
type FollowupStarter interface {
	Start(ctx context.Context, leadID uuid.UUID) error
}

// Request is one tool call from the reasoning loop or a human operator.
type Request struct {
	Action         string
	HumanInitiated bool

	// Message is required for sendWhatsapp.
	Message string
	// Resource is required for quotePrice.
	Resource string
	// Summary is an optional free-text note attached to pushToCrm.
	Summary string
}

// Result is the side effect outcome for an allowed action.
type Result struct {
	Action string `json:"action"`
	// Quote is set for quotePrice.
	Quote *pricing.Quote `json:"quote,omitempty"`
	// AlreadyActive reports that enableAutoFollowup found a sequence
	// already running. The call still succeeds.
	AlreadyActive bool `json:"alreadyActive,omitempty"`
}

type Gate struct {
	conversations Conversations
	crm           CrmSync
	delivery      MessageDelivery
	pricing       PricingLookup
	followup      FollowupStarter
	log           *logger.Logger
}

func NewGate(conversations Conversations, crmSync CrmSync, delivery MessageDelivery, pricingLookup PricingLookup, followupStarter FollowupStarter, log *logger.Logger) *Gate {
	return &Gate{
		conversations: conversations,
		crm:           crmSync,
		delivery:      delivery,
		pricing:       pricingLookup,
		followup:      followupStarter,
		log:           log,
	}
}

// Dispatch checks the action against the lead's current qualification
// state and executes it when permitted. Denials come back as Forbidden
// errors carrying the unmet precondition.
func (g *Gate) Dispatch(ctx context.Context, leadID uuid.UUID, req Request) (Result, error) {
	action, ok := qualification.ParseAction(req.Action)
	if !ok {
		return Result{}, apperr.BadRequest(fmt.Sprintf("unknown action %q", req.Action))
	}

	conv, err := g.conversations.Get(ctx, leadID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return Result{}, apperr.NotFound("conversation not found")
		}
		return Result{}, err
	}

	decision := qualification.IsActionPermitted(conv.QualificationView(), action, req.HumanInitiated)
	if !decision.Allowed {
		g.log.Info("action denied",
			"lead_id", leadID,
			"action", req.Action,
			"reason", decision.Reason,
		)
		return Result{}, apperr.Forbidden("action not permitted").WithDetails(map[string]interface{}{
			"action":        req.Action,
			"reason":        decision.Reason,
			"missingFields": decision.MissingFields,
		})
	}

	switch action {
	case qualification.ActionPushToCRM:
		return g.pushToCRM(ctx, conv, req)
	case qualification.ActionSendWhatsApp:
		return g.sendMessage(ctx, conv, req)
	case qualification.ActionQuotePrice:
		return g.quotePrice(ctx, conv, req)
	case qualification.ActionEnableAutoFollowup:
		return g.enableAutoFollowup(ctx, conv)
	default:
		return Result{}, apperr.BadRequest(fmt.Sprintf("unknown action %q", req.Action))
	}
}

func (g *Gate) pushToCRM(ctx context.Context, conv repository.Conversation, req Request) (Result, error) {
	payload := crm.LeadPayload{
		Phone:   conv.Phone,
		Purpose: deref(conv.Qualification.Purpose),
		Timing:  deref(conv.Qualification.Timing),
		Profile: deref(conv.Qualification.Profile),
		Summary: req.Summary,
	}
	if err := g.crm.PushLead(ctx, conv.ID, payload); err != nil {
		return Result{}, apperr.Wrap(apperr.KindInternal, "crm push failed", err)
	}

	g.conversations.LogActivity(ctx, conv.ID, "crm_pushed", map[string]interface{}{
		"summary": req.Summary,
	})
	return Result{Action: string(qualification.ActionPushToCRM)}, nil
}

func (g *Gate) sendMessage(ctx context.Context, conv repository.Conversation, req Request) (Result, error) {
	if req.Message == "" {
		return Result{}, apperr.Validation("message is required")
	}
	if err := g.delivery.SendMessage(ctx, conv.Phone, req.Message); err != nil {
		return Result{}, apperr.Wrap(apperr.KindInternal, "message delivery failed", err)
	}

	kind := "assistant_message_sent"
	if req.HumanInitiated {
		kind = "human_message_sent"
	}
	g.conversations.LogActivity(ctx, conv.ID, kind, nil)
	return Result{Action: string(qualification.ActionSendWhatsApp)}, nil
}

func (g *Gate) quotePrice(ctx context.Context, conv repository.Conversation, req Request) (Result, error) {
	if req.Resource == "" {
		return Result{}, apperr.Validation("resource is required")
	}
	quote, err := g.pricing.GetQuote(ctx, req.Resource)
	if err != nil {
		if errors.Is(err, pricing.ErrNotFound) {
			return Result{}, apperr.NotFound(fmt.Sprintf("no price for resource %q", req.Resource))
		}
		return Result{}, err
	}

	g.conversations.LogActivity(ctx, conv.ID, "price_quoted", map[string]interface{}{
		"resource": quote.Resource,
	})
	return Result{Action: string(qualification.ActionQuotePrice), Quote: &quote}, nil
}

func (g *Gate) enableAutoFollowup(ctx context.Context, conv repository.Conversation) (Result, error) {
	err := g.followup.Start(ctx, conv.ID)
	if errors.Is(err, followup.ErrAlreadyActive) {
		// Enabling twice is not an error for the caller.
		return Result{Action: string(qualification.ActionEnableAutoFollowup), AlreadyActive: true}, nil
	}
	if err != nil {
		return Result{}, err
	}
	return Result{Action: string(qualification.ActionEnableAutoFollowup)}, nil
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

// Package webhook receives inbound WhatsApp messages from the gateway and
// feeds them into the conversation store.
package webhook

import (
	"context"
	"time"

	"github.com/VentilardorArnor/Avantti-Vitor/internal/conversation"
	"github.com/VentilardorArnor/Avantti-Vitor/internal/conversation/repository"
	"github.com/VentilardorArnor/Avantti-Vitor/platform/logger"

	"github.com/google/uuid"
)

// Conversations is the slice of the conversation service the intake needs.
type Conversations interface {
	RecordInboundActivity(ctx context.Context, rawPhone string, at time.Time) (repository.Conversation, error)
	UpdateQualification(ctx context.Context, leadID uuid.UUID, updates map[string]string) (conversation.Completeness, error)
	LogActivity(ctx context.Context, leadID uuid.UUID, kind string, metadata map[string]interface{})
}

// InboundMessage is one message received from the gateway.
type InboundMessage struct {
	Phone      string
	Message    string
	ReceivedAt time.Time
	// Qualification carries field values the reasoning loop extracted
	// from the message, if any.
	Qualification map[string]string
}

type Service struct {
	conversations Conversations
	now           func() time.Time
	log           *logger.Logger
}

func NewService(conversations Conversations, now func() time.Time, log *logger.Logger) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{conversations: conversations, now: now, log: log}
}

// ProcessInbound records the message and applies any extracted
// qualification values. Recording always wins: a bad qualification batch
// does not lose the inbound activity.
func (s *Service) ProcessInbound(ctx context.Context, msg InboundMessage) (repository.Conversation, error) {
	at := msg.ReceivedAt
	if at.IsZero() {
		at = s.now()
	}

	conv, err := s.conversations.RecordInboundActivity(ctx, msg.Phone, at)
	if err != nil {
		return repository.Conversation{}, err
	}

	s.conversations.LogActivity(ctx, conv.ID, "inbound_message", map[string]interface{}{
		"message": msg.Message,
	})

	if len(msg.Qualification) > 0 {
		if _, err := s.conversations.UpdateQualification(ctx, conv.ID, msg.Qualification); err != nil {
			s.log.Warn("qualification update from webhook rejected",
				"lead_id", conv.ID, "error", err)
		}
	}

	return conv, nil
}

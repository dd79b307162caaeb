package events

import (
	"time"

	"github.com/google/uuid"
)

// InboundMessageReceived is published when the webhook records activity
// from a lead.
type InboundMessageReceived struct {
	BaseEvent
	LeadID     uuid.UUID
	Phone      string
	ReceivedAt time.Time
}

// EventName returns the event identifier.
func (InboundMessageReceived) EventName() string { return "conversation.inbound_received" }

// LeadQualified is published when the last missing qualification field
// is collected.
type LeadQualified struct {
	BaseEvent
	LeadID uuid.UUID
}

// EventName returns the event identifier.
func (LeadQualified) EventName() string { return "conversation.lead_qualified" }

// HandoffRequested is published when a human takes over the conversation.
type HandoffRequested struct {
	BaseEvent
	LeadID uuid.UUID
}

// EventName returns the event identifier.
func (HandoffRequested) EventName() string { return "conversation.handoff_requested" }

// EscalationCancelled is published when an active escalation sequence is
// cancelled (inbound activity or handoff).
type EscalationCancelled struct {
	BaseEvent
	LeadID     uuid.UUID
	Generation int64
}

// EventName returns the event identifier.
func (EscalationCancelled) EventName() string { return "followup.escalation_cancelled" }

// FollowupMessageSent is published after an escalation tier message is
// confirmed delivered.
type FollowupMessageSent struct {
	BaseEvent
	LeadID     uuid.UUID
	Generation int64
	StepIndex  int
}

// EventName returns the event identifier.
func (FollowupMessageSent) EventName() string { return "followup.message_sent" }

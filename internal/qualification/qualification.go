// Package qualification provides the pure decision logic over lead
// qualification state: which fields are missing, whether a lead is
// qualified, and whether a requested action is permitted.
// It holds no state of its own and performs no I/O.
package qualification

import "errors"

// ErrUnknownField is returned when a field name is not one of the
// recognized qualification fields.
var ErrUnknownField = errors.New("unknown qualification field")

// Field is one of the required pieces of lead information.
type Field string

const (
	FieldPurpose Field = "purpose"
	FieldTiming  Field = "timing"
	FieldProfile Field = "profile"
)

// CanonicalOrder is the fixed order in which qualification fields are
// applied when several arrive in one batch, so completeness transitions
// are deterministic.
var CanonicalOrder = []Field{FieldPurpose, FieldTiming, FieldProfile}

// ParseField validates a field name.
func ParseField(name string) (Field, error) {
	switch Field(name) {
	case FieldPurpose, FieldTiming, FieldProfile:
		return Field(name), nil
	default:
		return "", ErrUnknownField
	}
}

// State is the qualification machine state.
type State string

const (
	// StateCollecting means at least one qualification field is missing.
	StateCollecting State = "Collecting"
	// StateQualified means all fields are present. Qualified is terminal:
	// correcting a field later keeps the lead Qualified.
	StateQualified State = "Qualified"
)

// Values holds the collected qualification values for a lead.
type Values struct {
	Purpose *string
	Timing  *string
	Profile *string
}

// Get returns the value for a field, nil when not collected.
func (v Values) Get(field Field) *string {
	switch field {
	case FieldPurpose:
		return v.Purpose
	case FieldTiming:
		return v.Timing
	case FieldProfile:
		return v.Profile
	}
	return nil
}

// Missing returns the fields not yet collected, in canonical order.
func (v Values) Missing() []Field {
	var missing []Field
	for _, f := range CanonicalOrder {
		if val := v.Get(f); val == nil || *val == "" {
			missing = append(missing, f)
		}
	}
	return missing
}

// IsComplete reports whether all three fields are present.
func (v Values) IsComplete() bool {
	return len(v.Missing()) == 0
}

// State returns the machine state for the collected values.
func (v Values) State() State {
	if v.IsComplete() {
		return StateQualified
	}
	return StateCollecting
}

// Action is one of the closed set of actions the reasoning loop may request.
type Action string

const (
	ActionPushToCRM          Action = "pushToCrm"
	ActionSendWhatsApp       Action = "sendWhatsapp"
	ActionQuotePrice         Action = "quotePrice"
	ActionEnableAutoFollowup Action = "enableAutoFollowup"
)

// ParseAction validates an action name.
func ParseAction(name string) (Action, bool) {
	switch Action(name) {
	case ActionPushToCRM, ActionSendWhatsApp, ActionQuotePrice, ActionEnableAutoFollowup:
		return Action(name), true
	default:
		return "", false
	}
}

// View is the slice of conversation state the permission check needs.
type View struct {
	State            State
	Missing          []Field
	HandoffRequested bool
}

// Decision is the outcome of a permission check. When denied, MissingFields
// or Reason carries the specific unmet precondition so the caller can decide
// what to ask the lead next.
type Decision struct {
	Allowed       bool
	Reason        string
	MissingFields []Field
}

// IsActionPermitted decides whether an action is legal in the given state.
// Once handoff is requested every automated action is denied; the only
// exception is an explicitly human-initiated send.
func IsActionPermitted(view View, action Action, humanInitiated bool) Decision {
	if view.HandoffRequested {
		if action == ActionSendWhatsApp && humanInitiated {
			return Decision{Allowed: true}
		}
		return Decision{Allowed: false, Reason: "handoff requested"}
	}

	switch action {
	case ActionPushToCRM:
		if view.State != StateQualified {
			return Decision{
				Allowed:       false,
				Reason:        "lead not qualified",
				MissingFields: view.Missing,
			}
		}
		return Decision{Allowed: true}
	case ActionSendWhatsApp, ActionQuotePrice, ActionEnableAutoFollowup:
		// quotePrice is permitted at any qualification tier; the pricing
		// resource existence check belongs to the caller.
		return Decision{Allowed: true}
	default:
		return Decision{Allowed: false, Reason: "unknown action"}
	}
}

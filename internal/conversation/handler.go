package conversation

import (
	"errors"
	"net/http"
	"time"

	"github.com/VentilardorArnor/Avantti-Vitor/internal/conversation/repository"
	"github.com/VentilardorArnor/Avantti-Vitor/internal/http/response"
	"github.com/VentilardorArnor/Avantti-Vitor/internal/qualification"
	"github.com/VentilardorArnor/Avantti-Vitor/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const errInvalidRequest = "invalid request body"

// Handler handles conversation HTTP requests.
type Handler struct {
	service *Service
	val     *validator.Validator
}

func NewHandler(service *Service, val *validator.Validator) *Handler {
	return &Handler{service: service, val: val}
}

// ConversationResponse is the external view of a conversation record.
type ConversationResponse struct {
	ID                   uuid.UUID         `json:"id"`
	Phone                string            `json:"phone"`
	State                string            `json:"state"`
	Qualification        map[string]string `json:"qualification"`
	MissingFields        []string          `json:"missingFields"`
	LastInboundAt        *time.Time        `json:"lastInboundAt,omitempty"`
	EscalationActive     bool              `json:"escalationActive"`
	EscalationGeneration int64             `json:"escalationGeneration"`
	HandoffRequested     bool              `json:"handoffRequested"`
	CreatedAt            time.Time         `json:"createdAt"`
	UpdatedAt            time.Time         `json:"updatedAt"`
}

func toConversationResponse(conv repository.Conversation) ConversationResponse {
	values := make(map[string]string)
	for _, field := range qualification.CanonicalOrder {
		if v := conv.Qualification.Get(field); v != nil && *v != "" {
			values[string(field)] = *v
		}
	}

	missing := conv.Qualification.Missing()
	missingNames := make([]string, len(missing))
	for i, f := range missing {
		missingNames[i] = string(f)
	}

	return ConversationResponse{
		ID:                   conv.ID,
		Phone:                conv.Phone,
		State:                string(conv.Qualification.State()),
		Qualification:        values,
		MissingFields:        missingNames,
		LastInboundAt:        conv.LastInboundAt,
		EscalationActive:     conv.EscalationActive,
		EscalationGeneration: conv.EscalationGeneration,
		HandoffRequested:     conv.HandoffRequested,
		CreatedAt:            conv.CreatedAt,
		UpdatedAt:            conv.UpdatedAt,
	}
}

// HandleGetConversation returns a conversation snapshot.
// GET /api/v1/leads/:leadId
func (h *Handler) HandleGetConversation(c *gin.Context) {
	leadID, ok := parseLeadID(c)
	if !ok {
		return
	}

	conv, err := h.service.Get(c.Request.Context(), leadID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			response.Error(c, http.StatusNotFound, "conversation not found", nil)
			return
		}
		response.FromError(c, err)
		return
	}

	response.OK(c, toConversationResponse(conv))
}

// UpdateQualificationRequest carries one or more field updates.
type UpdateQualificationRequest struct {
	Fields map[string]string `json:"fields" validate:"required,min=1"`
}

// QualificationResponse reports the state after an update.
type QualificationResponse struct {
	State         string   `json:"state"`
	MissingFields []string `json:"missingFields"`
}

// HandleUpdateQualification applies qualification field updates.
// PATCH /api/v1/leads/:leadId/qualification
func (h *Handler) HandleUpdateQualification(c *gin.Context) {
	leadID, ok := parseLeadID(c)
	if !ok {
		return
	}

	var req UpdateQualificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, errInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		response.Error(c, http.StatusBadRequest, "validation error", err.Error())
		return
	}

	result, err := h.service.UpdateQualification(c.Request.Context(), leadID, req.Fields)
	if err != nil {
		if errors.Is(err, qualification.ErrUnknownField) {
			response.Error(c, http.StatusBadRequest, "unknown qualification field", nil)
			return
		}
		if errors.Is(err, repository.ErrNotFound) {
			response.Error(c, http.StatusNotFound, "conversation not found", nil)
			return
		}
		response.FromError(c, err)
		return
	}

	missing := make([]string, len(result.Missing))
	for i, f := range result.Missing {
		missing[i] = string(f)
	}
	response.OK(c, QualificationResponse{
		State:         string(result.State),
		MissingFields: missing,
	})
}

// HandleRequestHandoff marks the conversation as human-handled.
// POST /api/v1/leads/:leadId/handoff
func (h *Handler) HandleRequestHandoff(c *gin.Context) {
	leadID, ok := parseLeadID(c)
	if !ok {
		return
	}

	if err := h.service.RequestHandoff(c.Request.Context(), leadID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			response.Error(c, http.StatusNotFound, "conversation not found", nil)
			return
		}
		response.FromError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// HandleClearHandoff returns the conversation to automated handling. A
// previously cancelled escalation stays cancelled.
// DELETE /api/v1/leads/:leadId/handoff
func (h *Handler) HandleClearHandoff(c *gin.Context) {
	leadID, ok := parseLeadID(c)
	if !ok {
		return
	}

	if err := h.service.ClearHandoff(c.Request.Context(), leadID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			response.Error(c, http.StatusNotFound, "conversation not found", nil)
			return
		}
		response.FromError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func parseLeadID(c *gin.Context) (uuid.UUID, bool) {
	leadID, err := uuid.Parse(c.Param("leadId"))
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid lead ID", nil)
		return uuid.Nil, false
	}
	return leadID, true
}

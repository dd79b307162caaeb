package webhook

import (
	"net/http"
	"time"

	"github.com/VentilardorArnor/Avantti-Vitor/internal/http/response"
	"github.com/VentilardorArnor/Avantti-Vitor/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Handler handles webhook HTTP requests.
type Handler struct {
	service *Service
	val     *validator.Validator
}

func NewHandler(service *Service, val *validator.Validator) *Handler {
	return &Handler{service: service, val: val}
}

// InboundMessageRequest is the gateway's message payload.
type InboundMessageRequest struct {
	Phone         string            `json:"phone" validate:"required,min=8,max=20"`
	Message       string            `json:"message" validate:"required,max=4096"`
	ReceivedAt    *time.Time        `json:"receivedAt"`
	Qualification map[string]string `json:"qualification"`
}

// InboundMessageResponse acknowledges the intake.
type InboundMessageResponse struct {
	LeadID           uuid.UUID `json:"leadId"`
	State            string    `json:"state"`
	EscalationActive bool      `json:"escalationActive"`
}

// HandleInboundMessage processes one inbound message.
// POST /api/v1/webhook/messages
func (h *Handler) HandleInboundMessage(c *gin.Context) {
	var req InboundMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		response.Error(c, http.StatusBadRequest, "validation error", err.Error())
		return
	}

	msg := InboundMessage{
		Phone:         req.Phone,
		Message:       req.Message,
		Qualification: req.Qualification,
	}
	if req.ReceivedAt != nil {
		msg.ReceivedAt = *req.ReceivedAt
	}

	conv, err := h.service.ProcessInbound(c.Request.Context(), msg)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.JSON(c, http.StatusAccepted, InboundMessageResponse{
		LeadID:           conv.ID,
		State:            string(conv.Qualification.State()),
		EscalationActive: conv.EscalationActive,
	})
}

package dispatch

import (
	"net/http"

	"github.com/VentilardorArnor/Avantti-Vitor/internal/http/response"
	"github.com/VentilardorArnor/Avantti-Vitor/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Handler handles tool dispatch HTTP requests.
type Handler struct {
	gate *Gate
	val  *validator.Validator
}

func NewHandler(gate *Gate, val *validator.Validator) *Handler {
	return &Handler{gate: gate, val: val}
}

// DispatchRequest is one tool call.
type DispatchRequest struct {
	Action         string `json:"action" validate:"required"`
	HumanInitiated bool   `json:"humanInitiated"`
	Message        string `json:"message"`
	Resource       string `json:"resource"`
	Summary        string `json:"summary"`
}

// HandleDispatch runs one action through the gate.
// POST /api/v1/leads/:leadId/dispatch
func (h *Handler) HandleDispatch(c *gin.Context) {
	leadID, err := uuid.Parse(c.Param("leadId"))
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid lead ID", nil)
		return
	}

	var req DispatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		response.Error(c, http.StatusBadRequest, "validation error", err.Error())
		return
	}

	result, err := h.gate.Dispatch(c.Request.Context(), leadID, Request{
		Action:         req.Action,
		HumanInitiated: req.HumanInitiated,
		Message:        req.Message,
		Resource:       req.Resource,
		Summary:        req.Summary,
	})
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.OK(c, result)
}

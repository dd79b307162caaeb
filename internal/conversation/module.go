// Package conversation module wiring and route registration.
package conversation

import (
	"github.com/VentilardorArnor/Avantti-Vitor/internal/conversation/repository"
	"github.com/VentilardorArnor/Avantti-Vitor/internal/events"
	apphttp "github.com/VentilardorArnor/Avantti-Vitor/internal/http"
	"github.com/VentilardorArnor/Avantti-Vitor/platform/logger"
	"github.com/VentilardorArnor/Avantti-Vitor/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the conversation bounded context implementing http.Module.
type Module struct {
	service *Service
	handler *Handler
}

// NewModule creates and initializes the conversation module.
func NewModule(pool *pgxpool.Pool, locks *LeadLocks, eventBus events.Bus, val *validator.Validator, log *logger.Logger) *Module {
	repo := repository.New(pool)
	service := New(repo, locks, eventBus, log)
	handler := NewHandler(service, val)

	return &Module{
		service: service,
		handler: handler,
	}
}

// Service exposes the conversation service for cross-module wiring.
func (m *Module) Service() *Service {
	return m.service
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "conversation"
}

// RegisterRoutes mounts conversation routes.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	leads := ctx.V1.Group("/leads")
	leads.GET("/:leadId", m.handler.HandleGetConversation)
	leads.PATCH("/:leadId/qualification", m.handler.HandleUpdateQualification)
	leads.POST("/:leadId/handoff", m.handler.HandleRequestHandoff)
	leads.DELETE("/:leadId/handoff", m.handler.HandleClearHandoff)
}

var _ apphttp.Module = (*Module)(nil)

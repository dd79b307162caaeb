package dispatch

import (
	apphttp "github.com/VentilardorArnor/Avantti-Vitor/internal/http"
	"github.com/VentilardorArnor/Avantti-Vitor/platform/logger"
	"github.com/VentilardorArnor/Avantti-Vitor/platform/validator"
)

// Module is the tool dispatch bounded context implementing http.Module.
type Module struct {
	handler *Handler
}

// NewModule creates and initializes the dispatch module.
func NewModule(conversations Conversations, crmSync CrmSync, delivery MessageDelivery, pricingLookup PricingLookup, followupStarter FollowupStarter, val *validator.Validator, log *logger.Logger) *Module {
	gate := NewGate(conversations, crmSync, delivery, pricingLookup, followupStarter, log)
	handler := NewHandler(gate, val)

	return &Module{handler: handler}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "dispatch"
}

// RegisterRoutes mounts dispatch routes.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.V1.POST("/leads/:leadId/dispatch", m.handler.HandleDispatch)
}

var _ apphttp.Module = (*Module)(nil)

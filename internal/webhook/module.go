package webhook

import (
	apphttp "github.com/VentilardorArnor/Avantti-Vitor/internal/http"
	"github.com/VentilardorArnor/Avantti-Vitor/platform/config"
	"github.com/VentilardorArnor/Avantti-Vitor/platform/logger"
	"github.com/VentilardorArnor/Avantti-Vitor/platform/validator"
)

// Module is the webhook intake bounded context implementing http.Module.
type Module struct {
	handler *Handler
	cfg     config.WebhookConfig
}

// NewModule creates and initializes the webhook module.
func NewModule(conversations Conversations, cfg config.WebhookConfig, val *validator.Validator, log *logger.Logger) *Module {
	service := NewService(conversations, nil, log)
	handler := NewHandler(service, val)

	return &Module{
		handler: handler,
		cfg:     cfg,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "webhook"
}

// RegisterRoutes mounts webhook routes.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.V1.Group("/webhook")
	group.Use(APIKeyAuthMiddleware(m.cfg))
	group.POST("/messages", m.handler.HandleInboundMessage)
}

var _ apphttp.Module = (*Module)(nil)

// Package events aliases the platform event bus so modules import one
// events package alongside the typed domain events in this directory.
package events

import (
	platformevents "github.com/VentilardorArnor/Avantti-Vitor/platform/events"
	"github.com/VentilardorArnor/Avantti-Vitor/platform/logger"
)

type (
	Bus         = platformevents.Bus
	Event       = platformevents.Event
	Handler     = platformevents.Handler
	HandlerFunc = platformevents.HandlerFunc
	BaseEvent   = platformevents.BaseEvent
	InMemoryBus = platformevents.InMemoryBus
)

func NewBaseEvent() BaseEvent {
	return platformevents.NewBaseEvent()
}

func NewInMemoryBus(log *logger.Logger) *InMemoryBus {
	return platformevents.NewInMemoryBus(log)
}

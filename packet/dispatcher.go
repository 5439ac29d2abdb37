package packet

import (
	"github.com/opd-ai/meadowlink/identity"
	"github.com/sirupsen/logrus"
)

// Handler processes one decoded packet from sender.
type Handler func(p Packet, sender *identity.ID) error

// Dispatcher decodes transport payloads and routes each packet to the
// handler registered for its type.
type Dispatcher struct {
	registry *Registry
	handlers map[Type]Handler
}

// NewDispatcher returns a dispatcher decoding with registry.
func NewDispatcher(registry *Registry) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		handlers: make(map[Type]Handler),
	}
}

// Handle registers h for packets of type t, replacing any previous handler.
func (d *Dispatcher) Handle(t Type, h Handler) {
	d.handlers[t] = h
}

// Dispatch decodes payload and invokes handlers in frame order. It returns
// the number of packets handled without error.
func (d *Dispatcher) Dispatch(payload []byte, sender *identity.ID) int {
	handled := 0
	for _, p := range d.registry.DecodeAll(payload) {
		h, ok := d.handlers[p.Type()]
		if !ok {
			logrus.WithFields(logrus.Fields{
				"function": "Dispatch",
				"type":     p.Type(),
				"sender":   sender.String(),
			}).Debug("No handler for packet type")
			continue
		}
		if err := h(p, sender); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Dispatch",
				"type":     p.Type(),
				"sender":   sender.String(),
				"error":    err.Error(),
			}).Warn("Packet handler failed")
			continue
		}
		handled++
	}
	return handled
}

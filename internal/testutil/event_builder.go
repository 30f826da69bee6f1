package testutil

import (
	"github.com/hupe1980/agentgraph/core"
)

// EventBuilder provides a fluent helper for constructing store events in
// tests.
// Example:
//
//	ev := NewEventBuilder().Element(initiated).Connector(arc).Other(act).Build()
//
// Chain only the parts you need; the event type defaults to
// core.EventAfterGenerateOutgoingArc and the connector type to a constant
// permanent positive arc.
type EventBuilder struct {
	ev core.Event
}

// NewEventBuilder creates a builder with defaults applied.
func NewEventBuilder() *EventBuilder {
	return &EventBuilder{ev: core.Event{
		Type:          core.EventAfterGenerateOutgoingArc,
		ConnectorType: core.ConstPermPosArc,
	}}
}

// Subscription sets the subscription id (chainable).
func (b *EventBuilder) Subscription(id core.SubscriptionID) *EventBuilder {
	b.ev.Subscription = id
	return b
}

// Type sets the event type (chainable).
func (b *EventBuilder) Type(t core.EventType) *EventBuilder { b.ev.Type = t; return b }

// Element sets the anchor the event is raised on (chainable).
func (b *EventBuilder) Element(a core.Addr) *EventBuilder { b.ev.Element = a; return b }

// Connector sets the connector and optionally its type (chainable).
func (b *EventBuilder) Connector(c core.Addr, t ...core.Type) *EventBuilder {
	b.ev.Connector = c
	if len(t) > 0 {
		b.ev.ConnectorType = t[0]
	}
	return b
}

// Other sets the opposite end of the connector (chainable).
func (b *EventBuilder) Other(a core.Addr) *EventBuilder { b.ev.Other = a; return b }

// Build returns the event.
func (b *EventBuilder) Build() core.Event { return b.ev }

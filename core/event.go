package core

import "context"

// EventType identifies the kind of store event a subscription listens for.
type EventType string

const (
	// EventAfterGenerateOutgoingArc fires on the source of a new arc.
	EventAfterGenerateOutgoingArc EventType = "after_generate_outgoing_arc"
	// EventAfterGenerateIncomingArc fires on the target of a new arc.
	EventAfterGenerateIncomingArc EventType = "after_generate_incoming_arc"
	// EventAfterGenerateEdge fires on both ends of a new common edge.
	EventAfterGenerateEdge EventType = "after_generate_edge"
)

// IsValid reports whether e is one of the known event types.
func (e EventType) IsValid() bool {
	switch e {
	case EventAfterGenerateOutgoingArc, EventAfterGenerateIncomingArc, EventAfterGenerateEdge:
		return true
	default:
		return false
	}
}

// SubscriptionID identifies a live subscription within one store.
type SubscriptionID uint64

// Event is a notification raised by a store. After emission it should be
// treated as immutable.
//
// Element is the anchor the subscription listens on, Connector the newly
// generated connector, and Other the connector's opposite end.
type Event struct {
	Subscription  SubscriptionID
	Type          EventType
	Element       Addr
	Connector     Addr
	ConnectorType Type
	Other         Addr
}

// EventCallback receives events for one subscription. Calls for the same
// subscription are serialized in arrival order.
type EventCallback func(ctx context.Context, ev Event)

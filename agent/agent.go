package agent

import (
	"context"
	"fmt"

	"github.com/hupe1980/agentgraph/action"
	"github.com/hupe1980/agentgraph/core"
	"github.com/hupe1980/agentgraph/keynodes"
	"github.com/hupe1980/agentgraph/logging"
)

// Handler processes one event and reports the outcome.
type Handler func(ctx context.Context, inv *Invocation) core.Result

// Filter decides whether an event is meant for the agent. Events it rejects
// are dropped before any callback or handler runs.
type Filter func(ctx context.Context, inv *Invocation) (bool, error)

// Invocation carries one event and the services a handler needs.
type Invocation struct {
	// Agent is the name of the invoked agent.
	Agent string

	// Event is the store event that triggered the invocation.
	Event core.Event

	// Actions is the coordinator of the serving session.
	Actions *action.Coordinator

	// Store is the knowledge store of the serving session.
	Store core.KnowledgeStore

	// Logger is scoped to the agent.
	Logger logging.Logger
}

// Element returns the anchor the event was raised on.
func (inv *Invocation) Element() core.Addr { return inv.Event.Element }

// Connector returns the connector that raised the event.
func (inv *Invocation) Connector() core.Addr { return inv.Event.Connector }

// Target returns the opposite end of the connector. For action agents this
// is the action.
func (inv *Invocation) Target() core.Addr { return inv.Event.Other }

// Agent is a reactive handler bound to one (event type, anchor) pair.
type Agent struct {
	// Name identifies the agent in logs and callbacks.
	Name string

	// Event is the event type the agent subscribes to.
	Event core.EventType

	// Anchor is the identifier of the node the agent listens on.
	Anchor string

	// AnchorType is the type the anchor is created with when missing.
	// Zero selects keynodes.DefaultType.
	AnchorType core.Type

	// ActionClass narrows the agent to actions of one class. Agents sharing
	// an anchor are told apart by it, so it is part of the registration key.
	ActionClass string

	// OwnsAction marks the agent as responsible for the action at the
	// event target. The server finishes such an action with error when the
	// agent leaves it unfinished. Observers must leave it unset.
	OwnsAction bool

	// Filter optionally drops events before Handler runs.
	Filter Filter

	// Handler processes accepted events.
	Handler Handler
}

// New returns a plain agent.
func New(name, anchor string, event core.EventType, h Handler) *Agent {
	return &Agent{Name: name, Event: event, Anchor: anchor, Handler: h}
}

// Validate reports configuration errors.
func (a *Agent) Validate() error {
	switch {
	case a == nil:
		return fmt.Errorf("%w: nil agent", core.ErrInvalidParams)
	case a.Name == "":
		return fmt.Errorf("%w: agent without name", core.ErrInvalidParams)
	case a.Anchor == "":
		return fmt.Errorf("%w: agent %s has no anchor", core.ErrInvalidParams, a.Name)
	case !a.Event.IsValid():
		return fmt.Errorf("%w: agent %s has unknown event type %q", core.ErrInvalidParams, a.Name, a.Event)
	case a.Handler == nil:
		return fmt.Errorf("%w: agent %s has no handler", core.ErrInvalidParams, a.Name)
	}
	return nil
}

// ResolvedAnchorType returns the type used to resolve Anchor.
func (a *Agent) ResolvedAnchorType() core.Type {
	if a.AnchorType != 0 {
		return a.AnchorType
	}
	return keynodes.DefaultType(a.Anchor)
}

// String returns a short description for logs.
func (a *Agent) String() string {
	if a.ActionClass != "" {
		return fmt.Sprintf("%s(%s@%s/%s)", a.Name, a.Event, a.Anchor, a.ActionClass)
	}
	return fmt.Sprintf("%s(%s@%s)", a.Name, a.Event, a.Anchor)
}

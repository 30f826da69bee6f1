package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/agentgraph/core"
)

// Handle identifies one live agent registration.
type Handle struct {
	// ID is unique per registration.
	ID string

	// Agent is the registered agent.
	Agent *Agent

	// Anchor is the resolved anchor address.
	Anchor core.Addr

	// Subscription is the store subscription serving the agent.
	Subscription core.SubscriptionID
}

// Registrar subscribes agents. The server implements it.
type Registrar interface {
	Register(ctx context.Context, a *Agent) (Handle, error)
	Deregister(ctx context.Context, h Handle) error
}

// Module is a fixed, ordered group of agents registered as one unit.
type Module struct {
	agents []*Agent
}

// NewModule returns a module of agents in the given order.
func NewModule(agents ...*Agent) *Module {
	return &Module{agents: append([]*Agent(nil), agents...)}
}

// Agents returns the agents of the module.
func (m *Module) Agents() []*Agent {
	return append([]*Agent(nil), m.agents...)
}

// Register registers every agent in order. If one fails, the agents
// registered so far are deregistered and the error is returned.
func (m *Module) Register(ctx context.Context, r Registrar) ([]Handle, error) {
	handles := make([]Handle, 0, len(m.agents))
	for _, a := range m.agents {
		h, err := r.Register(ctx, a)
		if err != nil {
			rollback := m.Deregister(ctx, r, handles)
			return nil, errors.Join(fmt.Errorf("register agent %s: %w", a.Name, err), rollback)
		}
		handles = append(handles, h)
	}
	return handles, nil
}

// Deregister releases handles in reverse registration order. Every handle
// is attempted; errors are joined.
func (m *Module) Deregister(ctx context.Context, r Registrar, handles []Handle) error {
	var errs []error
	for i := len(handles) - 1; i >= 0; i-- {
		if err := r.Deregister(ctx, handles[i]); err != nil {
			errs = append(errs, fmt.Errorf("deregister agent %s: %w", handles[i].Agent.Name, err))
		}
	}
	return errors.Join(errs...)
}

// Serve registers the module, runs fn and deregisters the module when fn
// returns or panics.
func (m *Module) Serve(ctx context.Context, r Registrar, fn func(ctx context.Context) error) (err error) {
	handles, err := m.Register(ctx, r)
	if err != nil {
		return err
	}
	defer func() {
		if derr := m.Deregister(context.WithoutCancel(ctx), r, handles); derr != nil {
			err = errors.Join(err, derr)
		}
	}()
	return fn(ctx)
}

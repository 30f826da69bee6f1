package agent

import (
	"context"

	"github.com/hupe1980/agentgraph/core"
	"github.com/hupe1980/agentgraph/keynodes"
)

// ClassicOptions configures NewClassic.
type ClassicOptions struct {
	// Event defaults to core.EventAfterGenerateOutgoingArc.
	Event core.EventType

	// Initiation is the node the agent listens on. Defaults to
	// action_initiated.
	Initiation string
}

// NewClassic returns an agent for actions of actionClass. It runs h only for
// actions that belong to actionClass and, unless h finished the action
// itself, finishes it successfully when h returns core.ResultOK and
// unsuccessfully otherwise.
func NewClassic(name, actionClass string, h Handler, optFns ...func(o *ClassicOptions)) *Agent {
	opts := ClassicOptions{
		Event:      core.EventAfterGenerateOutgoingArc,
		Initiation: keynodes.ActionInitiated,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Agent{
		Name:        name,
		Event:       opts.Event,
		Anchor:      opts.Initiation,
		AnchorType:  core.ConstNodeClass,
		ActionClass: actionClass,
		OwnsAction:  true,
		Filter: func(ctx context.Context, inv *Invocation) (bool, error) {
			return inv.Actions.CheckClass(ctx, inv.Target(), actionClass)
		},
		Handler: func(ctx context.Context, inv *Invocation) core.Result {
			res := h(ctx, inv)

			status, err := inv.Actions.Status(ctx, inv.Target())
			if err != nil {
				inv.Logger.Error("Reading action status failed", "action", uint64(inv.Target()), "error", err)
				return core.ResultError
			}
			if status.IsFinished() {
				return res
			}
			if err := inv.Actions.Finish(ctx, inv.Target(), res.IsOK()); err != nil {
				inv.Logger.Error("Finishing action failed", "action", uint64(inv.Target()), "error", err)
			}
			inv.Logger.Info("Agent finished action", "action", uint64(inv.Target()), "result", res.String())
			return res
		},
	}
}

// Package agentgraph provides a high-level façade over the server, the action
// coordinator and configuration. Most applications interact with this package
// by:
//  1. Creating an AgentGraph via New() or NewFromConfig()
//  2. Starting it, which connects to the configured knowledge store
//  3. Adding agent modules and executing actions against them
//
// The defaults (in-process store, no-op logger) are safe for local development
// and testing; deployments typically point the endpoint at a SQLite file and
// supply a structured logger.
package agentgraph

import (
	"context"

	"github.com/hupe1980/agentgraph/action"
	"github.com/hupe1980/agentgraph/agent"
	"github.com/hupe1980/agentgraph/clock"
	"github.com/hupe1980/agentgraph/config"
	"github.com/hupe1980/agentgraph/core"
	"github.com/hupe1980/agentgraph/logging"
	"github.com/hupe1980/agentgraph/server"
)

// Options configures the AgentGraph instance.
type Options struct {
	// Config supplies the endpoint and wait settings (defaults to config.Default()).
	Config *config.Config

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger

	// Clock drives action waits (defaults to the real clock).
	Clock clock.Clock

	// Callbacks observe every agent run.
	Callbacks []server.Callback
}

// AgentGraph is the high-level façade aggregating a server and its settings.
type AgentGraph struct {
	opts   Options
	server *server.Server
}

// New creates a new AgentGraph instance with optional overrides.
func New(optFns ...func(o *Options)) *AgentGraph {
	opts := Options{
		Config: config.Default(),
		Logger: logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Config == nil {
		opts.Config = config.Default()
	}

	srv := server.New(
		opts.Config.ServerOption(opts.Logger),
		func(o *server.Options) {
			if opts.Clock != nil {
				o.Clock = opts.Clock
			}
			o.Callbacks = opts.Callbacks
		},
	)

	return &AgentGraph{opts: opts, server: srv}
}

// NewFromConfig validates cfg and builds an AgentGraph whose logger is
// derived from cfg.Log.
func NewFromConfig(cfg *config.Config, optFns ...func(o *Options)) (*AgentGraph, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := cfg.NewLogger()
	if err != nil {
		return nil, err
	}

	fns := append([]func(o *Options){func(o *Options) {
		o.Config = cfg
		o.Logger = logger
	}}, optFns...)

	return New(fns...), nil
}

// Start connects to the configured endpoint and registers added modules.
func (g *AgentGraph) Start(ctx context.Context) error {
	return g.server.Start(ctx, g.opts.Config.Endpoint)
}

// Stop deregisters all modules and closes the store.
func (g *AgentGraph) Stop(ctx context.Context) error { return g.server.Stop(ctx) }

// Run starts the graph, calls fn and always stops again.
func (g *AgentGraph) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	return g.server.Run(ctx, g.opts.Config.Endpoint, fn)
}

// AddModules adds modules, registering them at once when started.
func (g *AgentGraph) AddModules(ctx context.Context, modules ...*agent.Module) error {
	return g.server.AddModules(ctx, modules...)
}

// RemoveModules deregisters and forgets modules.
func (g *AgentGraph) RemoveModules(ctx context.Context, modules ...*agent.Module) error {
	return g.server.RemoveModules(ctx, modules...)
}

// ExecuteAgent creates an action with args, assigns it to classes, initiates
// it and waits for success within the configured wait time.
func (g *AgentGraph) ExecuteAgent(
	ctx context.Context,
	args []action.Argument,
	classes []string,
	optFns ...func(o *action.ExecOptions),
) (core.Addr, bool, error) {
	actions := g.server.Actions()
	if actions == nil {
		return 0, false, core.ErrNotStarted
	}
	return actions.ExecuteAgent(ctx, args, classes, optFns...)
}

// Server exposes the underlying server.
func (g *AgentGraph) Server() *server.Server { return g.server }

// Store returns the knowledge store of the running session, or nil.
func (g *AgentGraph) Store() core.KnowledgeStore { return g.server.Store() }

// Actions returns the action coordinator of the running session, or nil.
func (g *AgentGraph) Actions() *action.Coordinator { return g.server.Actions() }

// Config returns the effective configuration.
func (g *AgentGraph) Config() *config.Config { return g.opts.Config }

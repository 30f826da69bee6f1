// Package server owns a knowledge store connection and the live registry of
// agent modules attached to it.
//
// A Server connects on Start, subscribes the agents of every added module
// and dispatches store events to them through an explicit registry keyed by
// (event type, anchor). Dispatch runs each handler inside a fault boundary:
// panics are recovered and logged, lifecycle callbacks run around the
// handler, and an action the handler left unfinished is finished
// unsuccessfully with the action_finished_with_error marker so waiters do
// not block until their timeout.
//
// Typical usage:
//
//	srv := server.New(func(o *server.Options) { o.Logger = logger })
//	err := srv.Run(ctx, "sqlite:///var/lib/agentgraph/kb.db", func(ctx context.Context) error {
//	    if err := srv.AddModules(ctx, agent.NewModule(sumAgent)); err != nil {
//	        return err
//	    }
//	    _, ok, err := srv.Actions().ExecuteAgent(ctx, args, []string{"sum"})
//	    ...
//	})
package server

// Package agent defines agents as data and groups them into modules.
//
// An Agent is an (event type, anchor identifier, handler) triple. A server
// resolves the anchor, subscribes to the event type on it and calls the
// handler for every matching event; dispatch is a table lookup keyed by
// (event type, anchor), not a method override.
//
// Two constructors cover the common shapes:
//
//   - New builds a plain agent for any event and anchor.
//   - NewClassic builds an action agent: it listens for arcs from
//     action_initiated, ignores actions of other classes, and finishes the
//     action from the handler result when the handler did not finish it.
//
// A Module registers its agents as one unit through a Registrar. Serve is
// the scoped form: agents are deregistered on every exit path, including
// panics.
//
// Handlers must finish every action they accept. Actions a handler leaves
// unfinished are finished with error by the server.
package agent

// Package action implements the action lifecycle on top of a knowledge store.
//
// An action is a node that belongs to the "action" concept. Callers bind
// ordered arguments through rrel_1..rrel_n role arcs, assign it to one or more
// action classes and initiate it through an arc from action_initiated. Agents
// subscribed to those arcs run, attach a result structure through nrel_result
// and finish the action by connecting status markers to it. Callers observe
// the status by polling with Wait.
//
// Lifecycle:
//
//	Created -> ArgumentsBound -> ClassAssigned -> Dispatched -> Finished{Successful|Unsuccessful}
//
// Example:
//
//	c := action.New(store, nil)
//	act, ok, err := c.ExecuteAgent(ctx,
//		[]action.Argument{action.Arg(a), action.Arg(b)},
//		[]string{"sum"},
//		action.WithWaitTime(time.Second),
//	)
package action

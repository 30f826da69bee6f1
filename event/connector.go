package event

import "github.com/hupe1980/agentgraph/core"

// ConnectorEvents returns the events raised by generating connector c of type
// t between source and target: outgoing/incoming arc events for arcs, an edge
// event on both ends for common edges.
func ConnectorEvents(t core.Type, c, source, target core.Addr) []core.Event {
	switch {
	case t.IsArc():
		return []core.Event{
			{Type: core.EventAfterGenerateOutgoingArc, Element: source, Connector: c, ConnectorType: t, Other: target},
			{Type: core.EventAfterGenerateIncomingArc, Element: target, Connector: c, ConnectorType: t, Other: source},
		}
	case t.IsEdge():
		evs := []core.Event{
			{Type: core.EventAfterGenerateEdge, Element: source, Connector: c, ConnectorType: t, Other: target},
		}
		if source != target {
			evs = append(evs, core.Event{Type: core.EventAfterGenerateEdge, Element: target, Connector: c, ConnectorType: t, Other: source})
		}
		return evs
	default:
		return nil
	}
}

package testutil

import (
	"context"
	"testing"

	"github.com/hupe1980/agentgraph/action"
	"github.com/hupe1980/agentgraph/core"
	"github.com/stretchr/testify/require"
)

// IntLink creates a link holding v.
func IntLink(t testing.TB, s core.KnowledgeStore, v int64) core.Addr {
	t.Helper()
	addr, err := s.CreateLink(context.Background(), core.ConstNodeLink, core.IntContent(v))
	require.NoError(t, err)
	return addr
}

// IntArgs creates one integer link per value and returns them as static
// action arguments in order.
func IntArgs(t testing.TB, s core.KnowledgeStore, vals ...int64) []action.Argument {
	t.Helper()
	args := make([]action.Argument, len(vals))
	for i, v := range vals {
		args[i] = action.Arg(IntLink(t, s, v))
	}
	return args
}

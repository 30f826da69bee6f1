// Package servertest starts servers for tests. It lives apart from testutil
// so packages below server can use testutil without an import cycle.
package servertest

import (
	"context"
	"testing"
	"time"

	"github.com/hupe1980/agentgraph/server"
	"github.com/stretchr/testify/require"
)

// StartServer starts a server on a fresh in-memory store with a short poll
// interval and stops it when the test ends.
func StartServer(t testing.TB, optFns ...func(o *server.Options)) *server.Server {
	t.Helper()
	fns := append([]func(o *server.Options){func(o *server.Options) {
		o.PollInterval = 5 * time.Millisecond
		o.WaitTime = 2 * time.Second
	}}, optFns...)

	srv := server.New(fns...)
	require.NoError(t, srv.Start(context.Background(), "memory://"))
	t.Cleanup(func() {
		if srv.Started() {
			require.NoError(t, srv.Stop(context.Background()))
		}
	})
	return srv
}

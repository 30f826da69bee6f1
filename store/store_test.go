package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/hupe1980/agentgraph/core"
	"github.com/hupe1980/agentgraph/memstore"
	"github.com/hupe1980/agentgraph/sqlstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		endpoint string
		scheme   string
		location string
		wantErr  bool
	}{
		{"", SchemeMemory, "", false},
		{"memory://", SchemeMemory, "", false},
		{"SQLite://:memory:", SchemeSQLite, ":memory:", false},
		{"sqlite:///var/lib/kb.db", SchemeSQLite, "/var/lib/kb.db", false},
		{"sqlite://", "", "", true},
		{"localhost:8090", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.endpoint, func(t *testing.T) {
			scheme, location, err := Parse(tt.endpoint)
			if tt.wantErr {
				assert.ErrorIs(t, err, core.ErrConnection)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.scheme, scheme)
			assert.Equal(t, tt.location, location)
		})
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, "memory://")
	require.NoError(t, err)
	assert.IsType(t, &memstore.Store{}, s)
	require.NoError(t, s.Close())

	s, err = Open(ctx, "sqlite://"+filepath.Join(t.TempDir(), "kb.db"))
	require.NoError(t, err)
	assert.IsType(t, &sqlstore.Store{}, s)
	require.NoError(t, s.Close())

	_, err = Open(ctx, "ws://localhost:8090")
	assert.ErrorIs(t, err, core.ErrConnection)
}

func TestOpen_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Open(ctx, "memory://")
	assert.ErrorIs(t, err, core.ErrConnection)
}

package sqlstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/hupe1980/agentgraph/core"
	"github.com/hupe1980/agentgraph/internal/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestStore_Conformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) core.KnowledgeStore {
		s, err := Open(MemoryPath)
		require.NoError(t, err)
		return s
	})
}

func TestStore_FileConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) core.KnowledgeStore {
		s, err := Open(filepath.Join(t.TempDir(), "graph.db"))
		require.NoError(t, err)
		return s
	})
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "graph.db")

	s, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, path, s.Path())

	concept, err := s.ResolveKeynode(ctx, "concept_number", core.ConstNodeClass)
	require.NoError(t, err)
	link, err := s.CreateLink(ctx, core.ConstNodeLink, core.IntContent(5))
	require.NoError(t, err)
	arc, err := s.CreateConnector(ctx, core.ConstPermPosArc, concept, link)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	again, err := s.ResolveKeynode(ctx, "concept_number", 0)
	require.NoError(t, err)
	assert.Equal(t, concept, again)

	found, err := s.FindLinks(ctx, core.IntContent(5))
	require.NoError(t, err)
	assert.Equal(t, []core.Addr{link}, found)

	res, err := s.Search(ctx, core.Pattern{Source: concept, Type: core.VarPermPosArc})
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, arc, res[0].Connector)

	// Addresses are never reused, even after removal.
	require.NoError(t, s.Remove(ctx, link))
	fresh, err := s.CreateNode(ctx, core.ConstNode)
	require.NoError(t, err)
	assert.Greater(t, fresh, arc)
}

func TestEncodeContent_Deterministic(t *testing.T) {
	_, h1, err := encodeContent(core.StringContent("sum"))
	require.NoError(t, err)
	_, h2, err := encodeContent(core.StringContent("sum"))
	require.NoError(t, err)
	_, h3, err := encodeContent(core.StringContent("sun"))
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
	assert.NotEqual(t, h1, h3)
	assert.Len(t, h1, 32)
}

func TestIsMemoryPath(t *testing.T) {
	assert.True(t, IsMemoryPath(MemoryPath))
	assert.True(t, IsMemoryPath("file::memory:?cache=shared"))
	assert.False(t, IsMemoryPath("/tmp/graph.db"))
}

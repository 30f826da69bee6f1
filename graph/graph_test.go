package graph

import (
	"context"
	"testing"

	"github.com/hupe1980/agentgraph/core"
	"github.com/hupe1980/agentgraph/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) core.KnowledgeStore {
	t.Helper()
	s := memstore.New()
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func node(t *testing.T, s core.KnowledgeStore, typ core.Type) core.Addr {
	t.Helper()
	addr, err := s.CreateNode(context.Background(), typ)
	require.NoError(t, err)
	return addr
}

func TestCheckConnector(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	set := node(t, s, core.ConstNodeClass)
	el := node(t, s, core.ConstNode)

	ok, err := IsElementOf(ctx, s, set, el)
	require.NoError(t, err)
	assert.False(t, ok)

	arc, err := s.CreateConnector(ctx, core.ConstPermPosArc, set, el)
	require.NoError(t, err)
	ok, err = IsElementOf(ctx, s, set, el)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = CheckConnector(ctx, s, core.ConstCommonArc, set, el)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Remove(ctx, arc))
	ok, err = IsElementOf(ctx, s, set, el)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRoleRelations(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	src := node(t, s, core.ConstNode)
	a := node(t, s, core.ConstNode)
	b := node(t, s, core.ConstNode)
	rrel1 := node(t, s, core.ConstNodeRole)
	rrel2 := node(t, s, core.ConstNodeRole)

	_, err := GenerateRoleRelation(ctx, s, src, a, rrel1)
	require.NoError(t, err)
	_, err = GenerateRoleRelation(ctx, s, src, b, rrel2)
	require.NoError(t, err)

	got, err := SearchByRoleRelation(ctx, s, src, rrel2)
	require.NoError(t, err)
	assert.Equal(t, []core.Addr{b}, got)

	got, err = SearchByRoleRelation(ctx, s, src, rrel1)
	require.NoError(t, err)
	assert.Equal(t, []core.Addr{a}, got)
}

func TestNoRoleRelation(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	src := node(t, s, core.ConstNode)
	target := node(t, s, core.ConstNodeStructure)
	nrel := node(t, s, core.ConstNodeNoRole)

	arc, err := GenerateNoRoleRelation(ctx, s, src, target, nrel)
	require.NoError(t, err)
	typ, err := s.ElementType(ctx, arc)
	require.NoError(t, err)
	assert.Equal(t, core.ConstCommonArc, typ)

	got, err := SearchByNoRoleRelation(ctx, s, src, nrel)
	require.NoError(t, err)
	assert.Equal(t, []core.Addr{target}, got)

	got, err = SearchByRoleRelation(ctx, s, src, nrel)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestStructures(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	link, err := GenerateLink(ctx, s, core.IntContent(5))
	require.NoError(t, err)
	other := node(t, s, core.ConstNode)

	st, err := GenerateStructure(ctx, s, link, other)
	require.NoError(t, err)
	elements, err := StructureElements(ctx, s, st)
	require.NoError(t, err)
	assert.Equal(t, []core.Addr{link, other}, elements)

	_, err = StructureElements(ctx, s, other)
	assert.ErrorIs(t, err, core.ErrInvalidType)

	v, err := LinkInt(ctx, s, link)
	require.NoError(t, err)
	assert.Equal(t, int64(5), v)

	str, err := GenerateLink(ctx, s, core.StringContent("5"))
	require.NoError(t, err)
	_, err = LinkInt(ctx, s, str)
	assert.ErrorIs(t, err, core.ErrInvalidType)
}

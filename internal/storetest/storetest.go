// Package storetest contains a conformance suite every core.KnowledgeStore
// backend runs from its own tests. It is not intended for production usage.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/hupe1980/agentgraph/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns a fresh, empty store. The suite closes it.
type Factory func(t *testing.T) core.KnowledgeStore

// Run executes the conformance suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s core.KnowledgeStore)
	}{
		{"CreateAndType", testCreateAndType},
		{"ConnectorEndpoints", testConnectorEndpoints},
		{"ConnectorToConnector", testConnectorToConnector},
		{"Search", testSearch},
		{"KeynodeResolve", testKeynodeResolve},
		{"LinkContent", testLinkContent},
		{"FindLinks", testFindLinks},
		{"RemoveCascades", testRemoveCascades},
		{"SubscribeOutgoingArc", testSubscribeOutgoingArc},
		{"UnsubscribeStopsDelivery", testUnsubscribeStopsDelivery},
		{"Closed", testClosed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			defer func() { _ = s.Close() }()
			tt.fn(t, s)
		})
	}
}

func testCreateAndType(t *testing.T, s core.KnowledgeStore) {
	ctx := context.Background()

	n, err := s.CreateNode(ctx, core.ConstNodeClass)
	require.NoError(t, err)
	assert.True(t, n.IsValid())

	typ, err := s.ElementType(ctx, n)
	require.NoError(t, err)
	assert.Equal(t, core.ConstNodeClass, typ)

	_, err = s.CreateNode(ctx, core.ConstPermPosArc)
	assert.ErrorIs(t, err, core.ErrInvalidType)

	_, err = s.ElementType(ctx, core.Addr(999999))
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func testConnectorEndpoints(t *testing.T, s core.KnowledgeStore) {
	ctx := context.Background()
	a := mustNode(t, s)
	b := mustNode(t, s)

	c, err := s.CreateConnector(ctx, core.ConstPermPosArc, a, b)
	require.NoError(t, err)
	src, trg, err := s.Connector(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, a, src)
	assert.Equal(t, b, trg)

	_, _, err = s.Connector(ctx, a)
	assert.ErrorIs(t, err, core.ErrInvalidType)

	_, err = s.CreateConnector(ctx, core.ConstPermPosArc, a, core.Addr(999999))
	assert.ErrorIs(t, err, core.ErrNotFound)
	_, err = s.CreateConnector(ctx, core.ConstNode, a, b)
	assert.ErrorIs(t, err, core.ErrInvalidType)
}

func testConnectorToConnector(t *testing.T, s core.KnowledgeStore) {
	ctx := context.Background()
	a := mustNode(t, s)
	b := mustNode(t, s)
	rel := mustNode(t, s)

	arc, err := s.CreateConnector(ctx, core.ConstPermPosArc, a, b)
	require.NoError(t, err)
	roleArc, err := s.CreateConnector(ctx, core.ConstPermPosArc, rel, arc)
	require.NoError(t, err)

	res, err := s.Search(ctx, core.Pattern{Source: rel, Type: core.VarPermPosArc, Target: arc})
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, roleArc, res[0].Connector)
}

func testSearch(t *testing.T, s core.KnowledgeStore) {
	ctx := context.Background()
	a := mustNode(t, s)
	b := mustNode(t, s)
	c := mustNode(t, s)

	ab, err := s.CreateConnector(ctx, core.ConstPermPosArc, a, b)
	require.NoError(t, err)
	ac, err := s.CreateConnector(ctx, core.ConstPermPosArc, a, c)
	require.NoError(t, err)
	_, err = s.CreateConnector(ctx, core.ConstCommonArc, a, c)
	require.NoError(t, err)

	res, err := s.Search(ctx, core.Pattern{Source: a, Type: core.VarPermPosArc})
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, ab, res[0].Connector)
	assert.Equal(t, ac, res[1].Connector)

	res, err = s.Search(ctx, core.Pattern{Type: core.VarPermPosArc, Target: c})
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, core.Triple{Source: a, Connector: ac, Target: c}, res[0])

	res, err = s.Search(ctx, core.Pattern{Source: a, Target: c})
	require.NoError(t, err)
	assert.Len(t, res, 2)

	res, err = s.Search(ctx, core.Pattern{Source: b})
	require.NoError(t, err)
	assert.Empty(t, res)
}

func testKeynodeResolve(t *testing.T, s core.KnowledgeStore) {
	ctx := context.Background()

	_, err := s.ResolveKeynode(ctx, "missing", 0)
	assert.ErrorIs(t, err, core.ErrNotFound)

	first, err := s.ResolveKeynode(ctx, "concept_test", core.ConstNodeClass)
	require.NoError(t, err)
	second, err := s.ResolveKeynode(ctx, "concept_test", core.ConstNodeClass)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	found, err := s.ResolveKeynode(ctx, "concept_test", 0)
	require.NoError(t, err)
	assert.Equal(t, first, found)

	typ, err := s.ElementType(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, core.ConstNodeClass, typ)

	_, err = s.ResolveKeynode(ctx, "", core.ConstNode)
	assert.ErrorIs(t, err, core.ErrInvalidParams)
}

func testLinkContent(t *testing.T, s core.KnowledgeStore) {
	ctx := context.Background()
	contents := []core.Content{
		core.IntContent(42),
		core.FloatContent(2.5),
		core.StringContent("hello"),
		core.BinaryContent([]byte{0, 1, 2}),
	}
	for _, c := range contents {
		addr, err := s.CreateLink(ctx, core.ConstNodeLink, c)
		require.NoError(t, err)
		got, err := s.LinkContent(ctx, addr)
		require.NoError(t, err)
		assert.True(t, c.Equal(got), "content %s round trip: got %+v", c.Type, got)
	}

	n := mustNode(t, s)
	_, err := s.LinkContent(ctx, n)
	assert.ErrorIs(t, err, core.ErrInvalidType)

	_, err = s.CreateLink(ctx, core.ConstNodeLink, core.Content{})
	assert.ErrorIs(t, err, core.ErrInvalidType)
}

func testFindLinks(t *testing.T, s core.KnowledgeStore) {
	ctx := context.Background()
	a, err := s.CreateLink(ctx, core.ConstNodeLink, core.IntContent(5))
	require.NoError(t, err)
	_, err = s.CreateLink(ctx, core.ConstNodeLink, core.StringContent("5"))
	require.NoError(t, err)
	b, err := s.CreateLink(ctx, core.ConstNodeLink, core.IntContent(5))
	require.NoError(t, err)

	found, err := s.FindLinks(ctx, core.IntContent(5))
	require.NoError(t, err)
	assert.Equal(t, []core.Addr{a, b}, found)

	found, err = s.FindLinks(ctx, core.IntContent(6))
	require.NoError(t, err)
	assert.Empty(t, found)
}

func testRemoveCascades(t *testing.T, s core.KnowledgeStore) {
	ctx := context.Background()
	a := mustNode(t, s)
	b := mustNode(t, s)
	rel := mustNode(t, s)

	arc, err := s.CreateConnector(ctx, core.ConstPermPosArc, a, b)
	require.NoError(t, err)
	roleArc, err := s.CreateConnector(ctx, core.ConstPermPosArc, rel, arc)
	require.NoError(t, err)

	require.NoError(t, s.Remove(ctx, b))

	for _, addr := range []core.Addr{b, arc, roleArc} {
		_, err := s.ElementType(ctx, addr)
		assert.ErrorIs(t, err, core.ErrNotFound, "element %s should be removed", addr)
	}
	for _, addr := range []core.Addr{a, rel} {
		_, err := s.ElementType(ctx, addr)
		assert.NoError(t, err, "element %s should survive", addr)
	}

	res, err := s.Search(ctx, core.Pattern{Source: a})
	require.NoError(t, err)
	assert.Empty(t, res)

	k, err := s.ResolveKeynode(ctx, "to_remove", core.ConstNode)
	require.NoError(t, err)
	require.NoError(t, s.Remove(ctx, k))
	_, err = s.ResolveKeynode(ctx, "to_remove", 0)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func testSubscribeOutgoingArc(t *testing.T, s core.KnowledgeStore) {
	ctx := context.Background()
	anchor := mustNode(t, s)
	other := mustNode(t, s)

	got := make(chan core.Event, 4)
	id, err := s.Subscribe(ctx, anchor, core.EventAfterGenerateOutgoingArc, func(_ context.Context, ev core.Event) {
		got <- ev
	})
	require.NoError(t, err)

	arc, err := s.CreateConnector(ctx, core.ConstPermPosArc, anchor, other)
	require.NoError(t, err)
	_, err = s.CreateConnector(ctx, core.ConstPermPosArc, other, anchor)
	require.NoError(t, err)

	select {
	case ev := <-got:
		assert.Equal(t, id, ev.Subscription)
		assert.Equal(t, anchor, ev.Element)
		assert.Equal(t, arc, ev.Connector)
		assert.Equal(t, other, ev.Other)
		assert.Equal(t, core.ConstPermPosArc, ev.ConnectorType)
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}

	select {
	case ev := <-got:
		t.Fatalf("unexpected event %+v", ev)
	case <-time.After(30 * time.Millisecond):
	}

	_, err = s.Subscribe(ctx, core.Addr(999999), core.EventAfterGenerateOutgoingArc, func(context.Context, core.Event) {})
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func testUnsubscribeStopsDelivery(t *testing.T, s core.KnowledgeStore) {
	ctx := context.Background()
	anchor := mustNode(t, s)
	other := mustNode(t, s)

	got := make(chan core.Event, 4)
	id, err := s.Subscribe(ctx, anchor, core.EventAfterGenerateIncomingArc, func(_ context.Context, ev core.Event) {
		got <- ev
	})
	require.NoError(t, err)
	require.NoError(t, s.Unsubscribe(ctx, id))

	_, err = s.CreateConnector(ctx, core.ConstPermPosArc, other, anchor)
	require.NoError(t, err)

	select {
	case ev := <-got:
		t.Fatalf("unexpected event %+v", ev)
	case <-time.After(30 * time.Millisecond):
	}
	assert.ErrorIs(t, s.Unsubscribe(ctx, id), core.ErrNotFound)
}

func testClosed(t *testing.T, s core.KnowledgeStore) {
	ctx := context.Background()
	require.NoError(t, s.Close())
	_, err := s.CreateNode(ctx, core.ConstNode)
	assert.ErrorIs(t, err, core.ErrClosed)
	_, err = s.Search(ctx, core.Pattern{})
	assert.ErrorIs(t, err, core.ErrClosed)
}

func mustNode(t *testing.T, s core.KnowledgeStore) core.Addr {
	t.Helper()
	addr, err := s.CreateNode(context.Background(), core.ConstNode)
	require.NoError(t, err)
	return addr
}

package event

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hupe1980/agentgraph/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recorder struct {
	mu     sync.Mutex
	events []core.Event
	got    chan struct{}
}

func newRecorder() *recorder { return &recorder{got: make(chan struct{}, 128)} }

func (r *recorder) callback(_ context.Context, ev core.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	r.got <- struct{}{}
}

func (r *recorder) waitFor(t *testing.T, n int) []core.Event {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-r.got:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for event %d of %d", i+1, n)
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]core.Event(nil), r.events...)
}

func TestBus_DeliversInPublishOrder(t *testing.T) {
	bus := NewBus(nil)
	defer bus.Close()

	rec := newRecorder()
	id, err := bus.Subscribe(1, core.EventAfterGenerateOutgoingArc, rec.callback)
	require.NoError(t, err)

	for i := core.Addr(10); i < 20; i++ {
		bus.Publish(core.Event{Type: core.EventAfterGenerateOutgoingArc, Element: 1, Connector: i})
	}

	events := rec.waitFor(t, 10)
	require.Len(t, events, 10)
	for i, ev := range events {
		assert.Equal(t, core.Addr(10+i), ev.Connector)
		assert.Equal(t, id, ev.Subscription)
	}
}

func TestBus_FiltersByAnchorAndType(t *testing.T) {
	bus := NewBus(nil)
	defer bus.Close()

	rec := newRecorder()
	_, err := bus.Subscribe(1, core.EventAfterGenerateIncomingArc, rec.callback)
	require.NoError(t, err)

	bus.Publish(
		core.Event{Type: core.EventAfterGenerateOutgoingArc, Element: 1, Connector: 5},
		core.Event{Type: core.EventAfterGenerateIncomingArc, Element: 2, Connector: 6},
		core.Event{Type: core.EventAfterGenerateIncomingArc, Element: 1, Connector: 7},
	)

	events := rec.waitFor(t, 1)
	require.Len(t, events, 1)
	assert.Equal(t, core.Addr(7), events[0].Connector)
}

func TestBus_PanicDoesNotStopSubscription(t *testing.T) {
	bus := NewBus(nil)
	defer bus.Close()

	rec := newRecorder()
	_, err := bus.Subscribe(1, core.EventAfterGenerateEdge, func(ctx context.Context, ev core.Event) {
		if ev.Connector == 1 {
			panic("boom")
		}
		rec.callback(ctx, ev)
	})
	require.NoError(t, err)

	bus.Publish(
		core.Event{Type: core.EventAfterGenerateEdge, Element: 1, Connector: 1},
		core.Event{Type: core.EventAfterGenerateEdge, Element: 1, Connector: 2},
	)

	events := rec.waitFor(t, 1)
	assert.Equal(t, core.Addr(2), events[0].Connector)
}

func TestBus_UnsubscribeStopsDelivery(t *testing.T) {
	bus := NewBus(nil)
	defer bus.Close()

	rec := newRecorder()
	id, err := bus.Subscribe(1, core.EventAfterGenerateOutgoingArc, rec.callback)
	require.NoError(t, err)
	assert.Equal(t, 1, bus.Len())

	bus.Publish(core.Event{Type: core.EventAfterGenerateOutgoingArc, Element: 1, Connector: 3})
	rec.waitFor(t, 1)

	require.NoError(t, bus.Unsubscribe(id))
	assert.Equal(t, 0, bus.Len())
	bus.Publish(core.Event{Type: core.EventAfterGenerateOutgoingArc, Element: 1, Connector: 4})

	select {
	case <-rec.got:
		t.Fatal("delivery after unsubscribe")
	case <-time.After(50 * time.Millisecond):
	}

	assert.ErrorIs(t, bus.Unsubscribe(id), core.ErrNotFound)
}

func TestBus_QueuedEventsDroppedOnUnsubscribe(t *testing.T) {
	bus := NewBus(nil)
	defer bus.Close()

	var calls atomic.Int32
	entered := make(chan struct{})
	release := make(chan struct{})
	id, err := bus.Subscribe(1, core.EventAfterGenerateOutgoingArc, func(context.Context, core.Event) {
		if calls.Add(1) == 1 {
			close(entered)
			<-release
		}
	})
	require.NoError(t, err)

	bus.Publish(
		core.Event{Type: core.EventAfterGenerateOutgoingArc, Element: 1, Connector: 3},
		core.Event{Type: core.EventAfterGenerateOutgoingArc, Element: 1, Connector: 4},
	)
	<-entered

	require.NoError(t, bus.Unsubscribe(id))
	close(release)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
}

func TestBus_DequeuedEventNotDeliveredAfterClose(t *testing.T) {
	bus := NewBus(nil)
	defer bus.Close()

	var calls atomic.Int32
	m := &mailbox{
		id:   1,
		key:  key{anchor: 1, typ: core.EventAfterGenerateOutgoingArc},
		cb:   func(context.Context, core.Event) { calls.Add(1) },
		wake: make(chan struct{}, 1),
	}
	m.enqueue(core.Event{Type: core.EventAfterGenerateOutgoingArc, Element: 1, Connector: 3})

	ev, ok := m.next()
	require.True(t, ok)
	assert.True(t, m.begin())

	m.close()
	bus.deliver(m, ev)
	assert.Zero(t, calls.Load())
}

func TestBus_SameSubscriptionIsSerialized(t *testing.T) {
	bus := NewBus(nil)
	defer bus.Close()

	var mu sync.Mutex
	active, maxActive := 0, 0
	done := make(chan struct{}, 20)
	_, err := bus.Subscribe(1, core.EventAfterGenerateOutgoingArc, func(context.Context, core.Event) {
		mu.Lock()
		active++
		if active > maxActive {
			maxActive = active
		}
		mu.Unlock()
		time.Sleep(time.Millisecond)
		mu.Lock()
		active--
		mu.Unlock()
		done <- struct{}{}
	})
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		go bus.Publish(core.Event{Type: core.EventAfterGenerateOutgoingArc, Element: 1})
	}
	for i := 0; i < 20; i++ {
		<-done
	}
	assert.Equal(t, 1, maxActive)
}

func TestBus_SubscribeValidation(t *testing.T) {
	bus := NewBus(nil)

	_, err := bus.Subscribe(0, core.EventAfterGenerateEdge, func(context.Context, core.Event) {})
	assert.ErrorIs(t, err, core.ErrInvalidParams)
	_, err = bus.Subscribe(1, core.EventType("bogus"), func(context.Context, core.Event) {})
	assert.ErrorIs(t, err, core.ErrInvalidParams)
	_, err = bus.Subscribe(1, core.EventAfterGenerateEdge, nil)
	assert.ErrorIs(t, err, core.ErrInvalidParams)

	bus.Close()
	bus.Close()
	_, err = bus.Subscribe(1, core.EventAfterGenerateEdge, func(context.Context, core.Event) {})
	assert.ErrorIs(t, err, core.ErrClosed)
}

func TestConnectorEvents(t *testing.T) {
	arc := ConnectorEvents(core.ConstPermPosArc, 9, 1, 2)
	require.Len(t, arc, 2)
	assert.Equal(t, core.EventAfterGenerateOutgoingArc, arc[0].Type)
	assert.Equal(t, core.Addr(1), arc[0].Element)
	assert.Equal(t, core.Addr(2), arc[0].Other)
	assert.Equal(t, core.EventAfterGenerateIncomingArc, arc[1].Type)
	assert.Equal(t, core.Addr(2), arc[1].Element)

	edge := ConnectorEvents(core.ConstCommonEdge, 9, 1, 2)
	require.Len(t, edge, 2)
	assert.Equal(t, core.EventAfterGenerateEdge, edge[1].Type)

	loop := ConnectorEvents(core.ConstCommonEdge, 9, 1, 1)
	assert.Len(t, loop, 1)

	assert.Nil(t, ConnectorEvents(core.ConstNode, 9, 1, 2))
}

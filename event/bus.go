package event

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/hupe1980/agentgraph/core"
	"github.com/hupe1980/agentgraph/logging"
)

type key struct {
	anchor core.Addr
	typ    core.EventType
}

// Bus routes published events to subscriptions keyed by (anchor, event type).
type Bus struct {
	logger logging.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	nextID core.SubscriptionID
	subs   map[core.SubscriptionID]*mailbox
	byKey  map[key]map[core.SubscriptionID]*mailbox
	closed bool

	wg sync.WaitGroup
}

// NewBus creates an empty bus. A nil logger discards delivery faults.
func NewBus(logger logging.Logger) *Bus {
	ctx, cancel := context.WithCancel(context.Background())
	return &Bus{
		logger: logging.OrNoOp(logger),
		ctx:    ctx,
		cancel: cancel,
		subs:   make(map[core.SubscriptionID]*mailbox),
		byKey:  make(map[key]map[core.SubscriptionID]*mailbox),
	}
}

// Subscribe registers cb for events of type et anchored on anchor and starts
// the subscription's delivery goroutine.
func (b *Bus) Subscribe(anchor core.Addr, et core.EventType, cb core.EventCallback) (core.SubscriptionID, error) {
	if !anchor.IsValid() || !et.IsValid() || cb == nil {
		return 0, fmt.Errorf("%w: subscribe anchor=%s event=%q", core.ErrInvalidParams, anchor, et)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0, core.ErrClosed
	}

	b.nextID++
	m := &mailbox{
		id:   b.nextID,
		key:  key{anchor: anchor, typ: et},
		cb:   cb,
		wake: make(chan struct{}, 1),
	}
	b.subs[m.id] = m
	if b.byKey[m.key] == nil {
		b.byKey[m.key] = make(map[core.SubscriptionID]*mailbox)
	}
	b.byKey[m.key][m.id] = m

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.run(m)
	}()

	return m.id, nil
}

// Unsubscribe releases a subscription. No delivery begins after it returns;
// a callback already running is not awaited.
func (b *Bus) Unsubscribe(id core.SubscriptionID) error {
	b.mu.Lock()
	m, ok := b.subs[id]
	if ok {
		delete(b.subs, id)
		if set := b.byKey[m.key]; set != nil {
			delete(set, id)
			if len(set) == 0 {
				delete(b.byKey, m.key)
			}
		}
	}
	b.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: subscription %d", core.ErrNotFound, id)
	}
	m.close()
	return nil
}

// Publish enqueues each event on every subscription matching its element and
// type. The Subscription field of the events is filled in per delivery.
func (b *Bus) Publish(events ...core.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, ev := range events {
		for _, m := range b.byKey[key{anchor: ev.Element, typ: ev.Type}] {
			m.enqueue(ev)
		}
	}
}

// Len returns the number of live subscriptions.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close stops every subscription and waits for delivery goroutines to exit.
// Close is idempotent.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for id, m := range b.subs {
		m.close()
		delete(b.subs, id)
	}
	b.byKey = make(map[key]map[core.SubscriptionID]*mailbox)
	b.mu.Unlock()

	b.cancel()
	b.wg.Wait()
}

func (b *Bus) run(m *mailbox) {
	for {
		ev, ok := m.next()
		if !ok {
			return
		}
		b.deliver(m, ev)
	}
}

func (b *Bus) deliver(m *mailbox, ev core.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event callback panicked",
				"subscription", uint64(m.id),
				"anchor", uint64(m.key.anchor),
				"event", string(m.key.typ),
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
		}
	}()
	if !m.begin() {
		return
	}
	ev.Subscription = m.id
	m.cb(b.ctx, ev)
}

// mailbox is the unbounded ordered queue of one subscription.
type mailbox struct {
	id  core.SubscriptionID
	key key
	cb  core.EventCallback

	mu     sync.Mutex
	queue  []core.Event
	closed bool
	wake   chan struct{}
}

func (m *mailbox) enqueue(ev core.Event) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.queue = append(m.queue, ev)
	m.mu.Unlock()
	m.signal()
}

// next blocks until an event is available or the mailbox is closed.
func (m *mailbox) next() (core.Event, bool) {
	m.mu.Lock()
	for len(m.queue) == 0 && !m.closed {
		m.mu.Unlock()
		<-m.wake
		m.mu.Lock()
	}
	defer m.mu.Unlock()
	if m.closed {
		return core.Event{}, false
	}
	ev := m.queue[0]
	m.queue[0] = core.Event{}
	m.queue = m.queue[1:]
	return ev, true
}

// begin reports whether a dequeued event may still be delivered. Once close
// has run it returns false.
func (m *mailbox) begin() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.closed
}

func (m *mailbox) close() {
	m.mu.Lock()
	m.closed = true
	m.queue = nil
	m.mu.Unlock()
	m.signal()
}

func (m *mailbox) signal() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

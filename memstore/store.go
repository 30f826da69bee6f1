package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/hupe1980/agentgraph/core"
	"github.com/hupe1980/agentgraph/event"
	"github.com/hupe1980/agentgraph/logging"
)

// Options configures a Store.
type Options struct {
	// Logger receives delivery faults. Defaults to NoOpLogger.
	Logger logging.Logger
}

type element struct {
	typ     core.Type
	source  core.Addr
	target  core.Addr
	content core.Content
}

// Store is an in-memory knowledge store.
//
// Layout: addr -> element, plus per-element sets of outgoing and incoming
// connectors and a bidirectional keynode index.
type Store struct {
	mu       sync.RWMutex
	last     core.Addr
	elements map[core.Addr]*element
	out      map[core.Addr]map[core.Addr]struct{}
	in       map[core.Addr]map[core.Addr]struct{}
	keynodes map[string]core.Addr
	idtfs    map[core.Addr]string
	closed   bool

	bus *event.Bus
}

// Ensures Store implements core.KnowledgeStore at compile time.
var _ core.KnowledgeStore = (*Store)(nil)

// New returns an empty store.
func New(optFns ...func(o *Options)) *Store {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Store{
		elements: make(map[core.Addr]*element),
		out:      make(map[core.Addr]map[core.Addr]struct{}),
		in:       make(map[core.Addr]map[core.Addr]struct{}),
		keynodes: make(map[string]core.Addr),
		idtfs:    make(map[core.Addr]string),
		bus:      event.NewBus(opts.Logger),
	}
}

// CreateNode creates a node of type t.
func (s *Store) CreateNode(_ context.Context, t core.Type) (core.Addr, error) {
	if t&core.TypeNode == 0 {
		return 0, fmt.Errorf("%w: %s is not a node type", core.ErrInvalidType, t)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, core.ErrClosed
	}
	return s.addLocked(&element{typ: t}), nil
}

// CreateLink creates a link carrying a copy of content.
func (s *Store) CreateLink(_ context.Context, t core.Type, content core.Content) (core.Addr, error) {
	if t == 0 {
		t = core.ConstNodeLink
	}
	if !t.IsLink() {
		return 0, fmt.Errorf("%w: %s is not a link type", core.ErrInvalidType, t)
	}
	if err := content.Validate(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, core.ErrClosed
	}
	return s.addLocked(&element{typ: t, content: content.Clone()}), nil
}

// CreateConnector creates a connector between two existing elements and
// publishes the resulting events.
func (s *Store) CreateConnector(_ context.Context, t core.Type, source, target core.Addr) (core.Addr, error) {
	if !t.IsConnector() {
		return 0, fmt.Errorf("%w: %s is not a connector type", core.ErrInvalidType, t)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, core.ErrClosed
	}
	if _, ok := s.elements[source]; !ok {
		s.mu.Unlock()
		return 0, fmt.Errorf("%w: connector source %s", core.ErrNotFound, source)
	}
	if _, ok := s.elements[target]; !ok {
		s.mu.Unlock()
		return 0, fmt.Errorf("%w: connector target %s", core.ErrNotFound, target)
	}
	addr := s.addLocked(&element{typ: t, source: source, target: target})
	link(s.out, source, addr)
	link(s.in, target, addr)
	s.mu.Unlock()

	s.bus.Publish(event.ConnectorEvents(t, addr, source, target)...)
	return addr, nil
}

// ElementType returns the type of addr.
func (s *Store) ElementType(_ context.Context, addr core.Addr) (core.Type, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	el, err := s.getLocked(addr)
	if err != nil {
		return 0, err
	}
	return el.typ, nil
}

// Connector returns the endpoints of a connector.
func (s *Store) Connector(_ context.Context, addr core.Addr) (core.Addr, core.Addr, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	el, err := s.getLocked(addr)
	if err != nil {
		return 0, 0, err
	}
	if !el.typ.IsConnector() {
		return 0, 0, fmt.Errorf("%w: %s is not a connector", core.ErrInvalidType, addr)
	}
	return el.source, el.target, nil
}

// ResolveKeynode returns the element bound to idtf, creating a node of type t
// when none exists and t is non-zero.
func (s *Store) ResolveKeynode(_ context.Context, idtf string, t core.Type) (core.Addr, error) {
	if idtf == "" {
		return 0, fmt.Errorf("%w: empty identifier", core.ErrInvalidParams)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, core.ErrClosed
	}
	if addr, ok := s.keynodes[idtf]; ok {
		return addr, nil
	}
	if t == 0 {
		return 0, fmt.Errorf("%w: keynode %q", core.ErrNotFound, idtf)
	}
	if t&core.TypeNode == 0 {
		return 0, fmt.Errorf("%w: keynode %q must be a node, got %s", core.ErrInvalidType, idtf, t)
	}
	addr := s.addLocked(&element{typ: t})
	s.keynodes[idtf] = addr
	s.idtfs[addr] = idtf
	return addr, nil
}

// Search returns the connectors matching p ordered by creation.
func (s *Store) Search(_ context.Context, p core.Pattern) ([]core.Triple, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, core.ErrClosed
	}

	var candidates map[core.Addr]struct{}
	switch {
	case p.Source.IsValid():
		candidates = s.out[p.Source]
	case p.Target.IsValid():
		candidates = s.in[p.Target]
	default:
		candidates = make(map[core.Addr]struct{})
		for addr, el := range s.elements {
			if el.typ.IsConnector() {
				candidates[addr] = struct{}{}
			}
		}
	}

	res := make([]core.Triple, 0, len(candidates))
	for addr := range candidates {
		el := s.elements[addr]
		if p.Source.IsValid() && el.source != p.Source {
			continue
		}
		if p.Target.IsValid() && el.target != p.Target {
			continue
		}
		if !el.typ.Matches(p.Type) {
			continue
		}
		res = append(res, core.Triple{Source: el.source, Connector: addr, Target: el.target})
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Connector < res[j].Connector })
	return res, nil
}

// LinkContent returns a copy of the content of a link.
func (s *Store) LinkContent(_ context.Context, addr core.Addr) (core.Content, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	el, err := s.getLocked(addr)
	if err != nil {
		return core.Content{}, err
	}
	if !el.typ.IsLink() {
		return core.Content{}, fmt.Errorf("%w: %s is not a link", core.ErrInvalidType, addr)
	}
	return el.content.Clone(), nil
}

// FindLinks returns the links whose content equals c ordered by creation.
func (s *Store) FindLinks(_ context.Context, c core.Content) ([]core.Addr, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, core.ErrClosed
	}
	var res []core.Addr
	for addr, el := range s.elements {
		if el.typ.IsLink() && el.content.Equal(c) {
			res = append(res, addr)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i] < res[j] })
	return res, nil
}

// Remove deletes the elements and, transitively, every connector incident to
// a removed element. Unknown addresses are ignored.
func (s *Store) Remove(_ context.Context, addrs ...core.Addr) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return core.ErrClosed
	}

	queue := append([]core.Addr(nil), addrs...)
	for len(queue) > 0 {
		addr := queue[0]
		queue = queue[1:]
		el, ok := s.elements[addr]
		if !ok {
			continue
		}
		for c := range s.out[addr] {
			queue = append(queue, c)
		}
		for c := range s.in[addr] {
			queue = append(queue, c)
		}
		if el.typ.IsConnector() {
			unlink(s.out, el.source, addr)
			unlink(s.in, el.target, addr)
		}
		delete(s.out, addr)
		delete(s.in, addr)
		delete(s.elements, addr)
		if idtf, ok := s.idtfs[addr]; ok {
			delete(s.idtfs, addr)
			delete(s.keynodes, idtf)
		}
	}
	return nil
}

// Subscribe registers cb for events of type et anchored on anchor.
func (s *Store) Subscribe(_ context.Context, anchor core.Addr, et core.EventType, cb core.EventCallback) (core.SubscriptionID, error) {
	s.mu.RLock()
	_, err := s.getLocked(anchor)
	s.mu.RUnlock()
	if err != nil {
		return 0, err
	}
	return s.bus.Subscribe(anchor, et, cb)
}

// Unsubscribe releases a subscription.
func (s *Store) Unsubscribe(_ context.Context, id core.SubscriptionID) error {
	return s.bus.Unsubscribe(id)
}

// Len returns the number of live elements.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.elements)
}

// Close releases all subscriptions. Subsequent operations return ErrClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.bus.Close()
	return nil
}

func (s *Store) addLocked(el *element) core.Addr {
	s.last++
	s.elements[s.last] = el
	return s.last
}

func (s *Store) getLocked(addr core.Addr) (*element, error) {
	if s.closed {
		return nil, core.ErrClosed
	}
	el, ok := s.elements[addr]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrNotFound, addr)
	}
	return el, nil
}

func link(index map[core.Addr]map[core.Addr]struct{}, key, connector core.Addr) {
	set, ok := index[key]
	if !ok {
		set = make(map[core.Addr]struct{})
		index[key] = set
	}
	set[connector] = struct{}{}
}

func unlink(index map[core.Addr]map[core.Addr]struct{}, key, connector core.Addr) {
	if set, ok := index[key]; ok {
		delete(set, connector)
		if len(set) == 0 {
			delete(index, key)
		}
	}
}

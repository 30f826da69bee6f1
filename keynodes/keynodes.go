// Package keynodes resolves well-known symbolic identifiers to store
// addresses and caches them for the lifetime of one server session.
package keynodes

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/hupe1980/agentgraph/core"
	"golang.org/x/sync/singleflight"
)

// Well-known identifiers.
const (
	Action                       = "action"
	ActionInitiated              = "action_initiated"
	ActionFinished               = "action_finished"
	ActionFinishedSuccessfully   = "action_finished_successfully"
	ActionFinishedUnsuccessfully = "action_finished_unsuccessfully"
	ActionFinishedWithError      = "action_finished_with_error"
	NrelResult                   = "nrel_result"
	RrelDynamicArgument          = "rrel_dynamic_argument"

	rrelPrefix = "rrel_"
	nrelPrefix = "nrel_"
)

// Rrel returns the identifier of the positional role relation for index i
// (1-based).
func Rrel(i int) string { return rrelPrefix + strconv.Itoa(i) }

// DefaultType picks the node type an identifier is created with: role
// relations for rrel_*, non-role relations for nrel_*, classes otherwise.
func DefaultType(idtf string) core.Type {
	switch {
	case strings.HasPrefix(idtf, rrelPrefix):
		return core.ConstNodeRole
	case strings.HasPrefix(idtf, nrelPrefix):
		return core.ConstNodeNoRole
	default:
		return core.ConstNodeClass
	}
}

// Cache is an explicit identifier table bound to one store. It is safe for
// concurrent use; concurrent first resolutions of the same identifier reach
// the store once.
type Cache struct {
	store core.KnowledgeStore

	mu    sync.RWMutex
	addrs map[string]core.Addr
	group singleflight.Group
}

// New returns an empty cache over store.
func New(store core.KnowledgeStore) *Cache {
	return &Cache{store: store, addrs: make(map[string]core.Addr)}
}

// Get resolves idtf, creating it with DefaultType when missing.
func (c *Cache) Get(ctx context.Context, idtf string) (core.Addr, error) {
	return c.Resolve(ctx, idtf, DefaultType(idtf))
}

// Rrel resolves the positional role relation for index i.
func (c *Cache) Rrel(ctx context.Context, i int) (core.Addr, error) {
	if i < 1 {
		return 0, fmt.Errorf("%w: role index %d", core.ErrInvalidParams, i)
	}
	return c.Get(ctx, Rrel(i))
}

// Find resolves idtf without creating it.
func (c *Cache) Find(ctx context.Context, idtf string) (core.Addr, error) {
	return c.Resolve(ctx, idtf, 0)
}

// Resolve returns the address bound to idtf. With t == 0 a missing
// identifier yields core.ErrNotFound; otherwise it is created with type t.
func (c *Cache) Resolve(ctx context.Context, idtf string, t core.Type) (core.Addr, error) {
	c.mu.RLock()
	addr, ok := c.addrs[idtf]
	c.mu.RUnlock()
	if ok {
		return addr, nil
	}

	key := idtf
	if t == 0 {
		key = "?" + idtf
	}
	v, err, _ := c.group.Do(key, func() (any, error) {
		addr, err := c.store.ResolveKeynode(ctx, idtf, t)
		if err != nil {
			return core.Addr(0), err
		}
		c.mu.Lock()
		c.addrs[idtf] = addr
		c.mu.Unlock()
		return addr, nil
	})
	if err != nil {
		return 0, fmt.Errorf("resolve keynode %q: %w", idtf, err)
	}
	return v.(core.Addr), nil
}

// Len returns the number of cached identifiers.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.addrs)
}

// Reset drops every cached binding. The store keeps its keynodes.
func (c *Cache) Reset() {
	c.mu.Lock()
	c.addrs = make(map[string]core.Addr)
	c.mu.Unlock()
}

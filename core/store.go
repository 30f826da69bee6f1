package core

import "context"

// KnowledgeStore is the narrow interface the coordination core consumes from
// a graph store. Implementations must be safe for concurrent use; the core
// adds no locking around store operations.
//
// Implementations SHOULD:
//   - Return ErrNotFound (wrapped) for unknown addresses
//   - Return ErrClosed (wrapped) once Close has been called
//   - Deliver events for one subscription in creation order
type KnowledgeStore interface {
	// CreateNode creates a node of the given node type.
	CreateNode(ctx context.Context, t Type) (Addr, error)

	// CreateLink creates a link carrying content.
	CreateLink(ctx context.Context, t Type, content Content) (Addr, error)

	// CreateConnector creates a connector between two existing elements. The
	// target may itself be a connector.
	CreateConnector(ctx context.Context, t Type, source, target Addr) (Addr, error)

	// ElementType returns the type of an element.
	ElementType(ctx context.Context, addr Addr) (Type, error)

	// Connector returns the endpoints of a connector.
	Connector(ctx context.Context, addr Addr) (source, target Addr, err error)

	// ResolveKeynode returns the element bound to idtf. When none exists and
	// t is non-zero a new element of type t is created and bound; when t is
	// zero ErrNotFound is returned.
	ResolveKeynode(ctx context.Context, idtf string, t Type) (Addr, error)

	// Search returns every connector matching the pattern.
	Search(ctx context.Context, p Pattern) ([]Triple, error)

	// LinkContent returns the content of a link.
	LinkContent(ctx context.Context, addr Addr) (Content, error)

	// FindLinks returns the links whose content equals c.
	FindLinks(ctx context.Context, c Content) ([]Addr, error)

	// Remove deletes elements together with every connector incident to them.
	Remove(ctx context.Context, addrs ...Addr) error

	// Subscribe registers cb for events of type et anchored on anchor.
	Subscribe(ctx context.Context, anchor Addr, et EventType, cb EventCallback) (SubscriptionID, error)

	// Unsubscribe releases a subscription. No delivery begins after it
	// returns; an in-flight callback is not awaited.
	Unsubscribe(ctx context.Context, id SubscriptionID) error

	// Close releases the store and all of its subscriptions.
	Close() error
}

// Package memstore provides a volatile core.KnowledgeStore kept entirely in
// process memory. It is safe for concurrent access and best suited for tests,
// examples and single-process deployments. Events are delivered through an
// event.Bus.
package memstore

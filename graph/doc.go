// Package graph holds small, store-agnostic helpers for common shapes in the
// knowledge graph: connector checks, role and non-role relations, links and
// structures.
package graph

// Package core provides the foundational domain types and interfaces used by
// agentgraph. It defines the shared vocabulary for:
//
//   - Graph elements (addresses, element types, link content)
//   - Events raised by a knowledge store when connectors are generated
//   - The KnowledgeStore interface every backend implements
//   - Agent handler results and sentinel errors
//
// The package intentionally keeps implementation concerns (persistence, event
// delivery, dispatch, action coordination) out of scope, exposing small
// interfaces so custom backends can be plugged in.
package core

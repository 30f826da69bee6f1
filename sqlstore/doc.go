// Package sqlstore provides a durable core.KnowledgeStore backed by SQLite
// through the pure-Go modernc.org/sqlite driver.
//
// Elements, link contents and keynode bindings survive process restarts;
// subscriptions are process-local and are delivered through an event.Bus when
// this process generates connectors. Link content is stored CBOR-encoded and
// indexed by its BLAKE3 digest so FindLinks does not scan every link.
package sqlstore

// Package event implements the subscription plumbing shared by knowledge
// store backends.
//
// A Bus keeps one mailbox per subscription. Publishing appends to every
// matching mailbox without blocking; a dedicated goroutine per mailbox drains
// it in order and invokes the callback. Deliveries for one subscription are
// therefore serialized in publish order while different subscriptions run
// concurrently. Callback panics are recovered and logged at the delivery
// boundary and never stop the mailbox.
package event

// Package clock provides an injectable time abstraction so polling loops can
// be driven deterministically in tests.
//
// Production code holds a Clock and calls Now, After or Sleep on it instead of
// the time package. Real() forwards to the standard library; Fake() returns a
// clock that only moves when Advance is called:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	go coordinator.Wait(...)   // registers a sleep on c
//	c.WaitForTimers(1)         // block until the sleep is pending
//	c.Advance(100 * time.Millisecond)
package clock

import "time"

// Clock abstracts the time operations used by agentgraph.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives the current time once d has
	// elapsed. If d <= 0 the channel receives immediately.
	After(d time.Duration) <-chan time.Time

	// Sleep pauses the calling goroutine for at least d.
	Sleep(d time.Duration)
}

// Real returns a Clock backed by the standard time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

func (realClock) Sleep(d time.Duration) { time.Sleep(d) }

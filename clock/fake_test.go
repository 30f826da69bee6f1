package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestFakeClock_NowStandsStill(t *testing.T) {
	c := Fake(epoch)
	assert.Equal(t, epoch, c.Now())
	c.Advance(3 * time.Second)
	assert.Equal(t, epoch.Add(3*time.Second), c.Now())
}

func TestFakeClock_SleepWakesOnAdvance(t *testing.T) {
	c := Fake(epoch)
	done := make(chan struct{})
	go func() {
		c.Sleep(time.Second)
		close(done)
	}()

	c.WaitForTimers(1)
	c.Advance(500 * time.Millisecond)
	select {
	case <-done:
		t.Fatal("sleep returned before its deadline")
	default:
	}
	assert.Equal(t, 1, c.PendingCount())

	c.Advance(500 * time.Millisecond)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sleep did not return after deadline")
	}
	assert.Equal(t, 0, c.PendingCount())
}

func TestFakeClock_AfterNonPositiveFiresImmediately(t *testing.T) {
	c := Fake(epoch)
	select {
	case got := <-c.After(0):
		assert.Equal(t, epoch, got)
	default:
		t.Fatal("expected immediate delivery")
	}
	c.Sleep(-time.Second)
	require.Equal(t, 0, c.PendingCount())
}

func TestRealClock_Sleep(t *testing.T) {
	c := Real()
	start := c.Now()
	c.Sleep(5 * time.Millisecond)
	assert.GreaterOrEqual(t, c.Now().Sub(start), 5*time.Millisecond)
}

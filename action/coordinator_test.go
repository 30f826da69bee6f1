package action

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/hupe1980/agentgraph/clock"
	"github.com/hupe1980/agentgraph/core"
	"github.com/hupe1980/agentgraph/graph"
	"github.com/hupe1980/agentgraph/keynodes"
	"github.com/hupe1980/agentgraph/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

const interval = 100 * time.Millisecond

func newCoordinator(t *testing.T) (*Coordinator, *clock.FakeClock) {
	t.Helper()
	store := memstore.New()
	t.Cleanup(func() { _ = store.Close() })
	fc := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	c := New(store, nil, func(o *Options) {
		o.Clock = fc
		o.PollInterval = interval
	})
	return c, fc
}

func nodes(t *testing.T, s core.KnowledgeStore, n int) []core.Addr {
	t.Helper()
	res := make([]core.Addr, n)
	for i := range res {
		addr, err := s.CreateNode(context.Background(), core.ConstNode)
		require.NoError(t, err)
		res[i] = addr
	}
	return res
}

func TestGenerate(t *testing.T) {
	c, _ := newCoordinator(t)
	ctx := context.Background()

	act, err := c.Generate(ctx)
	require.NoError(t, err)

	concept, err := c.Keynodes().Get(ctx, keynodes.Action)
	require.NoError(t, err)
	ok, err := graph.IsElementOf(ctx, c.Store(), concept, act)
	require.NoError(t, err)
	assert.True(t, ok)

	status, err := c.Status(ctx, act)
	require.NoError(t, err)
	assert.Equal(t, StatusNotFinished, status)
}

func TestArguments_Order(t *testing.T) {
	tests := []struct {
		name  string
		order []int
	}{
		{"none", nil},
		{"single", []int{0}},
		{"forward", []int{0, 1, 2}},
		{"reverse", []int{2, 1, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newCoordinator(t)
			ctx := context.Background()
			pool := nodes(t, c.Store(), 3)

			act, err := c.Generate(ctx)
			require.NoError(t, err)

			var want []Argument
			for _, i := range tt.order {
				want = append(want, Arg(pool[i]))
			}
			require.NoError(t, c.AddArguments(ctx, act, want...))

			got, err := c.Arguments(ctx, act, len(want))
			require.NoError(t, err)
			if diff := cmp.Diff(append([]Argument{}, want...), got); diff != "" {
				t.Errorf("Arguments() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestAddArguments_AppendsAndCarriesFlag(t *testing.T) {
	c, _ := newCoordinator(t)
	ctx := context.Background()
	pool := nodes(t, c.Store(), 3)

	act, err := c.Generate(ctx)
	require.NoError(t, err)

	require.NoError(t, c.AddArguments(ctx, act, Arg(pool[0]), Argument{Addr: pool[1], Dynamic: true}))
	require.NoError(t, c.AddArguments(ctx, act, Arg(pool[2])))

	got, err := c.Arguments(ctx, act, 3)
	require.NoError(t, err)
	want := []Argument{
		{Addr: pool[0]},
		{Addr: pool[1], Dynamic: true},
		{Addr: pool[2]},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Arguments() mismatch (-want +got):\n%s", diff)
	}

	_, err = c.Arguments(ctx, act, 4)
	assert.ErrorIs(t, err, core.ErrInvalidParams)

	err = c.AddArguments(ctx, act, Argument{})
	assert.ErrorIs(t, err, core.ErrInvalidParams)
}

func TestArguments_TooFew(t *testing.T) {
	c, _ := newCoordinator(t)
	ctx := context.Background()

	act, err := c.Generate(ctx)
	require.NoError(t, err)

	_, err = c.Arguments(ctx, act, 2)
	assert.ErrorIs(t, err, core.ErrInvalidParams)

	got, err := c.Arguments(ctx, act, 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCheckClass_IsLive(t *testing.T) {
	c, _ := newCoordinator(t)
	ctx := context.Background()
	s := c.Store()

	plain := nodes(t, s, 1)[0]
	ok, err := c.CheckClass(ctx, plain, "test_action_class")
	require.NoError(t, err)
	assert.False(t, ok, "unknown class")

	class, err := c.Keynodes().Resolve(ctx, "test_action_class", core.ConstNodeClass)
	require.NoError(t, err)
	classArc, err := s.CreateConnector(ctx, core.ConstPermPosArc, class, plain)
	require.NoError(t, err)

	ok, err = c.CheckClass(ctx, plain, "test_action_class")
	require.NoError(t, err)
	assert.False(t, ok, "class arc without action membership")

	concept, err := c.Keynodes().Get(ctx, keynodes.Action)
	require.NoError(t, err)
	_, err = s.CreateConnector(ctx, core.ConstPermPosArc, concept, plain)
	require.NoError(t, err)

	ok, err = c.CheckClassAddr(ctx, plain, class)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, s.Remove(ctx, classArc))
	ok, err = c.CheckClass(ctx, plain, "test_action_class")
	require.NoError(t, err)
	assert.False(t, ok, "membership removed")
}

func TestFinish(t *testing.T) {
	c, _ := newCoordinator(t)
	ctx := context.Background()

	act, err := c.Generate(ctx)
	require.NoError(t, err)
	require.NoError(t, c.Finish(ctx, act, true))

	status, err := c.Status(ctx, act)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccessful, status)

	before := c.Store().(*memstore.Store).Len()
	err = c.Finish(ctx, act, false)
	assert.ErrorIs(t, err, core.ErrAlreadyFinished)
	assert.Equal(t, before, c.Store().(*memstore.Store).Len(), "second finish must not write")

	status, err = c.Status(ctx, act)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccessful, status)
}

func TestFinishWithError(t *testing.T) {
	c, _ := newCoordinator(t)
	ctx := context.Background()

	act, err := c.Generate(ctx)
	require.NoError(t, err)
	require.NoError(t, c.FinishWithError(ctx, act))

	status, err := c.Status(ctx, act)
	require.NoError(t, err)
	assert.Equal(t, StatusFinishedWithError, status)
	assert.True(t, status.IsFinished())

	unsuccessful, err := c.Keynodes().Get(ctx, keynodes.ActionFinishedUnsuccessfully)
	require.NoError(t, err)
	ok, err := graph.IsElementOf(ctx, c.Store(), unsuccessful, act)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestWait_AlreadyFinished(t *testing.T) {
	c, fc := newCoordinator(t)
	ctx := context.Background()

	act, err := c.Generate(ctx)
	require.NoError(t, err)
	require.NoError(t, c.Finish(ctx, act, true))

	start := fc.Now()
	ok, err := c.WaitFinished(ctx, 500*time.Millisecond, act)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, start, fc.Now())
	assert.Equal(t, 0, fc.PendingCount())
}

func TestWait_TimesOut(t *testing.T) {
	c, fc := newCoordinator(t)
	ctx := context.Background()

	act, err := c.Generate(ctx)
	require.NoError(t, err)
	finished, err := c.Keynodes().Get(ctx, keynodes.ActionFinished)
	require.NoError(t, err)

	timeout := 500 * time.Millisecond
	start := fc.Now()
	done := make(chan bool, 1)
	go func() { done <- c.Wait(timeout, act, finished) }()

	for i := 0; i < int(timeout/interval); i++ {
		fc.WaitForTimers(1)
		fc.Advance(interval)
	}

	assert.False(t, <-done)
	elapsed := fc.Now().Sub(start)
	assert.GreaterOrEqual(t, elapsed, timeout)
	assert.Less(t, elapsed, timeout+interval)
}

func TestWait_ConcurrentWaitersObserveFinish(t *testing.T) {
	c, fc := newCoordinator(t)
	ctx := context.Background()

	act, err := c.Generate(ctx)
	require.NoError(t, err)
	finished, err := c.Keynodes().Get(ctx, keynodes.ActionFinished)
	require.NoError(t, err)

	const waiters = 8
	results := make([]bool, waiters)
	var g errgroup.Group
	for i := range results {
		g.Go(func() error {
			results[i] = c.Wait(time.Second, act, finished)
			return nil
		})
	}

	fc.WaitForTimers(waiters)
	require.NoError(t, c.Finish(ctx, act, true))
	fc.Advance(interval)
	require.NoError(t, g.Wait())

	for i, ok := range results {
		assert.True(t, ok, "waiter %d", i)
	}
	status, err := c.Status(ctx, act)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccessful, status)
}

func TestExecute_NonexistentClassTimesOut(t *testing.T) {
	c, fc := newCoordinator(t)
	ctx := context.Background()

	act, err := c.Generate(ctx)
	require.NoError(t, err)

	waitTime := 300 * time.Millisecond
	start := fc.Now()
	type result struct {
		ok  bool
		err error
	}
	done := make(chan result, 1)
	go func() {
		ok, err := c.Execute(ctx, act, "nonexistent-class", waitTime)
		done <- result{ok, err}
	}()

	for i := 0; i < int(waitTime/interval); i++ {
		fc.WaitForTimers(1)
		fc.Advance(interval)
	}

	res := <-done
	require.NoError(t, res.err)
	assert.False(t, res.ok)
	assert.GreaterOrEqual(t, fc.Now().Sub(start), waitTime)

	ok, err := c.CheckClass(ctx, act, "nonexistent-class")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestExecute_NoWaitReportsAssignment(t *testing.T) {
	c, fc := newCoordinator(t)
	ctx := context.Background()

	act, err := c.Generate(ctx)
	require.NoError(t, err)

	ok, err := c.Execute(ctx, act, "sum", 0)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 0, fc.PendingCount())

	status, err := c.Status(ctx, act)
	require.NoError(t, err)
	assert.Equal(t, StatusNotFinished, status)
}

func TestExecuteAgent_ZeroWaitTimeUsesDefault(t *testing.T) {
	store := memstore.New()
	t.Cleanup(func() { _ = store.Close() })
	fc := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	waitTime := 300 * time.Millisecond
	c := New(store, nil, func(o *Options) {
		o.Clock = fc
		o.PollInterval = interval
		o.WaitTime = waitTime
	})
	ctx := context.Background()

	start := fc.Now()
	done := make(chan bool, 1)
	go func() {
		_, ok, err := c.ExecuteAgent(ctx, nil, []string{"sum"}, WithWaitTime(0))
		assert.NoError(t, err)
		done <- ok
	}()

	for i := 0; i < int(waitTime/interval); i++ {
		fc.WaitForTimers(1)
		fc.Advance(interval)
	}

	assert.False(t, <-done)
	assert.GreaterOrEqual(t, fc.Now().Sub(start), waitTime)
}

func TestResult(t *testing.T) {
	c, _ := newCoordinator(t)
	ctx := context.Background()
	s := c.Store()

	act, err := c.Generate(ctx)
	require.NoError(t, err)

	_, err = c.Result(ctx, act)
	assert.ErrorIs(t, err, core.ErrNoResult)

	link, err := graph.GenerateLink(ctx, s, core.IntContent(5))
	require.NoError(t, err)
	st, err := c.GenerateResult(ctx, act, link)
	require.NoError(t, err)

	got, err := c.Result(ctx, act)
	require.NoError(t, err)
	assert.Equal(t, st, got)

	elements, err := c.ResultElements(ctx, act)
	require.NoError(t, err)
	assert.Equal(t, []core.Addr{link}, elements)

	other, err := c.Generate(ctx)
	require.NoError(t, err)
	_, err = c.Result(ctx, other)
	assert.ErrorIs(t, err, core.ErrNoResult)
}

func TestExecuteAgent_WithSubscribedHandler(t *testing.T) {
	store := memstore.New()
	defer func() { _ = store.Close() }()
	c := New(store, nil, func(o *Options) { o.PollInterval = 5 * time.Millisecond })
	ctx := context.Background()

	initiated, err := c.Keynodes().Get(ctx, keynodes.ActionInitiated)
	require.NoError(t, err)
	_, err = store.Subscribe(ctx, initiated, core.EventAfterGenerateOutgoingArc, func(ctx context.Context, ev core.Event) {
		args, err := c.Arguments(ctx, ev.Other, 2)
		if err != nil {
			_ = c.Finish(ctx, ev.Other, false)
			return
		}
		a, _ := graph.LinkInt(ctx, store, args[0].Addr)
		b, _ := graph.LinkInt(ctx, store, args[1].Addr)
		link, _ := graph.GenerateLink(ctx, store, core.IntContent(a+b))
		_, _ = c.GenerateResult(ctx, ev.Other, link)
		_ = c.Finish(ctx, ev.Other, true)
	})
	require.NoError(t, err)

	two, err := graph.GenerateLink(ctx, store, core.IntContent(2))
	require.NoError(t, err)
	three, err := graph.GenerateLink(ctx, store, core.IntContent(3))
	require.NoError(t, err)

	act, ok, err := c.ExecuteAgent(ctx, Args(two, three), []string{keynodes.Action, "sum"}, WithWaitTime(2*time.Second))
	require.NoError(t, err)
	require.True(t, ok)

	elements, err := c.ResultElements(ctx, act)
	require.NoError(t, err)
	require.Len(t, elements, 1)
	sum, err := graph.LinkInt(ctx, store, elements[0])
	require.NoError(t, err)
	assert.Equal(t, int64(5), sum)

	act, ok, err = c.ExecuteAgent(ctx, nil, []string{"sum"}, WithWaitTime(2*time.Second))
	require.NoError(t, err)
	assert.False(t, ok)
	status, err := c.Status(ctx, act)
	require.NoError(t, err)
	assert.Equal(t, StatusUnsuccessful, status)
}

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "not_finished", StatusNotFinished.String())
	assert.Equal(t, "finished_with_error", StatusFinishedWithError.String())
	assert.False(t, StatusNotFinished.IsFinished())
}

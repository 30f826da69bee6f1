package action

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/agentgraph/clock"
	"github.com/hupe1980/agentgraph/core"
	"github.com/hupe1980/agentgraph/graph"
	"github.com/hupe1980/agentgraph/keynodes"
	"github.com/hupe1980/agentgraph/logging"
)

const (
	// DefaultPollInterval is the granularity of Wait.
	DefaultPollInterval = 100 * time.Millisecond
	// DefaultWaitTime bounds ExecuteAgent when no wait time is given.
	DefaultWaitTime = 5 * time.Second
)

// Argument is one positional action argument. Dynamic is an opaque flag that
// travels with the argument through rrel_dynamic_argument.
type Argument struct {
	Addr    core.Addr
	Dynamic bool
}

// Arg returns a static argument.
func Arg(addr core.Addr) Argument { return Argument{Addr: addr} }

// Args converts addresses to static arguments, preserving order.
func Args(addrs ...core.Addr) []Argument {
	res := make([]Argument, len(addrs))
	for i, a := range addrs {
		res[i] = Arg(a)
	}
	return res
}

// Options configures a Coordinator.
type Options struct {
	// Clock drives Wait. Defaults to the real clock.
	Clock clock.Clock

	// PollInterval is the delay between status checks in Wait.
	PollInterval time.Duration

	// WaitTime is the default wait of ExecuteAgent.
	WaitTime time.Duration

	// Logger receives wait and lifecycle diagnostics.
	Logger logging.Logger
}

// Coordinator drives the action lifecycle against one store.
type Coordinator struct {
	store        core.KnowledgeStore
	keynodes     *keynodes.Cache
	clock        clock.Clock
	pollInterval time.Duration
	waitTime     time.Duration
	logger       logging.Logger

	// finishMu serializes the check-then-write in Finish.
	finishMu sync.Mutex
}

// New creates a Coordinator. A nil cache gets a private one.
func New(store core.KnowledgeStore, kn *keynodes.Cache, optFns ...func(o *Options)) *Coordinator {
	opts := Options{
		Clock:        clock.Real(),
		PollInterval: DefaultPollInterval,
		WaitTime:     DefaultWaitTime,
		Logger:       logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if kn == nil {
		kn = keynodes.New(store)
	}
	return &Coordinator{
		store:        store,
		keynodes:     kn,
		clock:        opts.Clock,
		pollInterval: opts.PollInterval,
		waitTime:     opts.WaitTime,
		logger:       logging.OrNoOp(opts.Logger),
	}
}

// Store returns the underlying store.
func (c *Coordinator) Store() core.KnowledgeStore { return c.store }

// Keynodes returns the identifier cache used by the coordinator.
func (c *Coordinator) Keynodes() *keynodes.Cache { return c.keynodes }

// Generate creates a new action node in state Created.
func (c *Coordinator) Generate(ctx context.Context) (core.Addr, error) {
	concept, err := c.keynodes.Get(ctx, keynodes.Action)
	if err != nil {
		return 0, err
	}
	act, err := c.store.CreateNode(ctx, core.ConstNode)
	if err != nil {
		return 0, err
	}
	if _, err := c.store.CreateConnector(ctx, core.ConstPermPosArc, concept, act); err != nil {
		return 0, fmt.Errorf("mark action: %w", err)
	}
	return act, nil
}

// AddArguments binds args at the positions following the highest bound
// position, in the given order.
func (c *Coordinator) AddArguments(ctx context.Context, act core.Addr, args ...Argument) error {
	if len(args) == 0 {
		return nil
	}
	last, err := c.lastPosition(ctx, act)
	if err != nil {
		return err
	}
	var dynamic core.Addr
	for i, arg := range args {
		if !arg.Addr.IsValid() {
			return fmt.Errorf("%w: argument %d has no address", core.ErrInvalidParams, i+1)
		}
		rrel, err := c.keynodes.Rrel(ctx, last+i+1)
		if err != nil {
			return err
		}
		relations := []core.Addr{rrel}
		if arg.Dynamic {
			if dynamic == 0 {
				if dynamic, err = c.keynodes.Get(ctx, keynodes.RrelDynamicArgument); err != nil {
					return err
				}
			}
			relations = append(relations, dynamic)
		}
		if _, err := graph.GenerateRoleRelation(ctx, c.store, act, arg.Addr, relations...); err != nil {
			return fmt.Errorf("bind argument %d: %w", last+i+1, err)
		}
	}
	return nil
}

// Arguments returns the arguments at positions 1..count. Fewer bound
// arguments yield core.ErrInvalidParams.
func (c *Coordinator) Arguments(ctx context.Context, act core.Addr, count int) ([]Argument, error) {
	if count < 0 {
		return nil, fmt.Errorf("%w: negative argument count %d", core.ErrInvalidParams, count)
	}
	res := make([]Argument, 0, count)
	for i := 1; i <= count; i++ {
		arg, ok, err := c.argumentAt(ctx, act, i)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: action %s has no argument at position %d", core.ErrInvalidParams, act, i)
		}
		res = append(res, arg)
	}
	return res, nil
}

func (c *Coordinator) lastPosition(ctx context.Context, act core.Addr) (int, error) {
	n := 0
	for {
		_, ok, err := c.argumentAt(ctx, act, n+1)
		if err != nil {
			return 0, err
		}
		if !ok {
			return n, nil
		}
		n++
	}
}

func (c *Coordinator) argumentAt(ctx context.Context, act core.Addr, pos int) (Argument, bool, error) {
	rrel, err := c.keynodes.Find(ctx, keynodes.Rrel(pos))
	if isNotFound(err) {
		return Argument{}, false, nil
	}
	if err != nil {
		return Argument{}, false, err
	}
	arcs, err := c.store.Search(ctx, core.Pattern{Source: act, Type: core.VarPermPosArc})
	if err != nil {
		return Argument{}, false, err
	}
	for _, arc := range arcs {
		ok, err := graph.CheckConnector(ctx, c.store, core.VarPermPosArc, rrel, arc.Connector)
		if err != nil {
			return Argument{}, false, err
		}
		if !ok {
			continue
		}
		dynamic, err := c.isDynamic(ctx, arc.Connector)
		if err != nil {
			return Argument{}, false, err
		}
		return Argument{Addr: arc.Target, Dynamic: dynamic}, true, nil
	}
	return Argument{}, false, nil
}

func (c *Coordinator) isDynamic(ctx context.Context, arc core.Addr) (bool, error) {
	dynamic, err := c.keynodes.Find(ctx, keynodes.RrelDynamicArgument)
	if isNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return graph.CheckConnector(ctx, c.store, core.VarPermPosArc, dynamic, arc)
}

// AssignClass makes act a member of the class named by idtf, creating the
// class node if needed.
func (c *Coordinator) AssignClass(ctx context.Context, act core.Addr, idtf string) error {
	class, err := c.keynodes.Resolve(ctx, idtf, core.ConstNodeClass)
	if err != nil {
		return err
	}
	return c.AssignClassAddr(ctx, act, class)
}

// AssignClassAddr makes act a member of class.
func (c *Coordinator) AssignClassAddr(ctx context.Context, act, class core.Addr) error {
	if _, err := c.store.CreateConnector(ctx, core.ConstPermPosArc, class, act); err != nil {
		return fmt.Errorf("assign class: %w", err)
	}
	return nil
}

// CheckClass reports whether act is an action of the class named by idtf.
// An unknown class yields false.
func (c *Coordinator) CheckClass(ctx context.Context, act core.Addr, idtf string) (bool, error) {
	class, err := c.keynodes.Find(ctx, idtf)
	if isNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return c.CheckClassAddr(ctx, act, class)
}

// CheckClassAddr reports whether act belongs to both the action concept and
// class. The check reads the store on every call.
func (c *Coordinator) CheckClassAddr(ctx context.Context, act, class core.Addr) (bool, error) {
	concept, err := c.keynodes.Get(ctx, keynodes.Action)
	if err != nil {
		return false, err
	}
	ok, err := graph.IsElementOf(ctx, c.store, concept, act)
	if err != nil || !ok {
		return false, err
	}
	return graph.IsElementOf(ctx, c.store, class, act)
}

// Initiate connects the initiation node named by idtf to act. Agents created
// with agent.NewClassic listen for this arc on action_initiated.
func (c *Coordinator) Initiate(ctx context.Context, act core.Addr, idtf string) error {
	if idtf == "" {
		idtf = keynodes.ActionInitiated
	}
	node, err := c.keynodes.Resolve(ctx, idtf, core.ConstNodeClass)
	if err != nil {
		return err
	}
	if _, err := c.store.CreateConnector(ctx, core.ConstPermPosArc, node, act); err != nil {
		return fmt.Errorf("initiate action: %w", err)
	}
	return nil
}

// Call assigns act to class and initiates it without waiting.
func (c *Coordinator) Call(ctx context.Context, act core.Addr, class string) error {
	if err := c.AssignClass(ctx, act, class); err != nil {
		return err
	}
	return c.Initiate(ctx, act, keynodes.ActionInitiated)
}

// Execute calls act as an action of class. With waitTime > 0 it waits for
// the action to finish and reports whether it finished successfully. With
// waitTime <= 0 it only reports that the class was assigned; whether an
// agent ran is unknown.
func (c *Coordinator) Execute(ctx context.Context, act core.Addr, class string, waitTime time.Duration) (bool, error) {
	if err := c.Call(ctx, act, class); err != nil {
		return false, err
	}
	if waitTime <= 0 {
		return true, nil
	}
	return c.waitSuccess(ctx, act, waitTime)
}

// ExecOptions configures ExecuteAgent and CallAgent.
type ExecOptions struct {
	// Initiation names the node whose arc dispatches the action.
	Initiation string

	// WaitTime bounds ExecuteAgent. Zero or negative uses the coordinator
	// default.
	WaitTime time.Duration
}

// WithInitiation dispatches through the node named idtf instead of
// action_initiated.
func WithInitiation(idtf string) func(o *ExecOptions) {
	return func(o *ExecOptions) { o.Initiation = idtf }
}

// WithWaitTime overrides the wait of ExecuteAgent.
func WithWaitTime(d time.Duration) func(o *ExecOptions) {
	return func(o *ExecOptions) { o.WaitTime = d }
}

// CallAgent generates an action with args and classes and initiates it
// without waiting.
func (c *Coordinator) CallAgent(ctx context.Context, args []Argument, classes []string, optFns ...func(o *ExecOptions)) (core.Addr, error) {
	opts := ExecOptions{Initiation: keynodes.ActionInitiated, WaitTime: c.waitTime}
	for _, fn := range optFns {
		fn(&opts)
	}

	act, err := c.Generate(ctx)
	if err != nil {
		return 0, err
	}
	if err := c.AddArguments(ctx, act, args...); err != nil {
		return act, err
	}
	for _, class := range classes {
		if err := c.AssignClass(ctx, act, class); err != nil {
			return act, err
		}
	}
	if err := c.Initiate(ctx, act, opts.Initiation); err != nil {
		return act, err
	}
	return act, nil
}

// ExecuteAgent runs CallAgent and waits for the action to finish. The
// boolean is true only when the action finished successfully in time.
func (c *Coordinator) ExecuteAgent(ctx context.Context, args []Argument, classes []string, optFns ...func(o *ExecOptions)) (core.Addr, bool, error) {
	opts := ExecOptions{WaitTime: c.waitTime}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.WaitTime <= 0 {
		opts.WaitTime = c.waitTime
	}
	act, err := c.CallAgent(ctx, args, classes, optFns...)
	if err != nil {
		return act, false, err
	}
	ok, err := c.waitSuccess(ctx, act, opts.WaitTime)
	return act, ok, err
}

func (c *Coordinator) waitSuccess(ctx context.Context, act core.Addr, timeout time.Duration) (bool, error) {
	finished, err := c.keynodes.Get(ctx, keynodes.ActionFinished)
	if err != nil {
		return false, err
	}
	if !c.Wait(timeout, act, finished) {
		return false, nil
	}
	success, err := c.keynodes.Get(ctx, keynodes.ActionFinishedSuccessfully)
	if err != nil {
		return false, err
	}
	return graph.IsElementOf(ctx, c.store, success, act)
}

type waitLogger interface {
	LogWait(action uint64, status string, dur time.Duration, observed bool)
}

// Wait blocks until an arc from marker to act exists or timeout elapses and
// reports whether the arc was observed. It polls every PollInterval and never
// sleeps past the deadline. Store errors count as not observed.
func (c *Coordinator) Wait(timeout time.Duration, act, marker core.Addr) bool {
	start := c.clock.Now()
	deadline := start.Add(timeout)

	observed := false
	for {
		ok, err := graph.IsElementOf(context.Background(), c.store, marker, act)
		if err != nil {
			c.logger.Warn("Action status check failed", "action", uint64(act), "marker", uint64(marker), "error", err)
		}
		if ok {
			observed = true
			break
		}
		remaining := deadline.Sub(c.clock.Now())
		if remaining <= 0 {
			break
		}
		c.clock.Sleep(min(c.pollInterval, remaining))
	}

	if wl, ok := c.logger.(waitLogger); ok {
		wl.LogWait(uint64(act), marker.String(), c.clock.Now().Sub(start), observed)
	}
	return observed
}

// WaitFinished waits for the action_finished marker.
func (c *Coordinator) WaitFinished(ctx context.Context, timeout time.Duration, act core.Addr) (bool, error) {
	finished, err := c.keynodes.Get(ctx, keynodes.ActionFinished)
	if err != nil {
		return false, err
	}
	return c.Wait(timeout, act, finished), nil
}

// Finish marks act finished, successfully or not. The outcome marker is
// written before action_finished so waiters that observe the latter can
// read the outcome. A second call returns core.ErrAlreadyFinished and leaves
// the graph unchanged.
func (c *Coordinator) Finish(ctx context.Context, act core.Addr, successful bool) error {
	outcome := keynodes.ActionFinishedUnsuccessfully
	if successful {
		outcome = keynodes.ActionFinishedSuccessfully
	}
	return c.finish(ctx, act, outcome)
}

// FinishWithError marks act finished unsuccessfully and with error.
func (c *Coordinator) FinishWithError(ctx context.Context, act core.Addr) error {
	return c.finish(ctx, act, keynodes.ActionFinishedWithError, keynodes.ActionFinishedUnsuccessfully)
}

func (c *Coordinator) finish(ctx context.Context, act core.Addr, markers ...string) error {
	c.finishMu.Lock()
	defer c.finishMu.Unlock()

	finished, err := c.keynodes.Get(ctx, keynodes.ActionFinished)
	if err != nil {
		return err
	}
	done, err := graph.IsElementOf(ctx, c.store, finished, act)
	if err != nil {
		return err
	}
	if done {
		return fmt.Errorf("%w: %s", core.ErrAlreadyFinished, act)
	}

	for _, idtf := range markers {
		marker, err := c.keynodes.Get(ctx, idtf)
		if err != nil {
			return err
		}
		if _, err := c.store.CreateConnector(ctx, core.ConstPermPosArc, marker, act); err != nil {
			return fmt.Errorf("mark %s: %w", idtf, err)
		}
	}
	if _, err := c.store.CreateConnector(ctx, core.ConstPermPosArc, finished, act); err != nil {
		return fmt.Errorf("mark %s: %w", keynodes.ActionFinished, err)
	}
	c.logger.Debug("Action finished", "action", uint64(act), "markers", markers)
	return nil
}

// Status reads the status markers of act.
func (c *Coordinator) Status(ctx context.Context, act core.Addr) (Status, error) {
	ordered := []struct {
		idtf   string
		status Status
	}{
		{keynodes.ActionFinishedWithError, StatusFinishedWithError},
		{keynodes.ActionFinishedUnsuccessfully, StatusUnsuccessful},
		{keynodes.ActionFinishedSuccessfully, StatusSuccessful},
	}

	finished, err := c.has(ctx, keynodes.ActionFinished, act)
	if err != nil || !finished {
		return StatusNotFinished, err
	}
	for _, m := range ordered {
		ok, err := c.has(ctx, m.idtf, act)
		if err != nil {
			return StatusNotFinished, err
		}
		if ok {
			return m.status, nil
		}
	}
	return StatusFinished, nil
}

func (c *Coordinator) has(ctx context.Context, idtf string, act core.Addr) (bool, error) {
	marker, err := c.keynodes.Find(ctx, idtf)
	if isNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return graph.IsElementOf(ctx, c.store, marker, act)
}

// GenerateResult wraps elements in a structure and attaches it to act
// through nrel_result.
func (c *Coordinator) GenerateResult(ctx context.Context, act core.Addr, elements ...core.Addr) (core.Addr, error) {
	nrel, err := c.keynodes.Get(ctx, keynodes.NrelResult)
	if err != nil {
		return 0, err
	}
	st, err := graph.GenerateStructure(ctx, c.store, elements...)
	if err != nil {
		return 0, err
	}
	if _, err := graph.GenerateNoRoleRelation(ctx, c.store, act, st, nrel); err != nil {
		return 0, fmt.Errorf("attach result: %w", err)
	}
	return st, nil
}

// Result returns the result structure of act, or core.ErrNoResult.
func (c *Coordinator) Result(ctx context.Context, act core.Addr) (core.Addr, error) {
	nrel, err := c.keynodes.Find(ctx, keynodes.NrelResult)
	if isNotFound(err) {
		return 0, fmt.Errorf("%w: %s", core.ErrNoResult, act)
	}
	if err != nil {
		return 0, err
	}
	results, err := graph.SearchByNoRoleRelation(ctx, c.store, act, nrel)
	if err != nil {
		return 0, err
	}
	if len(results) == 0 {
		return 0, fmt.Errorf("%w: %s", core.ErrNoResult, act)
	}
	return results[0], nil
}

// ResultElements returns the members of the result structure of act.
func (c *Coordinator) ResultElements(ctx context.Context, act core.Addr) ([]core.Addr, error) {
	st, err := c.Result(ctx, act)
	if err != nil {
		return nil, err
	}
	return graph.StructureElements(ctx, c.store, st)
}

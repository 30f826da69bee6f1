package server

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hupe1980/agentgraph/action"
	"github.com/hupe1980/agentgraph/agent"
	"github.com/hupe1980/agentgraph/clock"
	"github.com/hupe1980/agentgraph/core"
	"github.com/hupe1980/agentgraph/graph"
	"github.com/hupe1980/agentgraph/keynodes"
	"github.com/hupe1980/agentgraph/logging"
	"github.com/hupe1980/agentgraph/store"
)

// ErrHandlerPanic marks invocations whose handler or filter panicked.
var ErrHandlerPanic = fmt.Errorf("agent handler panicked")

// Opener connects to the store named by endpoint.
type Opener func(ctx context.Context, endpoint string, logger logging.Logger) (core.KnowledgeStore, error)

// Options configures a Server using the functional options pattern.
type Options struct {
	// Logger receives lifecycle and dispatch diagnostics. A *logging.GraphLogger
	// is scoped to the server session and records agent runs and waits.
	Logger logging.Logger

	// Clock drives action waits and run timing. Defaults to the real clock.
	Clock clock.Clock

	// PollInterval is the granularity of action waits.
	PollInterval time.Duration

	// WaitTime is the default wait of ExecuteAgent.
	WaitTime time.Duration

	// Callbacks are registered before the server starts.
	Callbacks []Callback

	// Open connects to an endpoint. Defaults to store.Open.
	Open Opener
}

type registryKey struct {
	event  core.EventType
	anchor core.Addr
	class  string
}

type registration struct {
	handle agent.Handle
}

// session is the state of one Start..Stop span.
type session struct {
	id       string
	store    core.KnowledgeStore
	keynodes *keynodes.Cache
	actions  *action.Coordinator
	logger   logging.Logger
}

type agentRunLogger interface {
	LogAgentRun(agent string, dur time.Duration, result string, err error)
}

// Server manages a store connection, its modules and event dispatch.
//
// Concurrency model:
//   - mu serializes lifecycle and module list changes
//   - registryMu guards the dispatch registry keyed by (event type, anchor,
//     action class); the dispatch path only takes
//     its read lock
//   - connMu guards the current session pointer
//
// Handlers run on the delivery goroutine of their subscription and must not
// call Start, Stop or the module methods of the server that dispatched them.
type Server struct {
	logger       logging.Logger
	clock        clock.Clock
	pollInterval time.Duration
	waitTime     time.Duration
	open         Opener
	callbacks    *CallbackManager

	// Module list and registration state, protected by mu
	mu         sync.Mutex
	modules    []*agent.Module
	handles    map[*agent.Module][]agent.Handle
	registered bool

	// Dispatch registry, protected by registryMu
	registryMu sync.RWMutex
	registry   map[registryKey]*registration

	connMu sync.RWMutex
	sess   *session
}

// New creates a stopped Server.
//
// Example:
//
//	srv := server.New(
//	    func(o *server.Options) { o.Logger = logging.NewSlogLogger(logging.LogLevelInfo, "text", false) },
//	    func(o *server.Options) { o.WaitTime = 2 * time.Second },
//	)
func New(optFns ...func(o *Options)) *Server {
	opts := Options{
		Logger:       logging.NoOpLogger{},
		Clock:        clock.Real(),
		PollInterval: action.DefaultPollInterval,
		WaitTime:     action.DefaultWaitTime,
		Open: func(ctx context.Context, endpoint string, logger logging.Logger) (core.KnowledgeStore, error) {
			return store.Open(ctx, endpoint, func(o *store.Options) { o.Logger = logger })
		},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	cm := NewCallbackManager()
	for _, cb := range opts.Callbacks {
		cm.RegisterCallback(cb)
	}

	return &Server{
		logger:       logging.OrNoOp(opts.Logger),
		clock:        opts.Clock,
		pollInterval: opts.PollInterval,
		waitTime:     opts.WaitTime,
		open:         opts.Open,
		callbacks:    cm,
		handles:      make(map[*agent.Module][]agent.Handle),
		registry:     make(map[registryKey]*registration),
	}
}

// Start connects to endpoint and registers every added module. Starting a
// started server returns core.ErrAlreadyStarted.
func (s *Server) Start(ctx context.Context, endpoint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current() != nil {
		return core.ErrAlreadyStarted
	}

	id := uuid.NewString()
	logger := s.logger
	if gl, ok := logger.(*logging.GraphLogger); ok {
		logger = gl.WithComponent("server").WithServer(id)
	}

	st, err := s.open(ctx, endpoint, logger)
	if err != nil {
		return err
	}
	kn := keynodes.New(st)
	sess := &session{
		id:       id,
		store:    st,
		keynodes: kn,
		logger:   logger,
		actions: action.New(st, kn, func(o *action.Options) {
			o.Clock = s.clock
			o.PollInterval = s.pollInterval
			o.WaitTime = s.waitTime
			o.Logger = logger
		}),
	}

	s.connMu.Lock()
	s.sess = sess
	s.connMu.Unlock()

	if err := s.registerLocked(ctx); err != nil {
		return errors.Join(err, s.teardownLocked(sess))
	}
	logger.Info("Server started", "endpoint", endpoint, "modules", len(s.modules))
	return nil
}

// Stop deregisters every module, drops the keynode cache and closes the
// store. Stopping a stopped server returns core.ErrNotStarted.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.current()
	if sess == nil {
		return core.ErrNotStarted
	}
	err := s.unregisterLocked(ctx)
	err = errors.Join(err, s.teardownLocked(sess))
	sess.logger.Info("Server stopped")
	return err
}

// Run starts the server, runs fn and stops the server on every exit path.
func (s *Server) Run(ctx context.Context, endpoint string, fn func(ctx context.Context) error) (err error) {
	if err := s.Start(ctx, endpoint); err != nil {
		return err
	}
	defer func() {
		if serr := s.Stop(context.WithoutCancel(ctx)); serr != nil {
			err = errors.Join(err, serr)
		}
	}()
	return fn(ctx)
}

func (s *Server) teardownLocked(sess *session) error {
	sess.keynodes.Reset()
	err := sess.store.Close()

	s.connMu.Lock()
	s.sess = nil
	s.connMu.Unlock()

	s.registryMu.Lock()
	clear(s.registry)
	s.registryMu.Unlock()
	return err
}

// AddModules attaches modules. While the server is registered they are
// subscribed immediately. Adding a module twice is a no-op.
func (s *Server) AddModules(ctx context.Context, modules ...*agent.Module) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for _, m := range modules {
		if m == nil || slices.Contains(s.modules, m) {
			continue
		}
		if s.registered {
			handles, err := m.Register(ctx, s)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			s.handles[m] = handles
		}
		s.modules = append(s.modules, m)
	}
	return errors.Join(errs...)
}

// RemoveModules detaches modules and releases their subscriptions. Unknown
// modules are ignored.
func (s *Server) RemoveModules(ctx context.Context, modules ...*agent.Module) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for _, m := range modules {
		idx := slices.Index(s.modules, m)
		if idx < 0 {
			continue
		}
		if handles, ok := s.handles[m]; ok {
			errs = append(errs, m.Deregister(ctx, s, handles))
			delete(s.handles, m)
		}
		s.modules = slices.Delete(s.modules, idx, idx+1)
	}
	return errors.Join(errs...)
}

// RegisterModules subscribes every added module. It is a no-op when the
// modules are already registered.
func (s *Server) RegisterModules(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current() == nil {
		return core.ErrNotStarted
	}
	return s.registerLocked(ctx)
}

// UnregisterModules releases the subscriptions of every module. The modules
// stay attached.
func (s *Server) UnregisterModules(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unregisterLocked(ctx)
}

// WithRegisteredModules registers the modules, runs fn and restores the
// previous registration state on every exit path.
func (s *Server) WithRegisteredModules(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	s.mu.Lock()
	if s.current() == nil {
		s.mu.Unlock()
		return core.ErrNotStarted
	}
	was := s.registered
	err = s.registerLocked(ctx)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	if !was {
		defer func() {
			if uerr := s.UnregisterModules(context.WithoutCancel(ctx)); uerr != nil {
				err = errors.Join(err, uerr)
			}
		}()
	}
	return fn(ctx)
}

func (s *Server) registerLocked(ctx context.Context) error {
	if s.registered {
		return nil
	}
	var done []*agent.Module
	for _, m := range s.modules {
		handles, err := m.Register(ctx, s)
		if err != nil {
			for i := len(done) - 1; i >= 0; i-- {
				err = errors.Join(err, done[i].Deregister(ctx, s, s.handles[done[i]]))
				delete(s.handles, done[i])
			}
			return err
		}
		s.handles[m] = handles
		done = append(done, m)
	}
	s.registered = true
	return nil
}

func (s *Server) unregisterLocked(ctx context.Context) error {
	var errs []error
	for i := len(s.modules) - 1; i >= 0; i-- {
		m := s.modules[i]
		if handles, ok := s.handles[m]; ok {
			errs = append(errs, m.Deregister(ctx, s, handles))
			delete(s.handles, m)
		}
	}
	s.registered = false
	return errors.Join(errs...)
}

// Register subscribes one agent. A second agent for the same event type,
// anchor and action class returns core.ErrDuplicateAgent. Register implements agent.Registrar.
func (s *Server) Register(ctx context.Context, a *agent.Agent) (agent.Handle, error) {
	if err := a.Validate(); err != nil {
		return agent.Handle{}, err
	}
	sess := s.current()
	if sess == nil {
		return agent.Handle{}, core.ErrNotStarted
	}

	anchor, err := sess.keynodes.Resolve(ctx, a.Anchor, a.ResolvedAnchorType())
	if err != nil {
		return agent.Handle{}, err
	}
	key := registryKey{event: a.Event, anchor: anchor, class: a.ActionClass}
	h := agent.Handle{ID: uuid.NewString(), Agent: a, Anchor: anchor}

	s.registryMu.Lock()
	if existing, ok := s.registry[key]; ok {
		s.registryMu.Unlock()
		return agent.Handle{}, fmt.Errorf("%w: %s conflicts with %s", core.ErrDuplicateAgent, a, existing.handle.Agent)
	}
	s.registry[key] = &registration{handle: h}
	s.registryMu.Unlock()

	sub, err := sess.store.Subscribe(ctx, anchor, a.Event, func(ctx context.Context, ev core.Event) {
		s.dispatch(ctx, sess, key, h.ID, ev)
	})
	if err != nil {
		s.registryMu.Lock()
		delete(s.registry, key)
		s.registryMu.Unlock()
		return agent.Handle{}, fmt.Errorf("subscribe agent %s: %w", a.Name, err)
	}
	h.Subscription = sub

	s.registryMu.Lock()
	if reg, ok := s.registry[key]; ok && reg.handle.ID == h.ID {
		reg.handle = h
	}
	s.registryMu.Unlock()

	sess.logger.Debug("Agent registered", "agent", a.Name, "event", string(a.Event), "anchor", uint64(anchor))
	return h, nil
}

// Deregister removes one registration and releases its subscription.
// Deregister implements agent.Registrar.
func (s *Server) Deregister(ctx context.Context, h agent.Handle) error {
	if h.Agent == nil {
		return fmt.Errorf("%w: empty handle", core.ErrInvalidParams)
	}
	key := registryKey{event: h.Agent.Event, anchor: h.Anchor, class: h.Agent.ActionClass}

	s.registryMu.Lock()
	reg, ok := s.registry[key]
	if ok && reg.handle.ID == h.ID {
		delete(s.registry, key)
	} else {
		ok = false
	}
	s.registryMu.Unlock()
	if !ok {
		return fmt.Errorf("%w: registration %s of %s", core.ErrNotFound, h.ID, h.Agent.Name)
	}

	sess := s.current()
	if sess == nil {
		return nil
	}
	if err := sess.store.Unsubscribe(ctx, h.Subscription); err != nil {
		return err
	}
	sess.logger.Debug("Agent deregistered", "agent", h.Agent.Name)
	return nil
}

// RegisterCallback adds a dispatch lifecycle callback.
func (s *Server) RegisterCallback(cb Callback) { s.callbacks.RegisterCallback(cb) }

func (s *Server) dispatch(ctx context.Context, sess *session, key registryKey, id string, ev core.Event) {
	s.registryMu.RLock()
	reg, ok := s.registry[key]
	s.registryMu.RUnlock()
	if !ok || reg.handle.ID != id {
		return
	}
	a := reg.handle.Agent

	inv := &agent.Invocation{
		Agent:   a.Name,
		Event:   ev,
		Actions: sess.actions,
		Store:   sess.store,
		Logger:  sess.logger,
	}
	cc := &CallbackContext{SessionID: sess.id, AgentID: a.Name, Event: ev, Metadata: map[string]any{}}

	if a.Filter != nil {
		var accepted bool
		err := protect(a, sess.logger, func() (err error) {
			accepted, err = a.Filter(ctx, inv)
			return err
		})
		if err != nil {
			cc.Result, cc.Err = core.ResultError, fmt.Errorf("filter of agent %s: %w", a.Name, err)
			sess.logger.Error("Agent filter failed", "agent", a.Name, "error", cc.Err)
			s.runCallbacks(ctx, sess, CallbackOnError, cc)
			return
		}
		if !accepted {
			return
		}
	}

	start := s.clock.Now()
	res := core.ResultError
	err := s.callbacks.ExecuteCallbacks(ctx, CallbackBeforeAgent, cc)
	if err != nil {
		err = fmt.Errorf("before agent callback: %w", err)
	} else {
		err = protect(a, sess.logger, func() error {
			res = a.Handler(ctx, inv)
			return nil
		})
	}
	cc.Result, cc.Err = res, err

	if err != nil {
		sess.logger.Error("Agent invocation failed", "agent", a.Name, "error", err)
		s.runCallbacks(ctx, sess, CallbackOnError, cc)
	}
	s.settle(ctx, sess, a, ev.Other)
	s.runCallbacks(ctx, sess, CallbackAfterAgent, cc)

	if rl, ok := sess.logger.(agentRunLogger); ok {
		rl.LogAgentRun(a.Name, s.clock.Now().Sub(start), res.String(), err)
	}
}

func (s *Server) runCallbacks(ctx context.Context, sess *session, t CallbackType, cc *CallbackContext) {
	if err := s.callbacks.ExecuteCallbacks(ctx, t, cc); err != nil {
		sess.logger.Warn("Callback failed", "callback", string(t), "agent", cc.AgentID, "error", err)
	}
}

// settle finishes an action its owning agent left unfinished.
func (s *Server) settle(ctx context.Context, sess *session, a *agent.Agent, act core.Addr) {
	if !a.OwnsAction || !act.IsValid() {
		return
	}
	concept, err := sess.keynodes.Find(ctx, keynodes.Action)
	if err != nil {
		return
	}
	isAction, err := graph.IsElementOf(ctx, sess.store, concept, act)
	if err != nil || !isAction {
		return
	}
	status, err := sess.actions.Status(ctx, act)
	if err != nil || status.IsFinished() {
		return
	}

	err = sess.actions.FinishWithError(ctx, act)
	switch {
	case err == nil:
		sess.logger.Warn("Agent left action unfinished, finished with error", "agent", a.Name, "action", uint64(act))
	case !errors.Is(err, core.ErrAlreadyFinished):
		sess.logger.Error("Finishing abandoned action failed", "agent", a.Name, "action", uint64(act), "error", err)
	}
}

func protect(a *agent.Agent, logger logging.Logger, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Recovered agent panic", "agent", a.Name, "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("%w: %s: %v", ErrHandlerPanic, a.Name, r)
		}
	}()
	return fn()
}

func (s *Server) current() *session {
	s.connMu.RLock()
	defer s.connMu.RUnlock()
	return s.sess
}

// Started reports whether the server is connected.
func (s *Server) Started() bool { return s.current() != nil }

// Registered reports whether the modules are subscribed.
func (s *Server) Registered() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registered
}

// Modules returns the attached modules in the order they were added.
func (s *Server) Modules() []*agent.Module {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.modules)
}

// SessionID returns the identifier of the current session, or "" when
// stopped.
func (s *Server) SessionID() string {
	if sess := s.current(); sess != nil {
		return sess.id
	}
	return ""
}

// Store returns the connected store, or nil when stopped.
func (s *Server) Store() core.KnowledgeStore {
	if sess := s.current(); sess != nil {
		return sess.store
	}
	return nil
}

// Actions returns the action coordinator of the current session, or nil
// when stopped.
func (s *Server) Actions() *action.Coordinator {
	if sess := s.current(); sess != nil {
		return sess.actions
	}
	return nil
}

// Keynodes returns the keynode cache of the current session, or nil when
// stopped.
func (s *Server) Keynodes() *keynodes.Cache {
	if sess := s.current(); sess != nil {
		return sess.keynodes
	}
	return nil
}

// Ensures Server implements agent.Registrar at compile time.
var _ agent.Registrar = (*Server)(nil)

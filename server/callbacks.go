package server

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/agentgraph/core"
)

// CallbackType names a point in the dispatch lifecycle where callbacks run.
//
// Available callback types:
//   - BeforeAgent/AfterAgent: around one handler invocation
//   - OnError: when a handler panics, a filter fails or a callback rejects
//     the invocation
type CallbackType string

const (
	// CallbackBeforeAgent runs after the agent accepted the event and before
	// its handler. Returning an error skips the handler.
	CallbackBeforeAgent CallbackType = "before_agent"

	// CallbackAfterAgent runs after the handler returned and the action was
	// settled. Errors are logged.
	CallbackAfterAgent CallbackType = "after_agent"

	// CallbackOnError runs when the invocation failed.
	CallbackOnError CallbackType = "on_error"
)

// CallbackContext describes the invocation a callback runs for.
type CallbackContext struct {
	// SessionID identifies the server session.
	SessionID string

	// AgentID is the name of the agent.
	AgentID string

	// Event is the store event being dispatched.
	Event core.Event

	// CallbackType indicates which callback type triggered this execution.
	CallbackType CallbackType

	// Result is the handler outcome. Set for AfterAgent and OnError.
	Result core.Result

	// Err is the invocation failure, if any.
	Err error

	// Metadata is shared by the callbacks of one invocation.
	Metadata map[string]any
}

// Callback is a dispatch lifecycle hook. Callbacks run synchronously on the
// dispatch goroutine of the subscription and should be fast.
type Callback interface {
	// Type returns the callback type this implementation handles.
	Type() CallbackType

	// Execute performs the callback logic.
	Execute(ctx context.Context, callbackCtx *CallbackContext) error
}

// FunctionCallback wraps a function as a callback implementation.
//
// Example:
//
//	cb := NewFunctionCallback(CallbackBeforeAgent, func(ctx context.Context, cc *CallbackContext) error {
//	    log.Printf("dispatching to %s", cc.AgentID)
//	    return nil
//	})
type FunctionCallback struct {
	callbackType CallbackType
	fn           func(ctx context.Context, callbackCtx *CallbackContext) error
}

// NewFunctionCallback creates a new function-based callback.
func NewFunctionCallback(
	callbackType CallbackType,
	fn func(ctx context.Context, callbackCtx *CallbackContext) error,
) *FunctionCallback {
	return &FunctionCallback{
		callbackType: callbackType,
		fn:           fn,
	}
}

// Type returns the callback type this function handles.
func (c *FunctionCallback) Type() CallbackType {
	return c.callbackType
}

// Execute calls the wrapped function with the provided context.
func (c *FunctionCallback) Execute(ctx context.Context, callbackCtx *CallbackContext) error {
	return c.fn(ctx, callbackCtx)
}

// CallbackManager holds callbacks by type. Callbacks of one type run in
// registration order and the first error stops the chain. It is safe for
// concurrent use.
type CallbackManager struct {
	mu        sync.RWMutex
	callbacks map[CallbackType][]Callback
}

// NewCallbackManager creates an empty manager.
func NewCallbackManager() *CallbackManager {
	return &CallbackManager{
		callbacks: make(map[CallbackType][]Callback),
	}
}

// RegisterCallback adds a callback for its type.
func (cm *CallbackManager) RegisterCallback(callback Callback) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	t := callback.Type()
	cm.callbacks[t] = append(cm.callbacks[t], callback)
}

// ExecuteCallbacks runs the callbacks registered for callbackType and
// returns the first error.
func (cm *CallbackManager) ExecuteCallbacks(
	ctx context.Context,
	callbackType CallbackType,
	callbackCtx *CallbackContext,
) error {
	cm.mu.RLock()
	callbacks := cm.callbacks[callbackType]
	cm.mu.RUnlock()

	callbackCtx.CallbackType = callbackType
	for _, callback := range callbacks {
		if err := callback.Execute(ctx, callbackCtx); err != nil {
			return err
		}
	}
	return nil
}

// LoggingCallback forwards a one-line description of each invocation to a
// logging function.
type LoggingCallback struct {
	callbackType CallbackType
	logger       func(message string)
}

// NewLoggingCallback creates a new logging callback.
func NewLoggingCallback(callbackType CallbackType, logger func(message string)) *LoggingCallback {
	return &LoggingCallback{
		callbackType: callbackType,
		logger:       logger,
	}
}

// Type returns the callback type this logger handles.
func (c *LoggingCallback) Type() CallbackType {
	return c.callbackType
}

// Execute logs the invocation.
func (c *LoggingCallback) Execute(_ context.Context, callbackCtx *CallbackContext) error {
	if c.logger != nil {
		c.logger(fmt.Sprintf("[%s] Agent: %s, Event: %s, Target: %s, Result: %s",
			c.callbackType, callbackCtx.AgentID, callbackCtx.Event.Type, callbackCtx.Event.Other, callbackCtx.Result))
	}
	return nil
}

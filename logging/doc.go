// Package logging provides a minimal logging interface and adapters for agentgraph.
//
// The Logger interface defines the standard logging methods (Debug, Info, Warn, Error)
// that the server, stores and action coordinator use for observability. This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter and GraphLogger wrapping Go's structured logging
//   - ZapAdapter wrapping go.uber.org/zap
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	srv := server.New(func(o *server.Options) { o.Logger = logger })
//
// Arguments following the message are alternating key/value pairs.
package logging

// Package store opens a core.KnowledgeStore from an endpoint string.
//
// Supported endpoints:
//
//	memory://               in-process store (memstore)
//	sqlite://:memory:       private in-memory SQLite database
//	sqlite:///var/lib/kb.db SQLite database file
package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/hupe1980/agentgraph/core"
	"github.com/hupe1980/agentgraph/logging"
	"github.com/hupe1980/agentgraph/memstore"
	"github.com/hupe1980/agentgraph/sqlstore"
)

const (
	// SchemeMemory selects the in-process store.
	SchemeMemory = "memory"
	// SchemeSQLite selects the SQLite store.
	SchemeSQLite = "sqlite"
)

// DefaultEndpoint is used when an empty endpoint is given.
const DefaultEndpoint = SchemeMemory + "://"

// Options configures Open.
type Options struct {
	Logger logging.Logger
}

// Open connects to the store named by endpoint. Failures wrap
// core.ErrConnection.
func Open(ctx context.Context, endpoint string, optFns ...func(o *Options)) (core.KnowledgeStore, error) {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrConnection, err)
	}

	scheme, rest, err := Parse(endpoint)
	if err != nil {
		return nil, err
	}

	switch scheme {
	case SchemeMemory:
		return memstore.New(func(o *memstore.Options) { o.Logger = opts.Logger }), nil
	case SchemeSQLite:
		s, err := sqlstore.Open(rest, func(o *sqlstore.Options) { o.Logger = opts.Logger })
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("%w: unsupported scheme %q", core.ErrConnection, scheme)
	}
}

// Parse splits endpoint into its scheme and location.
func Parse(endpoint string) (scheme, location string, err error) {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	scheme, location, ok := strings.Cut(endpoint, "://")
	if !ok || scheme == "" {
		return "", "", fmt.Errorf("%w: malformed endpoint %q", core.ErrConnection, endpoint)
	}
	scheme = strings.ToLower(scheme)
	if scheme == SchemeSQLite && location == "" {
		return "", "", fmt.Errorf("%w: sqlite endpoint needs a path", core.ErrConnection)
	}
	return scheme, location, nil
}

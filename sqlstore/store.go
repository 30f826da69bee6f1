package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/hupe1980/agentgraph/core"
	"github.com/hupe1980/agentgraph/event"
	"github.com/hupe1980/agentgraph/logging"

	_ "modernc.org/sqlite"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// Options configures a Store.
type Options struct {
	// Logger receives store and delivery diagnostics. Defaults to NoOpLogger.
	Logger logging.Logger
}

// Store is a SQLite knowledge store.
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	path   string
	closed bool
	logger logging.Logger

	bus *event.Bus
}

// Ensures Store implements core.KnowledgeStore at compile time.
var _ core.KnowledgeStore = (*Store)(nil)

// Open opens (or creates) the database at path. Use MemoryPath for a
// throwaway database.
func Open(path string, optFns ...func(o *Options)) (*Store, error) {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}

	if !IsMemoryPath(path) {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("%w: create directory: %v", core.ErrConnection, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: open database: %v", core.ErrConnection, err)
	}
	// A single connection keeps :memory: databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, path: path, logger: opts.Logger, bus: event.NewBus(opts.Logger)}
	if err := s.initialize(); err != nil {
		_ = db.Close()
		s.bus.Close()
		return nil, err
	}
	s.logger.Debug("sqlite store opened", "path", path)
	return s, nil
}

func (s *Store) initialize() error {
	if !IsMemoryPath(s.path) {
		if _, err := s.db.Exec(`PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;`); err != nil {
			return fmt.Errorf("%w: configure database: %v", core.ErrConnection, err)
		}
	}
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("%w: create schema: %v", core.ErrConnection, err)
	}
	return nil
}

// Path returns the database path the store was opened with.
func (s *Store) Path() string { return s.path }

// CreateNode creates a node of type t.
func (s *Store) CreateNode(ctx context.Context, t core.Type) (core.Addr, error) {
	if t&core.TypeNode == 0 {
		return 0, fmt.Errorf("%w: %s is not a node type", core.ErrInvalidType, t)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, core.ErrClosed
	}
	return insertElement(ctx, s.db, t, 0, 0)
}

// CreateLink creates a link carrying content.
func (s *Store) CreateLink(ctx context.Context, t core.Type, content core.Content) (core.Addr, error) {
	if t == 0 {
		t = core.ConstNodeLink
	}
	if !t.IsLink() {
		return 0, fmt.Errorf("%w: %s is not a link type", core.ErrInvalidType, t)
	}
	if err := content.Validate(); err != nil {
		return 0, err
	}
	data, hash, err := encodeContent(content)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, core.ErrClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	addr, err := insertElement(ctx, tx, t, 0, 0)
	if err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO links (addr, content, hash) VALUES (?, ?, ?)`, int64(addr), data, hash); err != nil {
		return 0, fmt.Errorf("insert link: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return addr, nil
}

// CreateConnector creates a connector between two existing elements and
// publishes the resulting events.
func (s *Store) CreateConnector(ctx context.Context, t core.Type, source, target core.Addr) (core.Addr, error) {
	if !t.IsConnector() {
		return 0, fmt.Errorf("%w: %s is not a connector type", core.ErrInvalidType, t)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, core.ErrClosed
	}
	for _, end := range []core.Addr{source, target} {
		if _, err := s.typeLocked(ctx, end); err != nil {
			s.mu.Unlock()
			return 0, fmt.Errorf("connector endpoint: %w", err)
		}
	}
	addr, err := insertElement(ctx, s.db, t, source, target)
	s.mu.Unlock()
	if err != nil {
		return 0, err
	}

	s.bus.Publish(event.ConnectorEvents(t, addr, source, target)...)
	return addr, nil
}

// ElementType returns the type of addr.
func (s *Store) ElementType(ctx context.Context, addr core.Addr) (core.Type, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, core.ErrClosed
	}
	return s.typeLocked(ctx, addr)
}

// Connector returns the endpoints of a connector.
func (s *Store) Connector(ctx context.Context, addr core.Addr) (core.Addr, core.Addr, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, 0, core.ErrClosed
	}
	var typ, src, trg int64
	err := s.db.QueryRowContext(ctx, `SELECT type, source, target FROM elements WHERE addr = ?`, int64(addr)).Scan(&typ, &src, &trg)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, 0, fmt.Errorf("%w: %s", core.ErrNotFound, addr)
	}
	if err != nil {
		return 0, 0, err
	}
	if !core.Type(typ).IsConnector() {
		return 0, 0, fmt.Errorf("%w: %s is not a connector", core.ErrInvalidType, addr)
	}
	return core.Addr(src), core.Addr(trg), nil
}

// ResolveKeynode returns the element bound to idtf, creating a node of type t
// when none exists and t is non-zero.
func (s *Store) ResolveKeynode(ctx context.Context, idtf string, t core.Type) (core.Addr, error) {
	if idtf == "" {
		return 0, fmt.Errorf("%w: empty identifier", core.ErrInvalidParams)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, core.ErrClosed
	}

	var addr int64
	err := s.db.QueryRowContext(ctx, `SELECT addr FROM keynodes WHERE idtf = ?`, idtf).Scan(&addr)
	if err == nil {
		return core.Addr(addr), nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}
	if t == 0 {
		return 0, fmt.Errorf("%w: keynode %q", core.ErrNotFound, idtf)
	}
	if t&core.TypeNode == 0 {
		return 0, fmt.Errorf("%w: keynode %q must be a node, got %s", core.ErrInvalidType, idtf, t)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	created, err := insertElement(ctx, tx, t, 0, 0)
	if err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO keynodes (idtf, addr) VALUES (?, ?)`, idtf, int64(created)); err != nil {
		return 0, fmt.Errorf("bind keynode %q: %w", idtf, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return created, nil
}

// Search returns the connectors matching p ordered by creation.
func (s *Store) Search(ctx context.Context, p core.Pattern) ([]core.Triple, error) {
	query := `SELECT addr, type, source, target FROM elements WHERE source != 0`
	var args []any
	if p.Source.IsValid() {
		query += ` AND source = ?`
		args = append(args, int64(p.Source))
	}
	if p.Target.IsValid() {
		query += ` AND target = ?`
		args = append(args, int64(p.Target))
	}
	query += ` ORDER BY addr`

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, core.ErrClosed
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []core.Triple
	for rows.Next() {
		var addr, typ, src, trg int64
		if err := rows.Scan(&addr, &typ, &src, &trg); err != nil {
			return nil, err
		}
		if !core.Type(typ).Matches(p.Type) {
			continue
		}
		res = append(res, core.Triple{Source: core.Addr(src), Connector: core.Addr(addr), Target: core.Addr(trg)})
	}
	return res, rows.Err()
}

// LinkContent returns the content of a link.
func (s *Store) LinkContent(ctx context.Context, addr core.Addr) (core.Content, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return core.Content{}, core.ErrClosed
	}

	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT content FROM links WHERE addr = ?`, int64(addr)).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		if _, terr := s.typeLocked(ctx, addr); terr != nil {
			return core.Content{}, terr
		}
		return core.Content{}, fmt.Errorf("%w: %s is not a link", core.ErrInvalidType, addr)
	}
	if err != nil {
		return core.Content{}, err
	}
	return decodeContent(data)
}

// FindLinks returns the links whose content equals c ordered by creation.
func (s *Store) FindLinks(ctx context.Context, c core.Content) ([]core.Addr, error) {
	_, hash, err := encodeContent(c)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, core.ErrClosed
	}

	rows, err := s.db.QueryContext(ctx, `SELECT addr, content FROM links WHERE hash = ? ORDER BY addr`, hash)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []core.Addr
	for rows.Next() {
		var addr int64
		var data []byte
		if err := rows.Scan(&addr, &data); err != nil {
			return nil, err
		}
		got, err := decodeContent(data)
		if err != nil {
			s.logger.Warn("skipping undecodable link", "addr", addr, "error", err)
			continue
		}
		if got.Equal(c) {
			res = append(res, core.Addr(addr))
		}
	}
	return res, rows.Err()
}

// Remove deletes the elements and, transitively, every connector incident to
// a removed element. Unknown addresses are ignored.
func (s *Store) Remove(ctx context.Context, addrs ...core.Addr) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return core.ErrClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	seen := make(map[core.Addr]struct{})
	queue := append([]core.Addr(nil), addrs...)
	for len(queue) > 0 {
		addr := queue[0]
		queue = queue[1:]
		if _, ok := seen[addr]; ok {
			continue
		}
		seen[addr] = struct{}{}

		incident, err := incidentConnectors(ctx, tx, addr)
		if err != nil {
			return err
		}
		queue = append(queue, incident...)

		for _, stmt := range []string{
			`DELETE FROM elements WHERE addr = ?`,
			`DELETE FROM links WHERE addr = ?`,
			`DELETE FROM keynodes WHERE addr = ?`,
		} {
			if _, err := tx.ExecContext(ctx, stmt, int64(addr)); err != nil {
				return fmt.Errorf("remove %s: %w", addr, err)
			}
		}
	}
	return tx.Commit()
}

// Subscribe registers cb for events of type et anchored on anchor.
func (s *Store) Subscribe(ctx context.Context, anchor core.Addr, et core.EventType, cb core.EventCallback) (core.SubscriptionID, error) {
	if _, err := s.ElementType(ctx, anchor); err != nil {
		return 0, err
	}
	return s.bus.Subscribe(anchor, et, cb)
}

// Unsubscribe releases a subscription.
func (s *Store) Unsubscribe(_ context.Context, id core.SubscriptionID) error {
	return s.bus.Unsubscribe(id)
}

// Close releases subscriptions and closes the database. Close is idempotent.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.bus.Close()
	return s.db.Close()
}

func (s *Store) typeLocked(ctx context.Context, addr core.Addr) (core.Type, error) {
	var typ int64
	err := s.db.QueryRowContext(ctx, `SELECT type FROM elements WHERE addr = ?`, int64(addr)).Scan(&typ)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: %s", core.ErrNotFound, addr)
	}
	if err != nil {
		return 0, err
	}
	return core.Type(typ), nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertElement(ctx context.Context, db execer, t core.Type, source, target core.Addr) (core.Addr, error) {
	res, err := db.ExecContext(ctx,
		`INSERT INTO elements (type, source, target) VALUES (?, ?, ?)`,
		int64(t), int64(source), int64(target),
	)
	if err != nil {
		return 0, fmt.Errorf("insert element: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return core.Addr(id), nil
}

func incidentConnectors(ctx context.Context, tx *sql.Tx, addr core.Addr) ([]core.Addr, error) {
	rows, err := tx.QueryContext(ctx, `SELECT addr FROM elements WHERE source = ? OR target = ?`, int64(addr), int64(addr))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []core.Addr
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		res = append(res, core.Addr(id))
	}
	return res, rows.Err()
}

// IsMemoryPath reports whether path designates a private in-memory database.
func IsMemoryPath(path string) bool {
	return path == MemoryPath || strings.HasPrefix(path, "file::memory:")
}

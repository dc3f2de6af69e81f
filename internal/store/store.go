package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"mediaforge/internal/config"
	"mediaforge/internal/services"
)

// Store owns the SQLite connection pool. Its embedded Session runs each call
// on whichever pooled connection is free.
type Store struct {
	*Session
	db   *sql.DB
	path string
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// Open initializes or connects to the mediaforge database described by cfg.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(cfg.DatabasePath())
}

// OpenPath initializes or connects to the database at path.
func OpenPath(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dataSourceName(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	store := &Store{db: db, path: path}
	store.Session = &Session{conn: db}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// dataSourceName applies pragmas per connection so every pooled connection
// enforces foreign keys and waits on locks. Write transactions start
// IMMEDIATE to avoid deadlocking on lock upgrades.
func dataSourceName(path string) string {
	query := url.Values{}
	query.Add("_pragma", "busy_timeout(5000)")
	query.Add("_pragma", "foreign_keys(1)")
	query.Add("_pragma", "journal_mode(WAL)")
	query.Set("_txlock", "immediate")
	return "file:" + path + "?" + query.Encode()
}

// Path returns the database file location.
func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

// Close closes the underlying database connection pool.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Release is a no-op on the shared store. It shadows the embedded session's
// Release, which would otherwise disable the store for every caller; use
// Close to shut the store down.
func (s *Store) Release() error {
	return nil
}

// Acquire checks out a dedicated connection for one unit of work. The caller
// must Release the session; operations on a released session fail.
func (s *Store) Acquire(ctx context.Context) (*Session, error) {
	ctx = ensureContext(ctx)
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, services.Wrap(services.ErrPersistence, "store", "acquire", "check out connection", err)
	}
	return &Session{conn: conn, closer: conn}, nil
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ensureContext(ctx))
}

type connection interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Session scopes store operations to one connection. Sessions obtained from
// Acquire are not safe for concurrent use.
type Session struct {
	conn   connection
	closer interface{ Close() error }

	mu       sync.Mutex
	released bool
}

// ErrSessionReleased is returned by operations on a released session.
var ErrSessionReleased = errors.New("store session released")

// Release returns the session's connection to the pool. It is safe to call
// more than once.
func (s *Session) Release() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return nil
	}
	s.released = true
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

func (s *Session) check() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return ErrSessionReleased
	}
	return nil
}

// withTx runs fn inside a write transaction, retrying the whole transaction
// when SQLite reports the database busy.
func (s *Session) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	if err := s.check(); err != nil {
		return err
	}
	ctx = ensureContext(ctx)
	return retryOnBusy(ctx, func() error {
		tx, err := s.conn.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if err := fn(tx); err != nil {
			_ = tx.Rollback()
			return err
		}
		return tx.Commit()
	})
}

func (s *Session) execWithRetry(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	ctx = ensureContext(ctx)
	var (
		res     sql.Result
		execErr error
	)
	if err := retryOnBusy(ctx, func() error {
		res, execErr = s.conn.ExecContext(ctx, query, args...)
		return execErr
	}); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Session) reader() (queryer, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	return s.conn, nil
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code()&0xff == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

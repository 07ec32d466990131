package backend

import (
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// DefaultSignTTL is how long minted media locators stay valid.
const DefaultSignTTL = 15 * time.Minute

// Backend is the simulator core: a SQLite database plus a change-record hub.
type Backend struct {
	db      *sql.DB
	hub     *feedHub
	signTTL time.Duration
	now     func() time.Time
	logger  *slog.Logger
}

// Option configures a Backend at open.
type Option func(*Backend)

// WithSignTTL overrides the minted locator lifetime.
func WithSignTTL(ttl time.Duration) Option {
	return func(b *Backend) { b.signTTL = ttl }
}

// WithClock overrides the wall clock (locator expiries, created_at stamps).
func WithClock(now func() time.Time) Option {
	return func(b *Backend) { b.now = now }
}

// WithLogger sets the backend's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Backend) { b.logger = logger }
}

// Open creates or opens the simulator database at path (":memory:" for
// tests). Pragmas and schema are applied idempotently.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode
//   - 5-second busy timeout
//   - foreign key enforcement (cascading deletes clean up counter rows)
func Open(path string, opts ...Option) (*Backend, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect database: %w", err)
	}

	// SQLite supports one writer at a time; a single connection avoids
	// SQLITE_BUSY under concurrent mutations.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	b := &Backend{
		db:      db,
		hub:     newFeedHub(),
		signTTL: DefaultSignTTL,
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Close closes the database and disconnects every feed subscriber.
func (b *Backend) Close() error {
	b.hub.closeAll()
	if b.db == nil {
		return nil
	}
	return b.db.Close()
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	return nil
}

package kvstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"github.com/nerrad567/equipment-status/internal/infrastructure/config"
)

// memTableSize keeps the memtable small (~8MB); state records are tiny.
const memTableSize = 64 << 17

// Logger is the logging interface the Badger adapter writes to.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// DB wraps an embedded Badger database.
type DB struct {
	*badger.DB
}

// Open opens (or creates) the Badger database described by cfg.
// Badger's internal messages go to logger; nil silences them.
//
// Parameters:
//   - cfg: Badger configuration (path or in-memory)
//   - logger: Destination for Badger's own log output
//
// Returns:
//   - *DB: Open database
//   - error: If the directory cannot be opened or is locked by another process
func Open(cfg config.BadgerConfig, logger Logger) (*DB, error) {
	path := cfg.Path
	if cfg.InMemory {
		path = ""
	}

	options := badger.DefaultOptions(path).
		WithInMemory(cfg.InMemory).
		WithSyncWrites(cfg.SyncWrites).
		WithMemTableSize(memTableSize)

	if logger != nil {
		options = options.WithLogger(badgerLogger{logger: logger})
	} else {
		options = options.WithLogger(nil)
	}

	db, err := badger.Open(options)
	if err != nil {
		return nil, fmt.Errorf("opening badger: %w", err)
	}
	return &DB{DB: db}, nil
}

// Close closes the database.
func (db *DB) Close() error {
	if db.DB == nil || db.DB.IsClosed() {
		return nil
	}
	if err := db.DB.Close(); err != nil {
		return fmt.Errorf("closing badger: %w", err)
	}
	return nil
}

// HealthCheck verifies the database is open and readable.
func (db *DB) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if db.DB.IsClosed() {
		return fmt.Errorf("badger health check failed: database closed")
	}
	return db.View(func(*badger.Txn) error { return nil })
}

// badgerLogger adapts Logger to badger.Logger.
type badgerLogger struct {
	logger Logger
}

func (l badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(formatBadger(format, args...))
}

func (l badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(formatBadger(format, args...))
}

func (l badgerLogger) Infof(format string, args ...any) {
	l.logger.Debug(formatBadger(format, args...))
}

func (l badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(formatBadger(format, args...))
}

// formatBadger drops the trailing newline Badger appends to every message.
func formatBadger(format string, args ...any) string {
	return strings.TrimRight(fmt.Sprintf(format, args...), "\n")
}

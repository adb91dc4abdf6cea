package equipment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// SQLiteStore implements Store on the equipment_states table.
//
// Timestamps are kept twice: observed_at holds the RFC 3339 text with the
// original offset, and the (observed_unix_s, observed_nanos) pair holds the
// instant used for ordering and range filters. The pair covers every year a
// time.Time can hold, so no instant is clamped.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a store on an open, migrated SQLite connection and
// runs the one-time seeding step.
//
// Parameters:
//   - ctx: Context for the seeding transaction
//   - db: Open SQLite connection with the equipment_states table
//   - opts: Initialisation options (seed records)
//
// Returns:
//   - *SQLiteStore: Store ready for use
//   - error: If seeding fails
func NewSQLiteStore(ctx context.Context, db *sql.DB, opts StoreOptions) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if len(opts.Seed) > 0 {
		if err := s.seedIfEmpty(ctx, opts.Seed); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// seedIfEmpty inserts seed in one transaction when the table has no rows.
func (s *SQLiteStore) seedIfEmpty(ctx context.Context, seed []EquipmentState) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting seed transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	var populated bool
	if err := tx.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM equipment_states)",
	).Scan(&populated); err != nil {
		return fmt.Errorf("checking equipment states: %w", err)
	}
	if populated {
		return nil
	}

	for _, state := range seed {
		if err := insertSQLite(ctx, tx, state); err != nil {
			return fmt.Errorf("seeding equipment states: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing seed: %w", err)
	}
	return nil
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertSQLite(ctx context.Context, db execer, state EquipmentState) error {
	key, err := newRecordKey()
	if err != nil {
		return fmt.Errorf("generating record key: %w", err)
	}

	_, err = db.ExecContext(ctx,
		`INSERT INTO equipment_states
		 (record_key, equipment_id, equipment_key, state, observed_at, observed_unix_s, observed_nanos)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		key.String(),
		state.Identifier,
		normalizedKey(state.Identifier),
		state.State.String(),
		state.Timestamp.Format(time.RFC3339Nano),
		state.Timestamp.Unix(),
		state.Timestamp.Nanosecond(),
	)
	if err != nil {
		return fmt.Errorf("inserting equipment state: %w", err)
	}
	return nil
}

// Insert appends a history record.
func (s *SQLiteStore) Insert(ctx context.Context, state EquipmentState) error {
	return insertSQLite(ctx, s.db, state)
}

// Latest returns the newest record per identifier.
func (s *SQLiteStore) Latest(ctx context.Context) ([]EquipmentState, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT equipment_id, state, observed_at
		 FROM (
		     SELECT equipment_id, equipment_key, state, observed_at,
		            ROW_NUMBER() OVER (
		                PARTITION BY equipment_key
		                ORDER BY observed_unix_s DESC, observed_nanos DESC, record_key DESC
		            ) AS rn
		     FROM equipment_states
		 )
		 WHERE rn = 1
		 ORDER BY equipment_key`,
	)
	if err != nil {
		return nil, fmt.Errorf("querying latest equipment states: %w", err)
	}
	return scanSQLiteStates(rows)
}

// History returns records in [from, to], newest first.
func (s *SQLiteStore) History(ctx context.Context, from, to time.Time) ([]EquipmentState, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT equipment_id, state, observed_at
		 FROM equipment_states
		 WHERE (observed_unix_s, observed_nanos) >= (?, ?)
		   AND (observed_unix_s, observed_nanos) <= (?, ?)
		 ORDER BY observed_unix_s DESC, observed_nanos DESC, record_key DESC`,
		from.Unix(), from.Nanosecond(),
		to.Unix(), to.Nanosecond(),
	)
	if err != nil {
		return nil, fmt.Errorf("querying equipment history: %w", err)
	}
	return scanSQLiteStates(rows)
}

// HistoryByIdentifier returns records for one identifier in [from, to].
func (s *SQLiteStore) HistoryByIdentifier(ctx context.Context, identifier string, from, to time.Time) ([]EquipmentState, error) {
	if strings.TrimSpace(identifier) == "" {
		return []EquipmentState{}, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT equipment_id, state, observed_at
		 FROM equipment_states
		 WHERE equipment_key = ?
		   AND (observed_unix_s, observed_nanos) >= (?, ?)
		   AND (observed_unix_s, observed_nanos) <= (?, ?)
		 ORDER BY observed_unix_s DESC, observed_nanos DESC, record_key DESC`,
		normalizedKey(identifier),
		from.Unix(), from.Nanosecond(),
		to.Unix(), to.Nanosecond(),
	)
	if err != nil {
		return nil, fmt.Errorf("querying equipment history: %w", err)
	}
	return scanSQLiteStates(rows)
}

// HealthCheck runs a trivial query against the table.
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT 1 FROM equipment_states LIMIT 1").Scan(&n); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("sqlite store health check: %w", err)
	}
	return nil
}

func scanSQLiteStates(rows *sql.Rows) ([]EquipmentState, error) {
	defer rows.Close()

	states := make([]EquipmentState, 0)
	for rows.Next() {
		var (
			state      EquipmentState
			stateName  string
			observedAt string
		)
		if err := rows.Scan(&state.Identifier, &stateName, &observedAt); err != nil {
			return nil, fmt.Errorf("scanning equipment state: %w", err)
		}

		ts, err := time.Parse(time.RFC3339Nano, observedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing observed_at: %w", err)
		}
		state.State = State(stateName)
		state.Timestamp = ts

		states = append(states, state)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating equipment states: %w", err)
	}
	return states, nil
}

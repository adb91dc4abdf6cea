package equipment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store on PostgreSQL through a pgx pool.
//
// TIMESTAMPTZ normalises to UTC, so the original offset is kept in
// utc_offset_seconds and reapplied on read.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a store on a migrated pool and runs the one-time
// seeding step.
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool, opts StoreOptions) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("postgres pool is required")
	}

	s := &PostgresStore{pool: pool}
	if len(opts.Seed) > 0 {
		if err := s.seedIfEmpty(ctx, opts.Seed); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *PostgresStore) seedIfEmpty(ctx context.Context, seed []EquipmentState) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		// Serialise concurrent first starts against the same database.
		if _, err := tx.Exec(ctx, "LOCK TABLE equipment_states IN SHARE ROW EXCLUSIVE MODE"); err != nil {
			return fmt.Errorf("locking equipment states: %w", err)
		}

		var populated bool
		if err := tx.QueryRow(ctx,
			"SELECT EXISTS (SELECT 1 FROM equipment_states)",
		).Scan(&populated); err != nil {
			return fmt.Errorf("checking equipment states: %w", err)
		}
		if populated {
			return nil
		}

		batch := &pgx.Batch{}
		for _, state := range seed {
			if err := queuePostgresInsert(batch, state); err != nil {
				return err
			}
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("seeding equipment states: %w", err)
		}
		return nil
	})
}

const postgresInsertSQL = `INSERT INTO equipment_states
	(record_key, equipment_id, equipment_key, state, observed_at, utc_offset_seconds)
	VALUES ($1, $2, $3, $4, $5, $6)`

func postgresInsertArgs(state EquipmentState) ([]any, error) {
	key, err := newRecordKey()
	if err != nil {
		return nil, fmt.Errorf("generating record key: %w", err)
	}
	_, offset := state.Timestamp.Zone()

	return []any{
		key.String(),
		state.Identifier,
		normalizedKey(state.Identifier),
		state.State.String(),
		state.Timestamp,
		offset,
	}, nil
}

func queuePostgresInsert(batch *pgx.Batch, state EquipmentState) error {
	args, err := postgresInsertArgs(state)
	if err != nil {
		return err
	}
	batch.Queue(postgresInsertSQL, args...)
	return nil
}

// Insert appends a history record.
func (s *PostgresStore) Insert(ctx context.Context, state EquipmentState) error {
	args, err := postgresInsertArgs(state)
	if err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, postgresInsertSQL, args...); err != nil {
		return fmt.Errorf("inserting equipment state: %w", err)
	}
	return nil
}

// Latest returns the newest record per identifier.
func (s *PostgresStore) Latest(ctx context.Context) ([]EquipmentState, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT ON (equipment_key)
		        equipment_id, state, observed_at, utc_offset_seconds
		 FROM equipment_states
		 ORDER BY equipment_key, observed_at DESC, record_key DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("querying latest equipment states: %w", err)
	}
	return collectPostgresStates(rows)
}

// History returns records in [from, to], newest first.
func (s *PostgresStore) History(ctx context.Context, from, to time.Time) ([]EquipmentState, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT equipment_id, state, observed_at, utc_offset_seconds
		 FROM equipment_states
		 WHERE observed_at BETWEEN $1 AND $2
		 ORDER BY observed_at DESC, record_key DESC`,
		from,
		to,
	)
	if err != nil {
		return nil, fmt.Errorf("querying equipment history: %w", err)
	}
	return collectPostgresStates(rows)
}

// HistoryByIdentifier returns records for one identifier in [from, to].
func (s *PostgresStore) HistoryByIdentifier(ctx context.Context, identifier string, from, to time.Time) ([]EquipmentState, error) {
	if strings.TrimSpace(identifier) == "" {
		return []EquipmentState{}, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT equipment_id, state, observed_at, utc_offset_seconds
		 FROM equipment_states
		 WHERE equipment_key = $1
		   AND observed_at BETWEEN $2 AND $3
		 ORDER BY observed_at DESC, record_key DESC`,
		normalizedKey(identifier),
		from,
		to,
	)
	if err != nil {
		return nil, fmt.Errorf("querying equipment history: %w", err)
	}
	return collectPostgresStates(rows)
}

// HealthCheck pings the pool.
func (s *PostgresStore) HealthCheck(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres store health check: %w", err)
	}
	return nil
}

func collectPostgresStates(rows pgx.Rows) ([]EquipmentState, error) {
	states, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (EquipmentState, error) {
		var (
			state      EquipmentState
			stateName  string
			observedAt time.Time
			offset     int32
		)
		if err := row.Scan(&state.Identifier, &stateName, &observedAt, &offset); err != nil {
			return EquipmentState{}, err
		}
		state.State = State(stateName)
		state.Timestamp = observedAt.In(fixedZone(int(offset)))
		return state, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning equipment states: %w", err)
	}
	if states == nil {
		states = []EquipmentState{}
	}
	return states, nil
}

// fixedZone returns UTC for a zero offset and an unnamed fixed zone otherwise,
// matching what time.Parse yields for RFC 3339 input.
func fixedZone(offsetSeconds int) *time.Location {
	if offsetSeconds == 0 {
		return time.UTC
	}
	return time.FixedZone("", offsetSeconds)
}

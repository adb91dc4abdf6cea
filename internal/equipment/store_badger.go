package equipment

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

// badgerKeyPrefix namespaces state records inside a shared Badger instance.
const badgerKeyPrefix = "equipment/state/"

// badgerValue is the JSON document stored per record.
type badgerValue struct {
	Identifier string `json:"id"`
	State      string `json:"state"`
	Timestamp  string `json:"timestamp"`
}

// BadgerStore implements Store on an embedded Badger key-value database.
//
// Records live under equipment/state/<uuid>. Reads scan the prefix and sort
// in memory, which suits the single-node deployments this backend targets.
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore creates a store on an open Badger database and runs the
// one-time seeding step.
func NewBadgerStore(ctx context.Context, db *badger.DB, opts StoreOptions) (*BadgerStore, error) {
	if db == nil {
		return nil, fmt.Errorf("badger database is required")
	}

	s := &BadgerStore{db: db}
	if len(opts.Seed) > 0 {
		if err := s.seedIfEmpty(ctx, opts.Seed); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *BadgerStore) seedIfEmpty(ctx context.Context, seed []EquipmentState) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(badgerKeyPrefix)

		it := txn.NewIterator(opts)
		it.Rewind()
		populated := it.Valid()
		it.Close()
		if populated {
			return nil
		}

		for _, state := range seed {
			if err := putBadger(txn, state); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("seeding equipment states: %w", err)
	}
	return nil
}

func putBadger(txn *badger.Txn, state EquipmentState) error {
	key, err := newRecordKey()
	if err != nil {
		return fmt.Errorf("generating record key: %w", err)
	}

	value, err := json.Marshal(badgerValue{
		Identifier: state.Identifier,
		State:      state.State.String(),
		Timestamp:  state.Timestamp.Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("encoding equipment state: %w", err)
	}

	return txn.Set([]byte(badgerKeyPrefix+key.String()), value)
}

// Insert appends a history record.
func (s *BadgerStore) Insert(ctx context.Context, state EquipmentState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.db.Update(func(txn *badger.Txn) error {
		return putBadger(txn, state)
	}); err != nil {
		return fmt.Errorf("inserting equipment state: %w", err)
	}
	return nil
}

// Latest returns the newest record per identifier.
func (s *BadgerStore) Latest(ctx context.Context) ([]EquipmentState, error) {
	records, err := s.scan(ctx)
	if err != nil {
		return nil, err
	}

	groups := lo.GroupBy(records, func(r record) string {
		return normalizedKey(r.State.Identifier)
	})
	latest := lo.MapToSlice(groups, func(_ string, group []record) record {
		return lo.MaxBy(group, func(a, b record) bool {
			return a.newerThan(b)
		})
	})
	sort.Slice(latest, func(i, j int) bool {
		return normalizedKey(latest[i].State.Identifier) < normalizedKey(latest[j].State.Identifier)
	})

	return statesOf(latest), nil
}

// History returns records in [from, to], newest first.
func (s *BadgerStore) History(ctx context.Context, from, to time.Time) ([]EquipmentState, error) {
	records, err := s.scan(ctx)
	if err != nil {
		return nil, err
	}

	matched := lo.Filter(records, func(r record, _ int) bool {
		return inRange(r.State.Timestamp, from, to)
	})
	sortNewestFirst(matched)
	return statesOf(matched), nil
}

// HistoryByIdentifier returns records for one identifier in [from, to].
func (s *BadgerStore) HistoryByIdentifier(ctx context.Context, identifier string, from, to time.Time) ([]EquipmentState, error) {
	if strings.TrimSpace(identifier) == "" {
		return []EquipmentState{}, nil
	}

	records, err := s.scan(ctx)
	if err != nil {
		return nil, err
	}

	key := normalizedKey(identifier)
	matched := lo.Filter(records, func(r record, _ int) bool {
		return normalizedKey(r.State.Identifier) == key && inRange(r.State.Timestamp, from, to)
	})
	sortNewestFirst(matched)
	return statesOf(matched), nil
}

// HealthCheck reports an error once the database has been closed.
func (s *BadgerStore) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.db.IsClosed() {
		return ErrStoreClosed
	}
	return s.db.View(func(*badger.Txn) error { return nil })
}

// scan reads every record under the prefix.
func (s *BadgerStore) scan(ctx context.Context) ([]record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	records := make([]record, 0)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(badgerKeyPrefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			r, err := decodeBadgerRecord(item)
			if err != nil {
				return err
			}
			records = append(records, r)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning equipment states: %w", err)
	}
	return records, nil
}

func decodeBadgerRecord(item *badger.Item) (record, error) {
	rawKey := strings.TrimPrefix(string(item.Key()), badgerKeyPrefix)
	key, err := uuid.Parse(rawKey)
	if err != nil {
		return record{}, fmt.Errorf("parsing record key %q: %w", rawKey, err)
	}

	var value badgerValue
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &value)
	}); err != nil {
		return record{}, fmt.Errorf("decoding record %s: %w", key, err)
	}

	ts, err := time.Parse(time.RFC3339Nano, value.Timestamp)
	if err != nil {
		return record{}, fmt.Errorf("parsing timestamp of record %s: %w", key, err)
	}

	return record{
		Key: key,
		State: EquipmentState{
			Identifier: value.Identifier,
			State:      State(value.State),
			Timestamp:  ts,
		},
	}, nil
}

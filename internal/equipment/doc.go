// Package equipment tracks the operational state of manufacturing equipment.
//
// Reports arrive as raw strings (identifier, state name, timestamp). The
// Validator normalises them, the Service appends accepted reports to a Store,
// and queries read the history back.
//
// # Architecture
//
//	┌──────────────────────────────────────────────────────────────┐
//	│                           Service                            │
//	│                                                              │
//	│  ┌──────────────┐     ┌──────────────┐     ┌─────────────┐   │
//	│  │  Validator   │────▶│    Store     │     │   Mirror    │   │
//	│  │(validation.go│     │  (store.go)  │     │ (optional)  │   │
//	│  │ • id check   │     │ • append     │     │ • InfluxDB  │   │
//	│  │ • timestamp  │     │ • latest     │     └─────────────┘   │
//	│  │ • state enum │     │ • history    │                       │
//	│  └──────────────┘     └──────────────┘                       │
//	└───────────────────────────│──────────────────────────────────┘
//	                            │
//	          ┌─────────────────┼─────────────────┐
//	          ▼                 ▼                 ▼
//	   SQLiteStore       PostgresStore       BadgerStore
//
// # Key Types
//
//   - State / StateSet: the closed, configurable enumeration of states
//   - EquipmentState: one observation (identifier, state, timestamp)
//   - Store: append-only history with latest and range queries
//
// # Identity
//
// Identifiers are matched case-insensitively and stored upper-cased. When
// two records of one identifier share a timestamp, the one inserted last is
// the latest.
//
// # Usage
//
//	states := equipment.DefaultStateSet()
//	store, err := equipment.NewSQLiteStore(ctx, db.DB, equipment.StoreOptions{
//	    Seed: equipment.SampleStates(time.Now(), states),
//	})
//	svc := equipment.NewService(store, equipment.NewValidator(states, time.Local))
//	state, err := svc.Report(ctx, "press_1", "running", "2026-10-17T08:00:00Z")
package equipment

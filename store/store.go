// Package store provides the shared persistent key-value store used by the
// evolution pipeline for cross-cycle state: the anomaly baseline, the anomaly
// log, feedback weights, the rollback ledger, and the history archive.
//
// All state is addressed by stable namespaced string keys so that a process
// restart loses no learned state. Three backends implement the same
// interface: an in-memory store for tests and single-process use, a SQLite
// store for durable single-node deployments, and a Postgres store for shared
// deployments.
package store

import (
	"context"
	"time"
)

// Namespaced keys owned by the evolution pipeline.
const (
	KeyBaseline   = "evolution:baseline"   // hash: typeID -> PatternStatistics JSON
	KeyAnomalyLog = "evolution:anomalies"  // list: BehavioralAnomaly JSON, newest last
	KeyWeights    = "evolution:weights"    // hash: typeID -> weight
	KeyRollback   = "evolution:rollback"   // hash: suggestionID -> rollback record JSON
	KeyRollbackLog = "evolution:rollback-events" // list: rollback execution events
	KeyHistory    = "evolution:history"    // list: archived suggestion JSON
	KeyFeedbackLog = "evolution:feedback"  // list: FeedbackEntry JSON, newest last
)

// NoExpiry disables per-key expiry on Set.
const NoExpiry time.Duration = 0

// Store is a minimal key-value abstraction with string values, ordered
// lists, and hashes. Every mutation is a single atomic key write; there are
// no multi-key transactions.
type Store interface {
	// Get returns the value for key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// Set writes value under key. A positive ttl expires the key after the
	// given duration; NoExpiry keeps it forever.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Delete removes a key (plain, list, or hash). Missing keys are not an error.
	Delete(ctx context.Context, key string) error

	// ListAppend appends values to the tail of the list at key.
	ListAppend(ctx context.Context, key string, values ...string) error

	// ListTrim drops elements from the head until the list holds at most
	// maxLen entries (oldest dropped first).
	ListTrim(ctx context.Context, key string, maxLen int) error

	// ListRange returns elements [start, stop] inclusive; negative indexes
	// count from the tail, -1 being the last element.
	ListRange(ctx context.Context, key string, start, stop int) ([]string, error)

	// ListLen returns the number of elements in the list at key.
	ListLen(ctx context.Context, key string) (int, error)

	// HashGet returns a single field from the hash at key, or ErrNotFound.
	HashGet(ctx context.Context, key, field string) (string, error)

	// HashSet writes a single field of the hash at key.
	HashSet(ctx context.Context, key, field, value string) error

	// HashGetAll returns all fields of the hash at key. A missing hash
	// yields an empty map, not an error.
	HashGetAll(ctx context.Context, key string) (map[string]string, error)

	// HashDelete removes a single field from the hash at key.
	HashDelete(ctx context.Context, key, field string) error

	// Close releases backend resources.
	Close() error
}

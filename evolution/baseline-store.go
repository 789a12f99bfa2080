// Package evolution - Anomaly Baseline Store
// Persists per-pattern frequency/score statistics used by the behavioral
// anomaly detector. Entries survive restarts through the shared store and
// are only removed by the explicit retention policy.
package evolution

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/GestIAdev/selene-evolution/store"
)

// BaselineStore reads and updates PatternStatistics keyed by decision type.
type BaselineStore struct {
	st  store.Store
	cfg Config
	log *slog.Logger
}

func NewBaselineStore(st store.Store, cfg Config, log *slog.Logger) *BaselineStore {
	return &BaselineStore{st: st, cfg: cfg, log: log.With("component", "baseline-store")}
}

// Load returns the full baseline. Store failures degrade to an empty
// baseline: surveillance then treats everything as novel rather than
// blocking the cycle.
func (b *BaselineStore) Load(ctx context.Context) map[string]PatternStatistics {
	storeCtx, cancel := context.WithTimeout(ctx, b.cfg.storeTimeout())
	defer cancel()

	raw, err := b.st.HashGetAll(storeCtx, store.KeyBaseline)
	if err != nil {
		b.log.Warn("baseline load failed, using empty baseline", "error", err)
		return map[string]PatternStatistics{}
	}
	out := make(map[string]PatternStatistics, len(raw))
	for typeID, data := range raw {
		var stats PatternStatistics
		if err := json.Unmarshal([]byte(data), &stats); err != nil {
			b.log.Warn("corrupt baseline entry skipped", "type_id", typeID, "error", err)
			continue
		}
		out[typeID] = stats
	}
	return out
}

// Update folds one cycle's observation for a decision type into the
// baseline with moving-average semantics: frequency and score track an EMA
// weighted by BaselineAlpha, StdDev tracks the EMA of absolute deviation.
func (b *BaselineStore) Update(ctx context.Context, typeID string, batchCount int, avgScore float64) error {
	storeCtx, cancel := context.WithTimeout(ctx, b.cfg.storeTimeout())
	defer cancel()

	stats := PatternStatistics{}
	if raw, err := b.st.HashGet(storeCtx, store.KeyBaseline, typeID); err == nil {
		if err := json.Unmarshal([]byte(raw), &stats); err != nil {
			b.log.Warn("corrupt baseline entry reset", "type_id", typeID, "error", err)
			stats = PatternStatistics{}
		}
	}

	alpha := b.cfg.BaselineAlpha
	if stats.TotalOccurrences == 0 {
		stats.Frequency = float64(batchCount)
		stats.AverageScore = avgScore
		stats.StdDev = 0
	} else {
		stats.Frequency = (1-alpha)*stats.Frequency + alpha*float64(batchCount)
		delta := avgScore - stats.AverageScore
		stats.AverageScore += alpha * delta
		stats.StdDev = (1-alpha)*stats.StdDev + alpha*abs(delta)
	}
	stats.TotalOccurrences += int64(batchCount)
	stats.LastSeen = time.Now()

	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("marshal baseline for %s: %w", typeID, err)
	}
	if err := b.st.HashSet(storeCtx, store.KeyBaseline, typeID, string(data)); err != nil {
		return fmt.Errorf("persist baseline for %s: %w", typeID, err)
	}
	return nil
}

// Retain applies the explicit retention policy: entries older than maxAge
// are dropped. The only path that ever deletes baseline entries.
func (b *BaselineStore) Retain(ctx context.Context, maxAge time.Duration) error {
	storeCtx, cancel := context.WithTimeout(ctx, b.cfg.storeTimeout())
	defer cancel()

	baseline := b.Load(ctx)
	cutoff := time.Now().Add(-maxAge)
	for typeID, stats := range baseline {
		if stats.LastSeen.Before(cutoff) {
			if err := b.st.HashDelete(storeCtx, store.KeyBaseline, typeID); err != nil {
				return fmt.Errorf("retention delete for %s: %w", typeID, err)
			}
			b.log.Info("baseline entry expired", "type_id", typeID, "last_seen", stats.LastSeen)
		}
	}
	return nil
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

// Package evolution - Feedback Store and Weight Learning
// Human ratings adjust per-type generation weights. Feedback recording uses
// its own lock and never touches the cycle mutex, so ratings land even
// while a cycle is in flight.
package evolution

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/GestIAdev/selene-evolution/store"
)

// ErrInvalidRating rejects feedback outside the 0..10 scale.
var ErrInvalidRating = fmt.Errorf("human rating must be in [0,10]")

// FeedbackStore holds the bounded in-memory feedback window and the learned
// per-type weights, persisted best-effort through the shared store.
type FeedbackStore struct {
	mu      sync.RWMutex
	entries []FeedbackEntry
	weights map[string]float64
	loaded  bool

	st  store.Store
	cfg Config
	log *slog.Logger
}

func NewFeedbackStore(st store.Store, cfg Config, log *slog.Logger) *FeedbackStore {
	return &FeedbackStore{
		weights: make(map[string]float64),
		st:      st,
		cfg:     cfg,
		log:     log.With("component", "feedback-store"),
	}
}

// RecordFeedback validates and stores one rating, then adjusts the weight
// for the rated decision type. A rating of 5 is neutral and leaves the
// weight untouched. Persistence failures degrade to in-memory state only.
func (f *FeedbackStore) RecordFeedback(ctx context.Context, entry FeedbackEntry) error {
	if entry.HumanRating < 0 || entry.HumanRating > 10 {
		return fmt.Errorf("%w: got %.2f", ErrInvalidRating, entry.HumanRating)
	}
	if entry.DecisionTypeID == "" {
		return fmt.Errorf("decision type id is required")
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	f.mu.Lock()
	f.ensureLoadedLocked(ctx)

	f.entries = append(f.entries, entry)
	if len(f.entries) > f.cfg.MaxFeedbackEntries {
		f.entries = f.entries[len(f.entries)-f.cfg.MaxFeedbackEntries:]
	}

	weight := f.weightLocked(entry.DecisionTypeID)
	switch {
	case entry.HumanRating > 5:
		weight += f.cfg.WeightIncrement * (entry.HumanRating - 5) / 5
	case entry.HumanRating < 5:
		weight -= f.cfg.WeightDecrement * (5 - entry.HumanRating) / 5
	}
	weight = clampFloat64(weight, f.cfg.WeightMin, f.cfg.WeightMax)
	f.weights[entry.DecisionTypeID] = weight
	f.mu.Unlock()

	f.log.Info("feedback recorded",
		"type_id", entry.DecisionTypeID,
		"rating", entry.HumanRating,
		"weight", weight,
	)
	f.persistWeight(ctx, entry.DecisionTypeID, weight)
	f.persistEntry(ctx, entry)
	return nil
}

// Weights returns a copy of the current per-type weights, merged with the
// persisted set on first use. Absent types default to 1.0 at read sites.
func (f *FeedbackStore) Weights(ctx context.Context) map[string]float64 {
	f.mu.Lock()
	f.ensureLoadedLocked(ctx)
	out := make(map[string]float64, len(f.weights))
	for k, v := range f.weights {
		out[k] = v
	}
	f.mu.Unlock()
	return out
}

// Recent returns up to n most recent feedback entries, newest last.
func (f *FeedbackStore) Recent(n int) []FeedbackEntry {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if n <= 0 || n > len(f.entries) {
		n = len(f.entries)
	}
	out := make([]FeedbackEntry, n)
	copy(out, f.entries[len(f.entries)-n:])
	return out
}

// weightLocked reads a type's weight with the 1.0 default. Caller holds mu.
func (f *FeedbackStore) weightLocked(typeID string) float64 {
	if w, ok := f.weights[typeID]; ok {
		return w
	}
	return 1.0
}

// ensureLoadedLocked hydrates weights from the store once. Failures degrade
// to the empty map. Caller holds mu.
func (f *FeedbackStore) ensureLoadedLocked(ctx context.Context) {
	if f.loaded {
		return
	}
	f.loaded = true

	storeCtx, cancel := context.WithTimeout(ctx, f.cfg.storeTimeout())
	defer cancel()
	persisted, err := f.st.HashGetAll(storeCtx, store.KeyWeights)
	if err != nil {
		f.log.Warn("load persisted weights failed, starting empty", "error", err)
		return
	}
	for typeID, raw := range persisted {
		w, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			f.log.Warn("corrupt persisted weight skipped", "type_id", typeID, "value", raw)
			continue
		}
		f.weights[typeID] = clampFloat64(w, f.cfg.WeightMin, f.cfg.WeightMax)
	}
}

func (f *FeedbackStore) persistWeight(ctx context.Context, typeID string, weight float64) {
	storeCtx, cancel := context.WithTimeout(ctx, f.cfg.storeTimeout())
	defer cancel()
	value := strconv.FormatFloat(weight, 'f', -1, 64)
	if err := f.st.HashSet(storeCtx, store.KeyWeights, typeID, value); err != nil {
		f.log.Warn("persist weight failed", "type_id", typeID, "error", err)
	}
}

func (f *FeedbackStore) persistEntry(ctx context.Context, entry FeedbackEntry) {
	storeCtx, cancel := context.WithTimeout(ctx, f.cfg.storeTimeout())
	defer cancel()
	data, err := json.Marshal(entry)
	if err != nil {
		f.log.Warn("marshal feedback entry", "error", err)
		return
	}
	if err := f.st.ListAppend(storeCtx, store.KeyFeedbackLog, string(data)); err != nil {
		f.log.Warn("persist feedback entry failed", "error", err)
		return
	}
	if err := f.st.ListTrim(storeCtx, store.KeyFeedbackLog, f.cfg.MaxFeedbackEntries); err != nil {
		f.log.Warn("trim feedback log failed", "error", err)
	}
}

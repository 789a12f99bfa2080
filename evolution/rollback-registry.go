// Package evolution - Rollback Registry
// Durable ledger of every surfaced suggestion and its undo plan, with
// best-effort plan execution. A failed step is logged and execution
// continues: partial recovery beats all-or-nothing rollback here.
package evolution

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/GestIAdev/selene-evolution/store"
)

// StepExecutor applies one rollback step to the running system. Optional:
// without one, steps are recorded and logged only.
type StepExecutor func(ctx context.Context, suggestionID, step string) error

// rollbackRecord is the persisted ledger entry per suggestion.
type rollbackRecord struct {
	SuggestionID string    `json:"suggestion_id"`
	Name         string    `json:"name"`
	TypeID       string    `json:"type_id"`
	Plan         []string  `json:"plan"`
	RegisteredAt time.Time `json:"registered_at"`
}

// RollbackEvent records one rollback execution attempt.
type RollbackEvent struct {
	EventID      string    `json:"event_id"`
	SuggestionID string    `json:"suggestion_id"`
	StepsTotal   int       `json:"steps_total"`
	StepsFailed  int       `json:"steps_failed"`
	ExecutedAt   time.Time `json:"executed_at"`
}

// RollbackRegistry registers suggestions idempotently and executes undo
// plans. Registrations survive restarts through the shared store; a local
// set short-circuits repeat registrations within one process.
type RollbackRegistry struct {
	st       store.Store
	cfg      Config
	log      *slog.Logger
	executor StepExecutor

	mu   sync.Mutex
	seen map[string]struct{}
}

func NewRollbackRegistry(st store.Store, cfg Config, log *slog.Logger, executor StepExecutor) *RollbackRegistry {
	return &RollbackRegistry{
		st:       st,
		cfg:      cfg,
		log:      log.With("component", "rollback-registry"),
		executor: executor,
		seen:     make(map[string]struct{}),
	}
}

// Register persists the suggestion's undo plan. Idempotent per suggestion
// ID: re-registering is a no-op.
func (r *RollbackRegistry) Register(ctx context.Context, s Suggestion) error {
	r.mu.Lock()
	if _, ok := r.seen[s.ID]; ok {
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	storeCtx, cancel := context.WithTimeout(ctx, r.cfg.storeTimeout())
	defer cancel()

	if _, err := r.st.HashGet(storeCtx, store.KeyRollback, s.ID); err == nil {
		r.markSeen(s.ID)
		return nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("rollback ledger lookup for %s: %w", s.ID, err)
	}

	plan := []string{"restore previous parameters"}
	if s.Containment != nil && len(s.Containment.RollbackPlan) > 0 {
		plan = s.Containment.RollbackPlan
	}
	rec := rollbackRecord{
		SuggestionID: s.ID,
		Name:         s.Name,
		TypeID:       s.TypeID,
		Plan:         plan,
		RegisteredAt: time.Now(),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal rollback record for %s: %w", s.ID, err)
	}
	if err := r.st.HashSet(storeCtx, store.KeyRollback, s.ID, string(data)); err != nil {
		return fmt.Errorf("persist rollback record for %s: %w", s.ID, err)
	}
	r.markSeen(s.ID)
	r.log.Debug("rollback plan registered", "suggestion", s.ID, "steps", len(plan))
	return nil
}

// Rollback executes the plan's steps in order. A failure on any step is
// logged but does not stop subsequent steps. Returns true only when every
// step succeeded.
func (r *RollbackRegistry) Rollback(ctx context.Context, s Suggestion, plan []string) bool {
	if len(plan) == 0 {
		if rec, err := r.lookup(ctx, s.ID); err == nil {
			plan = rec.Plan
		}
	}
	failed := 0
	for i, step := range plan {
		if err := r.executeStep(ctx, s.ID, step); err != nil {
			failed++
			r.log.Error("rollback step failed",
				"suggestion", s.ID,
				"step", i,
				"action", step,
				"error", err,
			)
			continue
		}
		r.log.Info("rollback step executed", "suggestion", s.ID, "step", i, "action", step)
	}

	r.recordEvent(ctx, RollbackEvent{
		EventID:      uuid.NewString(),
		SuggestionID: s.ID,
		StepsTotal:   len(plan),
		StepsFailed:  failed,
		ExecutedAt:   time.Now(),
	})
	return failed == 0 && len(plan) > 0
}

// Registered reports whether a suggestion has a ledger entry.
func (r *RollbackRegistry) Registered(ctx context.Context, suggestionID string) bool {
	_, err := r.lookup(ctx, suggestionID)
	return err == nil
}

func (r *RollbackRegistry) lookup(ctx context.Context, suggestionID string) (rollbackRecord, error) {
	storeCtx, cancel := context.WithTimeout(ctx, r.cfg.storeTimeout())
	defer cancel()

	raw, err := r.st.HashGet(storeCtx, store.KeyRollback, suggestionID)
	if err != nil {
		return rollbackRecord{}, err
	}
	var rec rollbackRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return rollbackRecord{}, fmt.Errorf("decode rollback record for %s: %w", suggestionID, err)
	}
	return rec, nil
}

func (r *RollbackRegistry) executeStep(ctx context.Context, suggestionID, step string) error {
	if r.executor == nil {
		return nil
	}
	return r.executor(ctx, suggestionID, step)
}

func (r *RollbackRegistry) recordEvent(ctx context.Context, ev RollbackEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		r.log.Warn("marshal rollback event", "error", err)
		return
	}
	storeCtx, cancel := context.WithTimeout(ctx, r.cfg.storeTimeout())
	defer cancel()
	if err := r.st.ListAppend(storeCtx, store.KeyRollbackLog, string(data)); err != nil {
		r.log.Warn("persist rollback event", "suggestion", ev.SuggestionID, "error", err)
	}
}

func (r *RollbackRegistry) markSeen(id string) {
	r.mu.Lock()
	r.seen[id] = struct{}{}
	r.mu.Unlock()
}

package evolution

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/GestIAdev/selene-evolution/store"
)

func testSuggestion(id string, plan []string) Suggestion {
	s := Suggestion{CandidateDecision: goodCandidate("tune", "tune:core", 0.3)}
	s.ID = id
	if plan != nil {
		s.Containment = &ContainmentResult{
			Contained:    true,
			Level:        ContainmentMedium,
			RollbackPlan: plan,
		}
	}
	return s
}

func TestRegisterIdempotent(t *testing.T) {
	st := store.NewMemoryStore()
	r := NewRollbackRegistry(st, DefaultConfig(), testLogger(), nil)
	ctx := context.Background()

	s := testSuggestion("sugg-1", []string{"undo step"})
	for i := 0; i < 3; i++ {
		if err := r.Register(ctx, s); err != nil {
			t.Fatalf("Register attempt %d: %v", i, err)
		}
	}
	if !r.Registered(ctx, "sugg-1") {
		t.Error("suggestion not found in ledger after registration")
	}

	// A second registry instance over the same store also sees it and stays
	// idempotent.
	r2 := NewRollbackRegistry(st, DefaultConfig(), testLogger(), nil)
	if err := r2.Register(ctx, s); err != nil {
		t.Fatalf("cross-instance Register: %v", err)
	}
	if !r2.Registered(ctx, "sugg-1") {
		t.Error("ledger entry not visible to second instance")
	}
}

func TestRollbackExecutesAllSteps(t *testing.T) {
	var (
		mu   sync.Mutex
		runs []string
	)
	exec := func(_ context.Context, _ string, step string) error {
		mu.Lock()
		runs = append(runs, step)
		mu.Unlock()
		if step == "bad step" {
			return errors.New("component refused")
		}
		return nil
	}

	r := NewRollbackRegistry(store.NewMemoryStore(), DefaultConfig(), testLogger(), exec)
	plan := []string{"first", "bad step", "last"}
	ok := r.Rollback(context.Background(), testSuggestion("sugg-2", plan), plan)

	if ok {
		t.Error("rollback reported success despite a failed step")
	}
	mu.Lock()
	defer mu.Unlock()
	if len(runs) != 3 {
		t.Fatalf("executed %d steps, want all 3 (failure must not stop execution)", len(runs))
	}
	if runs[0] != "first" || runs[2] != "last" {
		t.Errorf("steps ran out of order: %v", runs)
	}
}

func TestRollbackUsesStoredPlan(t *testing.T) {
	var (
		mu   sync.Mutex
		runs []string
	)
	exec := func(_ context.Context, _ string, step string) error {
		mu.Lock()
		runs = append(runs, step)
		mu.Unlock()
		return nil
	}

	st := store.NewMemoryStore()
	r := NewRollbackRegistry(st, DefaultConfig(), testLogger(), exec)
	ctx := context.Background()

	s := testSuggestion("sugg-3", []string{"restore snapshot", "clear limits"})
	if err := r.Register(ctx, s); err != nil {
		t.Fatalf("Register: %v", err)
	}

	// Caller passes no plan: the ledger copy is used.
	if ok := r.Rollback(ctx, s, nil); !ok {
		t.Error("rollback with stored plan reported failure")
	}
	mu.Lock()
	defer mu.Unlock()
	if len(runs) != 2 {
		t.Errorf("executed %d steps from stored plan, want 2: %v", len(runs), runs)
	}
}

func TestRollbackEmptyPlanFails(t *testing.T) {
	r := NewRollbackRegistry(store.NewMemoryStore(), DefaultConfig(), testLogger(), nil)
	if ok := r.Rollback(context.Background(), testSuggestion("sugg-4", nil), nil); ok {
		t.Error("rollback with no plan anywhere reported success")
	}
}

func TestRollbackEventsRecorded(t *testing.T) {
	st := store.NewMemoryStore()
	r := NewRollbackRegistry(st, DefaultConfig(), testLogger(), nil)
	ctx := context.Background()

	plan := []string{"restore"}
	r.Rollback(ctx, testSuggestion("sugg-5", plan), plan)
	r.Rollback(ctx, testSuggestion("sugg-5", plan), plan)

	n, err := st.ListLen(ctx, store.KeyRollbackLog)
	if err != nil {
		t.Fatalf("ListLen: %v", err)
	}
	if n != 2 {
		t.Errorf("recorded %d rollback events, want 2", n)
	}
}

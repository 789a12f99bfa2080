package evolution

import (
	"context"
	"testing"
	"time"

	"github.com/GestIAdev/selene-evolution/store"
)

func TestBaselineFirstObservationSetsDirectly(t *testing.T) {
	b := NewBaselineStore(store.NewMemoryStore(), DefaultConfig(), testLogger())
	ctx := context.Background()

	if err := b.Update(ctx, "tune", 4, 0.7); err != nil {
		t.Fatalf("Update: %v", err)
	}
	stats := b.Load(ctx)["tune"]
	if stats.Frequency != 4 || stats.AverageScore != 0.7 {
		t.Errorf("first observation = %+v, want frequency 4 average 0.7", stats)
	}
	if stats.StdDev != 0 {
		t.Errorf("first observation stddev = %v, want 0", stats.StdDev)
	}
	if stats.TotalOccurrences != 4 {
		t.Errorf("total occurrences = %d, want 4", stats.TotalOccurrences)
	}
}

func TestBaselineMovingAverage(t *testing.T) {
	cfg := DefaultConfig() // alpha 0.3
	b := NewBaselineStore(store.NewMemoryStore(), cfg, testLogger())
	ctx := context.Background()

	if err := b.Update(ctx, "tune", 4, 0.8); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := b.Update(ctx, "tune", 2, 0.4); err != nil {
		t.Fatalf("Update: %v", err)
	}

	stats := b.Load(ctx)["tune"]
	wantFreq := 0.7*4 + 0.3*2
	if diff := stats.Frequency - wantFreq; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("frequency = %v, want %v", stats.Frequency, wantFreq)
	}
	wantAvg := 0.8 + 0.3*(0.4-0.8)
	if diff := stats.AverageScore - wantAvg; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("average = %v, want %v", stats.AverageScore, wantAvg)
	}
	if stats.StdDev <= 0 {
		t.Errorf("stddev = %v, want positive after a deviation", stats.StdDev)
	}
	if stats.TotalOccurrences != 6 {
		t.Errorf("total occurrences = %d, want 6", stats.TotalOccurrences)
	}
}

func TestBaselineLoadDegradesOnFailure(t *testing.T) {
	st := store.NewMemoryStore()
	st.Close() // every read now fails

	b := NewBaselineStore(st, DefaultConfig(), testLogger())
	baseline := b.Load(context.Background())
	if baseline == nil {
		t.Fatal("Load returned nil, want empty baseline")
	}
	if len(baseline) != 0 {
		t.Errorf("degraded baseline = %v, want empty", baseline)
	}
}

func TestBaselineRetention(t *testing.T) {
	st := store.NewMemoryStore()
	cfg := DefaultConfig()
	b := NewBaselineStore(st, cfg, testLogger())
	ctx := context.Background()

	seedBaseline(t, st, "stale", PatternStatistics{
		Frequency:    1,
		AverageScore: 0.5,
		LastSeen:     time.Now().Add(-60 * 24 * time.Hour),
	})
	if err := b.Update(ctx, "active", 2, 0.6); err != nil {
		t.Fatalf("Update: %v", err)
	}

	if err := b.Retain(ctx, 30*24*time.Hour); err != nil {
		t.Fatalf("Retain: %v", err)
	}

	baseline := b.Load(ctx)
	if _, ok := baseline["stale"]; ok {
		t.Error("stale entry survived retention")
	}
	if _, ok := baseline["active"]; !ok {
		t.Error("active entry removed by retention")
	}
}

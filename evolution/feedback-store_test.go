package evolution

import (
	"context"
	"errors"
	"testing"

	"github.com/GestIAdev/selene-evolution/store"
)

func newTestFeedback(t *testing.T, cfg Config) (*FeedbackStore, store.Store) {
	t.Helper()
	st := store.NewMemoryStore()
	return NewFeedbackStore(st, cfg, testLogger()), st
}

func TestWeightAdjustment(t *testing.T) {
	tests := []struct {
		name   string
		rating float64
		want   float64
	}{
		{"max_positive", 10, 1.2}, // +0.2 * (10-5)/5
		{"mild_positive", 7, 1.08},
		{"neutral", 5, 1.0},
		{"mild_negative", 3, 0.92},
		{"max_negative", 0, 0.8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs, _ := newTestFeedback(t, DefaultConfig())
			if err := fs.RecordFeedback(context.Background(), FeedbackEntry{
				DecisionTypeID: "tune",
				HumanRating:    tt.rating,
			}); err != nil {
				t.Fatalf("RecordFeedback: %v", err)
			}
			got := fs.Weights(context.Background())["tune"]
			if diff := got - tt.want; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("weight = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWeightClamping(t *testing.T) {
	cfg := DefaultConfig()
	fs, _ := newTestFeedback(t, cfg)
	ctx := context.Background()

	for i := 0; i < 40; i++ {
		if err := fs.RecordFeedback(ctx, FeedbackEntry{DecisionTypeID: "loved", HumanRating: 10}); err != nil {
			t.Fatalf("RecordFeedback: %v", err)
		}
		if err := fs.RecordFeedback(ctx, FeedbackEntry{DecisionTypeID: "hated", HumanRating: 0}); err != nil {
			t.Fatalf("RecordFeedback: %v", err)
		}
	}

	weights := fs.Weights(ctx)
	if got := weights["loved"]; got > cfg.WeightMax {
		t.Errorf("weight %v exceeds max %v", got, cfg.WeightMax)
	}
	if got := weights["hated"]; got < cfg.WeightMin {
		t.Errorf("weight %v below min %v", got, cfg.WeightMin)
	}
	if got := weights["hated"]; got != cfg.WeightMin {
		t.Errorf("sustained bad ratings should pin weight at min %v, got %v", cfg.WeightMin, got)
	}
}

func TestInvalidRatingRejected(t *testing.T) {
	fs, _ := newTestFeedback(t, DefaultConfig())

	for _, rating := range []float64{-0.1, 10.1, 42} {
		err := fs.RecordFeedback(context.Background(), FeedbackEntry{DecisionTypeID: "tune", HumanRating: rating})
		if !errors.Is(err, ErrInvalidRating) {
			t.Errorf("rating %v: err = %v, want ErrInvalidRating", rating, err)
		}
	}
	if len(fs.Recent(0)) != 0 {
		t.Error("rejected feedback was stored")
	}
}

func TestFeedbackWindowBounded(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxFeedbackEntries = 5
	fs, _ := newTestFeedback(t, cfg)

	for i := 0; i < 12; i++ {
		if err := fs.RecordFeedback(context.Background(), FeedbackEntry{
			DecisionTypeID: "tune",
			HumanRating:    5,
		}); err != nil {
			t.Fatalf("RecordFeedback %d: %v", i, err)
		}
	}
	if got := len(fs.Recent(0)); got != 5 {
		t.Errorf("retained %d entries, want 5", got)
	}
}

func TestWeightsSurviveRestart(t *testing.T) {
	cfg := DefaultConfig()
	st := store.NewMemoryStore()
	ctx := context.Background()

	fs := NewFeedbackStore(st, cfg, testLogger())
	if err := fs.RecordFeedback(ctx, FeedbackEntry{DecisionTypeID: "tune", HumanRating: 10}); err != nil {
		t.Fatalf("RecordFeedback: %v", err)
	}

	// A fresh store instance over the same backend sees the learned weight.
	reborn := NewFeedbackStore(st, cfg, testLogger())
	got := reborn.Weights(ctx)["tune"]
	if diff := got - 1.2; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("restored weight = %v, want 1.2", got)
	}
}

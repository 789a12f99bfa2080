package evolution

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/GestIAdev/selene-evolution/store"
)

func newTestDetector(t *testing.T, cfg Config) (*AnomalyDetector, store.Store) {
	t.Helper()
	st := store.NewMemoryStore()
	baseline := NewBaselineStore(st, cfg, testLogger())
	return NewAnomalyDetector(baseline, st, cfg, testLogger()), st
}

func seedBaseline(t *testing.T, st store.Store, typeID string, stats PatternStatistics) {
	t.Helper()
	if stats.LastSeen.IsZero() {
		stats.LastSeen = time.Now()
	}
	if stats.TotalOccurrences == 0 {
		stats.TotalOccurrences = 1
	}
	data, err := json.Marshal(stats)
	if err != nil {
		t.Fatalf("marshal baseline: %v", err)
	}
	if err := st.HashSet(context.Background(), store.KeyBaseline, typeID, string(data)); err != nil {
		t.Fatalf("seed baseline: %v", err)
	}
}

func batchOf(typeID string, count int, score float64) []CandidateDecision {
	out := make([]CandidateDecision, count)
	for i := range out {
		out[i] = goodCandidate(typeID, typeID+":sig", 0.3)
		out[i].ValidationScore = score
	}
	return out
}

func findAnomaly(anomalies []BehavioralAnomaly, typ AnomalyType) (BehavioralAnomaly, bool) {
	for _, a := range anomalies {
		if a.Type == typ {
			return a, true
		}
	}
	return BehavioralAnomaly{}, false
}

func TestStatisticalSeverityBoundaries(t *testing.T) {
	// baseline frequency 1, average score 0.5:
	// score = |count-1|/1 + |avg-0.5|*2
	tests := []struct {
		name     string
		count    int
		score    float64
		want     AnomalySeverity
		reported bool
	}{
		{"below_threshold", 3, 0.95, SeverityMedium, false},  // 2 + 0.9 = 2.9
		{"medium", 4, 0.55, SeverityMedium, true},            // 3 + 0.1 = 3.1
		{"high", 5, 0.55, SeverityHigh, true},                // 4 + 0.1 = 4.1
		{"critical", 6, 0.55, SeverityCritical, true},        // 5 + 0.1 = 5.1
		{"exactly_four_stays_medium", 4, 1.0, SeverityMedium, true}, // 3 + 1.0 = 4.0
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, st := newTestDetector(t, DefaultConfig())
			seedBaseline(t, st, "tune", PatternStatistics{Frequency: 1, AverageScore: 0.5})

			anomalies := d.Analyze(context.Background(), batchOf("tune", tt.count, tt.score))
			got, found := findAnomaly(anomalies, AnomalyStatistical)
			if found != tt.reported {
				t.Fatalf("statistical anomaly reported = %v, want %v (got %+v)", found, tt.reported, anomalies)
			}
			if found && got.Severity != tt.want {
				t.Errorf("severity = %s, want %s (score %.2f)", got.Severity, tt.want, got.AnomalyScore)
			}
		})
	}
}

func TestNovelPatternNotStatisticallyAnomalous(t *testing.T) {
	d, _ := newTestDetector(t, DefaultConfig())

	anomalies := d.Analyze(context.Background(), batchOf("never-seen", 8, 0.9))
	if a, found := findAnomaly(anomalies, AnomalyStatistical); found {
		t.Errorf("novel pattern flagged statistically: %+v", a)
	}
	if a, found := findAnomaly(anomalies, AnomalyConsistency); found {
		t.Errorf("novel pattern flagged for consistency (should contribute neutral 1.0): %+v", a)
	}
}

func TestFrequencySpike(t *testing.T) {
	d, st := newTestDetector(t, DefaultConfig())
	seedBaseline(t, st, "tune", PatternStatistics{Frequency: 2, AverageScore: 0.55})

	// ratio 3.0: above the 2.5 flag line, below the 4.0 critical line.
	anomalies := d.Analyze(context.Background(), batchOf("tune", 6, 0.55))
	a, found := findAnomaly(anomalies, AnomalyFrequency)
	if !found {
		t.Fatalf("frequency spike not detected: %+v", anomalies)
	}
	if a.Severity != SeverityHigh {
		t.Errorf("severity = %s, want high", a.Severity)
	}

	d2, st2 := newTestDetector(t, DefaultConfig())
	seedBaseline(t, st2, "tune", PatternStatistics{Frequency: 2, AverageScore: 0.55})

	// ratio 4.5 crosses the critical line.
	anomalies = d2.Analyze(context.Background(), batchOf("tune", 9, 0.55))
	a, found = findAnomaly(anomalies, AnomalyFrequency)
	if !found {
		t.Fatal("critical frequency spike not detected")
	}
	if a.Severity != SeverityCritical {
		t.Errorf("severity = %s, want critical", a.Severity)
	}
}

func TestRepetitionDominance(t *testing.T) {
	d, st := newTestDetector(t, DefaultConfig())
	seedBaseline(t, st, "dominant", PatternStatistics{Frequency: 1, AverageScore: 0.5})
	seedBaseline(t, st, "steady", PatternStatistics{Frequency: 4, AverageScore: 0.5})

	// dominant expected share 0.2, actual 0.75: past the repetition line.
	batch := append(batchOf("dominant", 3, 0.5), batchOf("steady", 1, 0.5)...)
	anomalies := d.Analyze(context.Background(), batch)
	a, found := findAnomaly(anomalies, AnomalyRepetition)
	if !found {
		t.Fatalf("repetition dominance not detected: %+v", anomalies)
	}
	if a.Severity != SeverityHigh {
		t.Errorf("severity = %s, want high", a.Severity)
	}
	if len(a.AffectedPatterns) != 1 || a.AffectedPatterns[0] != "dominant" {
		t.Errorf("affected patterns = %v, want [dominant]", a.AffectedPatterns)
	}
}

func TestConsistencyDrift(t *testing.T) {
	tests := []struct {
		name        string
		baselineAvg float64
		score       float64
		want        AnomalySeverity
		found       bool
	}{
		{"aligned", 0.5, 0.55, SeverityMedium, false},        // consistency 0.95
		{"drifting", 0.5, 0.95, SeverityMedium, true},        // consistency 0.55
		{"strong_drift", 0.9, 0.3, SeverityHigh, true},       // consistency 0.40
		{"critical_drift", 0.95, 0.05, SeverityCritical, true}, // consistency 0.10
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, st := newTestDetector(t, DefaultConfig())
			seedBaseline(t, st, "tune", PatternStatistics{Frequency: 2, AverageScore: tt.baselineAvg})

			anomalies := d.Analyze(context.Background(), batchOf("tune", 2, tt.score))
			a, found := findAnomaly(anomalies, AnomalyConsistency)
			if found != tt.found {
				t.Fatalf("consistency anomaly found = %v, want %v (%+v)", found, tt.found, anomalies)
			}
			if found && a.Severity != tt.want {
				t.Errorf("severity = %s, want %s (consistency %.2f)", a.Severity, tt.want, a.AnomalyScore)
			}
		})
	}
}

func TestBaselineUpdatedAfterAnalysis(t *testing.T) {
	cfg := DefaultConfig()
	d, st := newTestDetector(t, cfg)

	d.Analyze(context.Background(), batchOf("fresh", 3, 0.6))

	baseline := NewBaselineStore(st, cfg, testLogger()).Load(context.Background())
	stats, ok := baseline["fresh"]
	if !ok {
		t.Fatal("baseline entry not created for new pattern")
	}
	if stats.Frequency != 3 {
		t.Errorf("first-observation frequency = %.1f, want 3", stats.Frequency)
	}
	if stats.AverageScore != 0.6 {
		t.Errorf("first-observation average = %.2f, want 0.6", stats.AverageScore)
	}
	if stats.TotalOccurrences != 3 {
		t.Errorf("total occurrences = %d, want 3", stats.TotalOccurrences)
	}
}

func TestAnomalyLogCapped(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxAnomalyLog = 2
	d, st := newTestDetector(t, cfg)
	seedBaseline(t, st, "tune", PatternStatistics{Frequency: 1, AverageScore: 0.5})

	// One analysis producing statistical, frequency, and consistency hits.
	anomalies := d.Analyze(context.Background(), batchOf("tune", 6, 1.0))
	if len(anomalies) < 3 {
		t.Fatalf("expected at least 3 anomalies, got %d: %+v", len(anomalies), anomalies)
	}

	n, err := st.ListLen(context.Background(), store.KeyAnomalyLog)
	if err != nil {
		t.Fatalf("ListLen: %v", err)
	}
	if n != 2 {
		t.Errorf("persisted log length = %d, want cap 2", n)
	}

	recent, err := d.RecentAnomalies(context.Background(), 10)
	if err != nil {
		t.Fatalf("RecentAnomalies: %v", err)
	}
	if len(recent) != 2 {
		t.Errorf("RecentAnomalies returned %d, want 2", len(recent))
	}
}

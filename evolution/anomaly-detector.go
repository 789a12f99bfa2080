// Package evolution - Behavioral Anomaly Detector
// Statistical surveillance over each cycle's candidate batch, checked
// against the persisted baseline. Runs after suggestions are assembled and
// never blocks the cycle's output.
package evolution

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"time"

	"github.com/GestIAdev/selene-evolution/store"
)

// Reporting thresholds for the statistical check.
const (
	StatisticalReportThreshold   = 3.0
	StatisticalHighThreshold     = 4.0
	StatisticalCriticalThreshold = 5.0

	FrequencyFlagRatio     = 2.5
	FrequencyCriticalRatio = 4.0

	ConsistencyFlagLevel     = 0.6
	ConsistencyHighLevel     = 0.45
	ConsistencyCriticalLevel = 0.3
)

// AnomalyDetector runs four independent checks per cycle: statistical
// deviation, repetition, frequency spike, and score consistency.
type AnomalyDetector struct {
	baseline *BaselineStore
	st       store.Store
	cfg      Config
	log      *slog.Logger
}

func NewAnomalyDetector(baseline *BaselineStore, st store.Store, cfg Config, log *slog.Logger) *AnomalyDetector {
	return &AnomalyDetector{
		baseline: baseline,
		st:       st,
		cfg:      cfg,
		log:      log.With("component", "anomaly-detector"),
	}
}

// batchStats aggregates one cycle's candidates per decision type.
type batchStats struct {
	count    int
	scoreSum float64
}

func (s batchStats) avgScore() float64 {
	if s.count == 0 {
		return 0
	}
	return s.scoreSum / float64(s.count)
}

// Analyze checks the candidate batch against the baseline, then folds the
// batch into the baseline and appends detected anomalies to the capped log.
func (d *AnomalyDetector) Analyze(ctx context.Context, candidates []CandidateDecision) []BehavioralAnomaly {
	if len(candidates) == 0 {
		return nil
	}

	baseline := d.baseline.Load(ctx)
	batch := make(map[string]batchStats)
	for _, c := range candidates {
		s := batch[c.TypeID]
		s.count++
		s.scoreSum += c.ValidationScore
		batch[c.TypeID] = s
	}

	var anomalies []BehavioralAnomaly
	anomalies = append(anomalies, d.checkStatistical(batch, baseline)...)
	anomalies = append(anomalies, d.checkRepetition(batch, baseline, len(candidates))...)
	anomalies = append(anomalies, d.checkFrequency(batch, baseline)...)
	if a, found := d.checkConsistency(candidates, baseline); found {
		anomalies = append(anomalies, a)
	}

	// Post-analysis bookkeeping: baseline moving-average update, then the
	// capped anomaly log.
	for typeID, s := range batch {
		if err := d.baseline.Update(ctx, typeID, s.count, s.avgScore()); err != nil {
			d.log.Warn("baseline update failed", "type_id", typeID, "error", err)
		}
	}
	d.appendToLog(ctx, anomalies)

	for _, a := range anomalies {
		d.log.Info("behavioral anomaly detected",
			"type", a.Type,
			"severity", a.Severity,
			"score", a.AnomalyScore,
			"patterns", a.AffectedPatterns,
		)
	}
	return anomalies
}

// checkStatistical scores per-type deviation of frequency and average score
// from the baseline. score = |freq-baseFreq|/max(baseFreq,1) + |avg-baseAvg|*2.
func (d *AnomalyDetector) checkStatistical(batch map[string]batchStats, baseline map[string]PatternStatistics) []BehavioralAnomaly {
	var out []BehavioralAnomaly
	for _, typeID := range sortedKeys(batch) {
		base, known := baseline[typeID]
		if !known {
			continue // novel patterns have nothing to deviate from
		}
		s := batch[typeID]
		freqDev := abs(float64(s.count)-base.Frequency) / maxFloat(base.Frequency, 1)
		scoreDev := abs(s.avgScore()-base.AverageScore) * 2
		score := freqDev + scoreDev
		if score <= StatisticalReportThreshold {
			continue
		}
		severity := SeverityMedium
		action := "review pattern drift before accepting further suggestions of this type"
		switch {
		case score > StatisticalCriticalThreshold:
			severity = SeverityCritical
			action = "suspend this decision type pending human review"
		case score > StatisticalHighThreshold:
			severity = SeverityHigh
			action = "require human approval for this decision type"
		}
		out = append(out, BehavioralAnomaly{
			Type:              AnomalyStatistical,
			Severity:          severity,
			AffectedPatterns:  []string{typeID},
			AnomalyScore:      score,
			RecommendedAction: action,
			Timestamp:         time.Now(),
		})
	}
	return out
}

// checkRepetition compares a pattern's share of the batch against its
// expected share from the baseline.
func (d *AnomalyDetector) checkRepetition(batch map[string]batchStats, baseline map[string]PatternStatistics, total int) []BehavioralAnomaly {
	if total == 0 {
		return nil
	}
	var baseTotal float64
	for _, stats := range baseline {
		baseTotal += stats.Frequency
	}
	if baseTotal == 0 {
		return nil
	}

	var out []BehavioralAnomaly
	for _, typeID := range sortedKeys(batch) {
		base, known := baseline[typeID]
		if !known {
			continue
		}
		actual := float64(batch[typeID].count) / float64(total)
		expected := base.Frequency / baseTotal
		if expected <= 0 {
			continue
		}
		if actual <= 0.8*expected*d.cfg.RepetitionMultiplier {
			continue
		}
		severity := SeverityMedium
		if actual > 2*expected {
			severity = SeverityHigh
		}
		out = append(out, BehavioralAnomaly{
			Type:              AnomalyRepetition,
			Severity:          severity,
			AffectedPatterns:  []string{typeID},
			AnomalyScore:      actual / expected,
			RecommendedAction: "diversify candidate generation away from this pattern",
			Timestamp:         time.Now(),
		})
	}
	return out
}

// checkFrequency flags raw per-type occurrence spikes against the baseline
// frequency.
func (d *AnomalyDetector) checkFrequency(batch map[string]batchStats, baseline map[string]PatternStatistics) []BehavioralAnomaly {
	var out []BehavioralAnomaly
	for _, typeID := range sortedKeys(batch) {
		base, known := baseline[typeID]
		if !known || base.Frequency <= 0 {
			continue
		}
		ratio := float64(batch[typeID].count) / base.Frequency
		if ratio <= FrequencyFlagRatio {
			continue
		}
		severity := SeverityHigh
		action := "rate-limit generation of this decision type"
		if ratio > FrequencyCriticalRatio {
			severity = SeverityCritical
			action = "block this decision type for the next cycles"
		}
		out = append(out, BehavioralAnomaly{
			Type:              AnomalyFrequency,
			Severity:          severity,
			AffectedPatterns:  []string{typeID},
			AnomalyScore:      ratio,
			RecommendedAction: action,
			Timestamp:         time.Now(),
		})
	}
	return out
}

// checkConsistency averages per-candidate score agreement with the
// baseline. Candidates with no baseline entry contribute a neutral 1.0, not
// a penalty, so legitimately novel patterns do not trip false positives.
func (d *AnomalyDetector) checkConsistency(candidates []CandidateDecision, baseline map[string]PatternStatistics) (BehavioralAnomaly, bool) {
	if len(candidates) == 0 {
		return BehavioralAnomaly{}, false
	}
	var total float64
	affected := make(map[string]struct{})
	for _, c := range candidates {
		base, known := baseline[c.TypeID]
		if !known {
			total += 1.0
			continue
		}
		total += 1.0 - abs(c.ValidationScore-base.AverageScore)
		affected[c.TypeID] = struct{}{}
	}
	consistency := total / float64(len(candidates))
	if consistency >= ConsistencyFlagLevel {
		return BehavioralAnomaly{}, false
	}
	severity := SeverityMedium
	switch {
	case consistency < ConsistencyCriticalLevel:
		severity = SeverityCritical
	case consistency < ConsistencyHighLevel:
		severity = SeverityHigh
	}
	patterns := make([]string, 0, len(affected))
	for typeID := range affected {
		patterns = append(patterns, typeID)
	}
	sort.Strings(patterns)
	return BehavioralAnomaly{
		Type:              AnomalyConsistency,
		Severity:          severity,
		AffectedPatterns:  patterns,
		AnomalyScore:      consistency,
		RecommendedAction: "audit generator scoring against baseline expectations",
		Timestamp:         time.Now(),
	}, true
}

// appendToLog persists anomalies to the shared log, oldest trimmed first
// once the cap is exceeded.
func (d *AnomalyDetector) appendToLog(ctx context.Context, anomalies []BehavioralAnomaly) {
	if len(anomalies) == 0 {
		return
	}
	storeCtx, cancel := context.WithTimeout(ctx, d.cfg.storeTimeout())
	defer cancel()

	entries := make([]string, 0, len(anomalies))
	for _, a := range anomalies {
		data, err := json.Marshal(a)
		if err != nil {
			d.log.Warn("marshal anomaly", "error", err)
			continue
		}
		entries = append(entries, string(data))
	}
	if err := d.st.ListAppend(storeCtx, store.KeyAnomalyLog, entries...); err != nil {
		d.log.Warn("persist anomaly log", "error", err)
		return
	}
	if err := d.st.ListTrim(storeCtx, store.KeyAnomalyLog, d.cfg.MaxAnomalyLog); err != nil {
		d.log.Warn("trim anomaly log", "error", err)
	}
}

// RecentAnomalies reads the newest n entries from the persisted log.
func (d *AnomalyDetector) RecentAnomalies(ctx context.Context, n int) ([]BehavioralAnomaly, error) {
	storeCtx, cancel := context.WithTimeout(ctx, d.cfg.storeTimeout())
	defer cancel()

	raw, err := d.st.ListRange(storeCtx, store.KeyAnomalyLog, -n, -1)
	if err != nil {
		return nil, err
	}
	out := make([]BehavioralAnomaly, 0, len(raw))
	for _, r := range raw {
		var a BehavioralAnomaly
		if err := json.Unmarshal([]byte(r), &a); err != nil {
			d.log.Warn("corrupt anomaly entry skipped", "error", err)
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func sortedKeys(m map[string]batchStats) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

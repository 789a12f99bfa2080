// Package evolution - Selene Evolutionary Decision Safety Pipeline
// Core types and collaborator interfaces for the cycle pipeline.
package evolution

import (
	"context"
	"time"
)

// ---------- Cycle input ----------

// SystemVitals are the high-level health signals of the running system.
// All values are in [0,1].
type SystemVitals struct {
	Health     float64 `json:"health"`
	Stress     float64 `json:"stress"`
	Harmony    float64 `json:"harmony"`
	Creativity float64 `json:"creativity"`
}

// ResourceMetrics are the raw resource measurements for a cycle.
type ResourceMetrics struct {
	CPUUsage    float64 `json:"cpu_usage"`    // [0,1]
	MemoryUsage float64 `json:"memory_usage"` // [0,1]
	ErrorRate   float64 `json:"error_rate"`   // [0,1]
}

// EvolutionContext is the immutable snapshot a cycle runs against. It is
// built fresh every cycle and never mutated by the pipeline.
type EvolutionContext struct {
	Vitals         SystemVitals    `json:"vitals"`
	Resources      ResourceMetrics `json:"resources"`
	RecentPatterns []string        `json:"recent_patterns"` // signatures of recently accepted suggestions
	RecentFeedback []FeedbackEntry `json:"recent_feedback"`
	CapturedAt     time.Time       `json:"captured_at"`
}

// ---------- Candidates and suggestions ----------

// CandidateDecision is a proposed change produced by the external generator.
// Read-only to the pipeline.
type CandidateDecision struct {
	ID              string  `json:"id"`
	TypeID          string  `json:"type_id"`
	Name            string  `json:"name"`
	Description     string  `json:"description"`
	Signature       string  `json:"signature"` // structural signature for similarity/novelty
	TargetComponent string  `json:"target_component"`
	ChangeType      string  `json:"change_type"`
	OldValue        string  `json:"old_value"`
	NewValue        string  `json:"new_value"`
	RiskLevel       float64 `json:"risk_level"`       // [0,1]
	ExpectedBenefit float64 `json:"expected_benefit"` // [0,1]
	ValidationScore float64 `json:"validation_score"` // [0,1]
	GeneratedAt     time.Time `json:"generated_at"`
}

// VerificationStatus classifies the best-effort external verification of a
// candidate's claim. A failed or timed-out verification downgrades to
// unverified, never aborts the cycle.
type VerificationStatus string

const (
	VerificationSkipped    VerificationStatus = "skipped" // no verifier configured
	VerificationUnverified VerificationStatus = "unverified"
	VerificationVerified   VerificationStatus = "verified"
)

// Suggestion is a candidate promoted to reviewable output. Created once per
// surviving candidate per cycle; never mutated after creation except to
// attach containment metadata.
type Suggestion struct {
	CandidateDecision

	Containment  *ContainmentResult `json:"containment,omitempty"`
	NoveltyIndex float64            `json:"novelty_index"` // 1 - avg similarity to recent accepted signatures
	Verification VerificationStatus `json:"verification"`
	Fallback     bool               `json:"fallback"` // produced by the emergency generator
	CycleID      string             `json:"cycle_id"`
	CreatedAt    time.Time          `json:"created_at"`
}

// ---------- Containment ----------

type ContainmentLevel string

const (
	ContainmentNone    ContainmentLevel = "none"
	ContainmentLow     ContainmentLevel = "low"
	ContainmentMedium  ContainmentLevel = "medium"
	ContainmentHigh    ContainmentLevel = "high"
	ContainmentMaximum ContainmentLevel = "maximum"
)

// Rank orders containment levels for monotonicity comparisons.
func (l ContainmentLevel) Rank() int {
	switch l {
	case ContainmentLow:
		return 1
	case ContainmentMedium:
		return 2
	case ContainmentHigh:
		return 3
	case ContainmentMaximum:
		return 4
	default:
		return 0
	}
}

type MonitoringLevel string

const (
	MonitoringNone      MonitoringLevel = "none"
	MonitoringBasic     MonitoringLevel = "basic"
	MonitoringEnhanced  MonitoringLevel = "enhanced"
	MonitoringIntensive MonitoringLevel = "intensive"
)

// ContainmentResult is derived purely from risk level and target component.
type ContainmentResult struct {
	Contained       bool             `json:"contained"`
	Level           ContainmentLevel `json:"level"`
	Actions         []string         `json:"actions"`
	RollbackPlan    []string         `json:"rollback_plan"`
	MonitoringLevel MonitoringLevel  `json:"monitoring_level"`
}

// ---------- Anomaly surveillance ----------

// PatternStatistics is the persisted baseline for one decision type.
// Updated with moving-average semantics after every cycle.
type PatternStatistics struct {
	Frequency        float64   `json:"frequency"` // EMA of per-cycle occurrence count
	AverageScore     float64   `json:"average_score"`
	StdDev           float64   `json:"std_dev"` // EMA of absolute score deviation
	LastSeen         time.Time `json:"last_seen"`
	TotalOccurrences int64     `json:"total_occurrences"`
}

type AnomalyType string

const (
	AnomalyStatistical AnomalyType = "statistical"
	AnomalyRepetition  AnomalyType = "repetition"
	AnomalyFrequency   AnomalyType = "frequency"
	AnomalyConsistency AnomalyType = "consistency"
)

type AnomalySeverity string

const (
	SeverityLow      AnomalySeverity = "low"
	SeverityMedium   AnomalySeverity = "medium"
	SeverityHigh     AnomalySeverity = "high"
	SeverityCritical AnomalySeverity = "critical"
)

// BehavioralAnomaly is one detected deviation from the persisted baseline.
type BehavioralAnomaly struct {
	Type              AnomalyType     `json:"type"`
	Severity          AnomalySeverity `json:"severity"`
	AffectedPatterns  []string        `json:"affected_patterns"`
	AnomalyScore      float64         `json:"anomaly_score"`
	RecommendedAction string          `json:"recommended_action"`
	Timestamp         time.Time       `json:"timestamp"`
}

// ---------- Feedback ----------

// FeedbackEntry is one human rating of an applied (or rejected) suggestion.
// Ratings range 0..10 with 5 as the neutral midpoint.
type FeedbackEntry struct {
	DecisionTypeID      string    `json:"decision_type_id"`
	HumanRating         float64   `json:"human_rating"` // [0,10]
	HumanFeedback       string    `json:"human_feedback"`
	AppliedSuccessfully bool      `json:"applied_successfully"`
	PerformanceImpact   float64   `json:"performance_impact"`
	Timestamp           time.Time `json:"timestamp"`
}

// ---------- Gate outputs ----------

// SystemAssessment is the sanity gate's verdict on whether the system is
// healthy enough to evolve this cycle.
type SystemAssessment struct {
	SanityLevel          float64  `json:"sanity_level"` // [0,1]
	Concerns             []string `json:"concerns"`
	RequiresIntervention bool     `json:"requires_intervention"`
}

// PatternCheck is the structural filter's verdict on one candidate.
type PatternCheck struct {
	IsSane bool     `json:"is_sane"`
	Issues []string `json:"issues"`
}

// SafetyAssessment is the safety validator's verdict on one candidate.
// Deterministic: same candidate and context always yield the same score.
type SafetyAssessment struct {
	IsSafe    bool     `json:"is_safe"`
	RiskLevel float64  `json:"risk_level"` // [0,1]
	Concerns  []string `json:"concerns"`
}

// QuarantineAssessment accompanies a quarantine notification for a
// high-risk pattern.
type QuarantineAssessment struct {
	RiskLevel float64       `json:"risk_level"`
	Concerns  []string      `json:"concerns"`
	Duration  time.Duration `json:"duration"` // proportional to risk
}

// ---------- Cycle lifecycle ----------

// CycleState is the orchestrator-level state machine. Only StateRunning
// holds the single-flight flag.
type CycleState string

const (
	StateIdle      CycleState = "idle"
	StateRunning   CycleState = "running"
	StateCompleted CycleState = "completed"
	StateTimedOut  CycleState = "timed_out"
	StateFailed    CycleState = "failed"
)

// CycleRecord summarizes one finished cycle for the recent-window stats.
type CycleRecord struct {
	CycleID     string     `json:"cycle_id"`
	Outcome     CycleState `json:"outcome"`
	Suggestions int        `json:"suggestions"`
	Anomalies   int        `json:"anomalies"`
	Fallback    bool       `json:"fallback"`
	Duration    time.Duration `json:"duration"`
	FinishedAt  time.Time  `json:"finished_at"`
}

// PipelineStats is the aggregate view exposed through Stats().
type PipelineStats struct {
	TotalCycles     int64 `json:"total_cycles"`
	CompletedCycles int64 `json:"completed_cycles"`
	TimedOutCycles  int64 `json:"timed_out_cycles"`
	FailedCycles    int64 `json:"failed_cycles"`
	SkippedCycles   int64 `json:"skipped_cycles"` // single-flight rejections
	AbortedCycles   int64 `json:"aborted_cycles"` // sanity-gate aborts

	TotalSuggestions    int64                      `json:"total_suggestions"`
	FallbackSuggestions int64                      `json:"fallback_suggestions"`
	ByContainmentLevel  map[ContainmentLevel]int64 `json:"by_containment_level"`
	AnomaliesBySeverity map[AnomalySeverity]int64  `json:"anomalies_by_severity"`
	AnomaliesByType     map[AnomalyType]int64      `json:"anomalies_by_type"`

	RecentCycles []CycleRecord `json:"recent_cycles"`
	LastCycleAt  time.Time     `json:"last_cycle_at"`
}

// ---------- Collaborator interfaces ----------

// ContextSource builds the immutable snapshot a cycle runs against.
type ContextSource interface {
	Snapshot(ctx context.Context) (EvolutionContext, error)
}

// Generator supplies raw candidate material. Opaque to the pipeline.
type Generator interface {
	Generate(ctx context.Context, evolCtx EvolutionContext, weights map[string]float64, maxCount int) ([]CandidateDecision, error)
}

// VerificationResult is the verifier's advisory answer for one claim.
type VerificationResult struct {
	Verified   bool    `json:"verified"`
	Confidence float64 `json:"confidence"`
}

// Verifier is the optional best-effort verification collaborator. Calls are
// timeout-guarded and advisory only.
type Verifier interface {
	VerifyClaim(ctx context.Context, description string) (VerificationResult, error)
}

// QuarantineNotifier receives fire-and-forget notifications for high-risk
// patterns.
type QuarantineNotifier interface {
	Quarantine(ctx context.Context, patternID string, assessment QuarantineAssessment) error
}

// RemediationHook is invoked (best-effort, non-blocking) when the sanity
// gate flags the system for intervention.
type RemediationHook func(ctx context.Context, assessment SystemAssessment)

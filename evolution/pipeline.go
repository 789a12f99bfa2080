// Package evolution - Cycle Pipeline Orchestrator
// Single-flight cycle execution: snapshot, sanity gate, generation,
// structural filtering, verification, safety validation, containment,
// rollback registration, and anomaly surveillance, under one hard timeout.
package evolution

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/GestIAdev/selene-evolution/metrics"
	"github.com/GestIAdev/selene-evolution/store"
)

// Sentinel errors surfaced by RunCycle.
var (
	ErrSanityAbort   = errors.New("system sanity below evolution threshold")
	ErrCycleTimeout  = errors.New("evolution cycle timed out")
	ErrNoGenerator   = errors.New("no candidate generator configured")
	ErrNoContextSource = errors.New("no context source configured")
)

// Pipeline wires the full safety chain. Construct with NewPipeline; all
// collaborators except source and generator are optional.
type Pipeline struct {
	cfg Config
	log *slog.Logger
	met *metrics.Metrics
	st  store.Store

	source      ContextSource
	generator   Generator
	verifier    Verifier // nil: verification skipped
	remediation RemediationHook

	gate      *SanityGate
	filter    *PatternFilter
	validator *SafetyValidator
	policy    *ContainmentPolicy
	registry  *RollbackRegistry
	baseline  *BaselineStore
	detector  *AnomalyDetector
	feedback  *FeedbackStore
	fallback  *FallbackGenerator

	running atomic.Bool

	mu           sync.Mutex
	state        CycleState
	stats        PipelineStats
	history      []Suggestion
	recentSigs   []string // accepted signatures, novelty window
	recentCycles []CycleRecord
}

// Options carries the optional collaborators for NewPipeline.
type Options struct {
	Verifier     Verifier
	Quarantine   QuarantineNotifier
	Remediation  RemediationHook
	StepExecutor StepExecutor
	Metrics      *metrics.Metrics
}

// NewPipeline assembles the pipeline over the shared store.
func NewPipeline(cfg Config, st store.Store, source ContextSource, generator Generator, log *slog.Logger, opts Options) (*Pipeline, error) {
	if source == nil {
		return nil, ErrNoContextSource
	}
	if generator == nil {
		return nil, ErrNoGenerator
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	met := opts.Metrics
	if met == nil {
		met = metrics.Nop()
	}

	baseline := NewBaselineStore(st, cfg, log)
	p := &Pipeline{
		cfg: cfg,
		log: log.With("component", "pipeline"),
		met: met,
		st:  st,

		source:      source,
		generator:   generator,
		verifier:    opts.Verifier,
		remediation: opts.Remediation,

		gate:      NewSanityGate(cfg, log),
		filter:    NewPatternFilter(),
		validator: NewSafetyValidator(cfg, log, opts.Quarantine),
		policy:    NewContainmentPolicy(),
		registry:  NewRollbackRegistry(st, cfg, log, opts.StepExecutor),
		baseline:  baseline,
		detector:  NewAnomalyDetector(baseline, st, cfg, log),
		feedback:  NewFeedbackStore(st, cfg, log),
		fallback:  NewFallbackGenerator(cfg, log),

		state: StateIdle,
		stats: PipelineStats{
			ByContainmentLevel:  make(map[ContainmentLevel]int64),
			AnomaliesBySeverity: make(map[AnomalySeverity]int64),
			AnomaliesByType:     make(map[AnomalyType]int64),
		},
	}
	return p, nil
}

// cycleOutput is the internal result of one cycle run.
type cycleOutput struct {
	suggestions []Suggestion
	anomalies   []BehavioralAnomaly
	fallback    bool
	err         error
}

// RunCycle executes one evolution cycle. A second concurrent call returns
// an empty slice immediately without error: overlap is a skip, not a fault.
// The cycle races a hard timeout; on timeout the worker goroutine is
// cancelled and its eventual result discarded.
func (p *Pipeline) RunCycle(ctx context.Context) ([]Suggestion, error) {
	if !p.running.CompareAndSwap(false, true) {
		p.mu.Lock()
		p.stats.SkippedCycles++
		p.mu.Unlock()
		p.met.CycleSkipped()
		p.log.Info("cycle already in progress, skipping")
		return []Suggestion{}, nil
	}
	defer p.running.Store(false)

	cycleID := uuid.NewString()
	log := p.log.With("cycle_id", cycleID)
	started := time.Now()

	p.setState(StateRunning)
	log.Info("evolution cycle started")

	cycleCtx, cancel := context.WithTimeout(ctx, p.cfg.cycleTimeout())
	defer cancel()

	resultCh := make(chan cycleOutput, 1)
	go func() {
		resultCh <- p.executeCycle(cycleCtx, cycleID, log)
	}()

	var out cycleOutput
	select {
	case out = <-resultCh:
	case <-cycleCtx.Done():
		out = cycleOutput{err: cycleCtx.Err()}
	}

	// A worker interrupted by the deadline may surface the context error
	// itself; both paths are the same timeout.
	if errors.Is(out.err, context.DeadlineExceeded) {
		p.finishCycle(cycleID, StateTimedOut, cycleOutput{}, time.Since(started))
		log.Warn("evolution cycle timed out", "timeout", p.cfg.cycleTimeout())
		return []Suggestion{}, ErrCycleTimeout
	}

	outcome := StateCompleted
	if out.err != nil {
		outcome = StateFailed
	}
	p.finishCycle(cycleID, outcome, out, time.Since(started))

	if out.err != nil {
		log.Warn("evolution cycle ended early", "error", out.err)
		return []Suggestion{}, out.err
	}
	log.Info("evolution cycle completed",
		"suggestions", len(out.suggestions),
		"anomalies", len(out.anomalies),
		"fallback", out.fallback,
		"duration", time.Since(started),
	)
	return out.suggestions, nil
}

// executeCycle runs all stages. Every stage checks ctx so cancellation from
// the timeout race propagates promptly.
func (p *Pipeline) executeCycle(ctx context.Context, cycleID string, log *slog.Logger) cycleOutput {
	snap, err := p.source.Snapshot(ctx)
	if err != nil {
		return cycleOutput{err: fmt.Errorf("snapshot: %w", err)}
	}
	if err := ctx.Err(); err != nil {
		return cycleOutput{err: err}
	}

	// Sanity gate: the only stage that can skip generation entirely.
	assessment := p.gate.Assess(snap)
	if assessment.RequiresIntervention && p.remediation != nil {
		go p.remediation(context.WithoutCancel(ctx), assessment)
	}
	if assessment.SanityLevel < p.cfg.MinSanityLevel {
		log.Warn("sanity gate abort",
			"sanity", assessment.SanityLevel,
			"minimum", p.cfg.MinSanityLevel,
			"concerns", assessment.Concerns,
		)
		return cycleOutput{err: fmt.Errorf("%w: %.2f < %.2f",
			ErrSanityAbort, assessment.SanityLevel, p.cfg.MinSanityLevel)}
	}

	weights := p.feedback.Weights(ctx)

	candidates, err := p.generator.Generate(ctx, snap, weights, p.cfg.MaxCandidates)
	if err != nil {
		log.Warn("generator failed, using fallback", "error", err)
		candidates = nil
	}
	if len(candidates) > p.cfg.MaxCandidates {
		candidates = candidates[:p.cfg.MaxCandidates]
	}
	if err := ctx.Err(); err != nil {
		return cycleOutput{err: err}
	}

	// Structural filter.
	sane := make([]CandidateDecision, 0, len(candidates))
	for _, c := range candidates {
		check := p.filter.Check(c)
		if !check.IsSane {
			log.Debug("candidate rejected by structural filter", "candidate_id", c.ID, "issues", check.Issues)
			continue
		}
		sane = append(sane, c)
	}

	usedFallback := false
	var fallbackCandidates []CandidateDecision
	if len(sane) == 0 {
		fallbackCandidates = p.fallback.Generate(snap)
		sane = fallbackCandidates
		usedFallback = true
	}

	// Safety validation, with verification feeding the record but never
	// gating it.
	type validated struct {
		candidate    CandidateDecision
		assessment   SafetyAssessment
		verification VerificationStatus
	}
	safe := make([]validated, 0, len(sane))
	for _, c := range sane {
		if err := ctx.Err(); err != nil {
			return cycleOutput{err: err}
		}
		verification := p.verify(ctx, c, log)
		sa := p.validator.Validate(c, snap)
		if sa.RiskLevel >= p.cfg.QuarantineRiskThreshold {
			p.validator.ReportQuarantine(ctx, c, sa)
			p.met.QuarantineReported()
		}
		if !sa.IsSafe {
			log.Info("candidate rejected by safety validator",
				"candidate_id", c.ID, "risk", sa.RiskLevel, "concerns", sa.Concerns)
			continue
		}
		safe = append(safe, validated{candidate: c, assessment: sa, verification: verification})
	}

	// Empty survivors after validation fall back the same way empty
	// generation does: never end a cycle with nothing to suggest.
	if len(safe) == 0 && !usedFallback {
		usedFallback = true
		fallbackCandidates = p.fallback.Generate(snap)
		for _, c := range fallbackCandidates {
			sa := p.validator.Validate(c, snap)
			safe = append(safe, validated{candidate: c, assessment: sa, verification: VerificationSkipped})
		}
	}

	// Assemble suggestions: novelty against the accepted-signature window,
	// containment for risk at or above the low threshold.
	p.mu.Lock()
	window := make([]string, len(p.recentSigs))
	copy(window, p.recentSigs)
	p.mu.Unlock()

	now := time.Now()
	suggestions := make([]Suggestion, 0, len(safe))
	for _, v := range safe {
		s := Suggestion{
			CandidateDecision: v.candidate,
			NoveltyIndex:      NoveltyIndex(v.candidate.Signature, window),
			Verification:      v.verification,
			Fallback:          usedFallback,
			CycleID:           cycleID,
			CreatedAt:         now,
		}
		s.RiskLevel = v.assessment.RiskLevel
		result := p.policy.Uncontained()
		if v.assessment.RiskLevel >= ContainLowRisk {
			result = p.policy.Contain(v.candidate.TargetComponent, v.assessment.RiskLevel)
		}
		s.Containment = &result

		if err := p.registry.Register(ctx, s); err != nil {
			log.Warn("rollback registration failed", "suggestion_id", s.ID, "error", err)
		}
		suggestions = append(suggestions, s)
	}

	// Surveillance runs over everything generated this cycle, survivors and
	// rejects alike, so suppressed patterns still shape the baseline.
	observed := make([]CandidateDecision, 0, len(candidates)+len(fallbackCandidates))
	observed = append(observed, candidates...)
	observed = append(observed, fallbackCandidates...)
	anomalies := p.detector.Analyze(ctx, observed)

	return cycleOutput{
		suggestions: suggestions,
		anomalies:   anomalies,
		fallback:    usedFallback,
	}
}

// verify consults the optional verifier under its own short timeout. Any
// failure downgrades to unverified; the candidate is never dropped here.
func (p *Pipeline) verify(ctx context.Context, c CandidateDecision, log *slog.Logger) VerificationStatus {
	if p.verifier == nil {
		return VerificationSkipped
	}
	verifyCtx, cancel := context.WithTimeout(ctx, p.cfg.verifyTimeout())
	defer cancel()

	res, err := p.verifier.VerifyClaim(verifyCtx, c.Description)
	if err != nil {
		log.Debug("verification failed", "candidate_id", c.ID, "error", err)
		return VerificationUnverified
	}
	if !res.Verified {
		return VerificationUnverified
	}
	return VerificationVerified
}

// finishCycle updates state, stats, signature window, and bounded history
// under one lock, then emits metrics outside it.
func (p *Pipeline) finishCycle(cycleID string, outcome CycleState, out cycleOutput, d time.Duration) {
	var archived []Suggestion

	p.mu.Lock()
	p.state = StateIdle
	p.stats.TotalCycles++
	p.stats.LastCycleAt = time.Now()
	switch outcome {
	case StateCompleted:
		p.stats.CompletedCycles++
	case StateTimedOut:
		p.stats.TimedOutCycles++
	case StateFailed:
		if errors.Is(out.err, ErrSanityAbort) {
			p.stats.AbortedCycles++
		}
		p.stats.FailedCycles++
	}

	for _, s := range out.suggestions {
		p.stats.TotalSuggestions++
		if s.Fallback {
			p.stats.FallbackSuggestions++
		}
		level := ContainmentNone
		if s.Containment != nil {
			level = s.Containment.Level
		}
		p.stats.ByContainmentLevel[level]++

		p.recentSigs = append(p.recentSigs, s.Signature)
		if len(p.recentSigs) > p.cfg.NoveltyWindow {
			p.recentSigs = p.recentSigs[len(p.recentSigs)-p.cfg.NoveltyWindow:]
		}
	}
	for _, a := range out.anomalies {
		p.stats.AnomaliesBySeverity[a.Severity]++
		p.stats.AnomaliesByType[a.Type]++
	}

	p.history = append(p.history, out.suggestions...)
	if len(p.history) > p.cfg.MaxHistory {
		overflow := len(p.history) - p.cfg.MaxHistory
		archived = make([]Suggestion, overflow)
		copy(archived, p.history[:overflow])
		p.history = p.history[overflow:]
	}

	p.recentCycles = append(p.recentCycles, CycleRecord{
		CycleID:     cycleID,
		Outcome:     outcome,
		Suggestions: len(out.suggestions),
		Anomalies:   len(out.anomalies),
		Fallback:    out.fallback,
		Duration:    d,
		FinishedAt:  time.Now(),
	})
	if len(p.recentCycles) > p.cfg.RecentCycleWindow {
		p.recentCycles = p.recentCycles[len(p.recentCycles)-p.cfg.RecentCycleWindow:]
	}
	p.mu.Unlock()

	p.met.CycleFinished(string(outcome), d)
	for _, s := range out.suggestions {
		level := ContainmentNone
		if s.Containment != nil {
			level = s.Containment.Level
		}
		p.met.SuggestionSurfaced(string(level), s.Fallback)
	}
	for _, a := range out.anomalies {
		p.met.AnomalyDetected(string(a.Type), string(a.Severity))
	}
	p.archiveHistory(archived)
}

// archiveHistory moves overflowed suggestions to the durable store list so
// the in-memory bound never silently discards data.
func (p *Pipeline) archiveHistory(overflow []Suggestion) {
	if len(overflow) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.storeTimeout())
	defer cancel()

	entries := make([]string, 0, len(overflow))
	for _, s := range overflow {
		data, err := json.Marshal(s)
		if err != nil {
			p.log.Warn("marshal archived suggestion", "error", err)
			continue
		}
		entries = append(entries, string(data))
	}
	if err := p.st.ListAppend(ctx, store.KeyHistory, entries...); err != nil {
		p.log.Warn("archive history overflow failed", "count", len(entries), "error", err)
	}
}

// RecordFeedback records one human rating. Safe to call while a cycle is in
// flight; it never takes the cycle path's locks.
func (p *Pipeline) RecordFeedback(ctx context.Context, entry FeedbackEntry) error {
	return p.feedback.RecordFeedback(ctx, entry)
}

// Weights exposes the learned per-type generation weights.
func (p *Pipeline) Weights(ctx context.Context) map[string]float64 {
	return p.feedback.Weights(ctx)
}

// Rollback executes the stored or supplied undo plan for a suggestion.
func (p *Pipeline) Rollback(ctx context.Context, s Suggestion) bool {
	var plan []string
	if s.Containment != nil {
		plan = s.Containment.RollbackPlan
	}
	ok := p.registry.Rollback(ctx, s, plan)
	p.met.RollbackExecuted(ok)
	return ok
}

// RecentAnomalies reads the newest n entries from the persisted anomaly log.
func (p *Pipeline) RecentAnomalies(ctx context.Context, n int) ([]BehavioralAnomaly, error) {
	return p.detector.RecentAnomalies(ctx, n)
}

// History returns a copy of the bounded in-memory suggestion history.
func (p *Pipeline) History() []Suggestion {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Suggestion, len(p.history))
	copy(out, p.history)
	return out
}

// Stats returns a deep copy of the aggregate counters.
func (p *Pipeline) Stats() PipelineStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := p.stats
	out.ByContainmentLevel = make(map[ContainmentLevel]int64, len(p.stats.ByContainmentLevel))
	for k, v := range p.stats.ByContainmentLevel {
		out.ByContainmentLevel[k] = v
	}
	out.AnomaliesBySeverity = make(map[AnomalySeverity]int64, len(p.stats.AnomaliesBySeverity))
	for k, v := range p.stats.AnomaliesBySeverity {
		out.AnomaliesBySeverity[k] = v
	}
	out.AnomaliesByType = make(map[AnomalyType]int64, len(p.stats.AnomaliesByType))
	for k, v := range p.stats.AnomaliesByType {
		out.AnomaliesByType[k] = v
	}
	out.RecentCycles = make([]CycleRecord, len(p.recentCycles))
	copy(out.RecentCycles, p.recentCycles)
	return out
}

// InProgress reports whether a cycle currently holds the single-flight flag.
func (p *Pipeline) InProgress() bool {
	return p.running.Load()
}

func (p *Pipeline) setState(s CycleState) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

// State returns the orchestrator's current lifecycle state.
func (p *Pipeline) State() CycleState {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running.Load() {
		return StateRunning
	}
	return p.state
}

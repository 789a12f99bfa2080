// Package evolution - Safety Validator
// Deterministic risk scoring of a candidate against the current context,
// with quarantine reporting for high-risk patterns.
package evolution

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// SafetyValidator computes a candidate's effective risk from its declared
// attributes and the context snapshot. No randomness: identical inputs must
// yield identical scores.
type SafetyValidator struct {
	cfg        Config
	log        *slog.Logger
	quarantine QuarantineNotifier // optional
}

func NewSafetyValidator(cfg Config, log *slog.Logger, quarantine QuarantineNotifier) *SafetyValidator {
	return &SafetyValidator{
		cfg:        cfg,
		log:        log.With("component", "safety-validator"),
		quarantine: quarantine,
	}
}

// Validate scores one candidate. The blend starts from the candidate's
// declared risk and adjusts for weak validation, current error pressure,
// stress, and expected benefit, clamped to [0,1].
func (v *SafetyValidator) Validate(c CandidateDecision, snap EvolutionContext) SafetyAssessment {
	risk := c.RiskLevel
	var concerns []string

	if c.ValidationScore < 0.5 {
		penalty := (0.5 - c.ValidationScore) * 0.4
		risk += penalty
		concerns = append(concerns, fmt.Sprintf("low validation score %.2f adds %.2f risk", c.ValidationScore, penalty))
	}
	if snap.Resources.ErrorRate > 0.05 {
		penalty := snap.Resources.ErrorRate * 0.3
		risk += penalty
		concerns = append(concerns, fmt.Sprintf("elevated error rate %.2f adds %.2f risk", snap.Resources.ErrorRate, penalty))
	}
	if snap.Vitals.Stress > 0.7 {
		risk += 0.1
		concerns = append(concerns, fmt.Sprintf("system stress %.2f adds 0.10 risk", snap.Vitals.Stress))
	}
	// Benefit earns back a small margin, never below declared floor.
	risk -= c.ExpectedBenefit * 0.1
	if risk < c.RiskLevel {
		risk = c.RiskLevel
	}
	risk = Clamp01(risk)

	safe := true
	if risk > 0.95 {
		safe = false
		concerns = append(concerns, fmt.Sprintf("effective risk %.2f exceeds hard ceiling 0.95", risk))
	}
	if c.ValidationScore < v.cfg.MinValidationScore {
		safe = false
		concerns = append(concerns, fmt.Sprintf("validation score %.2f below minimum %.2f", c.ValidationScore, v.cfg.MinValidationScore))
	}
	if snap.Vitals.Health < 0.2 && risk > 0.6 {
		safe = false
		concerns = append(concerns, "risky change rejected while system health is critical")
	}

	return SafetyAssessment{IsSafe: safe, RiskLevel: risk, Concerns: concerns}
}

// ReportQuarantine notifies the quarantine collaborator about a high-risk
// pattern. Fire-and-forget: failures are logged and never affect the cycle.
func (v *SafetyValidator) ReportQuarantine(ctx context.Context, c CandidateDecision, assessment SafetyAssessment) {
	if v.quarantine == nil || assessment.RiskLevel < v.cfg.QuarantineRiskThreshold {
		return
	}
	qa := QuarantineAssessment{
		RiskLevel: assessment.RiskLevel,
		Concerns:  assessment.Concerns,
		Duration:  time.Duration(assessment.RiskLevel * float64(v.cfg.quarantineBase())),
	}
	notifyCtx, cancel := context.WithTimeout(ctx, v.cfg.storeTimeout())
	defer cancel()
	if err := v.quarantine.Quarantine(notifyCtx, c.TypeID, qa); err != nil {
		v.log.Warn("quarantine notification failed", "type_id", c.TypeID, "error", err)
		return
	}
	v.log.Info("pattern quarantined",
		"type_id", c.TypeID,
		"risk", assessment.RiskLevel,
		"duration", qa.Duration,
	)
}

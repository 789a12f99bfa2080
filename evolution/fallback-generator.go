// Package evolution - Fallback Suggestion Generator
// Emergency conservative suggestions for cycles where generation or
// filtering leaves no survivors. Output is deterministic: the same snapshot
// always yields the same single suggestion.
package evolution

import (
	"fmt"
	"log/slog"
)

// FallbackGenerator produces exactly one low-risk stabilization candidate
// keyed to the dominant resource pressure of the snapshot.
type FallbackGenerator struct {
	cfg Config
	log *slog.Logger
}

func NewFallbackGenerator(cfg Config, log *slog.Logger) *FallbackGenerator {
	return &FallbackGenerator{cfg: cfg, log: log.With("component", "fallback-generator")}
}

// Generate returns the single emergency candidate for the snapshot.
// Priority order: memory pressure, then CPU pressure, then generic
// conservative stabilization. Never returns an empty slice.
func (g *FallbackGenerator) Generate(evolCtx EvolutionContext) []CandidateDecision {
	var c CandidateDecision
	switch {
	case evolCtx.Resources.MemoryUsage > g.cfg.MemoryHighWater:
		c = g.memoryCleanup(evolCtx)
	case evolCtx.Resources.CPUUsage > g.cfg.CPUHighWater:
		c = g.cpuThrottle(evolCtx)
	default:
		c = g.conservativeStabilization(evolCtx)
	}
	g.log.Info("fallback candidate generated",
		"type_id", c.TypeID,
		"target", c.TargetComponent,
		"risk", c.RiskLevel,
	)
	return []CandidateDecision{c}
}

func (g *FallbackGenerator) memoryCleanup(evolCtx EvolutionContext) CandidateDecision {
	sig := "fallback:memory-cleanup:memory-pool"
	usage := fmt.Sprintf("%.2f", evolCtx.Resources.MemoryUsage)
	return CandidateDecision{
		ID:              ContentHash("fallback", sig, usage),
		TypeID:          "fallback-memory-cleanup",
		Name:            "Emergency Memory Cleanup",
		Description:     "Release cached allocations and compact the memory pool to relieve pressure above the high-water mark.",
		Signature:       sig,
		TargetComponent: "memory-pool",
		ChangeType:      "resource-release",
		OldValue:        "memory usage " + usage,
		NewValue:        "target below " + fmt.Sprintf("%.2f", g.cfg.MemoryHighWater),
		RiskLevel:       0.2,
		ExpectedBenefit: 0.6,
		ValidationScore: 0.8,
		GeneratedAt:     evolCtx.CapturedAt,
	}
}

func (g *FallbackGenerator) cpuThrottle(evolCtx EvolutionContext) CandidateDecision {
	sig := "fallback:cpu-throttle:scheduler"
	usage := fmt.Sprintf("%.2f", evolCtx.Resources.CPUUsage)
	return CandidateDecision{
		ID:              ContentHash("fallback", sig, usage),
		TypeID:          "fallback-cpu-throttle",
		Name:            "Emergency CPU Throttle",
		Description:     "Reduce scheduler concurrency until sustained CPU usage drops below the high-water mark.",
		Signature:       sig,
		TargetComponent: "scheduler",
		ChangeType:      "rate-limit",
		OldValue:        "cpu usage " + usage,
		NewValue:        "target below " + fmt.Sprintf("%.2f", g.cfg.CPUHighWater),
		RiskLevel:       0.2,
		ExpectedBenefit: 0.5,
		ValidationScore: 0.8,
		GeneratedAt:     evolCtx.CapturedAt,
	}
}

func (g *FallbackGenerator) conservativeStabilization(evolCtx EvolutionContext) CandidateDecision {
	sig := "fallback:conservative-stabilization:core"
	health := fmt.Sprintf("%.2f", evolCtx.Vitals.Health)
	return CandidateDecision{
		ID:              ContentHash("fallback", sig, health),
		TypeID:          "fallback-stabilization",
		Name:            "Conservative Stabilization",
		Description:     "Hold current configuration steady and extend observation before attempting further changes.",
		Signature:       sig,
		TargetComponent: "core",
		ChangeType:      "hold",
		OldValue:        "health " + health,
		NewValue:        "unchanged",
		RiskLevel:       0.1,
		ExpectedBenefit: 0.3,
		ValidationScore: 0.9,
		GeneratedAt:     evolCtx.CapturedAt,
	}
}

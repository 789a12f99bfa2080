// Package evolution - System Sanity Gate
// Cycle-level precondition: decides whether the system is healthy enough to
// evolve at all. This is the only gate that can skip candidate generation.
package evolution

import (
	"fmt"
	"log/slog"
)

// SanityGate scores the context snapshot against resource and vitals
// thresholds. Pure given a snapshot; logging is its only side effect.
type SanityGate struct {
	cfg Config
	log *slog.Logger
}

func NewSanityGate(cfg Config, log *slog.Logger) *SanityGate {
	return &SanityGate{cfg: cfg, log: log.With("component", "sanity-gate")}
}

// Assess computes the sanity level in [0,1] from threshold excursions.
// Each excursion subtracts a fixed penalty and records a concern, so the
// result is deterministic for a given snapshot.
func (g *SanityGate) Assess(snap EvolutionContext) SystemAssessment {
	sanity := 1.0
	var concerns []string

	if snap.Resources.MemoryUsage > g.cfg.MemoryHighWater {
		sanity -= 0.3
		concerns = append(concerns, fmt.Sprintf("memory usage %.2f above high-water %.2f",
			snap.Resources.MemoryUsage, g.cfg.MemoryHighWater))
	}
	if snap.Resources.CPUUsage > g.cfg.CPUHighWater {
		sanity -= 0.2
		concerns = append(concerns, fmt.Sprintf("cpu usage %.2f above mark %.2f",
			snap.Resources.CPUUsage, g.cfg.CPUHighWater))
	}
	if snap.Resources.ErrorRate > 0.10 {
		sanity -= 0.3
		concerns = append(concerns, fmt.Sprintf("error rate %.2f above 0.10", snap.Resources.ErrorRate))
	}
	if snap.Vitals.Health < 0.3 {
		sanity -= 0.3
		concerns = append(concerns, fmt.Sprintf("system health %.2f below 0.30", snap.Vitals.Health))
	}
	if snap.Vitals.Stress > 0.8 {
		sanity -= 0.2
		concerns = append(concerns, fmt.Sprintf("stress %.2f above 0.80", snap.Vitals.Stress))
	}

	sanity = Clamp01(sanity)
	intervention := sanity < 0.3 || snap.Resources.ErrorRate > g.cfg.InterventionErrorRate

	if len(concerns) > 0 {
		g.log.Debug("sanity concerns", "sanity", sanity, "concerns", concerns)
	}

	return SystemAssessment{
		SanityLevel:          sanity,
		Concerns:             concerns,
		RequiresIntervention: intervention,
	}
}

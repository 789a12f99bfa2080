// Package evolution - Containment Policy Engine
// Pure mapping from risk level and target component to containment level,
// mitigating actions, rollback plan, and monitoring tier.
package evolution

// Risk thresholds for containment levels, ascending. Risk below
// ContainLowRisk is not contained here; the orchestrator assigns the
// none-level result itself.
const (
	ContainLowRisk     = 0.5
	ContainMediumRisk  = 0.6
	ContainHighRisk    = 0.7
	ContainMaximumRisk = 0.8
)

// componentOverride adds component-specific actions/rollback steps starting
// at a minimum containment level.
type componentOverride struct {
	minLevel ContainmentLevel
	actions  []string
	rollback []string
}

// ContainmentPolicy is deterministic and total: it never fails, and unknown
// risk values saturate to the nearest defined level.
type ContainmentPolicy struct {
	overrides map[string]componentOverride
}

func NewContainmentPolicy() *ContainmentPolicy {
	return &ContainmentPolicy{
		overrides: map[string]componentOverride{
			"memory-pool": {
				minLevel: ContainmentMedium,
				actions:  []string{"cap allocation pool size"},
				rollback: []string{"release reserved allocations"},
			},
			"consensus-engine": {
				minLevel: ContainmentHigh,
				actions:  []string{"disable voting participation"},
				rollback: []string{"re-enable voting participation"},
			},
		},
	}
}

// Contain maps (component, risk) to a ContainmentResult. Base actions are
// cumulative across levels so action count is non-decreasing in risk; a
// second pass layers component overrides; unrecognized components get a
// generic containment/rollback pair.
func (p *ContainmentPolicy) Contain(component string, risk float64) ContainmentResult {
	level := levelForRisk(risk)

	actions := []string{"apply rate limiting", "log all executions"}
	rollback := []string{"restore previous parameters", "clear rate limits"}
	monitoring := MonitoringBasic

	if level.Rank() >= ContainmentMedium.Rank() {
		actions = append(actions, "require human approval", "isolate in sandbox")
		rollback = append(rollback, "tear down sandbox")
		monitoring = MonitoringEnhanced
	}
	if level.Rank() >= ContainmentHigh.Rank() {
		actions = append(actions, "require dual approval", "disable parallel execution")
		rollback = append(rollback, "restore execution parallelism")
		monitoring = MonitoringIntensive
	}
	if level.Rank() >= ContainmentMaximum.Rank() {
		actions = append(actions, "block automatic execution", "restrict to human review only")
		rollback = append(rollback, "lift execution block after review")
	}

	if ov, known := p.overrides[component]; known {
		if level.Rank() >= ov.minLevel.Rank() {
			actions = append(actions, ov.actions...)
			rollback = append(rollback, ov.rollback...)
		}
	} else {
		actions = append(actions, "snapshot component state before apply")
		rollback = append(rollback, "restore component snapshot")
	}

	return ContainmentResult{
		Contained:       true,
		Level:           level,
		Actions:         actions,
		RollbackPlan:    rollback,
		MonitoringLevel: monitoring,
	}
}

// Uncontained is the caller-assigned result for risk below the low
// threshold.
func (p *ContainmentPolicy) Uncontained() ContainmentResult {
	return ContainmentResult{
		Contained:       false,
		Level:           ContainmentNone,
		Actions:         nil,
		RollbackPlan:    []string{"restore previous parameters"},
		MonitoringLevel: MonitoringBasic,
	}
}

// levelForRisk saturates: anything below the medium threshold clamps to low
// (Contain is only called for contained candidates, but must stay total),
// anything above 1.0 clamps to maximum. NaN lands on maximum, the
// conservative end.
func levelForRisk(risk float64) ContainmentLevel {
	switch {
	case risk != risk: // NaN
		return ContainmentMaximum
	case risk >= ContainMaximumRisk:
		return ContainmentMaximum
	case risk >= ContainHighRisk:
		return ContainmentHigh
	case risk >= ContainMediumRisk:
		return ContainmentMedium
	default:
		return ContainmentLow
	}
}

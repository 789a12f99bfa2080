package evolution

import "testing"

func TestSanityGateHealthySystem(t *testing.T) {
	gate := NewSanityGate(DefaultConfig(), testLogger())

	a := gate.Assess(healthySnapshot())
	if a.SanityLevel != 1.0 {
		t.Errorf("sanity = %.2f, want 1.0", a.SanityLevel)
	}
	if len(a.Concerns) != 0 {
		t.Errorf("unexpected concerns: %v", a.Concerns)
	}
	if a.RequiresIntervention {
		t.Error("healthy system flagged for intervention")
	}
}

func TestSanityGatePenalties(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*EvolutionContext)
		want   float64
	}{
		{"memory_pressure", func(s *EvolutionContext) { s.Resources.MemoryUsage = 0.9 }, 0.7},
		{"cpu_pressure", func(s *EvolutionContext) { s.Resources.CPUUsage = 0.95 }, 0.8},
		{"error_rate", func(s *EvolutionContext) { s.Resources.ErrorRate = 0.15 }, 0.7},
		{"low_health", func(s *EvolutionContext) { s.Vitals.Health = 0.2 }, 0.7},
		{"high_stress", func(s *EvolutionContext) { s.Vitals.Stress = 0.9 }, 0.8},
	}
	gate := NewSanityGate(DefaultConfig(), testLogger())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := healthySnapshot()
			tt.mutate(&snap)
			a := gate.Assess(snap)
			if diff := a.SanityLevel - tt.want; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("sanity = %.2f, want %.2f", a.SanityLevel, tt.want)
			}
			if len(a.Concerns) != 1 {
				t.Errorf("concerns = %v, want exactly one", a.Concerns)
			}
		})
	}
}

func TestSanityGateInterventionTriggers(t *testing.T) {
	gate := NewSanityGate(DefaultConfig(), testLogger())

	// Error rate alone above the intervention line trips the flag even when
	// sanity stays above the abort floor.
	snap := healthySnapshot()
	snap.Resources.ErrorRate = 0.3
	a := gate.Assess(snap)
	if !a.RequiresIntervention {
		t.Error("high error rate did not trigger intervention")
	}

	// Multiple excursions push sanity below 0.3.
	snap = healthySnapshot()
	snap.Resources.MemoryUsage = 0.95
	snap.Resources.ErrorRate = 0.15
	snap.Vitals.Health = 0.1
	a = gate.Assess(snap)
	if a.SanityLevel >= 0.3 {
		t.Fatalf("sanity = %.2f, expected below 0.3", a.SanityLevel)
	}
	if !a.RequiresIntervention {
		t.Error("collapsed sanity did not trigger intervention")
	}
}

func TestSanityGateClampsToZero(t *testing.T) {
	gate := NewSanityGate(DefaultConfig(), testLogger())

	snap := EvolutionContext{
		Vitals:    SystemVitals{Health: 0.05, Stress: 0.95},
		Resources: ResourceMetrics{CPUUsage: 0.99, MemoryUsage: 0.99, ErrorRate: 0.5},
	}
	a := gate.Assess(snap)
	if a.SanityLevel != 0 {
		t.Errorf("sanity = %.2f, want clamp at 0", a.SanityLevel)
	}
	if len(a.Concerns) != 5 {
		t.Errorf("concerns = %d, want all 5", len(a.Concerns))
	}
}

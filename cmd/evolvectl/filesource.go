package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/GestIAdev/selene-evolution/evolution"
)

// contextFile is the YAML shape for a system snapshot on disk.
type contextFile struct {
	Vitals struct {
		Health     float64 `yaml:"health"`
		Stress     float64 `yaml:"stress"`
		Harmony    float64 `yaml:"harmony"`
		Creativity float64 `yaml:"creativity"`
	} `yaml:"vitals"`
	Resources struct {
		CPUUsage    float64 `yaml:"cpu_usage"`
		MemoryUsage float64 `yaml:"memory_usage"`
		ErrorRate   float64 `yaml:"error_rate"`
	} `yaml:"resources"`
}

// candidateFile is the YAML shape for a candidate batch on disk.
type candidateFile struct {
	Candidates []struct {
		ID              string  `yaml:"id"`
		TypeID          string  `yaml:"type_id"`
		Name            string  `yaml:"name"`
		Description     string  `yaml:"description"`
		Signature       string  `yaml:"signature"`
		TargetComponent string  `yaml:"target_component"`
		ChangeType      string  `yaml:"change_type"`
		OldValue        string  `yaml:"old_value"`
		NewValue        string  `yaml:"new_value"`
		RiskLevel       float64 `yaml:"risk_level"`
		ExpectedBenefit float64 `yaml:"expected_benefit"`
		ValidationScore float64 `yaml:"validation_score"`
	} `yaml:"candidates"`
}

// fileContextSource serves a fixed snapshot read from a YAML file. With no
// file it reports a healthy idle system.
type fileContextSource struct {
	path string
}

func (s *fileContextSource) Snapshot(_ context.Context) (evolution.EvolutionContext, error) {
	snap := evolution.EvolutionContext{
		Vitals:     evolution.SystemVitals{Health: 0.9, Harmony: 0.8, Creativity: 0.5},
		CapturedAt: time.Now(),
	}
	if s.path == "" {
		return snap, nil
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return evolution.EvolutionContext{}, fmt.Errorf("read context file: %w", err)
	}
	var cf contextFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return evolution.EvolutionContext{}, fmt.Errorf("parse context file: %w", err)
	}
	snap.Vitals = evolution.SystemVitals{
		Health:     cf.Vitals.Health,
		Stress:     cf.Vitals.Stress,
		Harmony:    cf.Vitals.Harmony,
		Creativity: cf.Vitals.Creativity,
	}
	snap.Resources = evolution.ResourceMetrics{
		CPUUsage:    cf.Resources.CPUUsage,
		MemoryUsage: cf.Resources.MemoryUsage,
		ErrorRate:   cf.Resources.ErrorRate,
	}
	return snap, nil
}

// fileGenerator serves a fixed candidate batch read from a YAML file. With
// no file it generates nothing, which exercises the fallback path.
type fileGenerator struct {
	path string
}

func (g *fileGenerator) Generate(_ context.Context, _ evolution.EvolutionContext, _ map[string]float64, maxCount int) ([]evolution.CandidateDecision, error) {
	if g.path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(g.path)
	if err != nil {
		return nil, fmt.Errorf("read candidates file: %w", err)
	}
	var cf candidateFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("parse candidates file: %w", err)
	}
	out := make([]evolution.CandidateDecision, 0, len(cf.Candidates))
	now := time.Now()
	for _, c := range cf.Candidates {
		if len(out) >= maxCount {
			break
		}
		id := c.ID
		if id == "" {
			id = evolution.ContentHash("candidate", c.TypeID, c.Signature, c.Name)
		}
		out = append(out, evolution.CandidateDecision{
			ID:              id,
			TypeID:          c.TypeID,
			Name:            c.Name,
			Description:     c.Description,
			Signature:       c.Signature,
			TargetComponent: c.TargetComponent,
			ChangeType:      c.ChangeType,
			OldValue:        c.OldValue,
			NewValue:        c.NewValue,
			RiskLevel:       c.RiskLevel,
			ExpectedBenefit: c.ExpectedBenefit,
			ValidationScore: c.ValidationScore,
			GeneratedAt:     now,
		})
	}
	return out, nil
}

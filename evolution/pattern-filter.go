// Package evolution - Pattern Sanity Filter
// Pure structural validation that rejects malformed candidates before the
// expensive safety checks run.
package evolution

import "fmt"

const (
	// MaxSignatureLength bounds structural signatures the same way rule
	// patterns are bounded upstream.
	MaxSignatureLength = 2048
)

// PatternFilter performs side-effect-free structural checks on candidates.
type PatternFilter struct{}

func NewPatternFilter() *PatternFilter {
	return &PatternFilter{}
}

// Check validates one candidate's structure. It never inspects context or
// history; semantic risk is the safety validator's job.
func (f *PatternFilter) Check(c CandidateDecision) PatternCheck {
	var issues []string

	if c.ID == "" {
		issues = append(issues, "candidate ID is empty")
	}
	if c.TypeID == "" {
		issues = append(issues, "decision type ID is empty")
	}
	if c.Name == "" {
		issues = append(issues, "candidate name is empty")
	}
	if c.Signature == "" {
		issues = append(issues, "structural signature is empty")
	} else if len(c.Signature) > MaxSignatureLength {
		issues = append(issues, fmt.Sprintf("signature too long: %d > %d chars", len(c.Signature), MaxSignatureLength))
	}
	if c.TargetComponent == "" {
		issues = append(issues, "target component is empty")
	}
	if c.RiskLevel < 0 || c.RiskLevel > 1 {
		issues = append(issues, fmt.Sprintf("risk level %.3f outside [0,1]", c.RiskLevel))
	}
	if c.ValidationScore < 0 || c.ValidationScore > 1 {
		issues = append(issues, fmt.Sprintf("validation score %.3f outside [0,1]", c.ValidationScore))
	}
	if c.ExpectedBenefit < 0 || c.ExpectedBenefit > 1 {
		issues = append(issues, fmt.Sprintf("expected benefit %.3f outside [0,1]", c.ExpectedBenefit))
	}

	return PatternCheck{IsSane: len(issues) == 0, Issues: issues}
}

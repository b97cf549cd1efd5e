package core

import "fmt"

// Phase is the fine-grained label for the orchestrator's current activity.
// It is used for diagnostics and resume branching; SessionStatus is the
// coarse state machine.
type Phase string

const (
	// PhaseInitialization covers session creation before any work starts.
	PhaseInitialization Phase = "initialization"

	// PhasePlanning covers source discovery and plan construction.
	PhasePlanning Phase = "planning"

	// PhaseChunking covers partitioning the discovered files into chunks.
	PhaseChunking Phase = "chunking"

	// PhaseAnalyzing covers the per-chunk worker loop.
	PhaseAnalyzing Phase = "analyzing"

	// PhaseAggregation covers folding chunk results into a summary.
	PhaseAggregation Phase = "aggregation"

	// PhaseVerification covers post-hoc sanity checks on the aggregate.
	PhaseVerification Phase = "verification"
)

// AllPhases returns all phases in execution order.
func AllPhases() []Phase {
	return []Phase{
		PhaseInitialization,
		PhasePlanning,
		PhaseChunking,
		PhaseAnalyzing,
		PhaseAggregation,
		PhaseVerification,
	}
}

// ValidPhase checks if a phase string is valid.
func ValidPhase(p Phase) bool {
	switch p {
	case PhaseInitialization, PhasePlanning, PhaseChunking,
		PhaseAnalyzing, PhaseAggregation, PhaseVerification:
		return true
	default:
		return false
	}
}

// ParsePhase converts a string to a Phase with validation.
func ParsePhase(s string) (Phase, error) {
	p := Phase(s)
	if !ValidPhase(p) {
		return "", fmt.Errorf("invalid phase: %s", s)
	}
	return p, nil
}

// String returns the string representation of the phase.
func (p Phase) String() string {
	return string(p)
}

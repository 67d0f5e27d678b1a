package protocol

// OutcomeKind says how a node finished processing.
type OutcomeKind string

const (
	OutcomeCompleted OutcomeKind = "completed"
	OutcomeSuspended OutcomeKind = "suspended"
)

// Outcome is the result of NodeHandler.Process.
type Outcome struct {
	Kind OutcomeKind

	// Branch is set only by decision handlers.
	Branch *bool

	Output map[string]any
}

// Completed reports a node that finished and may be routed through
// unconditional edges.
func Completed(output map[string]any) Outcome {
	return Outcome{Kind: OutcomeCompleted, Output: output}
}

// Decided reports a decision node's boolean result.
func Decided(branch bool, output map[string]any) Outcome {
	return Outcome{Kind: OutcomeCompleted, Branch: &branch, Output: output}
}

// Suspended reports a node waiting for external input.
func Suspended(output map[string]any) Outcome {
	return Outcome{Kind: OutcomeSuspended, Output: output}
}

func (o Outcome) IsSuspended() bool {
	return o.Kind == OutcomeSuspended
}

// IsDecision reports whether the outcome carries a boolean branch.
func (o Outcome) IsDecision() bool {
	return o.Branch != nil
}

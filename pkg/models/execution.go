package models

import (
	"maps"
	"time"
)

// ExecutionStatus is the lifecycle state of an execution record.
type ExecutionStatus string

const (
	ExecutionStatusPending   ExecutionStatus = "pending"
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusSuspended ExecutionStatus = "suspended"
	ExecutionStatusSucceeded ExecutionStatus = "succeeded"
	ExecutionStatusFailed    ExecutionStatus = "failed"
	ExecutionStatusCancelled ExecutionStatus = "cancelled"
)

// IsTerminal reports whether no further transition is possible.
func (s ExecutionStatus) IsTerminal() bool {
	return s == ExecutionStatusSucceeded || s == ExecutionStatusFailed || s == ExecutionStatusCancelled
}

// NodeStatus is the state of a single step in the execution trace.
type NodeStatus string

const (
	NodeStatusNotStarted NodeStatus = "not_started"
	NodeStatusPending    NodeStatus = "pending" // suspended, waiting for external input
	NodeStatusRunning    NodeStatus = "running"
	NodeStatusSucceeded  NodeStatus = "succeeded"
	NodeStatusFailed     NodeStatus = "failed"
	NodeStatusCancelled  NodeStatus = "cancelled"
)

// IsActive reports whether the step is the current frontier.
func (s NodeStatus) IsActive() bool {
	return s == NodeStatusPending || s == NodeStatusRunning
}

// ExecutionRecord is one run of a workflow definition.
type ExecutionRecord struct {
	ID              string           `json:"id"`
	WorkflowID      string           `json:"workflow_id"`
	WorkflowVersion int              `json:"workflow_version"`
	WorkflowName    string           `json:"workflow_name"`
	EntryNodeID     string           `json:"entry_node_id"`
	Status          ExecutionStatus  `json:"status"`
	Trigger         TriggerType      `json:"trigger"`
	StartedAt       time.Time        `json:"started_at"`
	FinishedAt      *time.Time       `json:"finished_at,omitempty"`
	Context         map[string]any   `json:"context"`
	Steps           []*ExecutionNode `json:"steps"`
	Error           string           `json:"error,omitempty"`

	// Version is the optimistic concurrency token; stores bump it on every write.
	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ExecutionNode is the per-node trace entry of an execution.
type ExecutionNode struct {
	NodeID     string         `json:"node_id"`
	Name       string         `json:"name"`
	Type       NodeKind       `json:"type"`
	Config     map[string]any `json:"config,omitempty"`
	Status     NodeStatus     `json:"status"`
	StartedAt  *time.Time     `json:"started_at,omitempty"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
	Attempts   int            `json:"attempts,omitempty"`
	Output     map[string]any `json:"output,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// Step returns the trace entry of the given node, or nil.
func (r *ExecutionRecord) Step(nodeID string) *ExecutionNode {
	for _, step := range r.Steps {
		if step.NodeID == nodeID {
			return step
		}
	}

	return nil
}

// ActiveSteps returns every step currently Pending or Running.
func (r *ExecutionRecord) ActiveSteps() []*ExecutionNode {
	var active []*ExecutionNode

	for _, step := range r.Steps {
		if step.Status.IsActive() {
			active = append(active, step)
		}
	}

	return active
}

// PendingStep returns the single step waiting for external input. It returns
// false when there is none or more than one.
func (r *ExecutionRecord) PendingStep() (*ExecutionNode, bool) {
	var pending *ExecutionNode

	for _, step := range r.Steps {
		if step.Status != NodeStatusPending {
			continue
		}

		if pending != nil {
			return nil, false
		}

		pending = step
	}

	return pending, pending != nil
}

// StepOutputs maps node ids to the output each visited node produced.
func (r *ExecutionRecord) StepOutputs() map[string]any {
	outputs := make(map[string]any, len(r.Steps))

	for _, step := range r.Steps {
		if step.Output != nil {
			outputs[step.NodeID] = map[string]any{
				"status": string(step.Status),
				"output": step.Output,
			}
		}
	}

	return outputs
}

// Clone returns a deep enough copy for handlers to read without racing the engine.
func (r *ExecutionRecord) Clone() *ExecutionRecord {
	clone := *r
	clone.Context = maps.Clone(r.Context)
	clone.Steps = make([]*ExecutionNode, len(r.Steps))

	for i, step := range r.Steps {
		s := *step
		s.Output = maps.Clone(step.Output)
		clone.Steps[i] = &s
	}

	return &clone
}

// ExecutionSummary is the list projection of an execution record.
type ExecutionSummary struct {
	ID           string          `json:"id"`
	WorkflowID   string          `json:"workflow_id"`
	WorkflowName string          `json:"workflow_name"`
	Status       ExecutionStatus `json:"status"`
	StartedAt    time.Time       `json:"started_at"`
	FinishedAt   *time.Time      `json:"finished_at,omitempty"`
}

// Summary projects the record for list views.
func (r *ExecutionRecord) Summary() ExecutionSummary {
	return ExecutionSummary{
		ID:           r.ID,
		WorkflowID:   r.WorkflowID,
		WorkflowName: r.WorkflowName,
		Status:       r.Status,
		StartedAt:    r.StartedAt,
		FinishedAt:   r.FinishedAt,
	}
}

// TriggerInput is the payload that starts an execution.
type TriggerInput struct {
	Source  TriggerType    `json:"source"`
	Path    string         `json:"path,omitempty"`
	Payload map[string]any `json:"payload,omitempty"`
}

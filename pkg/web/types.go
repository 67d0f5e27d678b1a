package web

import (
	"time"

	"github.com/dukex/wayflow/pkg/models"
)

// TriggerRequest is the body of a manual trigger. Both fields are optional.
type TriggerRequest struct {
	Payload map[string]any `json:"payload"`
}

// ExecutionResponse is returned when an execution starts or is cancelled.
// Error is set when the run already ended Failed.
type ExecutionResponse struct {
	ExecutionID string                 `json:"execution_id"`
	WorkflowID  string                 `json:"workflow_id"`
	Status      models.ExecutionStatus `json:"status"`
	PendingNode string                 `json:"pending_node,omitempty"`
	Error       string                 `json:"error,omitempty"`
}

// ExecutionNodeResponse is the projection of a single step returned by a
// form submission.
type ExecutionNodeResponse struct {
	NodeID     string            `json:"nodeId"`
	Name       string            `json:"name"`
	Type       models.NodeKind   `json:"type"`
	Config     map[string]any    `json:"config,omitempty"`
	StartedAt  *time.Time        `json:"startedAt,omitempty"`
	FinishedAt *time.Time        `json:"finishedAt,omitempty"`
	Status     models.NodeStatus `json:"status"`
}

func newExecutionNodeResponse(step *models.ExecutionNode) ExecutionNodeResponse {
	return ExecutionNodeResponse{
		NodeID:     step.NodeID,
		Name:       step.Name,
		Type:       step.Type,
		Config:     step.Config,
		StartedAt:  step.StartedAt,
		FinishedAt: step.FinishedAt,
		Status:     step.Status,
	}
}

// Headers set on a synchronous form submission.
const (
	HeaderExecutionStatus = "X-Execution-Status"
	HeaderExecutionError  = "X-Execution-Error"
)

// AcceptedResponse is returned when a trigger or resume is queued for a worker.
type AcceptedResponse struct {
	RequestID   string `json:"request_id"`
	WorkflowID  string `json:"workflow_id"`
	ExecutionID string `json:"execution_id,omitempty"`
	Status      string `json:"status"`
}

// WorkflowSummary is the list projection of a definition.
type WorkflowSummary struct {
	ID          string             `json:"id"`
	Version     int                `json:"version"`
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	Trigger     models.TriggerType `json:"trigger"`
	Nodes       int                `json:"nodes"`
}

// ListExecutionsQuery holds the filters of GET /executions.
type ListExecutionsQuery struct {
	WorkflowID string `query:"workflow_id"`
	Status     string `query:"status"      validate:"omitempty,oneof=pending running suspended succeeded failed cancelled"`
	Limit      int    `query:"limit"       validate:"gte=0,lte=500"`
	Offset     int    `query:"offset"      validate:"gte=0"`
}

// NodeTypeResponse describes a registered node handler.
type NodeTypeResponse struct {
	Type        models.NodeKind `json:"type"`
	Name        string          `json:"name,omitempty"`
	Description string          `json:"description,omitempty"`
	Schema      map[string]any  `json:"schema,omitempty"`
	Resumable   bool            `json:"resumable"`
}

func newExecutionResponse(record *models.ExecutionRecord) ExecutionResponse {
	response := ExecutionResponse{
		ExecutionID: record.ID,
		WorkflowID:  record.WorkflowID,
		Status:      record.Status,
		Error:       record.Error,
	}

	if step, ok := record.PendingStep(); ok && record.Status == models.ExecutionStatusSuspended {
		response.PendingNode = step.NodeID
	}

	return response
}

type healthResponse struct {
	Status    string            `json:"status"`
	Message   string            `json:"message"`
	Checkers  map[string]string `json:"checkers"`
	Timestamp time.Time         `json:"timestamp"`
}

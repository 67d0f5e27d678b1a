// Package events defines the execution lifecycle events exchanged over the event bus.
package events

import (
	"time"

	"github.com/dukex/wayflow/pkg/models"
	"github.com/google/uuid"
)

type EventType string

// Topic every wayflow event is published on.
const Topic = "wayflow.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Requests consumed by the worker.
	ExecutionRequestedEvent       EventType = "execution.requested"
	ExecutionResumeRequestedEvent EventType = "execution.resume_requested"

	// Execution lifecycle, published by the engine.
	ExecutionStartedEvent   EventType = "execution.started"
	ExecutionSuspendedEvent EventType = "execution.suspended"
	ExecutionResumedEvent   EventType = "execution.resumed"
	ExecutionSucceededEvent EventType = "execution.succeeded"
	ExecutionFailedEvent    EventType = "execution.failed"
	ExecutionCancelledEvent EventType = "execution.cancelled"

	// Node transitions, published by the engine.
	NodeCompletedEvent EventType = "node.completed"
	NodeFailedEvent    EventType = "node.failed"
)

type BaseEvent struct {
	ID          string    `json:"id"`
	Type        EventType `json:"type"`
	Timestamp   time.Time `json:"timestamp"`
	WorkflowID  string    `json:"workflow_id"`
	ExecutionID string    `json:"execution_id,omitempty"`
}

func NewBaseEvent(eventType EventType, workflowID, executionID string) BaseEvent {
	return BaseEvent{
		ID:          uuid.NewString(),
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		WorkflowID:  workflowID,
		ExecutionID: executionID,
	}
}

func (b BaseEvent) GetType() EventType {
	return b.Type
}

// ExecutionRequested asks a worker to start an execution.
type ExecutionRequested struct {
	BaseEvent

	Trigger models.TriggerInput `json:"trigger"`
}

func NewExecutionRequested(workflowID string, trigger models.TriggerInput) *ExecutionRequested {
	return &ExecutionRequested{
		BaseEvent: NewBaseEvent(ExecutionRequestedEvent, workflowID, ""),
		Trigger:   trigger,
	}
}

// ExecutionResumeRequested asks a worker to resume a suspended execution.
type ExecutionResumeRequested struct {
	BaseEvent

	Payload map[string]any `json:"payload,omitempty"`
}

func NewExecutionResumeRequested(workflowID, executionID string, payload map[string]any) *ExecutionResumeRequested {
	return &ExecutionResumeRequested{
		BaseEvent: NewBaseEvent(ExecutionResumeRequestedEvent, workflowID, executionID),
		Payload:   payload,
	}
}

// ExecutionLifecycle reports a change of the record's status.
type ExecutionLifecycle struct {
	BaseEvent

	Status models.ExecutionStatus `json:"status"`
	NodeID string                 `json:"node_id,omitempty"` // suspended or failing node
	Error  string                 `json:"error,omitempty"`
}

func NewExecutionLifecycle(eventType EventType, record *models.ExecutionRecord, nodeID string) *ExecutionLifecycle {
	return &ExecutionLifecycle{
		BaseEvent: NewBaseEvent(eventType, record.WorkflowID, record.ID),
		Status:    record.Status,
		NodeID:    nodeID,
		Error:     record.Error,
	}
}

// NodeTransition reports a step that finished processing.
type NodeTransition struct {
	BaseEvent

	NodeID   string            `json:"node_id"`
	NodeType models.NodeKind   `json:"node_type"`
	Status   models.NodeStatus `json:"status"`
	Attempts int               `json:"attempts,omitempty"`
	Output   map[string]any    `json:"output,omitempty"`
	Error    string            `json:"error,omitempty"`
}

func NewNodeTransition(eventType EventType, record *models.ExecutionRecord, step *models.ExecutionNode) *NodeTransition {
	return &NodeTransition{
		BaseEvent: NewBaseEvent(eventType, record.WorkflowID, record.ID),
		NodeID:    step.NodeID,
		NodeType:  step.Type,
		Status:    step.Status,
		Attempts:  step.Attempts,
		Output:    step.Output,
		Error:     step.Error,
	}
}

// New returns an empty event value to decode a payload of the given type into.
func New(eventType EventType) (any, bool) {
	switch eventType {
	case ExecutionRequestedEvent:
		return &ExecutionRequested{}, true
	case ExecutionResumeRequestedEvent:
		return &ExecutionResumeRequested{}, true
	case ExecutionStartedEvent, ExecutionSuspendedEvent, ExecutionResumedEvent,
		ExecutionSucceededEvent, ExecutionFailedEvent, ExecutionCancelledEvent:
		return &ExecutionLifecycle{}, true
	case NodeCompletedEvent, NodeFailedEvent:
		return &NodeTransition{}, true
	default:
		return nil, false
	}
}

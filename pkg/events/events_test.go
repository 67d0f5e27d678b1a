package events

import (
	"encoding/json"
	"testing"

	"github.com/dukex/wayflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		eventType EventType
		expected  any
	}{
		{ExecutionRequestedEvent, &ExecutionRequested{}},
		{ExecutionResumeRequestedEvent, &ExecutionResumeRequested{}},
		{ExecutionSuspendedEvent, &ExecutionLifecycle{}},
		{ExecutionCancelledEvent, &ExecutionLifecycle{}},
		{NodeFailedEvent, &NodeTransition{}},
	}

	for _, tt := range tests {
		t.Run(string(tt.eventType), func(t *testing.T) {
			event, ok := New(tt.eventType)
			require.True(t, ok)
			assert.IsType(t, tt.expected, event)
		})
	}

	_, ok := New("workflow.unknown")
	assert.False(t, ok)
}

func TestNodeTransition_CarriesStep(t *testing.T) {
	record := &models.ExecutionRecord{ID: "exec-1", WorkflowID: "wf-1"}
	step := &models.ExecutionNode{
		NodeID:   "charge",
		Type:     models.NodeKindAction,
		Status:   models.NodeStatusFailed,
		Attempts: 3,
		Error:    "boom",
	}

	event := NewNodeTransition(NodeFailedEvent, record, step)

	data, err := json.Marshal(event)
	require.NoError(t, err)

	decoded, _ := New(NodeFailedEvent)
	require.NoError(t, json.Unmarshal(data, decoded))

	transition := decoded.(*NodeTransition)
	assert.Equal(t, NodeFailedEvent, transition.GetType())
	assert.Equal(t, "exec-1", transition.ExecutionID)
	assert.Equal(t, "charge", transition.NodeID)
	assert.Equal(t, 3, transition.Attempts)
	assert.Equal(t, "boom", transition.Error)
}

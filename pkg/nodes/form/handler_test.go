package form

import (
	"testing"

	"github.com/dukex/wayflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func approvalNode() *models.WorkflowNode {
	return &models.WorkflowNode{
		ID:   "approval",
		Type: models.NodeKindForm,
		Name: "Manager approval",
		Config: map[string]any{
			"title": "Approve expense",
			"fields": []any{
				map[string]any{"id": "decision", "type": "select", "required": true, "options": []any{"approve", "reject"}},
				map[string]any{"id": "comment"},
				map[string]any{"id": "amount", "type": "number"},
			},
		},
	}
}

func TestHandler_Process_Suspends(t *testing.T) {
	outcome, err := NewHandler().Process(t.Context(), approvalNode(), &models.ExecutionRecord{})
	require.NoError(t, err)
	require.True(t, outcome.IsSuspended())

	form, ok := outcome.Output["form"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Approve expense", form["title"])
	assert.Len(t, form["fields"], 3)
}

func TestHandler_ValidateResume(t *testing.T) {
	tests := []struct {
		name    string
		payload map[string]any
		wantErr string
	}{
		{name: "valid", payload: map[string]any{"decision": "approve", "comment": "ok", "amount": 12.5}},
		{name: "optional omitted", payload: map[string]any{"decision": "reject"}},
		{name: "missing required", payload: map[string]any{"comment": "hi"}, wantErr: "decision is required"},
		{name: "empty required", payload: map[string]any{"decision": ""}, wantErr: "decision is required"},
		{name: "bad option", payload: map[string]any{"decision": "maybe"}, wantErr: "decision must be one of approve, reject"},
		{name: "bad number", payload: map[string]any{"decision": "approve", "amount": "ten"}, wantErr: "amount must be a number"},
	}

	handler := NewHandler()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := handler.ValidateResume(approvalNode(), tt.payload)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}

			require.ErrorIs(t, err, ErrInvalidSubmission)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestHandler_ValidateResume_Schema(t *testing.T) {
	node := &models.WorkflowNode{
		ID:   "details",
		Type: models.NodeKindForm,
		Config: map[string]any{
			"schema": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"age": map[string]any{"type": "integer", "minimum": 18},
				},
				"required": []any{"age"},
			},
		},
	}

	handler := NewHandler()

	require.NoError(t, handler.ValidateResume(node, map[string]any{"age": 21}))

	err := handler.ValidateResume(node, map[string]any{"age": 10})
	require.ErrorIs(t, err, ErrInvalidSubmission)

	err = handler.ValidateResume(node, map[string]any{})
	require.ErrorIs(t, err, ErrInvalidSubmission)
	assert.Contains(t, err.Error(), "age")
}

// Package trigger provides the handler for a workflow's entry node.
package trigger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dukex/wayflow/pkg/models"
	"github.com/dukex/wayflow/pkg/protocol"
)

// ErrNotEntryNode indicates a trigger node was reached somewhere other than the start of a run.
var ErrNotEntryNode = errors.New("trigger node is not the entry node")

// Handler completes the entry node of every execution.
type Handler struct {
	now func() time.Time
}

func NewHandler() *Handler {
	return &Handler{now: time.Now}
}

func (h *Handler) Kind() models.NodeKind {
	return models.NodeKindTrigger
}

func (h *Handler) Process(_ context.Context, node *models.WorkflowNode, record *models.ExecutionRecord) (protocol.Outcome, error) {
	if node.ID != record.EntryNodeID {
		return protocol.Outcome{}, fmt.Errorf("%w: %s", ErrNotEntryNode, node.ID)
	}

	return protocol.Completed(map[string]any{
		"triggered_at": h.now().UTC().Format(time.RFC3339),
		"source":       string(record.Trigger),
	}), nil
}

func (h *Handler) Name() string {
	return "Trigger"
}

func (h *Handler) Description() string {
	return "Entry point of a workflow. Completes immediately with the trigger source."
}

func (h *Handler) Schema() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{},
	}
}

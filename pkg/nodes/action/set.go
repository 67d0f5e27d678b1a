package action

import (
	"context"
	"fmt"

	"github.com/dukex/wayflow/pkg/models"
	"github.com/dukex/wayflow/pkg/protocol"
	"github.com/dukex/wayflow/pkg/template"
)

func (h *Handler) set(_ context.Context, cfg Config, _ *models.WorkflowNode, record *models.ExecutionRecord) (protocol.Outcome, error) {
	output := make(map[string]any, len(cfg.Values))

	for key, expr := range cfg.Values {
		value, err := template.RenderWithRecord(expr, record)
		if err != nil {
			return protocol.Outcome{}, fmt.Errorf("failed to render value %q: %w", key, err)
		}

		output[key] = value
	}

	return protocol.Completed(output), nil
}

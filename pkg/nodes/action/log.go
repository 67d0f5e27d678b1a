package action

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/wayflow/pkg/models"
	"github.com/dukex/wayflow/pkg/protocol"
	"github.com/dukex/wayflow/pkg/template"
)

func (h *Handler) log(ctx context.Context, cfg Config, node *models.WorkflowNode, record *models.ExecutionRecord) (protocol.Outcome, error) {
	message, err := template.RenderString(cfg.Message, record)
	if err != nil {
		return protocol.Outcome{}, fmt.Errorf("failed to render message: %w", err)
	}

	level := slog.LevelInfo

	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	h.logger.Log(ctx, level, message,
		"execution_id", record.ID,
		"workflow_id", record.WorkflowID,
		"node_id", node.ID,
	)

	return protocol.Completed(map[string]any{
		"message": message,
		"level":   level.String(),
	}), nil
}

// Package decision provides the boolean branching node handler.
package decision

import (
	"context"

	"github.com/dukex/wayflow/pkg/conditions"
	"github.com/dukex/wayflow/pkg/models"
	"github.com/dukex/wayflow/pkg/protocol"
)

// Config is the decision node's slice of the node config.
type Config struct {
	Condition string `json:"condition" validate:"required"`
}

// Handler evaluates its condition and reports which branch to follow.
type Handler struct {
	evaluator conditions.Evaluator
}

func NewHandler(evaluator conditions.Evaluator) *Handler {
	if evaluator == nil {
		evaluator = conditions.NewTemplateEvaluator()
	}

	return &Handler{evaluator: evaluator}
}

func (h *Handler) Kind() models.NodeKind {
	return models.NodeKindDecision
}

func (h *Handler) Process(_ context.Context, node *models.WorkflowNode, record *models.ExecutionRecord) (protocol.Outcome, error) {
	var cfg Config

	err := protocol.DecodeConfig(node.Config, &cfg)
	if err != nil {
		return protocol.Outcome{}, err
	}

	result, err := h.evaluator.Evaluate(&models.Condition{Expression: cfg.Condition}, record)
	if err != nil {
		return protocol.Outcome{}, err
	}

	return protocol.Decided(result, map[string]any{"result": result}), nil
}

func (h *Handler) Name() string {
	return "Decision"
}

func (h *Handler) Description() string {
	return "Evaluates a condition and routes execution through its true or false edge."
}

func (h *Handler) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"condition": map[string]any{
				"type":        "string",
				"description": "Template expression rendered against the execution and converted to a boolean.",
				"examples": []string{
					`{{ eq .context.status "approved" }}`,
					`{{ gt .context.amount 1000.0 }}`,
					`{{ .steps.check.output.ok }}`,
				},
			},
		},
		"required": []string{"condition"},
	}
}

func (h *Handler) CheckConfig(config map[string]any) error {
	var cfg Config

	return protocol.DecodeConfig(config, &cfg)
}

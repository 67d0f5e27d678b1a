// Package action provides the handler for side-effecting workflow steps.
package action

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/dukex/wayflow/pkg/models"
	"github.com/dukex/wayflow/pkg/protocol"
)

// Supported values of the "action" config key.
const (
	ActionLog           = "log"
	ActionHTTPRequest   = "http_request"
	ActionSet           = "set"
	ActionAwaitCallback = "await_callback"
)

// Config is the action node's slice of the node config. Which fields apply
// depends on Action.
type Config struct {
	Action string `json:"action" validate:"required,oneof=log http_request set await_callback"`

	// log
	Message string `json:"message,omitempty" validate:"required_if=Action log"`
	Level   string `json:"level,omitempty"   validate:"omitempty,oneof=debug info warn error"`

	// http_request
	URL     string            `json:"url,omitempty"     validate:"required_if=Action http_request"`
	Method  string            `json:"method,omitempty"  validate:"omitempty,oneof=GET POST PUT PATCH DELETE HEAD"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    string            `json:"body,omitempty"`

	// set
	Values map[string]string `json:"values,omitempty" validate:"required_if=Action set"`
}

type performer func(ctx context.Context, cfg Config, node *models.WorkflowNode, record *models.ExecutionRecord) (protocol.Outcome, error)

// Handler runs the action named by the node config.
type Handler struct {
	logger     *slog.Logger
	client     *http.Client
	performers map[string]performer
}

func NewHandler(logger *slog.Logger, client *http.Client) *Handler {
	h := &Handler{
		logger: logger,
		client: client,
	}

	h.performers = map[string]performer{
		ActionLog:           h.log,
		ActionHTTPRequest:   h.httpRequest,
		ActionSet:           h.set,
		ActionAwaitCallback: h.awaitCallback,
	}

	return h
}

func (h *Handler) Kind() models.NodeKind {
	return models.NodeKindAction
}

func (h *Handler) Process(ctx context.Context, node *models.WorkflowNode, record *models.ExecutionRecord) (protocol.Outcome, error) {
	var cfg Config

	err := protocol.DecodeConfig(node.Config, &cfg)
	if err != nil {
		return protocol.Outcome{}, err
	}

	perform, ok := h.performers[cfg.Action]
	if !ok {
		return protocol.Outcome{}, fmt.Errorf("unsupported action %q", cfg.Action)
	}

	return perform(ctx, cfg, node, record)
}

func (h *Handler) awaitCallback(_ context.Context, _ Config, node *models.WorkflowNode, record *models.ExecutionRecord) (protocol.Outcome, error) {
	return protocol.Suspended(map[string]any{
		"callback": map[string]any{
			"execution_id": record.ID,
			"node_id":      node.ID,
		},
	}), nil
}

func (h *Handler) Name() string {
	return "Action"
}

func (h *Handler) Description() string {
	return "Performs a side effect: logging, an HTTP call, setting values or waiting for a callback."
}

func (h *Handler) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"action": map[string]any{
				"type": "string",
				"enum": []string{ActionLog, ActionHTTPRequest, ActionSet, ActionAwaitCallback},
			},
			"message": map[string]any{"type": "string", "description": "Templated log message"},
			"level":   map[string]any{"type": "string", "enum": []string{"debug", "info", "warn", "error"}},
			"url":     map[string]any{"type": "string", "description": "Templated request URL"},
			"method":  map[string]any{"type": "string", "default": http.MethodGet},
			"headers": map[string]any{"type": "object", "additionalProperties": map[string]any{"type": "string"}},
			"body":    map[string]any{"type": "string", "description": "Templated request body"},
			"values": map[string]any{
				"type":                 "object",
				"description":          "Templated values merged into the step output",
				"additionalProperties": map[string]any{"type": "string"},
			},
		},
		"required": []string{"action"},
	}
}

func (h *Handler) CheckConfig(config map[string]any) error {
	var cfg Config

	return protocol.DecodeConfig(config, &cfg)
}

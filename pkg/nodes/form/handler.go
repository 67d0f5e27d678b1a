// Package form provides the handler for nodes that suspend a run until a
// person submits data.
package form

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/dukex/wayflow/pkg/models"
	"github.com/dukex/wayflow/pkg/protocol"
	"github.com/xeipuuv/gojsonschema"
)

// ErrInvalidSubmission is returned when a submitted payload does not satisfy the form.
var ErrInvalidSubmission = errors.New("invalid form submission")

// Field describes one input of the form.
type Field struct {
	ID       string   `json:"id"                validate:"required"`
	Label    string   `json:"label,omitempty"`
	Type     string   `json:"type,omitempty"    validate:"omitempty,oneof=text textarea number boolean email date select"`
	Required bool     `json:"required,omitempty"`
	Options  []string `json:"options,omitempty" validate:"required_if=Type select"`
}

// Config is the form node's slice of the node config.
type Config struct {
	Title       string         `json:"title,omitempty"`
	Description string         `json:"description,omitempty"`
	Fields      []Field        `json:"fields,omitempty"      validate:"dive"`
	Schema      map[string]any `json:"schema,omitempty"`
}

// Handler suspends the run and validates the payload that resumes it.
type Handler struct{}

func NewHandler() *Handler {
	return &Handler{}
}

func (h *Handler) Kind() models.NodeKind {
	return models.NodeKindForm
}

func (h *Handler) Process(_ context.Context, node *models.WorkflowNode, _ *models.ExecutionRecord) (protocol.Outcome, error) {
	var cfg Config

	err := protocol.DecodeConfig(node.Config, &cfg)
	if err != nil {
		return protocol.Outcome{}, err
	}

	fields := make([]any, 0, len(cfg.Fields))
	for _, field := range cfg.Fields {
		fields = append(fields, map[string]any{
			"id":       field.ID,
			"label":    field.Label,
			"type":     fieldType(field),
			"required": field.Required,
		})
	}

	return protocol.Suspended(map[string]any{
		"form": map[string]any{
			"title":  cfg.Title,
			"fields": fields,
		},
	}), nil
}

// ValidateResume checks required fields, field types and the optional JSON schema.
func (h *Handler) ValidateResume(node *models.WorkflowNode, payload map[string]any) error {
	var cfg Config

	err := protocol.DecodeConfig(node.Config, &cfg)
	if err != nil {
		return err
	}

	var problems []string

	for _, field := range cfg.Fields {
		value, ok := payload[field.ID]
		if !ok || value == nil || value == "" {
			if field.Required {
				problems = append(problems, fmt.Sprintf("%s is required", field.ID))
			}

			continue
		}

		if msg := checkType(field, value); msg != "" {
			problems = append(problems, msg)
		}
	}

	if len(cfg.Schema) > 0 {
		result, err := gojsonschema.Validate(
			gojsonschema.NewGoLoader(cfg.Schema),
			gojsonschema.NewGoLoader(payload),
		)
		if err != nil {
			return fmt.Errorf("failed to validate form schema: %w", err)
		}

		for _, desc := range result.Errors() {
			problems = append(problems, desc.String())
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidSubmission, strings.Join(problems, "; "))
	}

	return nil
}

func fieldType(field Field) string {
	if field.Type == "" {
		return "text"
	}

	return field.Type
}

func checkType(field Field, value any) string {
	switch fieldType(field) {
	case "number":
		switch value.(type) {
		case float64, float32, int, int64, int32:
			return ""
		}

		return fmt.Sprintf("%s must be a number", field.ID)
	case "boolean":
		if _, ok := value.(bool); !ok {
			return fmt.Sprintf("%s must be a boolean", field.ID)
		}
	case "select":
		s, ok := value.(string)
		if !ok || !slices.Contains(field.Options, s) {
			return fmt.Sprintf("%s must be one of %s", field.ID, strings.Join(field.Options, ", "))
		}
	case "email":
		s, ok := value.(string)
		if !ok || !strings.Contains(s, "@") {
			return fmt.Sprintf("%s must be an email address", field.ID)
		}
	default:
		if _, ok := value.(string); !ok {
			return fmt.Sprintf("%s must be a string", field.ID)
		}
	}

	return ""
}

func (h *Handler) Name() string {
	return "Form"
}

func (h *Handler) Description() string {
	return "Pauses the execution until a form submission resumes it."
}

func (h *Handler) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"title": map[string]any{"type": "string"},
			"fields": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"id":       map[string]any{"type": "string"},
						"label":    map[string]any{"type": "string"},
						"type":     map[string]any{"type": "string", "enum": []string{"text", "textarea", "number", "boolean", "email", "date", "select"}},
						"required": map[string]any{"type": "boolean"},
						"options":  map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
					},
					"required": []string{"id"},
				},
			},
			"schema": map[string]any{
				"type":        "object",
				"description": "Optional JSON schema the submitted payload must satisfy.",
			},
		},
	}
}

func (h *Handler) CheckConfig(config map[string]any) error {
	var cfg Config

	return protocol.DecodeConfig(config, &cfg)
}

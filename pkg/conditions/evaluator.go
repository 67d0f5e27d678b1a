// Package conditions evaluates edge and decision predicates against an execution record.
package conditions

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dukex/wayflow/pkg/models"
	"github.com/dukex/wayflow/pkg/template"
)

// Evaluator decides whether a condition holds for the current execution.
// Implementations must be pure: no state, no I/O.
type Evaluator interface {
	Evaluate(condition *models.Condition, record *models.ExecutionRecord) (bool, error)
}

// EvaluatorFunc adapts a plain function to the Evaluator interface.
type EvaluatorFunc func(condition *models.Condition, record *models.ExecutionRecord) (bool, error)

func (f EvaluatorFunc) Evaluate(condition *models.Condition, record *models.ExecutionRecord) (bool, error) {
	return f(condition, record)
}

// TemplateEvaluator renders the condition expression with the template
// package and converts the result to a boolean. An empty expression holds.
type TemplateEvaluator struct{}

// NewTemplateEvaluator returns the default evaluator.
func NewTemplateEvaluator() *TemplateEvaluator {
	return &TemplateEvaluator{}
}

func (e *TemplateEvaluator) Evaluate(condition *models.Condition, record *models.ExecutionRecord) (bool, error) {
	if condition == nil || strings.TrimSpace(condition.Expression) == "" {
		return true, nil
	}

	result, err := template.RenderWithRecord(condition.Expression, record)
	if err != nil {
		return false, fmt.Errorf("condition evaluation failed: %w", err)
	}

	return Truthy(result)
}

// Truthy converts a rendered value to a boolean.
func Truthy(value any) (bool, error) {
	switch v := value.(type) {
	case nil:
		return false, nil
	case bool:
		return v, nil
	case string:
		if v == "" || v == template.NoValue {
			return false, nil
		}

		if b, err := strconv.ParseBool(v); err == nil {
			return b, nil
		}

		return true, nil
	case int:
		return v != 0, nil
	case int64:
		return v != 0, nil
	case float64:
		return v != 0, nil
	case []any:
		return len(v) > 0, nil
	case map[string]any:
		return len(v) > 0, nil
	default:
		return false, fmt.Errorf("cannot convert %T to boolean", value)
	}
}

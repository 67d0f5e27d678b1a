package engine

import (
	"fmt"
	"strings"

	"github.com/dukex/wayflow/pkg/models"
	"github.com/dukex/wayflow/pkg/protocol"
)

// selectNext returns the target of the single edge matching outcome, or ""
// when no edge matches. Unconditional edges match any outcome of a
// non-decision node; "true"/"false" edges match only a decision's branch.
// Edges carrying an expression also need it to evaluate true.
func (e *Engine) selectNext(definition *models.WorkflowDefinition, record *models.ExecutionRecord, node *models.WorkflowNode, outcome protocol.Outcome) (string, error) {
	want := models.ConditionTypeAlways

	if node.Type == models.NodeKindDecision && outcome.IsDecision() {
		want = models.ConditionTypeFalse
		if *outcome.Branch {
			want = models.ConditionTypeTrue
		}
	}

	var matches []*models.Connection

	for _, conn := range definition.Outgoing(node.ID) {
		if conn.ConditionType() != want {
			continue
		}

		if conn.Expression() != "" {
			ok, err := e.evaluator.Evaluate(conn.Condition, record)
			if err != nil {
				return "", fmt.Errorf("edge %s -> %s: %w", conn.From, conn.To, err)
			}

			if !ok {
				continue
			}
		}

		matches = append(matches, conn)
	}

	switch len(matches) {
	case 0:
		return "", nil
	case 1:
		return matches[0].To, nil
	default:
		targets := make([]string, 0, len(matches))
		for _, conn := range matches {
			targets = append(targets, conn.To)
		}

		return "", fmt.Errorf("%w: node %s has %d matching %q edges (%s)",
			ErrAmbiguousTransition, node.ID, len(matches), conditionLabel(want), strings.Join(targets, ", "))
	}
}

func conditionLabel(t models.ConditionType) string {
	if t == models.ConditionTypeAlways {
		return "unconditional"
	}

	return string(t)
}

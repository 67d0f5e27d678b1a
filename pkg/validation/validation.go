// Package validation lints workflow definitions before they are stored or run.
package validation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dukex/wayflow/pkg/models"
	"github.com/dukex/wayflow/pkg/protocol"
	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
)

var ErrInvalidWorkflow = errors.New("invalid workflow definition")

// Issue is one problem found in a definition. NodeID is empty for
// workflow-level problems.
type Issue struct {
	NodeID  string `json:"node_id,omitempty"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func (i Issue) String() string {
	var b strings.Builder

	if i.NodeID != "" {
		b.WriteString("node " + i.NodeID + ": ")
	}

	if i.Field != "" {
		b.WriteString(i.Field + ": ")
	}

	b.WriteString(i.Message)

	return b.String()
}

// DefinitionError lists every issue of one definition.
type DefinitionError struct {
	WorkflowID string
	Issues     []Issue
}

func (e *DefinitionError) Error() string {
	messages := make([]string, 0, len(e.Issues))
	for _, issue := range e.Issues {
		messages = append(messages, issue.String())
	}

	return fmt.Sprintf("workflow %s: %d issue(s): %s", e.WorkflowID, len(e.Issues), strings.Join(messages, "; "))
}

func (e *DefinitionError) Unwrap() error {
	return ErrInvalidWorkflow
}

// IssuesOf returns the issues carried by err, if any.
func IssuesOf(err error) []Issue {
	var defErr *DefinitionError
	if errors.As(err, &defErr) {
		return defErr.Issues
	}

	return nil
}

// HandlerLookup resolves node handlers; registry.Registry satisfies it.
type HandlerLookup interface {
	Handler(kind models.NodeKind) (protocol.NodeHandler, error)
}

type Validator struct {
	validate *validator.Validate
	handlers HandlerLookup
	cron     cron.Parser
}

// New returns a Validator. With a nil handlers lookup node configs are not
// checked.
func New(handlers HandlerLookup) *Validator {
	return &Validator{
		validate: validator.New(validator.WithRequiredStructEnabled()),
		handlers: handlers,
		cron:     cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

// Validate returns a *DefinitionError when the definition has issues.
func (v *Validator) Validate(definition *models.WorkflowDefinition) error {
	if definition == nil {
		return fmt.Errorf("%w: definition is nil", ErrInvalidWorkflow)
	}

	var issues []Issue

	issues = append(issues, v.structIssues(definition)...)
	issues = append(issues, v.nodeIssues(definition)...)
	issues = append(issues, v.triggerIssues(definition)...)
	issues = append(issues, v.connectionIssues(definition)...)

	if len(issues) == 0 {
		return nil
	}

	return &DefinitionError{WorkflowID: definition.ID, Issues: issues}
}

func (v *Validator) structIssues(definition *models.WorkflowDefinition) []Issue {
	err := v.validate.Struct(definition)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return []Issue{{Message: err.Error()}}
	}

	issues := make([]Issue, 0, len(validationErrors))
	for _, fieldErr := range validationErrors {
		issues = append(issues, Issue{
			Field:   strings.TrimPrefix(fieldErr.Namespace(), "WorkflowDefinition."),
			Message: "failed on " + fieldErr.Tag(),
		})
	}

	return issues
}

func (v *Validator) nodeIssues(definition *models.WorkflowDefinition) []Issue {
	var issues []Issue

	seen := make(map[string]bool, len(definition.Nodes))

	for _, node := range definition.Nodes {
		if node == nil || node.ID == "" {
			continue
		}

		if seen[node.ID] {
			issues = append(issues, Issue{NodeID: node.ID, Message: "duplicate node id"})
		}

		seen[node.ID] = true

		if node.Type == models.NodeKindTrigger && node.ID != definition.Trigger.EntryNodeID {
			issues = append(issues, Issue{NodeID: node.ID, Message: "trigger node must be the entry node"})
		}

		if v.handlers == nil {
			continue
		}

		handler, err := v.handlers.Handler(node.Type)
		if err != nil {
			issues = append(issues, Issue{NodeID: node.ID, Field: "type", Message: err.Error()})

			continue
		}

		if checker, ok := handler.(protocol.ConfigChecker); ok {
			if err := checker.CheckConfig(node.Config); err != nil {
				issues = append(issues, Issue{NodeID: node.ID, Field: "config", Message: err.Error()})
			}
		}
	}

	return issues
}

func (v *Validator) triggerIssues(definition *models.WorkflowDefinition) []Issue {
	var issues []Issue

	entry := definition.Trigger.EntryNodeID
	if entry != "" && definition.Node(entry) == nil {
		issues = append(issues, Issue{Field: "trigger.entry_node_id", Message: fmt.Sprintf("node %q does not exist", entry)})
	}

	switch definition.Trigger.Type {
	case models.TriggerTypeSchedule:
		expr := definition.CronExpression()
		if expr == "" {
			issues = append(issues, Issue{Field: "trigger.config.cron", Message: "schedule trigger needs a cron expression"})
		} else if _, err := v.cron.Parse(expr); err != nil {
			issues = append(issues, Issue{Field: "trigger.config.cron", Message: err.Error()})
		}
	case models.TriggerTypeWebhook:
		if raw, ok := definition.Trigger.Config["path"]; ok {
			if _, isString := raw.(string); !isString {
				issues = append(issues, Issue{Field: "trigger.config.path", Message: "must be a string"})
			}
		}
	}

	return issues
}

// connectionIssues flags edges the engine could never follow, and fan-outs
// that are guaranteed to be ambiguous.
func (v *Validator) connectionIssues(definition *models.WorkflowDefinition) []Issue {
	var issues []Issue

	for _, conn := range definition.Connections {
		if conn == nil {
			continue
		}

		if conn.From != "" && definition.Node(conn.From) == nil {
			issues = append(issues, Issue{Field: "connections", Message: fmt.Sprintf("edge %s -> %s: source node does not exist", conn.From, conn.To)})
		}

		if conn.To != "" && definition.Node(conn.To) == nil {
			issues = append(issues, Issue{Field: "connections", Message: fmt.Sprintf("edge %s -> %s: target node does not exist", conn.From, conn.To)})
		}
	}

	for _, node := range definition.Nodes {
		if node == nil {
			continue
		}

		unguarded := map[models.ConditionType]int{}

		for _, conn := range definition.Outgoing(node.ID) {
			label := conn.ConditionType()

			if node.Type != models.NodeKindDecision && label != models.ConditionTypeAlways {
				issues = append(issues, Issue{NodeID: node.ID, Message: fmt.Sprintf("edge to %s: only decision nodes have %q edges", conn.To, label)})
			}

			if conn.Expression() == "" {
				unguarded[label]++
			}
		}

		for _, label := range []models.ConditionType{models.ConditionTypeAlways, models.ConditionTypeTrue, models.ConditionTypeFalse} {
			if count := unguarded[label]; count > 1 {
				issues = append(issues, Issue{NodeID: node.ID, Message: fmt.Sprintf("%d unguarded %s edges always make an ambiguous transition", count, describe(label))})
			}
		}
	}

	return issues
}

func describe(label models.ConditionType) string {
	if label == models.ConditionTypeAlways {
		return "unconditional"
	}

	return fmt.Sprintf("%q", string(label))
}

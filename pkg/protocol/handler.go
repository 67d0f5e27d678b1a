// Package protocol defines the contract between the execution engine and node handlers.
package protocol

import (
	"context"

	"github.com/dukex/wayflow/pkg/models"
)

// NodeHandler processes one node kind.
type NodeHandler interface {
	// Kind returns the node kind this handler is registered for.
	Kind() models.NodeKind

	// Process runs the node. The record is read-only: handlers report what
	// they produced through the returned Outcome. ctx carries the node's
	// timeout deadline and must be propagated to any external call.
	Process(ctx context.Context, node *models.WorkflowNode, record *models.ExecutionRecord) (Outcome, error)
}

// Resumer is implemented by handlers whose suspended nodes validate the
// payload that resumes them.
type Resumer interface {
	ValidateResume(node *models.WorkflowNode, payload map[string]any) error
}

// Describer exposes handler metadata for listing endpoints.
type Describer interface {
	Name() string
	Description() string
	Schema() map[string]any
}

// ConfigChecker is implemented by handlers whose node config can be checked
// before a definition is saved.
type ConfigChecker interface {
	CheckConfig(config map[string]any) error
}

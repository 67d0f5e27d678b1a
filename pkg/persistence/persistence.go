// Package persistence provides the storage abstraction for workflow definitions and execution records.
package persistence

import (
	"context"

	"github.com/dukex/wayflow/pkg/models"
)

// DefinitionSource fetches workflow definitions. The engine never writes through it.
type DefinitionSource interface {
	WorkflowByID(ctx context.Context, id string) (*models.WorkflowDefinition, error)
}

// VersionedDefinitionSource can fetch a specific version of a definition.
type VersionedDefinitionSource interface {
	DefinitionSource
	WorkflowVersion(ctx context.Context, id string, version int) (*models.WorkflowDefinition, error)
}

// DefinitionLister lists every known definition.
type DefinitionLister interface {
	Workflows(ctx context.Context) ([]*models.WorkflowDefinition, error)
}

// ListExecutionsOptions filters and pages Executions. Zero values mean no filter.
type ListExecutionsOptions struct {
	WorkflowID string
	Status     models.ExecutionStatus
	Limit      int
	Offset     int
}

// ExecutionStore persists execution records.
type ExecutionStore interface {
	// CreateExecution stores a new record and sets its Version to 1.
	CreateExecution(ctx context.Context, record *models.ExecutionRecord) error

	// UpdateExecution replaces the stored record only if the stored version
	// equals record.Version, then increments record.Version. Otherwise it
	// returns ErrVersionConflict and leaves both copies untouched.
	UpdateExecution(ctx context.Context, record *models.ExecutionRecord) error

	ExecutionByID(ctx context.Context, id string) (*models.ExecutionRecord, error)

	// Executions returns records newest first.
	Executions(ctx context.Context, opts ListExecutionsOptions) ([]*models.ExecutionRecord, error)
}

// Persistence is a complete storage backend.
type Persistence interface {
	DefinitionSource
	DefinitionLister
	ExecutionStore

	SaveWorkflow(ctx context.Context, definition *models.WorkflowDefinition) error
	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dukex/wayflow/pkg/models"
	"github.com/dukex/wayflow/pkg/persistence"
)

// Workflows returns the latest version of every definition.
func (p *Persistence) Workflows(ctx context.Context) ([]*models.WorkflowDefinition, error) {
	query := `
		SELECT DISTINCT ON (id) document
		FROM workflow_definitions
		ORDER BY id, version DESC`

	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		p.logger.ErrorContext(ctx, "Failed to query workflows", "error", err)

		return nil, fmt.Errorf("failed to query workflows: %w", err)
	}
	defer rows.Close()

	definitions := make([]*models.WorkflowDefinition, 0)

	for rows.Next() {
		var document []byte

		err := rows.Scan(&document)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}

		definition, err := decodeDefinition(document)
		if err != nil {
			return nil, err
		}

		definitions = append(definitions, definition)
	}

	return definitions, rows.Err()
}

// WorkflowByID returns the latest version of a definition.
func (p *Persistence) WorkflowByID(ctx context.Context, id string) (*models.WorkflowDefinition, error) {
	query := `
		SELECT document FROM workflow_definitions
		WHERE id = $1
		ORDER BY version DESC
		LIMIT 1`

	return p.queryDefinition(ctx, "WorkflowByID", id, query, id)
}

// WorkflowVersion returns one pinned version of a definition.
func (p *Persistence) WorkflowVersion(ctx context.Context, id string, version int) (*models.WorkflowDefinition, error) {
	query := `SELECT document FROM workflow_definitions WHERE id = $1 AND version = $2`

	return p.queryDefinition(ctx, "WorkflowVersion", id, query, id, version)
}

// SaveWorkflow stores the definition under its version. A zero version is
// assigned the next free one; re-saving an existing version replaces it.
func (p *Persistence) SaveWorkflow(ctx context.Context, definition *models.WorkflowDefinition) error {
	if definition.Version == 0 {
		err := p.db.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(version), 0) + 1 FROM workflow_definitions WHERE id = $1`,
			definition.ID,
		).Scan(&definition.Version)
		if err != nil {
			return persistence.NewWorkflowError("SaveWorkflow", definition.ID, err)
		}
	}

	document, err := json.Marshal(definition)
	if err != nil {
		return fmt.Errorf("failed to marshal workflow %s: %w", definition.ID, err)
	}

	query := `
		INSERT INTO workflow_definitions (id, version, name, document)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id, version) DO UPDATE SET
			name = EXCLUDED.name,
			document = EXCLUDED.document`

	_, err = p.db.ExecContext(ctx, query, definition.ID, definition.Version, definition.Name, document)
	if err != nil {
		p.logger.ErrorContext(ctx, "Failed to save workflow", "workflow_id", definition.ID, "error", err)

		return persistence.NewWorkflowError("SaveWorkflow", definition.ID, err)
	}

	return nil
}

func (p *Persistence) queryDefinition(ctx context.Context, op, id, query string, args ...any) (*models.WorkflowDefinition, error) {
	var document []byte

	err := p.db.QueryRowContext(ctx, query, args...).Scan(&document)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewWorkflowError(op, id, persistence.ErrWorkflowNotFound)
		}

		return nil, persistence.NewWorkflowError(op, id, err)
	}

	return decodeDefinition(document)
}

func decodeDefinition(document []byte) (*models.WorkflowDefinition, error) {
	var definition models.WorkflowDefinition

	err := json.Unmarshal(document, &definition)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal workflow: %w", err)
	}

	return &definition, nil
}

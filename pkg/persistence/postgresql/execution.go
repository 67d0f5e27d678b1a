package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dukex/wayflow/pkg/models"
	"github.com/dukex/wayflow/pkg/persistence"
	"github.com/lib/pq"
)

const uniqueViolation = "23505"

// CreateExecution inserts a new record with version 1.
func (p *Persistence) CreateExecution(ctx context.Context, record *models.ExecutionRecord) error {
	record.Version = 1
	record.UpdatedAt = time.Now().UTC()

	document, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal execution %s: %w", record.ID, err)
	}

	query := `
		INSERT INTO executions (id, workflow_id, status, version, started_at, finished_at, updated_at, document)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err = p.db.ExecContext(ctx, query,
		record.ID, record.WorkflowID, record.Status, record.Version,
		record.StartedAt, record.FinishedAt, record.UpdatedAt, document,
	)
	if err != nil {
		record.Version = 0

		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return persistence.NewExecutionError("CreateExecution", record.ID, persistence.ErrExecutionAlreadyExists)
		}

		return persistence.NewExecutionError("CreateExecution", record.ID, err)
	}

	return nil
}

// UpdateExecution replaces the record with `WHERE version = $n`.
func (p *Persistence) UpdateExecution(ctx context.Context, record *models.ExecutionRecord) error {
	next := *record
	next.Version = record.Version + 1
	next.UpdatedAt = time.Now().UTC()

	document, err := json.Marshal(&next)
	if err != nil {
		return fmt.Errorf("failed to marshal execution %s: %w", record.ID, err)
	}

	query := `
		UPDATE executions SET
			status = $3, version = $4, finished_at = $5, updated_at = $6, document = $7
		WHERE id = $1 AND version = $2`

	result, err := p.db.ExecContext(ctx, query,
		record.ID, record.Version,
		next.Status, next.Version, next.FinishedAt, next.UpdatedAt, document,
	)
	if err != nil {
		return persistence.NewExecutionError("UpdateExecution", record.ID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewExecutionError("UpdateExecution", record.ID, err)
	}

	if affected == 0 {
		var exists bool

		err := p.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM executions WHERE id = $1)`, record.ID).Scan(&exists)
		if err != nil {
			return persistence.NewExecutionError("UpdateExecution", record.ID, err)
		}

		if !exists {
			return persistence.NewExecutionError("UpdateExecution", record.ID, persistence.ErrExecutionNotFound)
		}

		return persistence.NewExecutionError("UpdateExecution", record.ID, persistence.ErrVersionConflict)
	}

	record.Version = next.Version
	record.UpdatedAt = next.UpdatedAt

	return nil
}

// ExecutionByID loads one record.
func (p *Persistence) ExecutionByID(ctx context.Context, id string) (*models.ExecutionRecord, error) {
	var document []byte

	err := p.db.QueryRowContext(ctx, `SELECT document FROM executions WHERE id = $1`, id).Scan(&document)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewExecutionError("ExecutionByID", id, persistence.ErrExecutionNotFound)
		}

		return nil, persistence.NewExecutionError("ExecutionByID", id, err)
	}

	return decodeExecution(document)
}

// Executions pushes filters and paging down to SQL.
func (p *Persistence) Executions(ctx context.Context, opts persistence.ListExecutionsOptions) ([]*models.ExecutionRecord, error) {
	var (
		where []string
		args  []any
	)

	if opts.WorkflowID != "" {
		args = append(args, opts.WorkflowID)
		where = append(where, fmt.Sprintf("workflow_id = $%d", len(args)))
	}

	if opts.Status != "" {
		args = append(args, opts.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}

	query := "SELECT document FROM executions"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}

	query += " ORDER BY started_at DESC, id DESC"

	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		p.logger.ErrorContext(ctx, "Failed to query executions", "error", err)

		return nil, fmt.Errorf("failed to query executions: %w", err)
	}
	defer rows.Close()

	records := make([]*models.ExecutionRecord, 0)

	for rows.Next() {
		var document []byte

		err := rows.Scan(&document)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}

		record, err := decodeExecution(document)
		if err != nil {
			return nil, err
		}

		records = append(records, record)
	}

	return records, rows.Err()
}

func decodeExecution(document []byte) (*models.ExecutionRecord, error) {
	var record models.ExecutionRecord

	err := json.Unmarshal(document, &record)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal execution: %w", err)
	}

	return &record, nil
}

package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dukex/wayflow/pkg/models"
	"github.com/dukex/wayflow/pkg/persistence"
)

func (fp *Persistence) executionPath(id string) string {
	return filepath.Join(fp.root, executionsDir, id+".json")
}

// CreateExecution writes a new execution document.
func (fp *Persistence) CreateExecution(_ context.Context, record *models.ExecutionRecord) error {
	err := validateID(record.ID)
	if err != nil {
		return persistence.NewExecutionError("CreateExecution", record.ID, err)
	}

	fp.mu.Lock()
	defer fp.mu.Unlock()

	if _, err := os.Stat(fp.executionPath(record.ID)); err == nil {
		return persistence.NewExecutionError("CreateExecution", record.ID, persistence.ErrExecutionAlreadyExists)
	}

	record.Version = 1
	record.UpdatedAt = time.Now().UTC()

	return fp.writeExecution(record)
}

// UpdateExecution replaces the document when its stored version matches record.Version.
func (fp *Persistence) UpdateExecution(_ context.Context, record *models.ExecutionRecord) error {
	err := validateID(record.ID)
	if err != nil {
		return persistence.NewExecutionError("UpdateExecution", record.ID, err)
	}

	fp.mu.Lock()
	defer fp.mu.Unlock()

	stored, err := fp.readExecution(record.ID)
	if err != nil {
		return persistence.NewExecutionError("UpdateExecution", record.ID, err)
	}

	if stored.Version != record.Version {
		return persistence.NewExecutionError("UpdateExecution", record.ID, persistence.ErrVersionConflict)
	}

	next := *record
	next.Version = record.Version + 1
	next.UpdatedAt = time.Now().UTC()

	err = fp.writeExecution(&next)
	if err != nil {
		return err
	}

	record.Version = next.Version
	record.UpdatedAt = next.UpdatedAt

	return nil
}

// ExecutionByID reads one execution document.
func (fp *Persistence) ExecutionByID(_ context.Context, id string) (*models.ExecutionRecord, error) {
	err := validateID(id)
	if err != nil {
		return nil, persistence.NewExecutionError("ExecutionByID", id, err)
	}

	record, err := fp.readExecution(id)
	if err != nil {
		return nil, persistence.NewExecutionError("ExecutionByID", id, err)
	}

	return record, nil
}

// Executions loads every document and filters in memory.
func (fp *Persistence) Executions(_ context.Context, opts persistence.ListExecutionsOptions) ([]*models.ExecutionRecord, error) {
	dir := filepath.Join(fp.root, executionsDir)

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []*models.ExecutionRecord{}, nil
		}

		return nil, fmt.Errorf("failed to read executions directory: %w", err)
	}

	records := make([]*models.ExecutionRecord, 0, len(entries))

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") || strings.HasPrefix(name, ".") {
			continue
		}

		record, err := fp.readExecution(strings.TrimSuffix(name, ".json"))
		if err != nil {
			// skip unreadable documents
			continue
		}

		records = append(records, record)
	}

	return persistence.ApplyListOptions(records, opts), nil
}

func (fp *Persistence) readExecution(id string) (*models.ExecutionRecord, error) {
	data, err := os.ReadFile(fp.executionPath(id)) // #nosec G304 -- id is validated
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.ErrExecutionNotFound
		}

		return nil, fmt.Errorf("failed to read execution %s: %w", id, err)
	}

	var record models.ExecutionRecord

	err = json.Unmarshal(data, &record)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal execution %s: %w", id, err)
	}

	return &record, nil
}

func (fp *Persistence) writeExecution(record *models.ExecutionRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal execution %s: %w", record.ID, err)
	}

	return writeAtomic(fp.executionPath(record.ID), data)
}

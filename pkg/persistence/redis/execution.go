package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dukex/wayflow/pkg/models"
	"github.com/dukex/wayflow/pkg/persistence"
	"github.com/redis/go-redis/v9"
)

// CreateExecution stores a new record with version 1 and indexes it. The
// document and its index entry are written in one MULTI under WATCH.
func (p *Persistence) CreateExecution(ctx context.Context, record *models.ExecutionRecord) error {
	key := p.executionKey(record.ID)

	record.Version = 1
	record.UpdatedAt = time.Now().UTC()

	document, err := json.Marshal(record)
	if err != nil {
		record.Version = 0

		return fmt.Errorf("failed to marshal execution %s: %w", record.ID, err)
	}

	err = p.client.Watch(ctx, func(tx *redis.Tx) error {
		exists, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}

		if exists > 0 {
			return persistence.ErrExecutionAlreadyExists
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, document, 0)
			pipe.ZAdd(ctx, p.executionsIndexKey(), redis.Z{
				Score:  float64(record.StartedAt.UnixNano()),
				Member: record.ID,
			})

			return nil
		})

		return err
	}, key)
	if err != nil {
		record.Version = 0

		if errors.Is(err, redis.TxFailedErr) {
			err = persistence.ErrExecutionAlreadyExists
		}

		return persistence.NewExecutionError("CreateExecution", record.ID, err)
	}

	return nil
}

// UpdateExecution replaces the document under WATCH when the stored version
// matches record.Version.
func (p *Persistence) UpdateExecution(ctx context.Context, record *models.ExecutionRecord) error {
	key := p.executionKey(record.ID)

	next := *record
	next.Version = record.Version + 1
	next.UpdatedAt = time.Now().UTC()

	document, err := json.Marshal(&next)
	if err != nil {
		return fmt.Errorf("failed to marshal execution %s: %w", record.ID, err)
	}

	err = p.client.Watch(ctx, func(tx *redis.Tx) error {
		stored, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return persistence.ErrExecutionNotFound
			}

			return err
		}

		var current struct {
			Version int64 `json:"version"`
		}

		err = json.Unmarshal(stored, &current)
		if err != nil {
			return fmt.Errorf("failed to unmarshal execution %s: %w", record.ID, err)
		}

		if current.Version != record.Version {
			return persistence.ErrVersionConflict
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, document, 0)

			return nil
		})

		return err
	}, key)
	if err != nil {
		if errors.Is(err, redis.TxFailedErr) {
			err = persistence.ErrVersionConflict
		}

		return persistence.NewExecutionError("UpdateExecution", record.ID, err)
	}

	record.Version = next.Version
	record.UpdatedAt = next.UpdatedAt

	return nil
}

// ExecutionByID loads one record.
func (p *Persistence) ExecutionByID(ctx context.Context, id string) (*models.ExecutionRecord, error) {
	document, err := p.client.Get(ctx, p.executionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, persistence.NewExecutionError("ExecutionByID", id, persistence.ErrExecutionNotFound)
		}

		return nil, persistence.NewExecutionError("ExecutionByID", id, err)
	}

	var record models.ExecutionRecord

	err = json.Unmarshal(document, &record)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal execution %s: %w", id, err)
	}

	return &record, nil
}

// Executions reads the index newest first and filters in memory.
func (p *Persistence) Executions(ctx context.Context, opts persistence.ListExecutionsOptions) ([]*models.ExecutionRecord, error) {
	ids, err := p.client.ZRevRange(ctx, p.executionsIndexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read execution index: %w", err)
	}

	if len(ids) == 0 {
		return []*models.ExecutionRecord{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = p.executionKey(id)
	}

	documents, err := p.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load executions: %w", err)
	}

	records := make([]*models.ExecutionRecord, 0, len(documents))

	for i, document := range documents {
		raw, ok := document.(string)
		if !ok {
			continue
		}

		var record models.ExecutionRecord

		err := json.Unmarshal([]byte(raw), &record)
		if err != nil {
			p.logger.WarnContext(ctx, "Skipping unreadable execution", "execution_id", ids[i], "error", err)

			continue
		}

		records = append(records, &record)
	}

	return persistence.ApplyListOptions(records, opts), nil
}

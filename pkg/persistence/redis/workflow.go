package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/dukex/wayflow/pkg/models"
	"github.com/dukex/wayflow/pkg/persistence"
	"github.com/redis/go-redis/v9"
)

// Workflows returns the latest version of every definition, sorted by id.
func (p *Persistence) Workflows(ctx context.Context) ([]*models.WorkflowDefinition, error) {
	documents, err := p.client.HGetAll(ctx, p.workflowsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	definitions := make([]*models.WorkflowDefinition, 0, len(documents))

	for id, document := range documents {
		var definition models.WorkflowDefinition

		err := json.Unmarshal([]byte(document), &definition)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal workflow %s: %w", id, err)
		}

		definitions = append(definitions, &definition)
	}

	sort.Slice(definitions, func(i, j int) bool { return definitions[i].ID < definitions[j].ID })

	return definitions, nil
}

// WorkflowByID returns the latest version of a definition.
func (p *Persistence) WorkflowByID(ctx context.Context, id string) (*models.WorkflowDefinition, error) {
	document, err := p.client.HGet(ctx, p.workflowsKey(), id).Bytes()

	return decodeDefinition("WorkflowByID", id, document, err)
}

// WorkflowVersion returns one pinned version of a definition.
func (p *Persistence) WorkflowVersion(ctx context.Context, id string, version int) (*models.WorkflowDefinition, error) {
	document, err := p.client.Get(ctx, p.workflowVersionKey(id, version)).Bytes()

	return decodeDefinition("WorkflowVersion", id, document, err)
}

// SaveWorkflow stores the definition as the latest version and under its
// own version key. A zero version is assigned latest+1.
func (p *Persistence) SaveWorkflow(ctx context.Context, definition *models.WorkflowDefinition) error {
	if definition.Version == 0 {
		latest, err := p.WorkflowByID(ctx, definition.ID)

		switch {
		case err == nil:
			definition.Version = latest.Version + 1
		case persistence.IsWorkflowNotFound(err):
			definition.Version = 1
		default:
			return err
		}
	}

	document, err := json.Marshal(definition)
	if err != nil {
		return fmt.Errorf("failed to marshal workflow %s: %w", definition.ID, err)
	}

	_, err = p.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, p.workflowsKey(), definition.ID, document)
		pipe.Set(ctx, p.workflowVersionKey(definition.ID, definition.Version), document, 0)

		return nil
	})
	if err != nil {
		return persistence.NewWorkflowError("SaveWorkflow", definition.ID, err)
	}

	return nil
}

func decodeDefinition(op, id string, document []byte, err error) (*models.WorkflowDefinition, error) {
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, persistence.NewWorkflowError(op, id, persistence.ErrWorkflowNotFound)
		}

		return nil, persistence.NewWorkflowError(op, id, err)
	}

	var definition models.WorkflowDefinition

	err = json.Unmarshal(document, &definition)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal workflow %s: %w", id, err)
	}

	return &definition, nil
}

package scheduler

import (
	"context"
	"fmt"

	"github.com/dukex/wayflow/pkg/eventbus"
	"github.com/dukex/wayflow/pkg/events"
	"github.com/dukex/wayflow/pkg/models"
)

// Dispatcher hands a scheduled start to whatever runs executions.
type Dispatcher interface {
	Dispatch(ctx context.Context, workflowID string, input models.TriggerInput) error
}

// Starter is the slice of the engine DirectDispatcher needs.
type Starter interface {
	StartExecution(ctx context.Context, workflowID string, input models.TriggerInput) (*models.ExecutionRecord, error)
}

// DirectDispatcher runs the execution in-process.
type DirectDispatcher struct {
	starter Starter
}

func NewDirectDispatcher(starter Starter) *DirectDispatcher {
	return &DirectDispatcher{starter: starter}
}

// Dispatch starts the execution. A run that ends Failed is not an error here;
// the failure is already recorded on the execution.
func (d *DirectDispatcher) Dispatch(ctx context.Context, workflowID string, input models.TriggerInput) error {
	record, err := d.starter.StartExecution(ctx, workflowID, input)
	if err != nil && record == nil {
		return err
	}

	return nil
}

// QueueDispatcher publishes an execution request for the workers.
type QueueDispatcher struct {
	publisher eventbus.EventPublisher
}

func NewQueueDispatcher(publisher eventbus.EventPublisher) *QueueDispatcher {
	return &QueueDispatcher{publisher: publisher}
}

func (d *QueueDispatcher) Dispatch(ctx context.Context, workflowID string, input models.TriggerInput) error {
	err := d.publisher.Publish(ctx, workflowID, events.NewExecutionRequested(workflowID, input))
	if err != nil {
		return fmt.Errorf("failed to publish execution request for %s: %w", workflowID, err)
	}

	return nil
}

// Resume publishes a resume request keyed by execution so a record's resumes
// stay ordered on one partition.
func (d *QueueDispatcher) Resume(ctx context.Context, workflowID, executionID string, payload map[string]any) error {
	event := events.NewExecutionResumeRequested(workflowID, executionID, payload)

	err := d.publisher.Publish(ctx, executionID, event)
	if err != nil {
		return fmt.Errorf("failed to publish resume request for %s: %w", executionID, err)
	}

	return nil
}

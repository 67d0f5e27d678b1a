// Package worker consumes execution requests from the event bus and drives
// the engine, so that starts and resumes survive API restarts.
package worker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/wayflow/pkg/engine"
	"github.com/dukex/wayflow/pkg/eventbus"
	"github.com/dukex/wayflow/pkg/events"
	"github.com/dukex/wayflow/pkg/models"
)

// Runner is the slice of the engine a worker needs.
type Runner interface {
	StartExecution(ctx context.Context, workflowID string, input models.TriggerInput) (*models.ExecutionRecord, error)
	ResumeExecution(ctx context.Context, executionID string, payload map[string]any) (*engine.ResumeResult, error)
}

type Worker struct {
	id     string
	runner Runner
	bus    eventbus.EventSubscriber
	logger *slog.Logger
}

func New(id string, runner Runner, bus eventbus.EventSubscriber, logger *slog.Logger) *Worker {
	return &Worker{
		id:     id,
		runner: runner,
		bus:    bus,
		logger: logger.With("module", "worker", "worker_id", id),
	}
}

// Start registers the request handlers and subscribes. It returns once the
// subscription is running; handling stops when ctx is cancelled.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.InfoContext(ctx, "Starting worker")

	err := w.bus.Handle(events.ExecutionRequestedEvent, w.handleExecutionRequested)
	if err != nil {
		return fmt.Errorf("failed to register %s handler: %w", events.ExecutionRequestedEvent, err)
	}

	err = w.bus.Handle(events.ExecutionResumeRequestedEvent, w.handleResumeRequested)
	if err != nil {
		return fmt.Errorf("failed to register %s handler: %w", events.ExecutionResumeRequestedEvent, err)
	}

	err = w.bus.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	w.logger.InfoContext(ctx, "Worker started")

	return nil
}

func (w *Worker) handleExecutionRequested(ctx context.Context, event any) error {
	request, ok := event.(*events.ExecutionRequested)
	if !ok {
		w.logger.ErrorContext(ctx, "Invalid event type for ExecutionRequested", "type", fmt.Sprintf("%T", event))

		return nil
	}

	logger := w.logger.With("workflow_id", request.WorkflowID, "event_id", request.ID)
	logger.InfoContext(ctx, "Processing execution request", "trigger", request.Trigger.Source)

	record, err := w.runner.StartExecution(ctx, request.WorkflowID, request.Trigger)

	return w.settle(ctx, logger, record, err)
}

func (w *Worker) handleResumeRequested(ctx context.Context, event any) error {
	request, ok := event.(*events.ExecutionResumeRequested)
	if !ok {
		w.logger.ErrorContext(ctx, "Invalid event type for ExecutionResumeRequested", "type", fmt.Sprintf("%T", event))

		return nil
	}

	logger := w.logger.With("workflow_id", request.WorkflowID, "execution_id", request.ExecutionID, "event_id", request.ID)
	logger.InfoContext(ctx, "Processing resume request")

	result, err := w.runner.ResumeExecution(ctx, request.ExecutionID, request.Payload)

	var record *models.ExecutionRecord
	if result != nil {
		record = result.Record
	}

	return w.settle(ctx, logger, record, err)
}

// settle decides whether a request is done. Rejected requests and failed
// runs are acknowledged; anything else is returned for redelivery.
func (w *Worker) settle(ctx context.Context, logger *slog.Logger, record *models.ExecutionRecord, err error) error {
	switch {
	case err == nil:
		logger.InfoContext(ctx, "Request processed", "execution_id", record.ID, "status", record.Status)

		return nil
	case engine.IsClientError(err):
		logger.WarnContext(ctx, "Request rejected", "error", err)

		return nil
	case engine.IsRunFailure(err):
		logger.WarnContext(ctx, "Execution failed", "execution_id", record.ID, "error", err)

		return nil
	default:
		logger.ErrorContext(ctx, "Request failed, will be redelivered", "error", err)

		return err
	}
}

package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dukex/wayflow/pkg/events"
	"github.com/dukex/wayflow/pkg/models"
	"github.com/dukex/wayflow/pkg/otelhelper"
	"github.com/dukex/wayflow/pkg/persistence"
	"github.com/dukex/wayflow/pkg/protocol"
	"go.opentelemetry.io/otel/attribute"
)

// errCancelled signals that a concurrent Cancel won the last write.
type errCancelled struct {
	record *models.ExecutionRecord
}

func (e errCancelled) Error() string {
	return "execution cancelled"
}

// advance processes nodes starting at nodeID until the record suspends,
// terminates or fails. The record is persisted after every node transition.
func (e *Engine) advance(ctx context.Context, definition *models.WorkflowDefinition, record *models.ExecutionRecord, nodeID string) (*models.ExecutionRecord, error) {
	for visits := 0; ; visits++ {
		if visits >= e.maxSteps {
			return e.fail(ctx, record, "advance", nodeID,
				fmt.Errorf("%w: more than %d node visits", ErrStepLimitExceeded, e.maxSteps))
		}

		node := definition.Node(nodeID)
		step := record.Step(nodeID)

		if node == nil || step == nil {
			return e.fail(ctx, record, "advance", nodeID,
				fmt.Errorf("%w: node %s does not exist", ErrInvalidDefinition, nodeID))
		}

		next, stop, err := e.visit(ctx, definition, record, node, step)
		if stop {
			if cancelled, ok := asCancelled(err); ok {
				return cancelled, nil
			}

			return record, err
		}

		if next == "" {
			return e.succeed(ctx, record)
		}

		nodeID = next
	}
}

// visit runs one node. It returns the next node id, or stop=true when the
// record must not advance further.
func (e *Engine) visit(ctx context.Context, definition *models.WorkflowDefinition, record *models.ExecutionRecord, node *models.WorkflowNode, step *models.ExecutionNode) (string, bool, error) {
	logger := e.logger.With("execution_id", record.ID, "workflow_id", record.WorkflowID, "node_id", node.ID)

	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "engine.node",
		attribute.String(otelhelper.ExecutionIDKey, record.ID),
		attribute.String(otelhelper.NodeIDKey, node.ID),
		attribute.String(otelhelper.NodeTypeKey, string(node.Type)),
	)
	defer span.End()

	handler, err := e.registry.Handler(node.Type)
	if err != nil {
		otelhelper.SetError(span, err)

		now := e.now()
		step.Status = models.NodeStatusFailed
		step.StartedAt = &now
		step.FinishedAt = &now
		step.Error = err.Error()
		e.publish(ctx, events.NewNodeTransition(events.NodeFailedEvent, record, step))
		logger.ErrorContext(ctx, "No handler for node", "node_type", node.Type, "error", err)

		failed, err := e.fail(ctx, record, "advance", node.ID, fmt.Errorf("%w: %w", ErrHandlerFailure, err))

		return "", true, stopErr(failed, record, err)
	}

	started := e.now()
	step.Status = models.NodeStatusRunning
	step.StartedAt = &started
	step.FinishedAt = nil
	step.Error = ""
	step.Output = nil
	step.Attempts = 0
	record.Status = models.ExecutionStatusRunning

	err = e.save(ctx, record)
	if err != nil {
		return "", true, err
	}

	logger.DebugContext(ctx, "Processing node", "node_type", node.Type)

	clock := time.Now()
	outcome, attempts, procErr := e.invoke(ctx, handler, node, record)
	elapsed := time.Since(clock)

	finished := e.now()
	step.Attempts = attempts
	step.FinishedAt = &finished

	switch {
	case procErr != nil:
		otelhelper.SetError(span, procErr, attribute.Int(otelhelper.AttemptKey, attempts))

		step.Status = models.NodeStatusFailed
		step.Error = procErr.Error()
		e.metrics.NodeProcessed(string(node.Type), string(step.Status), elapsed)
		e.publish(ctx, events.NewNodeTransition(events.NodeFailedEvent, record, step))

		if !node.ContinueOnError() {
			logger.ErrorContext(ctx, "Node failed", "attempts", attempts, "error", procErr)

			failed, err := e.fail(ctx, record, "advance", node.ID, fmt.Errorf("%w: %w", ErrHandlerFailure, procErr))

			return "", true, stopErr(failed, record, err)
		}

		logger.WarnContext(ctx, "Node failed, continuing", "attempts", attempts, "error", procErr)

		outcome = protocol.Completed(nil)
	case outcome.IsSuspended():
		step.Status = models.NodeStatusPending
		step.FinishedAt = nil
		step.Output = outcome.Output
		record.Status = models.ExecutionStatusSuspended
		e.metrics.NodeProcessed(string(node.Type), string(step.Status), elapsed)

		err := e.save(ctx, record)
		if err != nil {
			return "", true, err
		}

		e.metrics.ExecutionFinished(record.WorkflowID, string(record.Status))
		e.publish(ctx, events.NewExecutionLifecycle(events.ExecutionSuspendedEvent, record, node.ID))
		logger.InfoContext(ctx, "Execution suspended")

		return "", true, nil
	default:
		step.Status = models.NodeStatusSucceeded
		step.Output = outcome.Output
		e.metrics.NodeProcessed(string(node.Type), string(step.Status), elapsed)
		e.publish(ctx, events.NewNodeTransition(events.NodeCompletedEvent, record, step))
		logger.DebugContext(ctx, "Node completed", "attempts", attempts)
	}

	next, err := e.selectNext(definition, record, node, outcome)
	if err != nil {
		failed, err := e.fail(ctx, record, "advance", node.ID, err)

		return "", true, stopErr(failed, record, err)
	}

	if next == "" {
		return "", false, nil
	}

	err = e.save(ctx, record)
	if err != nil {
		return "", true, err
	}

	return next, false, nil
}

func asCancelled(err error) (*models.ExecutionRecord, bool) {
	var cancelled errCancelled
	if errors.As(err, &cancelled) {
		return cancelled.record, true
	}

	return nil, false
}

// stopErr folds a cancellation observed by fail into errCancelled.
func stopErr(result, record *models.ExecutionRecord, err error) error {
	if err == nil && result != record {
		return errCancelled{record: result}
	}

	return err
}

// save writes the record conditionally. Losing to a Cancel yields
// errCancelled carrying the stored record.
func (e *Engine) save(ctx context.Context, record *models.ExecutionRecord) error {
	err := e.store.UpdateExecution(ctx, record)
	if err == nil {
		return nil
	}

	if !persistence.IsVersionConflict(err) {
		return fmt.Errorf("failed to update execution %s: %w", record.ID, err)
	}

	stored, loadErr := e.store.ExecutionByID(ctx, record.ID)
	if loadErr == nil && stored.Status == models.ExecutionStatusCancelled {
		e.logger.InfoContext(ctx, "Execution was cancelled, stopping", "execution_id", record.ID)

		return errCancelled{record: stored}
	}

	return fmt.Errorf("%w: %s", ErrConcurrentModification, record.ID)
}

func (e *Engine) succeed(ctx context.Context, record *models.ExecutionRecord) (*models.ExecutionRecord, error) {
	now := e.now()
	record.Status = models.ExecutionStatusSucceeded
	record.FinishedAt = &now

	err := e.save(ctx, record)
	if err != nil {
		if cancelled, ok := asCancelled(err); ok {
			return cancelled, nil
		}

		return record, err
	}

	e.metrics.ExecutionFinished(record.WorkflowID, string(record.Status))
	e.publish(ctx, events.NewExecutionLifecycle(events.ExecutionSucceededEvent, record, ""))
	e.logger.InfoContext(ctx, "Execution succeeded", "execution_id", record.ID, "workflow_id", record.WorkflowID)

	return record, nil
}

// fail halts the record Failed and returns it with an *ExecutionError. When
// a concurrent Cancel already won, the cancelled record is returned with nil.
func (e *Engine) fail(ctx context.Context, record *models.ExecutionRecord, op, nodeID string, cause error) (*models.ExecutionRecord, error) {
	now := e.now()
	record.Status = models.ExecutionStatusFailed
	record.Error = cause.Error()
	record.FinishedAt = &now

	err := e.save(ctx, record)
	if err != nil {
		if cancelled, ok := asCancelled(err); ok {
			return cancelled, nil
		}

		return record, err
	}

	e.metrics.ExecutionFinished(record.WorkflowID, string(record.Status))
	e.publish(ctx, events.NewExecutionLifecycle(events.ExecutionFailedEvent, record, nodeID))
	e.logger.ErrorContext(ctx, "Execution failed",
		"execution_id", record.ID,
		"workflow_id", record.WorkflowID,
		"node_id", nodeID,
		"error", cause,
	)

	return record, &ExecutionError{
		Op:          op,
		ExecutionID: record.ID,
		NodeID:      nodeID,
		Err:         cause,
	}
}

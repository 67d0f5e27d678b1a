// Package engine drives execution records through workflow definition graphs.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"time"

	"github.com/dukex/wayflow/pkg/conditions"
	"github.com/dukex/wayflow/pkg/eventbus"
	"github.com/dukex/wayflow/pkg/events"
	"github.com/dukex/wayflow/pkg/metrics"
	"github.com/dukex/wayflow/pkg/models"
	"github.com/dukex/wayflow/pkg/otelhelper"
	"github.com/dukex/wayflow/pkg/persistence"
	"github.com/dukex/wayflow/pkg/protocol"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// HandlerRegistry resolves the handler of a node kind.
type HandlerRegistry interface {
	Handler(kind models.NodeKind) (protocol.NodeHandler, error)
}

// Engine runs executions. One record is advanced by one goroutine at a time;
// distinct records may run concurrently and share only the store.
type Engine struct {
	definitions persistence.DefinitionSource
	store       persistence.ExecutionStore
	registry    HandlerRegistry

	evaluator conditions.Evaluator
	routes    RouteMatcher
	publisher eventbus.EventPublisher
	metrics   *metrics.Metrics
	tracer    trace.Tracer
	logger    *slog.Logger
	now       func() time.Time
	newID     func() string
	maxSteps  int
}

func New(definitions persistence.DefinitionSource, store persistence.ExecutionStore, registry HandlerRegistry, opts ...Option) *Engine {
	e := &Engine{
		definitions: definitions,
		store:       store,
		registry:    registry,
		evaluator:   conditions.NewTemplateEvaluator(),
		tracer:      otel.Tracer("github.com/dukex/wayflow/pkg/engine"),
		logger:      slog.Default(),
		now:         func() time.Time { return time.Now().UTC() },
		newID:       uuid.NewString,
		maxSteps:    DefaultMaxSteps,
	}

	for _, opt := range opts {
		opt(e)
	}

	e.logger = e.logger.With("module", "engine")

	return e
}

// StartExecution creates a record for the workflow and advances it from the
// entry node. The returned record may already be Suspended. When the run
// halts Failed the persisted record is returned with an *ExecutionError.
func (e *Engine) StartExecution(ctx context.Context, workflowID string, input models.TriggerInput) (*models.ExecutionRecord, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "engine.start",
		attribute.String(otelhelper.WorkflowIDKey, workflowID),
	)
	defer span.End()

	definition, err := e.definitions.WorkflowByID(ctx, workflowID)
	if err != nil {
		if persistence.IsWorkflowNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrDefinitionNotFound, workflowID)
		}

		otelhelper.SetError(span, err)

		return nil, fmt.Errorf("failed to load workflow %s: %w", workflowID, err)
	}

	if input.Source == "" {
		input.Source = models.TriggerTypeManual
	}

	err = e.validateTrigger(definition, input)
	if err != nil {
		return nil, err
	}

	record := e.newRecord(definition, input)
	span.SetAttributes(attribute.String(otelhelper.ExecutionIDKey, record.ID))

	err = e.store.CreateExecution(ctx, record)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, fmt.Errorf("failed to create execution: %w", err)
	}

	e.metrics.ExecutionStarted(workflowID)
	e.publish(ctx, events.NewExecutionLifecycle(events.ExecutionStartedEvent, record, definition.Trigger.EntryNodeID))
	e.logger.InfoContext(ctx, "Execution started",
		"execution_id", record.ID,
		"workflow_id", workflowID,
		"trigger", input.Source,
	)

	record, err = e.advance(ctx, definition, record, definition.Trigger.EntryNodeID)
	if err != nil {
		otelhelper.SetError(span, err)
	}

	if record != nil {
		span.SetAttributes(attribute.String(otelhelper.StatusKey, string(record.Status)))
	}

	return record, err
}

// ResumeResult is a resumed record with the node that completed and the
// node selected after it ("" when the run finished there).
type ResumeResult struct {
	Record          *models.ExecutionRecord
	CompletedNodeID string
	NextNodeID      string
}

// ResumeExecution completes the pending step of a Suspended record with
// payload and advances. Concurrent resumes of one record are serialized by
// the store's conditional update; the loser gets ErrConcurrentResumeConflict.
func (e *Engine) ResumeExecution(ctx context.Context, executionID string, payload map[string]any) (*ResumeResult, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "engine.resume",
		attribute.String(otelhelper.ExecutionIDKey, executionID),
	)
	defer span.End()

	record, err := e.loadExecution(ctx, executionID)
	if err != nil {
		return nil, err
	}

	if record.Status != models.ExecutionStatusSuspended {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotSuspended, executionID, record.Status)
	}

	step, ok := record.PendingStep()
	if !ok {
		return nil, fmt.Errorf("%w: %s has no single pending step", ErrNotSuspended, executionID)
	}

	definition, err := e.definitionFor(ctx, record)
	if err != nil {
		return nil, err
	}

	node := definition.Node(step.NodeID)
	if node == nil {
		return nil, fmt.Errorf("%w: pending node %s is not in workflow %s", ErrInvalidDefinition, step.NodeID, record.WorkflowID)
	}

	handler, err := e.registry.Handler(node.Type)
	if err != nil {
		return nil, err
	}

	if resumer, ok := handler.(protocol.Resumer); ok {
		err := resumer.ValidateResume(node, payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidResumePayload, err)
		}
	}

	now := e.now()

	if record.Context == nil {
		record.Context = make(map[string]any, len(payload))
	}

	maps.Copy(record.Context, payload)

	step.Status = models.NodeStatusSucceeded
	step.FinishedAt = &now
	step.Output = maps.Clone(payload)
	record.Status = models.ExecutionStatusRunning

	err = e.store.UpdateExecution(ctx, record)
	if err != nil {
		if persistence.IsVersionConflict(err) {
			e.metrics.ResumeConflict()

			return nil, fmt.Errorf("%w: %s", ErrConcurrentResumeConflict, executionID)
		}

		otelhelper.SetError(span, err)

		return nil, fmt.Errorf("failed to update execution %s: %w", executionID, err)
	}

	e.metrics.ExecutionResumed(record.WorkflowID)
	e.publish(ctx, events.NewExecutionLifecycle(events.ExecutionResumedEvent, record, step.NodeID))
	e.publish(ctx, events.NewNodeTransition(events.NodeCompletedEvent, record, step))
	e.logger.InfoContext(ctx, "Execution resumed",
		"execution_id", record.ID,
		"workflow_id", record.WorkflowID,
		"node_id", step.NodeID,
	)

	result := &ResumeResult{CompletedNodeID: step.NodeID}

	next, err := e.selectNext(definition, record, node, protocol.Completed(payload))
	if err != nil {
		result.Record, err = e.fail(ctx, record, "resume", node.ID, err)

		return result, err
	}

	result.NextNodeID = next

	if next == "" {
		result.Record, err = e.succeed(ctx, record)

		return result, err
	}

	result.Record, err = e.advance(ctx, definition, record, next)
	if err != nil {
		otelhelper.SetError(span, err)
	}

	return result, err
}

// Cancel moves a non-terminal record to Cancelled and marks its active steps
// Cancelled. An in-flight handler is not interrupted; its result is discarded
// because the advancing writer loses the next conditional update.
func (e *Engine) Cancel(ctx context.Context, executionID string) (*models.ExecutionRecord, error) {
	const maxAttempts = 5

	for range maxAttempts {
		record, err := e.loadExecution(ctx, executionID)
		if err != nil {
			return nil, err
		}

		if record.Status.IsTerminal() {
			return nil, fmt.Errorf("%w: %s is %s", ErrNotCancellable, executionID, record.Status)
		}

		now := e.now()

		for _, step := range record.ActiveSteps() {
			step.Status = models.NodeStatusCancelled
			step.FinishedAt = &now
		}

		record.Status = models.ExecutionStatusCancelled
		record.FinishedAt = &now

		err = e.store.UpdateExecution(ctx, record)
		if err == nil {
			e.metrics.ExecutionFinished(record.WorkflowID, string(record.Status))
			e.publish(ctx, events.NewExecutionLifecycle(events.ExecutionCancelledEvent, record, ""))
			e.logger.InfoContext(ctx, "Execution cancelled", "execution_id", record.ID, "workflow_id", record.WorkflowID)

			return record, nil
		}

		if !persistence.IsVersionConflict(err) {
			return nil, fmt.Errorf("failed to cancel execution %s: %w", executionID, err)
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrConcurrentModification, executionID)
}

func (e *Engine) loadExecution(ctx context.Context, executionID string) (*models.ExecutionRecord, error) {
	record, err := e.store.ExecutionByID(ctx, executionID)
	if err != nil {
		if persistence.IsExecutionNotFound(err) || errors.Is(err, persistence.ErrInvalidID) {
			return nil, fmt.Errorf("%w: %s", ErrExecutionNotFound, executionID)
		}

		return nil, fmt.Errorf("failed to load execution %s: %w", executionID, err)
	}

	return record, nil
}

// definitionFor returns the definition version the record was started with
// when the source keeps versions, the current one otherwise.
func (e *Engine) definitionFor(ctx context.Context, record *models.ExecutionRecord) (*models.WorkflowDefinition, error) {
	if versioned, ok := e.definitions.(persistence.VersionedDefinitionSource); ok && record.WorkflowVersion > 0 {
		definition, err := versioned.WorkflowVersion(ctx, record.WorkflowID, record.WorkflowVersion)
		if err == nil {
			return definition, nil
		}

		if !persistence.IsWorkflowNotFound(err) {
			return nil, fmt.Errorf("failed to load workflow %s: %w", record.WorkflowID, err)
		}

		e.logger.WarnContext(ctx, "Pinned workflow version missing, using latest",
			"execution_id", record.ID,
			"workflow_id", record.WorkflowID,
			"version", record.WorkflowVersion,
		)
	}

	definition, err := e.definitions.WorkflowByID(ctx, record.WorkflowID)
	if err != nil {
		if persistence.IsWorkflowNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrDefinitionNotFound, record.WorkflowID)
		}

		return nil, fmt.Errorf("failed to load workflow %s: %w", record.WorkflowID, err)
	}

	return definition, nil
}

func (e *Engine) validateTrigger(definition *models.WorkflowDefinition, input models.TriggerInput) error {
	entryID := definition.Trigger.EntryNodeID
	if entryID == "" || definition.Node(entryID) == nil {
		return fmt.Errorf("%w: entry node %q not found in workflow %s", ErrInvalidTrigger, entryID, definition.ID)
	}

	switch input.Source {
	case models.TriggerTypeManual:
		return nil
	case models.TriggerTypeWebhook:
		if definition.Trigger.Type != models.TriggerTypeWebhook {
			return fmt.Errorf("%w: workflow %s does not accept webhooks", ErrInvalidTrigger, definition.ID)
		}

		if e.routes != nil {
			if !e.routes.Match(definition.ID, input.Path) {
				return fmt.Errorf("%w: no webhook route %q for workflow %s", ErrInvalidTrigger, input.Path, definition.ID)
			}

			return nil
		}

		if normalizePath(definition.WebhookPath()) != normalizePath(input.Path) {
			return fmt.Errorf("%w: webhook path %q does not match workflow %s", ErrInvalidTrigger, input.Path, definition.ID)
		}

		return nil
	case models.TriggerTypeSchedule:
		if definition.Trigger.Type != models.TriggerTypeSchedule {
			return fmt.Errorf("%w: workflow %s is not scheduled", ErrInvalidTrigger, definition.ID)
		}

		return nil
	default:
		return fmt.Errorf("%w: unknown trigger source %q", ErrInvalidTrigger, input.Source)
	}
}

func normalizePath(path string) string {
	return strings.Trim(path, "/")
}

func (e *Engine) newRecord(definition *models.WorkflowDefinition, input models.TriggerInput) *models.ExecutionRecord {
	steps := make([]*models.ExecutionNode, 0, len(definition.Nodes))

	for _, node := range definition.Nodes {
		steps = append(steps, &models.ExecutionNode{
			NodeID: node.ID,
			Name:   node.Name,
			Type:   node.Type,
			Config: maps.Clone(node.Config),
			Status: models.NodeStatusNotStarted,
		})
	}

	seed := maps.Clone(input.Payload)
	if seed == nil {
		seed = map[string]any{}
	}

	return &models.ExecutionRecord{
		ID:              e.newID(),
		WorkflowID:      definition.ID,
		WorkflowVersion: definition.Version,
		WorkflowName:    definition.Name,
		EntryNodeID:     definition.Trigger.EntryNodeID,
		Status:          models.ExecutionStatusPending,
		Trigger:         input.Source,
		StartedAt:       e.now(),
		Context:         seed,
		Steps:           steps,
	}
}

func (e *Engine) publish(ctx context.Context, event eventbus.Event) {
	if e.publisher == nil {
		return
	}

	var workflowID string

	switch ev := event.(type) {
	case *events.ExecutionLifecycle:
		workflowID = ev.WorkflowID
	case *events.NodeTransition:
		workflowID = ev.WorkflowID
	}

	err := e.publisher.Publish(ctx, workflowID, event)
	if err != nil {
		e.logger.WarnContext(ctx, "Failed to publish event", "event_type", event.GetType(), "error", err)
	}
}

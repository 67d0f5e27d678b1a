// Package web provides the HTTP API for triggering, resuming and inspecting executions.
package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukex/wayflow/pkg/engine"
	"github.com/dukex/wayflow/pkg/models"
	"github.com/dukex/wayflow/pkg/persistence"
	"github.com/dukex/wayflow/pkg/protocol"
	"github.com/dukex/wayflow/pkg/registry"
	"github.com/dukex/wayflow/pkg/validation"
	"github.com/dukex/wayflow/pkg/webhook"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
)

// Engine is the slice of engine.Engine the handlers use.
type Engine interface {
	StartExecution(ctx context.Context, workflowID string, input models.TriggerInput) (*models.ExecutionRecord, error)
	ResumeExecution(ctx context.Context, executionID string, payload map[string]any) (*engine.ResumeResult, error)
	Cancel(ctx context.Context, executionID string) (*models.ExecutionRecord, error)
}

// Enqueuer hands triggers and resumes to the workers instead of running them inline.
type Enqueuer interface {
	Dispatch(ctx context.Context, workflowID string, input models.TriggerInput) error
	Resume(ctx context.Context, workflowID, executionID string, payload map[string]any) error
}

type APIHandlers struct {
	engine      Engine
	persistence persistence.Persistence
	routes      *webhook.Table
	linter      *validation.Validator
	registry    *registry.Registry
	validator   *validator.Validate
	enqueuer    Enqueuer
	logger      *slog.Logger
}

func NewAPIHandlers(
	engine Engine,
	persistence persistence.Persistence,
	routes *webhook.Table,
	linter *validation.Validator,
	registry *registry.Registry,
	validator *validator.Validate,
	logger *slog.Logger,
) *APIHandlers {
	return &APIHandlers{
		engine:      engine,
		persistence: persistence,
		routes:      routes,
		linter:      linter,
		registry:    registry,
		validator:   validator,
		logger:      logger.With("module", "web"),
	}
}

// WithEnqueuer enables ?async=true triggers and form submissions.
func (h *APIHandlers) WithEnqueuer(enqueuer Enqueuer) *APIHandlers {
	h.enqueuer = enqueuer

	return h
}

// TriggerExecution handles POST /executions/:workflowId/trigger.
func (h *APIHandlers) TriggerExecution(c fiber.Ctx) error {
	workflowID := c.Params("workflowId")
	if workflowID == "" {
		return badRequest(c, "Workflow ID is required")
	}

	var req TriggerRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	input := models.TriggerInput{Source: models.TriggerTypeManual, Payload: req.Payload}

	return h.start(c, workflowID, input)
}

func (h *APIHandlers) start(c fiber.Ctx, workflowID string, input models.TriggerInput) error {
	if c.Query("async") == "true" && h.enqueuer != nil {
		if _, err := h.persistence.WorkflowByID(c.Context(), workflowID); err != nil {
			return handleError(c, err)
		}

		err := h.enqueuer.Dispatch(c.Context(), workflowID, input)
		if err != nil {
			return internalError(c, err)
		}

		return c.Status(fiber.StatusAccepted).JSON(AcceptedResponse{
			RequestID:  uuid.NewString(),
			WorkflowID: workflowID,
			Status:     "accepted",
		})
	}

	record, err := h.engine.StartExecution(c.Context(), workflowID, input)
	if err != nil && !engine.IsRunFailure(err) {
		return handleError(c, err)
	}

	if err != nil {
		h.logger.WarnContext(c.Context(), "Execution failed", "execution_id", record.ID, "workflow_id", workflowID, "error", err)
	}

	return c.Status(fiber.StatusCreated).JSON(newExecutionResponse(record))
}

// SubmitForm handles PUT /executions/:executionId/form-submit.
func (h *APIHandlers) SubmitForm(c fiber.Ctx) error {
	executionID := c.Params("executionId")
	if executionID == "" {
		return badRequest(c, "Execution ID is required")
	}

	payload := map[string]any{}
	if err := c.Bind().JSON(&payload); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if c.Query("async") == "true" && h.enqueuer != nil {
		return h.enqueueResume(c, executionID, payload)
	}

	result, err := h.engine.ResumeExecution(c.Context(), executionID, payload)
	if err != nil && !engine.IsRunFailure(err) {
		return handleError(c, err)
	}

	c.Set(HeaderExecutionStatus, string(result.Record.Status))
	if result.Record.Error != "" {
		c.Set(HeaderExecutionError, result.Record.Error)
	}

	step := result.Record.Step(result.CompletedNodeID)
	if result.NextNodeID == "" || step == nil {
		return c.JSON(nil)
	}

	return c.JSON(newExecutionNodeResponse(step))
}

func (h *APIHandlers) enqueueResume(c fiber.Ctx, executionID string, payload map[string]any) error {
	record, err := h.persistence.ExecutionByID(c.Context(), executionID)
	if err != nil {
		return handleError(c, err)
	}

	if record.Status != models.ExecutionStatusSuspended {
		return handleError(c, fmt.Errorf("%w: %s is %s", engine.ErrNotSuspended, executionID, record.Status))
	}

	err = h.enqueuer.Resume(c.Context(), record.WorkflowID, executionID, payload)
	if err != nil {
		return internalError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(AcceptedResponse{
		RequestID:   uuid.NewString(),
		WorkflowID:  record.WorkflowID,
		ExecutionID: executionID,
		Status:      "accepted",
	})
}

// GetExecutions handles GET /executions.
func (h *APIHandlers) GetExecutions(c fiber.Ctx) error {
	var query ListExecutionsQuery
	if err := c.Bind().Query(&query); err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	if err := h.validator.Struct(query); err != nil {
		return badRequest(c, err.Error())
	}

	if query.Limit == 0 {
		query.Limit = 50
	}

	records, err := h.persistence.Executions(c.Context(), persistence.ListExecutionsOptions{
		WorkflowID: query.WorkflowID,
		Status:     models.ExecutionStatus(query.Status),
		Limit:      query.Limit,
		Offset:     query.Offset,
	})
	if err != nil {
		return internalError(c, err)
	}

	summaries := make([]models.ExecutionSummary, 0, len(records))
	for _, record := range records {
		summaries = append(summaries, record.Summary())
	}

	return c.JSON(fiber.Map{
		"executions": summaries,
		"pagination": fiber.Map{
			"limit":  query.Limit,
			"offset": query.Offset,
		},
	})
}

// GetExecution handles GET /executions/:id.
func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	record, err := h.persistence.ExecutionByID(c.Context(), id)
	if err != nil {
		if persistence.IsExecutionNotFound(err) || errors.Is(err, persistence.ErrInvalidID) {
			return notFound(c, "Execution not found")
		}

		return internalError(c, err)
	}

	return c.JSON(record)
}

// CancelExecution handles POST /executions/:id/cancel.
func (h *APIHandlers) CancelExecution(c fiber.Ctx) error {
	record, err := h.engine.Cancel(c.Context(), c.Params("id"))
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(newExecutionResponse(record))
}

// GetNodeTypes handles GET /nodes.
func (h *APIHandlers) GetNodeTypes(c fiber.Ctx) error {
	kinds := h.registry.Kinds()
	types := make([]NodeTypeResponse, 0, len(kinds))

	for _, kind := range kinds {
		handler, err := h.registry.Handler(kind)
		if err != nil {
			continue
		}

		response := NodeTypeResponse{Type: kind}

		if describer, ok := handler.(protocol.Describer); ok {
			response.Name = describer.Name()
			response.Description = describer.Description()
			response.Schema = describer.Schema()
		}

		_, response.Resumable = handler.(protocol.Resumer)

		types = append(types, response)
	}

	return c.JSON(types)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	registryCheck, regOk := h.registry.HealthCheck()

	persistenceCheck, persistenceOk := "Persistence is healthy", true
	if err := h.persistence.HealthCheck(c.Context()); err != nil {
		persistenceCheck, persistenceOk = err.Error(), false
	}

	response := healthResponse{
		Status:  "unhealthy",
		Message: "Wayflow API is unhealthy",
		Checkers: map[string]string{
			"registry":    registryCheck,
			"persistence": persistenceCheck,
		},
		Timestamp: time.Now().UTC(),
	}

	httpStatus := http.StatusInternalServerError

	if regOk && persistenceOk {
		response.Status = "healthy"
		response.Message = "Wayflow API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(response)
}

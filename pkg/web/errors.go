package web

import (
	"errors"

	"github.com/dukex/wayflow/pkg/engine"
	"github.com/dukex/wayflow/pkg/persistence"
	"github.com/dukex/wayflow/pkg/validation"
	"github.com/dukex/wayflow/pkg/webhook"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType("not_found").
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func conflict(c fiber.Ctx, kind, detail string) error {
	problem := problems.NewStatusProblem(409).
		WithInstance(c.Path()).
		WithType(kind).
		WithDetail(detail)

	return c.Status(fiber.StatusConflict).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleError maps engine, persistence and validation errors to problems.
func handleError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, engine.ErrDefinitionNotFound), persistence.IsWorkflowNotFound(err):
		problem := problems.NewStatusProblem(404).
			WithInstance(c.Path()).
			WithType("workflow_not_found").
			WithDetail(err.Error())

		return c.Status(fiber.StatusNotFound).JSON(problem)

	case errors.Is(err, engine.ErrExecutionNotFound), persistence.IsExecutionNotFound(err):
		problem := problems.NewStatusProblem(404).
			WithInstance(c.Path()).
			WithType("execution_not_found").
			WithDetail(err.Error())

		return c.Status(fiber.StatusNotFound).JSON(problem)

	case errors.Is(err, engine.ErrInvalidTrigger):
		problem := problems.NewStatusProblem(400).
			WithInstance(c.Path()).
			WithType("invalid_trigger").
			WithDetail(err.Error())

		return c.Status(fiber.StatusBadRequest).JSON(problem)

	case errors.Is(err, engine.ErrInvalidResumePayload), errors.Is(err, webhook.ErrInvalidBody),
		errors.Is(err, persistence.ErrInvalidID):
		return badRequest(c, err.Error())

	case errors.Is(err, validation.ErrInvalidWorkflow):
		problem := problems.NewStatusProblem(400).
			WithInstance(c.Path()).
			WithType("invalid_workflow").
			WithDetail(err.Error())

		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"type":     problem.Type,
			"title":    problem.Title,
			"status":   problem.Status,
			"detail":   problem.Detail,
			"instance": problem.Instance,
			"issues":   validation.IssuesOf(err),
		})

	case errors.Is(err, engine.ErrNotSuspended):
		return conflict(c, "not_suspended", err.Error())

	case errors.Is(err, engine.ErrConcurrentResumeConflict), errors.Is(err, engine.ErrConcurrentModification):
		return conflict(c, "concurrent_resume_conflict", err.Error())

	case errors.Is(err, engine.ErrNotCancellable):
		return conflict(c, "not_cancellable", err.Error())

	default:
		return internalError(c, err)
	}
}

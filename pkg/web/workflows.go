package web

import (
	"github.com/dukex/wayflow/pkg/models"
	"github.com/dukex/wayflow/pkg/persistence"
	"github.com/gofiber/fiber/v3"
)

func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	definitions, err := h.persistence.Workflows(c.Context())
	if err != nil {
		return internalError(c, err)
	}

	summaries := make([]WorkflowSummary, 0, len(definitions))
	for _, definition := range definitions {
		summaries = append(summaries, WorkflowSummary{
			ID:          definition.ID,
			Version:     definition.Version,
			Name:        definition.Name,
			Description: definition.Description,
			Trigger:     definition.Trigger.Type,
			Nodes:       len(definition.Nodes),
		})
	}

	return c.JSON(summaries)
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	definition, err := h.persistence.WorkflowByID(c.Context(), id)
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(definition)
}

// SaveWorkflow handles PUT /workflows/:id. The definition is linted before it
// is stored, and its webhook route is refreshed.
func (h *APIHandlers) SaveWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	var definition models.WorkflowDefinition
	if err := c.Bind().JSON(&definition); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if definition.ID != "" && definition.ID != id {
		return badRequest(c, "Workflow ID in body does not match the URL")
	}

	definition.ID = id

	created := false

	current, err := h.persistence.WorkflowByID(c.Context(), id)

	switch {
	case err == nil:
		if definition.Version <= current.Version {
			definition.Version = current.Version + 1
		}
	case persistence.IsWorkflowNotFound(err):
		created = true

		if definition.Version == 0 {
			definition.Version = 1
		}
	default:
		return internalError(c, err)
	}

	if err := h.linter.Validate(&definition); err != nil {
		return handleError(c, err)
	}

	if err := h.persistence.SaveWorkflow(c.Context(), &definition); err != nil {
		return internalError(c, err)
	}

	if definition.Trigger.Type == models.TriggerTypeWebhook {
		if _, err := h.routes.Register(&definition); err != nil {
			return internalError(c, err)
		}
	} else {
		h.routes.Unregister(id)
	}

	h.logger.InfoContext(c.Context(), "Workflow saved", "workflow_id", id, "version", definition.Version)

	status := fiber.StatusOK
	if created {
		status = fiber.StatusCreated
	}

	return c.Status(status).JSON(definition)
}

// ValidateWorkflow handles POST /workflows/validate without storing anything.
func (h *APIHandlers) ValidateWorkflow(c fiber.Ctx) error {
	var definition models.WorkflowDefinition
	if err := c.Bind().JSON(&definition); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.linter.Validate(&definition); err != nil {
		return handleError(c, err)
	}

	return c.JSON(fiber.Map{"valid": true})
}

func (h *APIHandlers) GetWebhooks(c fiber.Ctx) error {
	routes := h.routes.Routes()

	response := make([]fiber.Map, 0, len(routes))
	for _, route := range routes {
		response = append(response, fiber.Map{
			"workflow_id": route.WorkflowID,
			"path":        route.Path,
			"url":         route.URL(),
			"has_schema":  len(route.Schema) > 0,
		})
	}

	return c.JSON(response)
}

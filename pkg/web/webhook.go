package web

import (
	"encoding/json"
	"strings"

	"github.com/dukex/wayflow/pkg/models"
	"github.com/gofiber/fiber/v3"
)

// ReceiveWebhook handles POST /webhook/:workflowId/*. The execution payload
// carries the parsed body, the request headers, the query and the path.
func (h *APIHandlers) ReceiveWebhook(c fiber.Ctx) error {
	workflowID := c.Params("workflowId")
	path := c.Params("*")

	route, ok := h.routes.Lookup(workflowID, path)
	if !ok {
		return notFound(c, "Webhook route not found")
	}

	var body any

	if raw := c.Body(); len(raw) > 0 {
		if err := json.Unmarshal(raw, &body); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	if err := route.ValidateBody(body); err != nil {
		return handleError(c, err)
	}

	headers := make(map[string]any)
	for key, values := range c.GetReqHeaders() {
		headers[strings.ToLower(key)] = strings.Join(values, ", ")
	}

	query := make(map[string]any)
	for key, value := range c.Queries() {
		if key == "async" {
			continue
		}

		query[key] = value
	}

	input := models.TriggerInput{
		Source: models.TriggerTypeWebhook,
		Path:   route.Path,
		Payload: map[string]any{
			"body":    body,
			"headers": headers,
			"query":   query,
			"path":    route.Path,
		},
	}

	return h.start(c, workflowID, input)
}

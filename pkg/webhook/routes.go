// Package webhook keeps the table of inbound webhook routes served by the API.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/dukex/wayflow/pkg/models"
	"github.com/dukex/wayflow/pkg/persistence"
	"github.com/xeipuuv/gojsonschema"
)

var (
	ErrNotWebhookWorkflow = errors.New("workflow is not webhook triggered")
	ErrInvalidBody        = errors.New("webhook body rejected by schema")
)

// Route binds a path under /webhook/<workflow id>/ to a definition. Schema,
// taken from trigger.config.json_schema, optionally constrains the body.
type Route struct {
	WorkflowID string         `json:"workflow_id"`
	Path       string         `json:"path"`
	Schema     map[string]any `json:"json_schema,omitempty"`
}

// URL returns the path the API serves the route on.
func (r Route) URL() string {
	if r.Path == "" {
		return "/webhook/" + r.WorkflowID
	}

	return "/webhook/" + r.WorkflowID + "/" + r.Path
}

// ValidateBody checks body against the route schema, if any.
func (r Route) ValidateBody(body any) error {
	if len(r.Schema) == 0 {
		return nil
	}

	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(r.Schema), gojsonschema.NewGoLoader(body))
	if err != nil {
		return fmt.Errorf("failed to validate webhook body: %w", err)
	}

	if result.Valid() {
		return nil
	}

	problems := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		problems = append(problems, desc.String())
	}

	return fmt.Errorf("%w: %s", ErrInvalidBody, strings.Join(problems, "; "))
}

// Table is safe for concurrent use. At most one route exists per workflow.
type Table struct {
	mu     sync.RWMutex
	routes map[string]Route
	logger *slog.Logger
}

func NewTable(logger *slog.Logger) *Table {
	return &Table{
		routes: make(map[string]Route),
		logger: logger.With("module", "webhook_routes"),
	}
}

// NormalizePath trims surrounding slashes so "/a/b/" and "a/b" are equal.
func NormalizePath(path string) string {
	return strings.Trim(path, "/")
}

// Register adds or replaces the route of a webhook-triggered definition.
func (t *Table) Register(definition *models.WorkflowDefinition) (Route, error) {
	if definition.Trigger.Type != models.TriggerTypeWebhook {
		return Route{}, fmt.Errorf("%w: %s", ErrNotWebhookWorkflow, definition.ID)
	}

	route := routeFor(definition)

	t.mu.Lock()
	t.routes[definition.ID] = route
	t.mu.Unlock()

	t.logger.Info("Webhook route registered", "workflow_id", route.WorkflowID, "url", route.URL())

	return route, nil
}

func (t *Table) Unregister(workflowID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.routes[workflowID]; ok {
		delete(t.routes, workflowID)
		t.logger.Info("Webhook route unregistered", "workflow_id", workflowID)
	}
}

// Lookup returns the route of workflowID when path matches it.
func (t *Table) Lookup(workflowID, path string) (Route, bool) {
	t.mu.RLock()
	route, ok := t.routes[workflowID]
	t.mu.RUnlock()

	if !ok || route.Path != NormalizePath(path) {
		return Route{}, false
	}

	return route, true
}

func (t *Table) Match(workflowID, path string) bool {
	_, ok := t.Lookup(workflowID, path)

	return ok
}

// Routes returns every route sorted by workflow id.
func (t *Table) Routes() []Route {
	t.mu.RLock()
	defer t.mu.RUnlock()

	routes := make([]Route, 0, len(t.routes))
	for _, route := range t.routes {
		routes = append(routes, route)
	}

	sort.Slice(routes, func(i, j int) bool { return routes[i].WorkflowID < routes[j].WorkflowID })

	return routes
}

// Load replaces the table with the routes of every webhook definition.
func (t *Table) Load(ctx context.Context, lister persistence.DefinitionLister) error {
	definitions, err := lister.Workflows(ctx)
	if err != nil {
		return fmt.Errorf("failed to list workflows: %w", err)
	}

	routes := make(map[string]Route)

	for _, definition := range definitions {
		if definition.Trigger.Type != models.TriggerTypeWebhook {
			continue
		}

		routes[definition.ID] = routeFor(definition)
	}

	t.mu.Lock()
	t.routes = routes
	t.mu.Unlock()

	t.logger.InfoContext(ctx, "Webhook routes loaded", "count", len(routes))

	return nil
}

func routeFor(definition *models.WorkflowDefinition) Route {
	route := Route{
		WorkflowID: definition.ID,
		Path:       NormalizePath(definition.WebhookPath()),
	}

	if schema, ok := definition.Trigger.Config["json_schema"].(map[string]any); ok {
		route.Schema = schema
	}

	return route
}

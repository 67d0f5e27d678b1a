package main

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dukex/wayflow/pkg/cmd"
	"github.com/dukex/wayflow/pkg/eventbus"
	"github.com/dukex/wayflow/pkg/events"
	"github.com/dukex/wayflow/pkg/metrics"
	"github.com/dukex/wayflow/pkg/mocks"
	"github.com/dukex/wayflow/pkg/persistence/file"
	"github.com/dukex/wayflow/pkg/registry"
	"github.com/dukex/wayflow/pkg/scheduler"
	"github.com/dukex/wayflow/pkg/web"
	"github.com/dukex/wayflow/pkg/webhook"
	"github.com/gofiber/fiber/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const onboardingJSON = `{
  "name": "Onboarding",
  "trigger": {"type": "manual", "entry_node_id": "start"},
  "nodes": [
    {"id": "start", "type": "trigger", "name": "Start"},
    {"id": "profile", "type": "form", "name": "Profile", "config": {
      "title": "Who are you?",
      "fields": [{"id": "name", "type": "text", "required": true}]
    }},
    {"id": "welcome", "type": "action", "name": "Welcome", "config": {
      "action": "set", "values": {"greeting": "hello {{ .context.name }}"}
    }}
  ],
  "connections": [
    {"from": "start", "to": "profile"},
    {"from": "profile", "to": "welcome"}
  ]
}`

const surveyJSON = `{
  "name": "Survey",
  "trigger": {"type": "manual", "entry_node_id": "start"},
  "nodes": [
    {"id": "start", "type": "trigger", "name": "Start"},
    {"id": "answers", "type": "form", "name": "Answers", "config": {
      "fields": [{"id": "score", "type": "number", "required": true}]
    }}
  ],
  "connections": [{"from": "start", "to": "answers"}]
}`

const ordersJSON = `{
  "name": "Orders",
  "trigger": {"type": "webhook", "entry_node_id": "start", "config": {
    "path": "/orders/",
    "json_schema": {"type": "object", "required": ["id"]}
  }},
  "nodes": [
    {"id": "start", "type": "trigger", "name": "Start"},
    {"id": "record", "type": "action", "name": "Record", "config": {
      "action": "set", "values": {"order": "{{ .context.body.id }}"}
    }}
  ],
  "connections": [{"from": "start", "to": "record"}]
}`

type testAPI struct {
	app     *fiber.App
	routes  *webhook.Table
	metrics *prometheus.Registry
}

func setupTestApp(t *testing.T, options ...func(*API)) *testAPI {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	persistence := file.NewPersistence(t.TempDir())

	reg := registry.NewRegistry(logger)
	reg.RegisterDefaultHandlers(nil, nil)

	routes := webhook.NewTable(logger)
	promRegistry := prometheus.NewRegistry()

	engine := cmd.NewEngine(logger, cmd.EngineDeps{
		Persistence: persistence,
		Registry:    reg,
		Metrics:     metrics.New(promRegistry),
		Routes:      routes,
	})

	api := NewAPI(logger, persistence, reg, engine, routes, promRegistry)
	for _, option := range options {
		option(api)
	}

	return &testAPI{app: api.App(), routes: routes, metrics: promRegistry}
}

func (a *testAPI) send(t *testing.T, method, target, body string) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}

	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.app.Test(req)
	require.NoError(t, err)

	defer func() {
		err := resp.Body.Close()
		if err != nil {
			t.Logf("Failed to close response body: %v", err)
		}
	}()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp, raw
}

func (a *testAPI) do(t *testing.T, method, target, body string) (int, map[string]any) {
	t.Helper()

	resp, raw := a.send(t, method, target, body)

	var decoded map[string]any
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &decoded), string(raw))
	}

	return resp.StatusCode, decoded
}

func (a *testAPI) save(t *testing.T, id, definition string) {
	t.Helper()

	status, body := a.do(t, http.MethodPut, "/workflows/"+id, definition)
	require.Equal(t, http.StatusCreated, status, body)
}

func TestAPI_RootEndpoint(t *testing.T) {
	api := setupTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	resp, err := api.app.Test(req)
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Wayflow API", string(body))
}

func TestAPI_HealthCheck(t *testing.T) {
	api := setupTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/livez", nil)
	resp, err := api.app.Test(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	status, body := api.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "healthy", body["status"])
}

func TestAPI_TriggerAndSubmitForm(t *testing.T) {
	api := setupTestApp(t)
	api.save(t, "onboarding", onboardingJSON)

	status, started := api.do(t, http.MethodPost, "/executions/onboarding/trigger", `{"payload": {"source": "signup"}}`)
	require.Equal(t, http.StatusCreated, status, started)
	assert.Equal(t, "suspended", started["status"])
	assert.Equal(t, "profile", started["pending_node"])

	executionID, ok := started["execution_id"].(string)
	require.True(t, ok)

	status, problem := api.do(t, http.MethodPut, "/executions/"+executionID+"/form-submit", `{"age": 3}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "validation_error", problem["type"])

	status, submitted := api.do(t, http.MethodPut, "/executions/"+executionID+"/form-submit", `{"name": "Ada"}`)
	require.Equal(t, http.StatusOK, status, submitted)
	assert.Equal(t, "profile", submitted["nodeId"])
	assert.Equal(t, "Profile", submitted["name"])
	assert.Equal(t, "form", submitted["type"])
	assert.Equal(t, "succeeded", submitted["status"])
	assert.NotEmpty(t, submitted["startedAt"])
	assert.NotEmpty(t, submitted["finishedAt"])

	config, ok := submitted["config"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Who are you?", config["title"])

	status, problem = api.do(t, http.MethodPut, "/executions/"+executionID+"/form-submit", `{"name": "Ada"}`)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "not_suspended", problem["type"])

	status, record := api.do(t, http.MethodGet, "/executions/"+executionID, "")
	require.Equal(t, http.StatusOK, status)

	execCtx, ok := record["context"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Ada", execCtx["name"])
	assert.Equal(t, "signup", execCtx["source"])

	steps, ok := record["steps"].([]any)
	require.True(t, ok)
	require.Len(t, steps, 3)

	welcome, ok := steps[2].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "welcome", welcome["node_id"])
	assert.Equal(t, map[string]any{"greeting": "hello Ada"}, welcome["output"])
}

func TestAPI_SubmitForm_LastNode(t *testing.T) {
	api := setupTestApp(t)
	api.save(t, "survey", surveyJSON)

	_, started := api.do(t, http.MethodPost, "/executions/survey/trigger", "")
	executionID, _ := started["execution_id"].(string)
	require.NotEmpty(t, executionID)

	resp, raw := api.send(t, http.MethodPut, "/executions/"+executionID+"/form-submit", `{"score": 9}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))
	assert.JSONEq(t, "null", string(raw))
	assert.Equal(t, "succeeded", resp.Header.Get(web.HeaderExecutionStatus))

	status, record := api.do(t, http.MethodGet, "/executions/"+executionID, "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "succeeded", record["status"])
}

func TestAPI_SubmitForm_Async(t *testing.T) {
	bus := &mocks.MockEventBus{}
	api := setupTestApp(t, func(a *API) {
		a.WithEnqueuer(scheduler.NewQueueDispatcher(bus))
	})
	api.save(t, "onboarding", onboardingJSON)

	_, started := api.do(t, http.MethodPost, "/executions/onboarding/trigger", "")
	executionID, _ := started["execution_id"].(string)
	require.NotEmpty(t, executionID)

	bus.On("Publish", mock.Anything, executionID, mock.MatchedBy(func(event eventbus.Event) bool {
		request, ok := event.(*events.ExecutionResumeRequested)

		return ok && request.WorkflowID == "onboarding" && request.Payload["name"] == "Ada"
	})).Return(nil).Once()

	status, accepted := api.do(t, http.MethodPut, "/executions/"+executionID+"/form-submit?async=true", `{"name": "Ada"}`)
	require.Equal(t, http.StatusAccepted, status, accepted)
	assert.Equal(t, "accepted", accepted["status"])
	assert.Equal(t, executionID, accepted["execution_id"])
	assert.Equal(t, "onboarding", accepted["workflow_id"])

	status, record := api.do(t, http.MethodGet, "/executions/"+executionID, "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "suspended", record["status"])

	status, problem := api.do(t, http.MethodPut, "/executions/nope/form-submit?async=true", `{"name": "Ada"}`)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "execution_not_found", problem["type"])

	bus.AssertExpectations(t)
}

func TestAPI_ClientErrors(t *testing.T) {
	api := setupTestApp(t)
	api.save(t, "onboarding", onboardingJSON)

	tests := []struct {
		name   string
		method string
		target string
		body   string
		status int
		kind   string
	}{
		{"unknown workflow", http.MethodPost, "/executions/missing/trigger", "", http.StatusNotFound, "workflow_not_found"},
		{"malformed trigger body", http.MethodPost, "/executions/onboarding/trigger", "{", http.StatusBadRequest, "validation_error"},
		{"unknown execution", http.MethodPut, "/executions/nope/form-submit", "{}", http.StatusNotFound, "execution_not_found"},
		{"get unknown execution", http.MethodGet, "/executions/nope", "", http.StatusNotFound, "not_found"},
		{"cancel unknown execution", http.MethodPost, "/executions/nope/cancel", "", http.StatusNotFound, "execution_not_found"},
		{"bad status filter", http.MethodGet, "/executions?status=bogus", "", http.StatusBadRequest, "validation_error"},
		{"unknown workflow definition", http.MethodGet, "/workflows/missing", "", http.StatusNotFound, "workflow_not_found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, problem := api.do(t, tt.method, tt.target, tt.body)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.kind, problem["type"])
		})
	}
}

func TestAPI_Cancel(t *testing.T) {
	api := setupTestApp(t)
	api.save(t, "onboarding", onboardingJSON)

	_, started := api.do(t, http.MethodPost, "/executions/onboarding/trigger", "")
	executionID, _ := started["execution_id"].(string)

	status, cancelled := api.do(t, http.MethodPost, "/executions/"+executionID+"/cancel", "")
	require.Equal(t, http.StatusOK, status, cancelled)
	assert.Equal(t, "cancelled", cancelled["status"])

	status, problem := api.do(t, http.MethodPost, "/executions/"+executionID+"/cancel", "")
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "not_cancellable", problem["type"])

	status, problem = api.do(t, http.MethodPut, "/executions/"+executionID+"/form-submit", `{"name": "Ada"}`)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "not_suspended", problem["type"])
}

func TestAPI_ListExecutions(t *testing.T) {
	api := setupTestApp(t)
	api.save(t, "onboarding", onboardingJSON)
	api.save(t, "survey", surveyJSON)

	for _, id := range []string{"onboarding", "onboarding", "survey"} {
		status, _ := api.do(t, http.MethodPost, "/executions/"+id+"/trigger", "")
		require.Equal(t, http.StatusCreated, status)
	}

	status, body := api.do(t, http.MethodGet, "/executions?workflow_id=onboarding", "")
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["executions"], 2)

	status, body = api.do(t, http.MethodGet, "/executions?status=suspended&limit=1", "")
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["executions"], 1)
}

func TestAPI_Webhook(t *testing.T) {
	api := setupTestApp(t)
	api.save(t, "orders", ordersJSON)

	route, ok := api.routes.Lookup("orders", "orders")
	require.True(t, ok)
	assert.Equal(t, "/webhook/orders/orders", route.URL())

	status, started := api.do(t, http.MethodPost, "/webhook/orders/orders?ref=abc", `{"id": 42}`)
	require.Equal(t, http.StatusCreated, status, started)
	assert.Equal(t, "succeeded", started["status"])

	executionID, _ := started["execution_id"].(string)
	_, record := api.do(t, http.MethodGet, "/executions/"+executionID, "")
	assert.Equal(t, "webhook", record["trigger"])

	execCtx, ok := record["context"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"ref": "abc"}, execCtx["query"])
	assert.Equal(t, "orders", execCtx["path"])

	status, problem := api.do(t, http.MethodPost, "/webhook/orders/orders", `{"name": "no id"}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, problem["detail"], "id")

	status, _ = api.do(t, http.MethodPost, "/webhook/orders/other", `{"id": 1}`)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = api.do(t, http.MethodPost, "/webhook/unknown", `{"id": 1}`)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestAPI_SaveWorkflow(t *testing.T) {
	api := setupTestApp(t)

	api.save(t, "onboarding", onboardingJSON)

	status, updated := api.do(t, http.MethodPut, "/workflows/onboarding", onboardingJSON)
	require.Equal(t, http.StatusOK, status)
	assert.InDelta(t, 2, updated["version"], 0)

	invalid := strings.Replace(onboardingJSON, `"to": "welcome"`, `"to": "nowhere"`, 1)

	status, problem := api.do(t, http.MethodPut, "/workflows/onboarding", invalid)
	require.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid_workflow", problem["type"])

	issues, ok := problem["issues"].([]any)
	require.True(t, ok)
	require.Len(t, issues, 1)
	assert.Contains(t, issues[0].(map[string]any)["message"], "nowhere")

	status, body := api.do(t, http.MethodPost, "/workflows/validate", onboardingJSON)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["valid"])

	req := httptest.NewRequest(http.MethodGet, "/workflows", nil)
	resp, err := api.app.Test(req)
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	var summaries []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&summaries))
	require.Len(t, summaries, 1)
	assert.Equal(t, "Onboarding", summaries[0]["name"])
	assert.InDelta(t, 3, summaries[0]["nodes"], 0)
}

func TestAPI_NodeTypes(t *testing.T) {
	api := setupTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/nodes", nil)
	resp, err := api.app.Test(req)
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	var types []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&types))
	require.Len(t, types, 4)

	resumable := map[string]bool{}
	for _, nodeType := range types {
		resumable[nodeType["type"].(string)] = nodeType["resumable"].(bool)
	}

	assert.True(t, resumable["form"])
	assert.False(t, resumable["decision"])
}

func TestAPI_Metrics(t *testing.T) {
	api := setupTestApp(t)
	api.save(t, "onboarding", onboardingJSON)

	status, _ := api.do(t, http.MethodPost, "/executions/onboarding/trigger", "")
	require.Equal(t, http.StatusCreated, status)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	resp, err := api.app.Test(req)
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `wayflow_executions_started_total{workflow_id="onboarding"} 1`)
}

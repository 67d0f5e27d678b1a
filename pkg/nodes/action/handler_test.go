package action

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dukex/wayflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandler(buf *bytes.Buffer) *Handler {
	logger := slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	return NewHandler(logger, http.DefaultClient)
}

func testRecord() *models.ExecutionRecord {
	return &models.ExecutionRecord{
		ID:         "exec-1",
		WorkflowID: "expense",
		Context:    map[string]any{"name": "Ada", "amount": 42.0},
	}
}

func actionNode(config map[string]any) *models.WorkflowNode {
	return &models.WorkflowNode{ID: "act", Type: models.NodeKindAction, Name: "Act", Config: config}
}

func TestHandler_Log(t *testing.T) {
	var buf bytes.Buffer

	outcome, err := newTestHandler(&buf).Process(t.Context(), actionNode(map[string]any{
		"action":  "log",
		"message": "expense from {{ .context.name }}",
		"level":   "warn",
	}), testRecord())
	require.NoError(t, err)

	assert.Equal(t, "expense from Ada", outcome.Output["message"])
	assert.Equal(t, "WARN", outcome.Output["level"])
	assert.Contains(t, buf.String(), "expense from Ada")
	assert.Contains(t, buf.String(), "execution_id=exec-1")
}

func TestHandler_Log_KeepsMessageVerbatim(t *testing.T) {
	var buf bytes.Buffer

	record := testRecord()
	record.Context["zip"] = "00123"

	outcome, err := newTestHandler(&buf).Process(t.Context(), actionNode(map[string]any{
		"action":  "log",
		"message": "[WARN] {{ .context.zip }}",
	}), record)
	require.NoError(t, err)

	assert.Equal(t, "[WARN] 00123", outcome.Output["message"])
}

func TestHandler_Set(t *testing.T) {
	outcome, err := newTestHandler(&bytes.Buffer{}).Process(t.Context(), actionNode(map[string]any{
		"action": "set",
		"values": map[string]any{
			"greeting": "hello {{ .context.name }}",
			"large":    "{{ gt .context.amount 10.0 }}",
		},
	}), testRecord())
	require.NoError(t, err)

	assert.Equal(t, "hello Ada", outcome.Output["greeting"])
	assert.Equal(t, true, outcome.Output["large"])
}

func TestHandler_AwaitCallback(t *testing.T) {
	outcome, err := newTestHandler(&bytes.Buffer{}).Process(t.Context(), actionNode(map[string]any{
		"action": "await_callback",
	}), testRecord())
	require.NoError(t, err)
	require.True(t, outcome.IsSuspended())

	callback := outcome.Output["callback"].(map[string]any)
	assert.Equal(t, "exec-1", callback["execution_id"])
	assert.Equal(t, "act", callback["node_id"])
}

func TestHandler_InvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		config map[string]any
	}{
		{name: "missing action", config: map[string]any{}},
		{name: "unknown action", config: map[string]any{"action": "email"}},
		{name: "log without message", config: map[string]any{"action": "log"}},
		{name: "http without url", config: map[string]any{"action": "http_request"}},
	}

	handler := newTestHandler(&bytes.Buffer{})

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := handler.Process(t.Context(), actionNode(tt.config), testRecord())
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid node config")
		})
	}
}

func TestHandler_HTTPRequest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/users/Ada", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("X-Token"))

		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"amount": 42}`, string(body))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer server.Close()

	outcome, err := newTestHandler(&bytes.Buffer{}).Process(t.Context(), actionNode(map[string]any{
		"action":  "http_request",
		"method":  "POST",
		"url":     server.URL + "/users/{{ .context.name }}",
		"headers": map[string]any{"X-Token": "secret"},
		"body":    `{"amount": {{ .context.amount }}}`,
	}), testRecord())
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, outcome.Output["status_code"])
	assert.Equal(t, map[string]any{"ok": true}, outcome.Output["json"])
}

func TestHandler_HTTPRequest_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := newTestHandler(&bytes.Buffer{}).Process(t.Context(), actionNode(map[string]any{
		"action": "http_request",
		"url":    server.URL,
	}), testRecord())

	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusBadGateway, httpErr.StatusCode)
}

func TestHandler_HTTPRequest_HonoursContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()

	_, err := newTestHandler(&bytes.Buffer{}).Process(ctx, actionNode(map[string]any{
		"action": "http_request",
		"url":    server.URL,
	}), testRecord())
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

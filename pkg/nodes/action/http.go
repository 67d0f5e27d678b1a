package action

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/dukex/wayflow/pkg/models"
	"github.com/dukex/wayflow/pkg/protocol"
	"github.com/dukex/wayflow/pkg/template"
)

const maxResponseBody = 1 << 20

// HTTPError is returned for responses with a 4xx or 5xx status.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http request failed with status %d: %s", e.StatusCode, e.Body)
}

func (h *Handler) httpRequest(ctx context.Context, cfg Config, _ *models.WorkflowNode, record *models.ExecutionRecord) (protocol.Outcome, error) {
	url, err := template.RenderString(cfg.URL, record)
	if err != nil {
		return protocol.Outcome{}, fmt.Errorf("failed to render url: %w", err)
	}

	method := cfg.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader

	if cfg.Body != "" {
		rendered, err := template.RenderString(cfg.Body, record)
		if err != nil {
			return protocol.Outcome{}, fmt.Errorf("failed to render body: %w", err)
		}

		body = strings.NewReader(rendered)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return protocol.Outcome{}, fmt.Errorf("failed to create request: %w", err)
	}

	for key, value := range cfg.Headers {
		rendered, err := template.RenderString(value, record)
		if err != nil {
			return protocol.Outcome{}, fmt.Errorf("failed to render header %q: %w", key, err)
		}

		req.Header.Set(key, rendered)
	}

	if body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	h.logger.DebugContext(ctx, "performing http request", "method", method, "url", url, "execution_id", record.ID)

	resp, err := h.client.Do(req)
	if err != nil {
		return protocol.Outcome{}, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return protocol.Outcome{}, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return protocol.Outcome{}, &HTTPError{StatusCode: resp.StatusCode, Body: string(data)}
	}

	headers := make(map[string]any, len(resp.Header))
	for key := range resp.Header {
		headers[key] = resp.Header.Get(key)
	}

	output := map[string]any{
		"status_code": resp.StatusCode,
		"headers":     headers,
		"body":        string(data),
	}

	var parsed any
	if json.Unmarshal(data, &parsed) == nil {
		output["json"] = parsed
	}

	return protocol.Completed(output), nil
}

// Package template provides templating over an execution record for node configs and conditions.
package template

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/dukex/wayflow/pkg/models"
)

// NoValue is what text/template prints for a missing map key.
const NoValue = "<no value>"

// DataFromRecord builds the template data exposed to expressions:
// .context, .steps.<node_id>.output, .execution and .env.
func DataFromRecord(record *models.ExecutionRecord) map[string]any {
	return map[string]any{
		"context": record.Context,
		"steps":   record.StepOutputs(),
		"env":     getEnvVars(),
		"execution": map[string]any{
			"id":          record.ID,
			"workflow_id": record.WorkflowID,
			"trigger":     string(record.Trigger),
			"started_at":  record.StartedAt.UTC().Format(time.RFC3339),
		},
	}
}

// RenderWithRecord renders input against the record's template data.
func RenderWithRecord(input string, record *models.ExecutionRecord) (any, error) {
	return Render(input, DataFromRecord(record))
}

// RenderString renders input as plain text. The output is not coerced, so
// "007" or "[urgent]" come back unchanged.
func RenderString(input string, record *models.ExecutionRecord) (string, error) {
	return execute(input, DataFromRecord(record))
}

// Render executes templateStr with data and coerces the output with Coerce.
func Render(templateStr string, data any) (any, error) {
	text, err := execute(templateStr, data)
	if err != nil {
		return nil, err
	}

	return Coerce(text), nil
}

// Coerce turns rendered text into JSON, a number or a boolean when it parses
// as one. Text that only looks like JSON, and numbers with leading zeros,
// stay strings.
func Coerce(text string) any {
	result := strings.TrimSpace(text)

	if (strings.HasPrefix(result, "{") && strings.HasSuffix(result, "}")) ||
		(strings.HasPrefix(result, "[") && strings.HasSuffix(result, "]")) {
		var jsonResult any

		if err := json.Unmarshal([]byte(result), &jsonResult); err == nil {
			return jsonResult
		}

		return result
	}

	if !hasLeadingZero(result) {
		if num, err := strconv.ParseFloat(result, 64); err == nil {
			return num
		}
	}

	if b, err := strconv.ParseBool(result); err == nil {
		return b
	}

	return result
}

// hasLeadingZero reports identifiers such as "007" or "-0012".
func hasLeadingZero(s string) bool {
	s = strings.TrimPrefix(s, "-")

	return len(s) > 1 && s[0] == '0' && s[1] >= '0' && s[1] <= '9'
}

func execute(templateStr string, data any) (string, error) {
	tmpl, err := template.
		New("expression").
		Funcs(template.FuncMap{
			"now": func() string {
				return time.Now().UTC().Format(time.RFC3339)
			},
			"rand": func(max int) int {
				if max <= 0 {
					return 0
				}
				num := make([]byte, 1)
				_, err := rand.Read(num)
				if err != nil {
					return 0
				}

				return int(num[0]) % max
			},
			"lower":    strings.ToLower,
			"upper":    strings.ToUpper,
			"contains": strings.Contains,
		}).Parse(templateStr)
	if err != nil {
		return "", fmt.Errorf("failed to parse template '%s': %w", templateStr, err)
	}

	var buf strings.Builder

	err = tmpl.Execute(&buf, data)
	if err != nil {
		return "", fmt.Errorf("failed to execute template '%s': %w", templateStr, err)
	}

	return buf.String(), nil
}

func getEnvVars() map[string]any {
	envMap := make(map[string]any)

	for _, env := range os.Environ() {
		parts := strings.SplitN(env, "=", 2)
		if len(parts) == 2 {
			envMap[parts[0]] = parts[1]
		}
	}

	return envMap
}

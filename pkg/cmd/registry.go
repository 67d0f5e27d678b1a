// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukex/wayflow/pkg/conditions"
	"github.com/dukex/wayflow/pkg/registry"
)

const httpActionTimeout = 30 * time.Second

// NewRegistry registers the built-in handlers, then any handler plugins
// found under pluginsPath. A plugin may replace a built-in kind.
func NewRegistry(logger *slog.Logger, pluginsPath string) (*registry.Registry, error) {
	reg := registry.NewRegistry(logger)
	reg.RegisterDefaultHandlers(conditions.NewTemplateEvaluator(), &http.Client{Timeout: httpActionTimeout})

	if pluginsPath != "" {
		if err := reg.LoadHandlerPlugins(pluginsPath); err != nil {
			return nil, fmt.Errorf("failed to load handler plugins: %w", err)
		}
	}

	return reg, nil
}

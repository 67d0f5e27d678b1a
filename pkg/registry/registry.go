// Package registry holds the node handlers the engine dispatches to, keyed by node kind.
package registry

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"plugin"
	"sort"
	"strings"
	"sync"

	"github.com/dukex/wayflow/pkg/models"
	"github.com/dukex/wayflow/pkg/protocol"
)

var (
	// ErrHandlerNotRegistered indicates no handler exists for a node kind.
	ErrHandlerNotRegistered = errors.New("handler not registered")

	// ErrInvalidPlugin indicates a plugin does not export a usable Handler symbol.
	ErrInvalidPlugin = errors.New("invalid handler plugin")
)

type Registry struct {
	logger   *slog.Logger
	mu       sync.RWMutex
	handlers map[models.NodeKind]protocol.NodeHandler
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		logger:   log,
		handlers: make(map[models.NodeKind]protocol.NodeHandler),
	}
}

// Register adds or replaces the handler for its kind.
func (r *Registry) Register(handler protocol.NodeHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.handlers[handler.Kind()] = handler
}

// Handler returns the handler registered for kind.
func (r *Registry) Handler(kind models.NodeKind) (protocol.NodeHandler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	handler, ok := r.handlers[kind]
	if !ok {
		return nil, fmt.Errorf("%w: node type '%s'", ErrHandlerNotRegistered, kind)
	}

	return handler, nil
}

// Kinds returns the registered node kinds in sorted order.
func (r *Registry) Kinds() []models.NodeKind {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]models.NodeKind, 0, len(r.handlers))
	for kind := range r.handlers {
		kinds = append(kinds, kind)
	}

	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })

	return kinds
}

// HealthCheck reports whether every built-in node kind has a handler.
func (r *Registry) HealthCheck() (string, bool) {
	var missing []string

	for _, kind := range models.NodeKinds() {
		if _, err := r.Handler(kind); err != nil {
			missing = append(missing, string(kind))
		}
	}

	if len(missing) > 0 {
		return "Missing handlers: " + strings.Join(missing, ", "), false
	}

	return "Registry is healthy", true
}

// LoadHandlerPlugins opens every *.so under pluginsPath/handlers and
// registers the exported Handler symbol of each.
func (r *Registry) LoadHandlerPlugins(pluginsPath string) error {
	rootPath := pluginsPath + "/handlers"

	if _, err := os.Stat(rootPath); os.IsNotExist(err) {
		return nil
	}

	pluginPathList, err := fs.Glob(os.DirFS(rootPath), "*.so")
	if err != nil {
		return err
	}

	l := r.logger.With(slog.String("path", rootPath))
	l.Info("Loading handler plugins", "count", len(pluginPathList))

	for _, p := range pluginPathList {
		plg, err := plugin.Open(rootPath + "/" + p)
		if err != nil {
			return fmt.Errorf("failed to open plugin %s: %w", p, err)
		}

		symbol, err := plg.Lookup("Handler")
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInvalidPlugin, p, err)
		}

		handler, ok := pluginHandler(symbol)
		if !ok {
			return fmt.Errorf("%w: %s does not implement NodeHandler", ErrInvalidPlugin, p)
		}

		r.Register(handler)
		l.Info("Loaded handler plugin", slog.String("plugin", p), slog.String("kind", string(handler.Kind())))
	}

	return nil
}

// pluginHandler accepts both "var Handler protocol.NodeHandler" and a
// variable whose pointer implements NodeHandler.
func pluginHandler(symbol plugin.Symbol) (protocol.NodeHandler, bool) {
	if ptr, ok := symbol.(*protocol.NodeHandler); ok && ptr != nil && *ptr != nil {
		return *ptr, true
	}

	handler, ok := symbol.(protocol.NodeHandler)

	return handler, ok
}

package cmd

import (
	"log/slog"

	"github.com/dukex/wayflow/pkg/conditions"
	"github.com/dukex/wayflow/pkg/engine"
	"github.com/dukex/wayflow/pkg/eventbus"
	"github.com/dukex/wayflow/pkg/metrics"
	"github.com/dukex/wayflow/pkg/persistence"
	"github.com/dukex/wayflow/pkg/registry"
	"github.com/dukex/wayflow/pkg/webhook"
	"go.opentelemetry.io/otel/trace"
)

// EngineDeps are the shared pieces every binary wires into the engine.
type EngineDeps struct {
	Persistence persistence.Persistence
	Registry    *registry.Registry
	Publisher   eventbus.EventPublisher
	Metrics     *metrics.Metrics
	Tracer      trace.Tracer
	Routes      *webhook.Table
	MaxSteps    int
}

func NewEngine(logger *slog.Logger, deps EngineDeps) *engine.Engine {
	opts := []engine.Option{
		engine.WithLogger(logger.With("module", "engine")),
		engine.WithEvaluator(conditions.NewTemplateEvaluator()),
	}

	if deps.Publisher != nil {
		opts = append(opts, engine.WithPublisher(deps.Publisher))
	}

	if deps.Metrics != nil {
		opts = append(opts, engine.WithMetrics(deps.Metrics))
	}

	if deps.Tracer != nil {
		opts = append(opts, engine.WithTracer(deps.Tracer))
	}

	if deps.Routes != nil {
		opts = append(opts, engine.WithWebhookRoutes(deps.Routes))
	}

	if deps.MaxSteps > 0 {
		opts = append(opts, engine.WithMaxSteps(deps.MaxSteps))
	}

	return engine.New(deps.Persistence, deps.Persistence, deps.Registry, opts...)
}

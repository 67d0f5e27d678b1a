package engine

import (
	"log/slog"
	"time"

	"github.com/dukex/wayflow/pkg/conditions"
	"github.com/dukex/wayflow/pkg/eventbus"
	"github.com/dukex/wayflow/pkg/metrics"
	"go.opentelemetry.io/otel/trace"
)

const DefaultMaxSteps = 1000

// RouteMatcher tells whether a webhook path is registered for a workflow.
type RouteMatcher interface {
	Match(workflowID, path string) bool
}

type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

func WithEvaluator(evaluator conditions.Evaluator) Option {
	return func(e *Engine) { e.evaluator = evaluator }
}

func WithPublisher(publisher eventbus.EventPublisher) Option {
	return func(e *Engine) { e.publisher = publisher }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithTracer(tracer trace.Tracer) Option {
	return func(e *Engine) { e.tracer = tracer }
}

// WithWebhookRoutes makes webhook triggers match against an explicit route
// table instead of the definition's own trigger path.
func WithWebhookRoutes(routes RouteMatcher) Option {
	return func(e *Engine) { e.routes = routes }
}

// WithMaxSteps bounds node visits per advance call.
func WithMaxSteps(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxSteps = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(e *Engine) { e.newID = newID }
}

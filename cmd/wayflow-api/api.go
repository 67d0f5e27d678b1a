// Package main provides the Wayflow API server implementation.
package main

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/dukex/wayflow/pkg/persistence"
	"github.com/dukex/wayflow/pkg/registry"
	"github.com/dukex/wayflow/pkg/validation"
	"github.com/dukex/wayflow/pkg/web"
	"github.com/dukex/wayflow/pkg/webhook"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	registry    *registry.Registry
	engine      web.Engine
	routes      *webhook.Table
	gatherer    prometheus.Gatherer
	enqueuer    web.Enqueuer
	validate    *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	registry *registry.Registry,
	engine web.Engine,
	routes *webhook.Table,
	gatherer prometheus.Gatherer,
) *API {
	return &API{
		logger:      logger,
		persistence: persistence,
		registry:    registry,
		engine:      engine,
		routes:      routes,
		gatherer:    gatherer,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

// WithEnqueuer makes ?async=true triggers go through the event bus.
func (a *API) WithEnqueuer(enqueuer web.Enqueuer) *API {
	a.enqueuer = enqueuer

	return a
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(
		a.engine,
		a.persistence,
		a.routes,
		validation.New(a.registry),
		a.registry,
		a.validate,
		a.logger,
	)

	if a.enqueuer != nil {
		handlers.WithEnqueuer(a.enqueuer)
	}

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Wayflow API")
	})

	w := app.Group("/workflows")
	w.Get("/", handlers.GetWorkflows)
	w.Post("/validate", handlers.ValidateWorkflow)
	w.Get("/:id", handlers.GetWorkflow)
	w.Put("/:id", handlers.SaveWorkflow)

	e := app.Group("/executions")
	e.Get("/", handlers.GetExecutions)
	e.Post("/:workflowId/trigger", handlers.TriggerExecution)
	e.Put("/:executionId/form-submit", handlers.SubmitForm)
	e.Get("/:id", handlers.GetExecution)
	e.Post("/:id/cancel", handlers.CancelExecution)

	app.Post("/webhook/:workflowId", handlers.ReceiveWebhook)
	app.Post("/webhook/:workflowId/*", handlers.ReceiveWebhook)
	app.Get("/webhooks", handlers.GetWebhooks)

	app.Get("/nodes", handlers.GetNodeTypes)
	app.Get("/health", handlers.HealthCheck)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(a.gatherer, promhttp.HandlerOpts{})))

	return app
}

// Start serves until ctx is cancelled.
func (a *API) Start(ctx context.Context, port int) error {
	app := a.App()

	go func() {
		<-ctx.Done()

		if err := app.Shutdown(); err != nil {
			a.logger.Error("Failed to shut down API", "error", err)
		}
	}()

	return app.Listen(":"+strconv.Itoa(port), fiber.ListenConfig{DisableStartupMessage: true})
}

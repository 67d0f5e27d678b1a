package main

import (
	"context"
	"fmt"

	"github.com/dukex/wayflow/pkg/cmd"
	"github.com/dukex/wayflow/pkg/log"
	"github.com/dukex/wayflow/pkg/metrics"
	"github.com/dukex/wayflow/pkg/otelhelper"
	"github.com/dukex/wayflow/pkg/scheduler"
	"github.com/dukex/wayflow/pkg/webhook"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli/v3"
)

func RunAPICommand() *cli.Command {
	return &cli.Command{
		Name:    "run",
		Aliases: []string{"r"},
		Usage:   "Start api",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Persistence URL (directory, postgres:// or redis://)",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (gochannel, kafka); empty disables lifecycle events and async triggers",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "kafka-brokers",
				Usage:   "Comma separated Kafka brokers",
				Value:   "localhost:9092",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.StringFlag{
				Name:    "plugins-path",
				Usage:   "Path to the directory containing handler plugins",
				Value:   "./plugins",
				Sources: cli.EnvVars("PLUGINS_PATH"),
			},
			&cli.IntFlag{
				Name:    "max-steps",
				Usage:   "Maximum node visits per advance",
				Value:   1000,
				Sources: cli.EnvVars("MAX_STEPS"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Export traces over OTLP/HTTP",
				Sources: cli.EnvVars("OTEL_ENABLED"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger := log.WithModule("api")
			logger.InfoContext(ctx, "Initializing Wayflow API")

			registry, err := cmd.NewRegistry(logger, command.String("plugins-path"))
			if err != nil {
				return err
			}

			persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return fmt.Errorf("failed to open persistence: %w", err)
			}

			defer func() {
				if err := persistence.Close(context.WithoutCancel(ctx)); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			routes := webhook.NewTable(logger)
			if err := routes.Load(ctx, persistence); err != nil {
				return err
			}

			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

			deps := cmd.EngineDeps{
				Persistence: persistence,
				Registry:    registry,
				Metrics:     metrics.New(reg),
				Routes:      routes,
				MaxSteps:    int(command.Int("max-steps")),
			}

			if command.Bool("tracing") {
				tracer, shutdown, err := otelhelper.NewTracer(ctx, "wayflow-api")
				if err != nil {
					return fmt.Errorf("failed to initialize tracer: %w", err)
				}

				defer func() {
					if err := shutdown(context.WithoutCancel(ctx)); err != nil {
						logger.ErrorContext(ctx, "Failed to shutdown tracer provider", "error", err)
					}
				}()

				deps.Tracer = tracer
			}

			var enqueuer *scheduler.QueueDispatcher

			if provider := command.String("event-bus"); provider != "" {
				eventBus, err := cmd.NewEventBus(provider, command.String("kafka-brokers"), "wayflow-api", logger)
				if err != nil {
					return err
				}

				defer func() {
					if err := eventBus.Close(); err != nil {
						logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
					}
				}()

				deps.Publisher = eventBus
				enqueuer = scheduler.NewQueueDispatcher(eventBus)
			}

			api := NewAPI(
				logger,
				persistence,
				registry,
				cmd.NewEngine(logger, deps),
				routes,
				reg,
			)

			if enqueuer != nil {
				api.WithEnqueuer(enqueuer)
			}

			return api.Start(ctx, int(command.Int("port")))
		},
	}
}

// Package main runs workers that execute queued starts and resumes.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dukex/wayflow/pkg/cmd"
	"github.com/dukex/wayflow/pkg/log"
	"github.com/dukex/wayflow/pkg/webhook"
	"github.com/dukex/wayflow/pkg/worker"
	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := &cli.Command{
		Name:                  "wayflow-worker",
		EnableShellCompletion: true,
		Usage:                 "Start workers to execute workflows",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "worker-id",
				Aliases: []string{"id"},
				Usage:   "Custom worker ID (auto-generated if not provided)",
				Sources: cli.EnvVars("WORKER_ID"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Persistence URL (directory, postgres:// or redis://)",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (gochannel, kafka)",
				Value:   "kafka",
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
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: run,
	}

	err := cmd.Run(ctx, os.Args)
	if err != nil {
		panic(err)
	}
}

func run(ctx context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"))

	workerID := command.String("worker-id")
	if workerID == "" {
		workerID = "worker-" + uuid.New().String()[:8]
	}

	logger := log.WithModule("wayflow-worker").With("worker_id", workerID)
	logger.InfoContext(ctx, "Initializing Wayflow Worker")

	registry, err := cmd.NewRegistry(logger, command.String("plugins-path"))
	if err != nil {
		return err
	}

	eventBus, err := cmd.NewEventBus(command.String("event-bus"), command.String("kafka-brokers"), "wayflow-worker", logger)
	if err != nil {
		return err
	}

	defer func() {
		if err := eventBus.Close(); err != nil {
			logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
		}
	}()

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

	engine := cmd.NewEngine(logger, cmd.EngineDeps{
		Persistence: persistence,
		Registry:    registry,
		Publisher:   eventBus,
		Routes:      routes,
	})

	w := worker.New(workerID, engine, eventBus, logger)

	err = w.Start(ctx)
	if err != nil {
		return fmt.Errorf("failed to start worker: %w", err)
	}

	<-ctx.Done()
	logger.Info("Shutting down worker")

	return nil
}

// Package main runs the cron scheduler for schedule-triggered workflows.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dukex/wayflow/pkg/cmd"
	"github.com/dukex/wayflow/pkg/log"
	"github.com/dukex/wayflow/pkg/scheduler"
	cli "github.com/urfave/cli/v3"
)

const shutdownTimeout = 30 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := &cli.Command{
		Name:                  "wayflow-scheduler",
		EnableShellCompletion: true,
		Usage:                 "Start schedule-triggered workflows on their cron expressions",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Persistence URL (directory, postgres:// or redis://)",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (gochannel, kafka); empty runs executions in-process",
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
			&cli.DurationFlag{
				Name:    "sync-interval",
				Usage:   "How often schedules are reloaded from persistence",
				Value:   time.Minute,
				Sources: cli.EnvVars("SCHEDULE_SYNC_INTERVAL"),
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

	logger := log.WithModule("wayflow-scheduler")
	logger.InfoContext(ctx, "Initializing Wayflow Scheduler")

	persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
	if err != nil {
		return fmt.Errorf("failed to open persistence: %w", err)
	}

	defer func() {
		if err := persistence.Close(context.WithoutCancel(ctx)); err != nil {
			logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
		}
	}()

	var dispatcher scheduler.Dispatcher

	if provider := command.String("event-bus"); provider != "" {
		eventBus, err := cmd.NewEventBus(provider, command.String("kafka-brokers"), "wayflow-scheduler", logger)
		if err != nil {
			return err
		}

		defer func() {
			if err := eventBus.Close(); err != nil {
				logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
			}
		}()

		dispatcher = scheduler.NewQueueDispatcher(eventBus)
	} else {
		registry, err := cmd.NewRegistry(logger, command.String("plugins-path"))
		if err != nil {
			return err
		}

		dispatcher = scheduler.NewDirectDispatcher(cmd.NewEngine(logger, cmd.EngineDeps{
			Persistence: persistence,
			Registry:    registry,
		}))
	}

	s := scheduler.New(dispatcher, logger)

	if err := s.Sync(ctx, persistence); err != nil {
		return err
	}

	s.Start(ctx)

	ticker := time.NewTicker(command.Duration("sync-interval"))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Shutting down scheduler")

			stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()

			return s.Stop(stopCtx)
		case <-ticker.C:
			if err := s.Sync(ctx, persistence); err != nil {
				logger.ErrorContext(ctx, "Failed to sync schedules", "error", err)
			}
		}
	}
}

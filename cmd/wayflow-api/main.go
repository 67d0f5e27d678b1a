package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	cli "github.com/urfave/cli/v3"
)

const defaultPort = 9091

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := &cli.Command{
		Name:                  "wayflow-api",
		Usage:                 "Trigger, resume and inspect workflow executions",
		EnableShellCompletion: true,
		DefaultCommand:        "run",
		Commands: []*cli.Command{
			RunAPICommand(),
			NewValidateCommand(),
		},
	}

	err := cmd.Run(ctx, os.Args)
	if err != nil {
		panic(err)
	}
}

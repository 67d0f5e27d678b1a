package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/dukex/wayflow/pkg/cmd"
	"github.com/dukex/wayflow/pkg/log"
	"github.com/dukex/wayflow/pkg/models"
	"github.com/dukex/wayflow/pkg/validation"
	"github.com/urfave/cli/v3"
)

var ErrInvalidWorkflows = errors.New("invalid workflows found")

func NewValidateCommand() *cli.Command {
	return &cli.Command{
		Name:    "validate",
		Aliases: []string{"v"},
		Usage:   "Lint every stored workflow definition",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Persistence URL (directory, postgres:// or redis://)",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "plugins-path",
				Usage:   "Path to the directory containing handler plugins",
				Value:   "./plugins",
				Sources: cli.EnvVars("PLUGINS_PATH"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			logger := log.WithModule("api").With("action", "validate")

			registry, err := cmd.NewRegistry(logger, command.String("plugins-path"))
			if err != nil {
				return err
			}

			persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				_ = persistence.Close(ctx)
			}()

			definitions, err := persistence.Workflows(ctx)
			if err != nil {
				return fmt.Errorf("failed to list workflows: %w", err)
			}

			return lint(command.Root().Writer, validation.New(registry), definitions)
		},
	}
}

func lint(w io.Writer, linter *validation.Validator, definitions []*models.WorkflowDefinition) error {
	invalid := 0

	for _, definition := range definitions {
		err := linter.Validate(definition)
		if err == nil {
			_, _ = fmt.Fprintf(w, "ok      %s\n", definition.ID)

			continue
		}

		invalid++

		_, _ = fmt.Fprintf(w, "invalid %s\n", definition.ID)
		for _, issue := range validation.IssuesOf(err) {
			_, _ = fmt.Fprintf(w, "        %s\n", issue)
		}
	}

	if invalid > 0 {
		return fmt.Errorf("%w: %d of %d", ErrInvalidWorkflows, invalid, len(definitions))
	}

	return nil
}

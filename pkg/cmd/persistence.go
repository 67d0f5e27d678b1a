package cmd

import (
	"context"
	"log/slog"
	"strings"

	"github.com/dukex/wayflow/pkg/persistence"
	"github.com/dukex/wayflow/pkg/persistence/file"
	"github.com/dukex/wayflow/pkg/persistence/postgresql"
	"github.com/dukex/wayflow/pkg/persistence/redis"
)

// NewPersistence picks a backend from the scheme of DATABASE_URL. URLs
// without a known scheme are treated as a directory for file persistence.
//
// nolint:ireturn // callers only need the interface
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	switch parsePersistenceProvider(databaseURL) {
	case "postgres", "postgresql":
		p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			return nil, err
		}

		return p, nil
	case "redis", "rediss":
		p, err := redis.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			return nil, err
		}

		return p, nil
	default:
		return file.NewPersistence(strings.TrimPrefix(databaseURL, "file://")), nil
	}
}

func parsePersistenceProvider(databaseURL string) string {
	provider, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return "file"
	}

	return provider
}

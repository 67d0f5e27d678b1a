// Package redis provides a Redis-backed store for workflow definitions and execution records.
package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/wayflow/pkg/persistence"
	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "wayflow"

// Persistence stores one JSON document per execution under
// <prefix>:execution:<id> and indexes them in the <prefix>:executions
// sorted set scored by start time.
type Persistence struct {
	client redis.UniversalClient
	logger *slog.Logger
	prefix string
}

var (
	_ persistence.Persistence               = (*Persistence)(nil)
	_ persistence.VersionedDefinitionSource = (*Persistence)(nil)
)

// NewPersistence connects to a redis:// URL.
func NewPersistence(ctx context.Context, logger *slog.Logger, redisURL string) (*Persistence, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = client.Ping(pingCtx).Err()
	if err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.InfoContext(ctx, "Connected to Redis", "addr", opts.Addr, "db", opts.DB)

	return NewWithClient(client, logger, defaultKeyPrefix), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client redis.UniversalClient, logger *slog.Logger, prefix string) *Persistence {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}

	return &Persistence{
		client: client,
		logger: logger,
		prefix: prefix,
	}
}

func (p *Persistence) executionKey(id string) string {
	return p.prefix + ":execution:" + id
}

func (p *Persistence) executionsIndexKey() string {
	return p.prefix + ":executions"
}

func (p *Persistence) workflowsKey() string {
	return p.prefix + ":workflows"
}

func (p *Persistence) workflowVersionKey(id string, version int) string {
	return fmt.Sprintf("%s:workflow:%s:%d", p.prefix, id, version)
}

// HealthCheck pings the server.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.client.Ping(ctx).Err()
	if err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}

	return nil
}

// Close closes the client.
func (p *Persistence) Close(_ context.Context) error {
	err := p.client.Close()
	if err != nil {
		return fmt.Errorf("failed to close redis client: %w", err)
	}

	return nil
}

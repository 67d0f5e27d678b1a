//go:build integration

package kafka

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/wayflow/pkg/eventbus"
	"github.com/dukex/wayflow/pkg/events"
	"github.com/dukex/wayflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"
)

func setupKafka(t *testing.T) []string {
	t.Helper()

	ctx := context.Background()

	container, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0", tckafka.WithClusterID("test-cluster"))
	require.NoError(t, err)

	t.Cleanup(func() {
		assert.NoError(t, container.Terminate(context.Background()))
	})

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)

	return brokers
}

func TestCreateChannel_RoundTrip(t *testing.T) {
	brokers := setupKafka(t)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))

	pub, sub, err := CreateChannel(watermill.NewSlogLogger(logger), brokers, "integration")
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(logger, pub, sub)
	defer func() { _ = bus.Close() }()

	received := make(chan *events.ExecutionRequested, 1)

	require.NoError(t, bus.Handle(events.ExecutionRequestedEvent, func(_ context.Context, event any) error {
		if request, ok := event.(*events.ExecutionRequested); ok {
			received <- request
		}

		return nil
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	input := models.TriggerInput{Source: models.TriggerTypeManual, Payload: map[string]any{"order": "A-1"}}
	require.NoError(t, bus.Publish(ctx, "orders", events.NewExecutionRequested("orders", input)))
	require.NoError(t, bus.Subscribe(ctx))

	select {
	case request := <-received:
		assert.Equal(t, "orders", request.WorkflowID)
		assert.Equal(t, models.TriggerTypeManual, request.Trigger.Source)
		assert.Equal(t, "A-1", request.Trigger.Payload["order"])
	case <-ctx.Done():
		t.Fatal("timed out waiting for the execution request")
	}
}

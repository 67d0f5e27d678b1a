package redis_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/dukex/wayflow/pkg/models"
	"github.com/dukex/wayflow/pkg/persistence"
	wayflowredis "github.com/dukex/wayflow/pkg/persistence/redis"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var redisURL string

func TestMain(m *testing.M) {
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	if err != nil {
		panic("Failed to start Redis container: " + err.Error())
	}

	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		panic("Failed to get Redis endpoint: " + err.Error())
	}

	redisURL = "redis://" + endpoint + "/0"

	code := m.Run()

	if err := container.Terminate(ctx); err != nil {
		panic("Failed to terminate Redis container: " + err.Error())
	}

	os.Exit(code)
}

func setupStore(t *testing.T) *wayflowredis.Persistence {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	p, err := wayflowredis.NewPersistence(t.Context(), logger, redisURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = p.Close(context.Background())
	})

	return p
}

func newRecord(workflowID string, startedAt time.Time) *models.ExecutionRecord {
	return &models.ExecutionRecord{
		ID:          uuid.NewString(),
		WorkflowID:  workflowID,
		Status:      models.ExecutionStatusRunning,
		EntryNodeID: "start",
		StartedAt:   startedAt,
		Context:     map[string]any{"n": 1.0},
	}
}

func TestPersistence_ExecutionCAS(t *testing.T) {
	p := setupStore(t)
	ctx := t.Context()

	record := newRecord("wf-cas", time.Now().UTC())
	require.NoError(t, p.CreateExecution(ctx, record))
	assert.Equal(t, int64(1), record.Version)

	duplicate := *record
	require.ErrorIs(t, p.CreateExecution(ctx, &duplicate), persistence.ErrExecutionAlreadyExists)

	stale, err := p.ExecutionByID(ctx, record.ID)
	require.NoError(t, err)

	record.Status = models.ExecutionStatusSucceeded
	require.NoError(t, p.UpdateExecution(ctx, record))
	assert.Equal(t, int64(2), record.Version)

	err = p.UpdateExecution(ctx, stale)
	require.True(t, persistence.IsVersionConflict(err))

	loaded, err := p.ExecutionByID(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusSucceeded, loaded.Status)
	assert.Equal(t, int64(2), loaded.Version)

	_, err = p.ExecutionByID(ctx, "missing")
	require.True(t, persistence.IsExecutionNotFound(err))

	err = p.UpdateExecution(ctx, newRecord("wf-cas", time.Now()))
	require.True(t, persistence.IsExecutionNotFound(err))
}

func TestPersistence_ExecutionCAS_Concurrent(t *testing.T) {
	p := setupStore(t)
	ctx := t.Context()

	record := newRecord("wf-concurrent", time.Now().UTC())
	require.NoError(t, p.CreateExecution(ctx, record))

	const writers = 6

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)

	for range writers {
		copyRecord, err := p.ExecutionByID(ctx, record.ID)
		require.NoError(t, err)

		wg.Add(1)

		go func() {
			defer wg.Done()

			if p.UpdateExecution(ctx, copyRecord) == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}

	wg.Wait()
	assert.Equal(t, 1, successes)
}

func TestPersistence_CreateExecution_Concurrent(t *testing.T) {
	p := setupStore(t)
	ctx := t.Context()

	workflowID := "wf-create-" + uuid.NewString()
	record := newRecord(workflowID, time.Now().UTC())

	const writers = 6

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)

	for range writers {
		copyRecord := *record

		wg.Add(1)

		go func() {
			defer wg.Done()

			err := p.CreateExecution(ctx, &copyRecord)

			mu.Lock()
			defer mu.Unlock()

			switch {
			case err == nil:
				successes++
			case errors.Is(err, persistence.ErrExecutionAlreadyExists):
				conflicts++
			}
		}()
	}

	wg.Wait()
	assert.Equal(t, 1, successes)
	assert.Equal(t, writers-1, conflicts)

	records, err := p.Executions(ctx, persistence.ListExecutionsOptions{WorkflowID: workflowID})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, record.ID, records[0].ID)
	assert.Equal(t, int64(1), records[0].Version)
}

func TestPersistence_Executions(t *testing.T) {
	p := setupStore(t)
	ctx := t.Context()

	workflowID := fmt.Sprintf("wf-list-%s", uuid.NewString())
	base := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	first := newRecord(workflowID, base)
	second := newRecord(workflowID, base.Add(time.Minute))

	require.NoError(t, p.CreateExecution(ctx, first))
	require.NoError(t, p.CreateExecution(ctx, second))

	records, err := p.Executions(ctx, persistence.ListExecutionsOptions{WorkflowID: workflowID})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, second.ID, records[0].ID)
	assert.Equal(t, first.ID, records[1].ID)
}

func TestPersistence_Workflows(t *testing.T) {
	p := setupStore(t)
	ctx := t.Context()

	id := "wf-def-" + uuid.NewString()
	definition := &models.WorkflowDefinition{
		ID:      id,
		Name:    "v1",
		Trigger: models.Trigger{Type: models.TriggerTypeManual, EntryNodeID: "s"},
		Nodes:   []*models.WorkflowNode{{ID: "s", Type: models.NodeKindTrigger, Name: "S"}},
	}
	require.NoError(t, p.SaveWorkflow(ctx, definition))
	assert.Equal(t, 1, definition.Version)

	second := *definition
	second.Version = 0
	second.Name = "v2"
	require.NoError(t, p.SaveWorkflow(ctx, &second))
	assert.Equal(t, 2, second.Version)

	latest, err := p.WorkflowByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "v2", latest.Name)

	pinned, err := p.WorkflowVersion(ctx, id, 1)
	require.NoError(t, err)
	assert.Equal(t, "v1", pinned.Name)

	all, err := p.Workflows(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, all)

	_, err = p.WorkflowByID(ctx, "missing-"+uuid.NewString())
	require.True(t, persistence.IsWorkflowNotFound(err))
}

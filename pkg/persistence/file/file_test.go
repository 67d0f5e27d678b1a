package file

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dukex/wayflow/pkg/models"
	"github.com/dukex/wayflow/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPersistence(t *testing.T) {
	assert.Equal(t, "/tmp/test", NewPersistence("/tmp/test").root)
	assert.Equal(t, "/tmp/test", NewPersistence("file:///tmp/test").root)
}

func TestPersistence_HealthCheck(t *testing.T) {
	require.NoError(t, NewPersistence(t.TempDir()).HealthCheck(t.Context()))
	require.Error(t, NewPersistence(filepath.Join(t.TempDir(), "missing")).HealthCheck(t.Context()))
}

func TestValidateID(t *testing.T) {
	tests := []struct {
		id      string
		wantErr bool
	}{
		{id: "exec-1"},
		{id: "", wantErr: true},
		{id: "../etc/passwd", wantErr: true},
		{id: "a/b", wantErr: true},
		{id: `a\b`, wantErr: true},
	}

	for _, tt := range tests {
		err := validateID(tt.id)
		if tt.wantErr {
			require.ErrorIs(t, err, persistence.ErrInvalidID, tt.id)
		} else {
			require.NoError(t, err)
		}
	}
}

func newRecord(id string) *models.ExecutionRecord {
	return &models.ExecutionRecord{
		ID:          id,
		WorkflowID:  "wf-1",
		Status:      models.ExecutionStatusRunning,
		EntryNodeID: "start",
		StartedAt:   time.Now().UTC(),
		Context:     map[string]any{"k": "v"},
		Steps: []*models.ExecutionNode{
			{NodeID: "start", Type: models.NodeKindTrigger, Status: models.NodeStatusNotStarted},
		},
	}
}

func TestPersistence_ExecutionLifecycle(t *testing.T) {
	p := NewPersistence(t.TempDir())
	ctx := t.Context()

	record := newRecord("exec-1")
	require.NoError(t, p.CreateExecution(ctx, record))
	assert.Equal(t, int64(1), record.Version)

	err := p.CreateExecution(ctx, newRecord("exec-1"))
	require.ErrorIs(t, err, persistence.ErrExecutionAlreadyExists)

	record.Status = models.ExecutionStatusSucceeded
	require.NoError(t, p.UpdateExecution(ctx, record))
	assert.Equal(t, int64(2), record.Version)

	loaded, err := p.ExecutionByID(ctx, "exec-1")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusSucceeded, loaded.Status)
	assert.Equal(t, int64(2), loaded.Version)
	assert.Equal(t, "v", loaded.Context["k"])
	require.Len(t, loaded.Steps, 1)
}

func TestPersistence_UpdateExecution_VersionConflict(t *testing.T) {
	p := NewPersistence(t.TempDir())
	ctx := t.Context()

	record := newRecord("exec-1")
	require.NoError(t, p.CreateExecution(ctx, record))

	first, err := p.ExecutionByID(ctx, "exec-1")
	require.NoError(t, err)
	second, err := p.ExecutionByID(ctx, "exec-1")
	require.NoError(t, err)

	first.Status = models.ExecutionStatusSucceeded
	require.NoError(t, p.UpdateExecution(ctx, first))

	second.Status = models.ExecutionStatusCancelled
	err = p.UpdateExecution(ctx, second)
	require.ErrorIs(t, err, persistence.ErrVersionConflict)
	assert.Equal(t, int64(1), second.Version)

	stored, err := p.ExecutionByID(ctx, "exec-1")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusSucceeded, stored.Status)
}

func TestPersistence_UpdateExecution_ConcurrentWritersOneWins(t *testing.T) {
	p := NewPersistence(t.TempDir())
	ctx := t.Context()

	require.NoError(t, p.CreateExecution(ctx, newRecord("exec-1")))

	const writers = 8

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)

	for range writers {
		copyRecord, err := p.ExecutionByID(ctx, "exec-1")
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

func TestPersistence_ExecutionByID_NotFound(t *testing.T) {
	p := NewPersistence(t.TempDir())

	_, err := p.ExecutionByID(t.Context(), "nope")
	require.True(t, persistence.IsExecutionNotFound(err))

	err = p.UpdateExecution(t.Context(), newRecord("nope"))
	require.True(t, persistence.IsExecutionNotFound(err))
}

func TestPersistence_Executions(t *testing.T) {
	root := t.TempDir()
	p := NewPersistence(root)
	ctx := t.Context()

	older := newRecord("older")
	older.StartedAt = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := newRecord("newer")
	newer.StartedAt = time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	newer.WorkflowID = "wf-2"

	require.NoError(t, p.CreateExecution(ctx, older))
	require.NoError(t, p.CreateExecution(ctx, newer))

	// stray files are ignored
	require.NoError(t, os.WriteFile(filepath.Join(root, executionsDir, "broken.json"), []byte("{"), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(root, executionsDir, "notes.txt"), []byte("x"), 0600))

	all, err := p.Executions(ctx, persistence.ListExecutionsOptions{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "newer", all[0].ID)

	filtered, err := p.Executions(ctx, persistence.ListExecutionsOptions{WorkflowID: "wf-1"})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, "older", filtered[0].ID)
}

func TestPersistence_Executions_EmptyRoot(t *testing.T) {
	records, err := NewPersistence(t.TempDir()).Executions(t.Context(), persistence.ListExecutionsOptions{})
	require.NoError(t, err)
	assert.Empty(t, records)
}

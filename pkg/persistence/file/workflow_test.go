package file

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dukex/wayflow/pkg/models"
	"github.com/dukex/wayflow/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const yamlDefinition = `
id: onboarding
name: Onboarding
trigger:
  type: manual
  entry_node_id: start
nodes:
  - id: start
    type: trigger
    name: Start
  - id: profile
    type: form
    name: Profile
    config:
      fields:
        - id: email
          required: true
    runtime:
      timeout_ms: 500
      retry:
        max: 2
        delay_ms: 10
connections:
  - from: start
    to: profile
`

func writeWorkflowFile(t *testing.T, root, name, content string) {
	t.Helper()

	dir := filepath.Join(root, workflowsDir)
	require.NoError(t, os.MkdirAll(dir, 0750))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0600))
}

func TestPersistence_WorkflowByID_YAML(t *testing.T) {
	root := t.TempDir()
	writeWorkflowFile(t, root, "onboarding.yaml", yamlDefinition)

	definition, err := NewPersistence(root).WorkflowByID(t.Context(), "onboarding")
	require.NoError(t, err)

	assert.Equal(t, "Onboarding", definition.Name)
	assert.Equal(t, "start", definition.Trigger.EntryNodeID)
	require.Len(t, definition.Nodes, 2)

	profile := definition.Node("profile")
	require.NotNil(t, profile)
	assert.Equal(t, models.NodeKindForm, profile.Type)
	assert.Equal(t, 2, profile.MaxRetries())
	assert.Equal(t, int64(500), profile.Runtime.TimeoutMs)
	require.Len(t, definition.Connections, 1)
	assert.Equal(t, models.ConditionTypeAlways, definition.Connections[0].ConditionType())
}

func TestPersistence_SaveAndList(t *testing.T) {
	root := t.TempDir()
	p := NewPersistence(root)
	ctx := t.Context()

	writeWorkflowFile(t, root, "b.yml", "name: From file name\ntrigger: {type: manual, entry_node_id: s}\nnodes: [{id: s, type: trigger, name: S}]\n")

	require.NoError(t, p.SaveWorkflow(ctx, &models.WorkflowDefinition{
		ID:   "a",
		Name: "Saved",
		Trigger: models.Trigger{
			Type:        models.TriggerTypeManual,
			EntryNodeID: "s",
		},
		Nodes: []*models.WorkflowNode{{ID: "s", Type: models.NodeKindTrigger, Name: "S"}},
	}))
	assert.FileExists(t, filepath.Join(root, workflowsDir, "a.json"))

	definitions, err := p.Workflows(ctx)
	require.NoError(t, err)
	require.Len(t, definitions, 2)
	assert.Equal(t, "a", definitions[0].ID)
	assert.Equal(t, "b", definitions[1].ID)
}

func TestPersistence_WorkflowByID_Errors(t *testing.T) {
	root := t.TempDir()
	writeWorkflowFile(t, root, "broken.json", "{not json")

	p := NewPersistence(root)

	_, err := p.WorkflowByID(t.Context(), "missing")
	require.True(t, persistence.IsWorkflowNotFound(err))

	_, err = p.WorkflowByID(t.Context(), "../secrets")
	require.ErrorIs(t, err, persistence.ErrInvalidID)

	_, err = p.WorkflowByID(t.Context(), "broken")
	require.Error(t, err)
	assert.False(t, persistence.IsWorkflowNotFound(err))
}

func TestPersistence_Workflows_MissingDir(t *testing.T) {
	definitions, err := NewPersistence(t.TempDir()).Workflows(t.Context())
	require.NoError(t, err)
	assert.Empty(t, definitions)
}

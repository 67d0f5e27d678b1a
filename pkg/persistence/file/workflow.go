package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dukex/wayflow/pkg/models"
	"github.com/dukex/wayflow/pkg/persistence"
	"gopkg.in/yaml.v3"
)

var definitionExtensions = []string{".json", ".yaml", ".yml"}

// Workflows returns every definition under <root>/workflows, sorted by id.
func (fp *Persistence) Workflows(ctx context.Context) ([]*models.WorkflowDefinition, error) {
	dir := filepath.Join(fp.root, workflowsDir)

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []*models.WorkflowDefinition{}, nil
		}

		return nil, fmt.Errorf("failed to list workflow files: %w", err)
	}

	definitions := make([]*models.WorkflowDefinition, 0, len(entries))

	for _, entry := range entries {
		ext := filepath.Ext(entry.Name())
		if entry.IsDir() || !isDefinitionFile(ext) {
			continue
		}

		definition, err := readDefinition(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}

		if definition.ID == "" {
			definition.ID = strings.TrimSuffix(entry.Name(), ext)
		}

		definitions = append(definitions, definition)
	}

	sort.Slice(definitions, func(i, j int) bool { return definitions[i].ID < definitions[j].ID })

	return definitions, nil
}

// WorkflowByID reads <root>/workflows/<id>.{json,yaml,yml}.
func (fp *Persistence) WorkflowByID(_ context.Context, id string) (*models.WorkflowDefinition, error) {
	err := validateID(id)
	if err != nil {
		return nil, persistence.NewWorkflowError("WorkflowByID", id, err)
	}

	for _, ext := range definitionExtensions {
		path := filepath.Join(fp.root, workflowsDir, id+ext)

		definition, err := readDefinition(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}

			return nil, persistence.NewWorkflowError("WorkflowByID", id, err)
		}

		if definition.ID == "" {
			definition.ID = id
		}

		return definition, nil
	}

	return nil, persistence.NewWorkflowError("WorkflowByID", id, persistence.ErrWorkflowNotFound)
}

// SaveWorkflow writes the definition as <root>/workflows/<id>.json.
func (fp *Persistence) SaveWorkflow(_ context.Context, definition *models.WorkflowDefinition) error {
	err := validateID(definition.ID)
	if err != nil {
		return persistence.NewWorkflowError("SaveWorkflow", definition.ID, err)
	}

	data, err := json.MarshalIndent(definition, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal workflow %s: %w", definition.ID, err)
	}

	return writeAtomic(filepath.Join(fp.root, workflowsDir, definition.ID+".json"), data)
}

func isDefinitionFile(ext string) bool {
	for _, e := range definitionExtensions {
		if e == ext {
			return true
		}
	}

	return false
}

func readDefinition(path string) (*models.WorkflowDefinition, error) {
	body, err := os.ReadFile(path) // #nosec G304 -- path is built from a validated id
	if err != nil {
		return nil, err
	}

	var definition models.WorkflowDefinition

	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(body, &definition)
	default:
		err = json.Unmarshal(body, &definition)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to parse workflow file %s: %w", filepath.Base(path), err)
	}

	return &definition, nil
}

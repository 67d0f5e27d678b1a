package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// DecodeConfig converts a node's opaque config map into out and validates
// it against out's `validate` struct tags.
func DecodeConfig(config map[string]any, out any) error {
	if config == nil {
		config = map[string]any{}
	}

	data, err := json.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to encode node config: %w", err)
	}

	err = json.Unmarshal(data, out)
	if err != nil {
		return fmt.Errorf("invalid node config: %w", err)
	}

	err = validate.Struct(out)
	if err != nil {
		return fmt.Errorf("invalid node config: %w", err)
	}

	return nil
}

package boards

import (
	"encoding/json"
	"fmt"
	"strings"

	_ "embed"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed schema/board-v1.json
var boardSchemaJSON string

type Validator struct {
	schema *jsonschema.Schema
}

func NewValidator() (*Validator, error) {
	compiler := jsonschema.NewCompiler()

	if err := compiler.AddResource("board-v1.json",
		strings.NewReader(boardSchemaJSON)); err != nil {
		return nil, fmt.Errorf("failed to add schema resource: %w", err)
	}

	schema, err := compiler.Compile("board-v1.json")
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}

	return &Validator{schema: schema}, nil
}

// ValidateBoard checks a YAML board definition against the embedded schema.
func (v *Validator) ValidateBoard(data []byte) error {
	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("invalid YAML: %w", err)
	}

	// The schema engine speaks JSON types, so round-trip through JSON.
	jsonData, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to convert definition: %w", err)
	}
	var jsonDoc interface{}
	if err := json.Unmarshal(jsonData, &jsonDoc); err != nil {
		return fmt.Errorf("failed to convert definition: %w", err)
	}

	if err := v.schema.Validate(jsonDoc); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}

	return nil
}

package parsers

import (
	"encoding/json"
	"fmt"
	"strings"

	_ "embed"

	"github.com/KevinKickass/OpenSimCore/internal/types"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schema/simdd-v1.json
var simddSchemaJSON string

// SchemaValidator checks SimDD documents against the bundled schema.
type SchemaValidator struct {
	schema *jsonschema.Schema
}

func NewSchemaValidator() (*SchemaValidator, error) {
	compiler := jsonschema.NewCompiler()

	if err := compiler.AddResource("simdd-v1.json",
		strings.NewReader(simddSchemaJSON)); err != nil {
		return nil, fmt.Errorf("failed to add schema resource: %w", err)
	}

	schema, err := compiler.Compile("simdd-v1.json")
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}

	return &SchemaValidator{schema: schema}, nil
}

// Validate checks raw JSON. Failures wrap types.ErrSchemaViolation.
func (v *SchemaValidator) Validate(data []byte) error {
	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("%w: invalid JSON: %v", types.ErrSchemaViolation, err)
	}

	if err := v.schema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", types.ErrSchemaViolation, err)
	}

	return nil
}

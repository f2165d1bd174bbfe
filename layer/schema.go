package layer

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed values.schema.json
var valuesSchemaJSON string

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func valuesSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = jsonschema.CompileString("values.schema.json", valuesSchemaJSON)
	})
	return schema, schemaErr
}

// Validate checks a snapshot against the layer schema and its own dimensions.
func Validate(v Values) error {
	s, err := valuesSchema()
	if err != nil {
		return fmt.Errorf("compiling layer schema: %w", err)
	}

	// Validate the canonical encoding so files written with other key casing
	// are judged on content.
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}
	if err := s.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}
	return v.Check()
}

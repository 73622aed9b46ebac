package webhooks

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Schema validates raw webhook payloads before they are decoded.
type Schema struct {
	compiled *jsonschema.Schema
}

// MustCompileSchema compiles an inline JSON schema document.
func MustCompileSchema(name, document string) *Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, strings.NewReader(document)); err != nil {
		panic(fmt.Sprintf("add schema %s: %v", name, err))
	}
	return &Schema{compiled: compiler.MustCompile(name)}
}

// Validate checks raw JSON against the schema.
func (s *Schema) Validate(raw []byte) error {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	if err := s.compiled.Validate(v); err != nil {
		return fmt.Errorf("payload does not match schema: %w", err)
	}
	return nil
}

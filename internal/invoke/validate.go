package invoke

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// schemaDocument unwraps an output schema supplied as a wrapper object
// holding the actual JSON Schema under "output_schema"; a raw schema is
// returned as-is.
func schemaDocument(schema map[string]any) any {
	if inner, ok := schema["output_schema"]; ok {
		return inner
	}
	return schema
}

// validateAgainstSchema checks an extracted JSON value against the
// caller-supplied output schema.
func validateAgainstSchema(schema map[string]any, v any) error {
	b, err := json.Marshal(schemaDocument(schema))
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	compiled, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	if err := compiled.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}

package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// rowSchema describes one catalog row after header normalization.
var rowSchema = map[string]any{
	"type":     "object",
	"required": []string{"codigo", "terminologia_eventos"},
	"properties": map[string]any{
		"codigo":               map[string]any{"type": "string", "minLength": 1, "maxLength": 64},
		"terminologia_eventos": map[string]any{"type": "string", "minLength": 1},
		"correlacao":           map[string]any{"type": "string"},
		"tipo_assinatura":      map[string]any{"type": "string", "maxLength": 16},
	},
}

// compileSchema compiles schemaMap once so it can validate every row.
func compileSchema(schemaMap map[string]any) (*jsonschema.Schema, error) {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("row.json", bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("row.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

// validateRow checks a header->value row. Empty cells are dropped first so
// that a blank required column is reported as missing.
func validateRow(schema *jsonschema.Schema, row map[string]string) error {
	v := make(map[string]any, len(row))
	for k, val := range row {
		if val != "" {
			v[k] = val
		}
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("row does not match schema: %w", err)
	}
	return nil
}

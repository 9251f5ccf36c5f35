package classify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

var (
	nullableString = map[string]any{"type": []any{"string", "null"}}
	numberLike     = map[string]any{"type": []any{"number", "string", "null"}}
	stringList     = map[string]any{"type": []any{"array", "string", "null"}, "items": nullableString}
)

// payloadSchema accepts every shape the normalizer understands: a single
// page object, an object with a "pages" map or array, or a bare array.
var payloadSchema = map[string]any{
	"type": []any{"object", "array"},
	"properties": map[string]any{
		"complexity":          nullableString,
		"doc_type":            nullableString,
		"docType":             nullableString,
		"document_type":       nullableString,
		"primary_language":    nullableString,
		"primaryLanguage":     nullableString,
		"secondary_languages": stringList,
		"secondaryLanguages":  stringList,
		"names":               stringList,
		"confidence":          numberLike,
		"pages":               map[string]any{"type": []any{"object", "array"}},
	},
	"items": map[string]any{"type": "object"},
}

var compilePayloadSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	b, err := json.Marshal(payloadSchema)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("classification.json", bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	return compiler.Compile("classification.json")
})

// ValidatePayload checks that data has the broad shape of a classification.
func ValidatePayload(data []byte) error {
	schema, err := compilePayloadSchema()
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}

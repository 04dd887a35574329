package statedoc

import (
	_ "embed"
	"fmt"
	"sync"

	"github.com/kaptinlin/jsonschema"
)

//go:embed schema.json
var schemaDocument []byte

var (
	compileOnce    sync.Once
	compiledSchema *jsonschema.Schema
	compileErr     error
)

func documentSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.AssertFormat = true
		compiledSchema, compileErr = compiler.Compile(schemaDocument)
		if compileErr != nil {
			compileErr = fmt.Errorf("compile state document schema: %w", compileErr)
		}
	})
	return compiledSchema, compileErr
}

// ValidateEnvelope checks raw JSON against the state document schema. It is
// applied to imported documents before they replace the persisted state.
func ValidateEnvelope(raw []byte) error {
	schema, err := documentSchema()
	if err != nil {
		return err
	}
	result := schema.ValidateJSON(raw)
	if result.IsValid() {
		return nil
	}
	return &SchemaError{Reason: fmt.Sprintf("document failed schema validation: %v", result.Errors)}
}

package llm

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// SchemaFor reflects a JSON Schema for T suitable for a ToolDefinition's
// Parameters field. The schema is inlined (no $defs references) so every
// provider accepts it. Panics on marshal failure — schemas are reflected
// from static types at startup, so a failure is a programming error.
func SchemaFor[T any]() string {
	reflector := jsonschema.Reflector{
		DoNotReference: true,
		Anonymous:      true,
	}
	var zero T
	schema := reflector.Reflect(&zero)
	schema.Version = ""
	raw, err := json.Marshal(schema)
	if err != nil {
		panic(fmt.Sprintf("llm.SchemaFor: marshal schema: %v", err))
	}
	return string(raw)
}

// ToolFor builds a ToolDefinition for T with the given name and description.
func ToolFor[T any](name, description string) ToolDefinition {
	return ToolDefinition{
		Name:        name,
		Description: description,
		Parameters:  SchemaFor[T](),
	}
}

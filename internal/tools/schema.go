package tools

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// schemaCache compiles each tool's declared ParameterSchema once and
// reuses the compiled validator across calls, mirroring the plugin
// manifest schema cache in pkg/pluginsdk's validation helper.
type schemaCache struct {
	compiled sync.Map // name string -> *jsonschema.Schema
}

func newSchemaCache() *schemaCache {
	return &schemaCache{}
}

func (c *schemaCache) compile(name string, raw json.RawMessage) (*jsonschema.Schema, error) {
	if cached, ok := c.compiled.Load(name); ok {
		return cached.(*jsonschema.Schema), nil
	}
	schema, err := jsonschema.CompileString(name+".schema.json", string(raw))
	if err != nil {
		return nil, err
	}
	c.compiled.Store(name, schema)
	return schema, nil
}

// validateJSONSchema checks decoded arguments against a tool's declared
// JSON Schema, catching shape errors (wrong type, an enum mismatch, an
// out-of-range number) that a tool's own hand-written Validate may not
// re-check field by field.
func (c *schemaCache) validateJSONSchema(name string, schemaRaw, args json.RawMessage) error {
	schema, err := c.compile(name, schemaRaw)
	if err != nil {
		return nil // a malformed declared schema shouldn't block execution
	}

	var decoded any = map[string]any{}
	if len(args) > 0 {
		if err := json.Unmarshal(args, &decoded); err != nil {
			return fmt.Errorf("arguments are not valid JSON: %w", err)
		}
	}
	return schema.Validate(decoded)
}

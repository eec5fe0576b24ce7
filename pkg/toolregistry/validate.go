package toolregistry

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"github.com/harun/toolgate/pkg/provider"
)

type schemaCache struct {
	mu      sync.Mutex
	schemas map[string]*gojsonschema.Schema
}

func newSchemaCache() *schemaCache {
	return &schemaCache{schemas: make(map[string]*gojsonschema.Schema)}
}

func (c *schemaCache) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.schemas = make(map[string]*gojsonschema.Schema)
}

func (c *schemaCache) get(decl provider.ToolDecl) (*gojsonschema.Schema, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if schema, ok := c.schemas[decl.Name]; ok {
		return schema, nil
	}
	schema, err := compileSchema(decl.InputSchema)
	if err != nil {
		return nil, err
	}
	c.schemas[decl.Name] = schema
	return schema, nil
}

// ValidateArgs checks args against the declaration's input schema.
func (r *Registry) ValidateArgs(decl provider.ToolDecl, args map[string]interface{}) error {
	if len(decl.InputSchema) == 0 {
		return nil
	}
	schema, err := r.schemas.get(decl)
	if err != nil {
		// An unusable schema from a backend must not block the call.
		r.logger.Warn().Err(err).Str("tool", decl.Name).Msg("Ignoring invalid tool schema")
		return nil
	}
	return validateParameters(schema, args)
}

// ValidateArgs checks args against schema without caching.
func ValidateArgs(schema map[string]interface{}, args map[string]interface{}) error {
	if len(schema) == 0 {
		return nil
	}
	compiled, err := compileSchema(schema)
	if err != nil {
		return err
	}
	return validateParameters(compiled, args)
}

func compileSchema(schema map[string]interface{}) (*gojsonschema.Schema, error) {
	// Round-trip through JSON so typed slices ([]string) load like decoded ones.
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("failed to encode schema: %w", err)
	}
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}
	return compiled, nil
}

func validateParameters(schema *gojsonschema.Schema, params map[string]interface{}) error {
	if params == nil {
		params = map[string]interface{}{}
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(params))
	if err != nil {
		return err
	}

	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("invalid arguments: %s", strings.Join(msgs, "; "))
	}
	return nil
}

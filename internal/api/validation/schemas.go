package validation

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Request body schemas
const (
	SchemaCreateKey = "create_key.json"
	SchemaUpdateKey = "update_key.json"
)

//go:embed schemas/*.json
var schemaFS embed.FS

var compiled = mustCompileSchemas(SchemaCreateKey, SchemaUpdateKey)

func mustCompileSchemas(names ...string) map[string]*jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft7

	for _, name := range names {
		data, err := schemaFS.ReadFile("schemas/" + name)
		if err != nil {
			panic(fmt.Sprintf("missing embedded schema %s: %v", name, err))
		}
		if err := compiler.AddResource(name, bytes.NewReader(data)); err != nil {
			panic(fmt.Sprintf("invalid embedded schema %s: %v", name, err))
		}
	}

	schemas := make(map[string]*jsonschema.Schema, len(names))
	for _, name := range names {
		schemas[name] = compiler.MustCompile(name)
	}
	return schemas
}

// ValidateBody checks a JSON request body against one of the embedded
// schemas. Failures are reported as ValidationError naming the offending
// field where there is one.
func ValidateBody(schemaName string, body []byte) error {
	schema, ok := compiled[schemaName]
	if !ok {
		return fmt.Errorf("unknown schema: %s", schemaName)
	}

	var doc interface{}
	if err := json.Unmarshal(body, &doc); err != nil {
		return ValidationError{Reason: "body is not valid JSON"}
	}

	if err := schema.Validate(doc); err != nil {
		var verr *jsonschema.ValidationError
		if errors.As(err, &verr) {
			leaf := deepestCause(verr)
			return ValidationError{
				Field:  fieldName(leaf.InstanceLocation),
				Reason: leaf.Message,
			}
		}
		return ValidationError{Reason: err.Error()}
	}
	return nil
}

// RequireQuery rejects a missing query parameter
func RequireQuery(field, value string, present bool) error {
	if !present || value == "" {
		return ValidationError{Field: field, Reason: "query parameter is required"}
	}
	return nil
}

func deepestCause(err *jsonschema.ValidationError) *jsonschema.ValidationError {
	for len(err.Causes) > 0 {
		err = err.Causes[0]
	}
	return err
}

// fieldName turns a JSON pointer such as "/name" into "name"
func fieldName(pointer string) string {
	return strings.ReplaceAll(strings.TrimPrefix(pointer, "/"), "/", ".")
}

// Package validation checks request payloads against embedded JSON schemas.
package validation

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Schema names.
const (
	SchemaSignup = "signup"
	SchemaLogin  = "login"
)

// DefaultCacheSize is the number of compiled schemas kept in memory.
const DefaultCacheSize = 16

//go:embed schemas/*.json
var schemaFS embed.FS

// ErrUnknownSchema is returned for a schema name with no embedded definition.
var ErrUnknownSchema = errors.New("unknown schema")

// Error describes why a payload failed validation.
type Error struct {
	// Path is a JSON path into the payload, e.g. "$.username".
	Path    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("validation failed at '%s': %s", e.Path, e.Message)
}

// SchemaValidator validates payloads, compiling each schema once and keeping
// compiled schemas in an LRU cache.
type SchemaValidator struct {
	schemaCache *lru.Cache[string, *jsonschema.Schema]
}

// NewSchemaValidator creates a validator with room for cacheSize compiled schemas.
func NewSchemaValidator(cacheSize int) (*SchemaValidator, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New[string, *jsonschema.Schema](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create schema cache: %w", err)
	}
	return &SchemaValidator{schemaCache: cache}, nil
}

// Validate checks payload against the named schema. A payload that is not
// JSON, or that violates the schema, yields an *Error.
func (v *SchemaValidator) Validate(name string, payload []byte) error {
	schema, err := v.schema(name)
	if err != nil {
		return err
	}

	instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(payload))
	if err != nil {
		return &Error{Path: "$", Message: "body is not valid JSON"}
	}

	if err := schema.Validate(instance); err != nil {
		return formatValidationError(err)
	}
	return nil
}

func (v *SchemaValidator) schema(name string) (*jsonschema.Schema, error) {
	if cached, ok := v.schemaCache.Get(name); ok {
		return cached, nil
	}

	source, err := schemaFS.ReadFile("schemas/" + name + ".json")
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSchema, name)
	}

	schema, err := compileSchema(name, source)
	if err != nil {
		return nil, err
	}
	v.schemaCache.Add(name, schema)
	return schema, nil
}

func compileSchema(name string, source []byte) (*jsonschema.Schema, error) {
	parsed, err := jsonschema.UnmarshalJSON(bytes.NewReader(source))
	if err != nil {
		return nil, fmt.Errorf("parse schema %s: %w", name, err)
	}

	compiler := jsonschema.NewCompiler()
	compiler.DefaultDraft(jsonschema.Draft7)

	url := name + ".json"
	if err := compiler.AddResource(url, parsed); err != nil {
		return nil, fmt.Errorf("add schema resource %s: %w", name, err)
	}

	schema, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", name, err)
	}
	return schema, nil
}

// formatValidationError reduces a jsonschema error to the first leaf cause,
// e.g. "validation failed at '$.username': ...".
func formatValidationError(err error) error {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return &Error{Path: "$", Message: err.Error()}
	}

	leaf := ve
	for len(leaf.Causes) > 0 {
		leaf = leaf.Causes[0]
	}

	path := "$"
	var parts []string
	for _, part := range leaf.InstanceLocation {
		if part != "" {
			parts = append(parts, part)
		}
	}
	if len(parts) > 0 {
		path = "$." + strings.Join(parts, ".")
	}

	msg := leaf.Error()
	if i := strings.LastIndex(msg, ": "); i >= 0 && i+2 < len(msg) {
		msg = msg[i+2:]
	}
	if len(msg) > 200 {
		msg = msg[:200] + "... (truncated)"
	}
	return &Error{Path: path, Message: msg}
}

package schema

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed document.schema.json
var embeddedDocumentSchema []byte

// Validator validates collection documents against the embedded JSON Schema.
type Validator struct {
	schema *jsonschema.Schema
}

var (
	defaultValidator     *Validator
	defaultValidatorErr  error
	defaultValidatorOnce sync.Once
)

// NewValidator creates a new schema validator, loading the embedded schema.
func NewValidator() (*Validator, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(DocumentSchemaURL, strings.NewReader(string(embeddedDocumentSchema))); err != nil {
		return nil, fmt.Errorf("failed to add embedded schema resource: %w", err)
	}

	schema, err := compiler.Compile(DocumentSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("failed to compile embedded schema: %w", err)
	}

	return &Validator{schema: schema}, nil
}

// Default returns a process wide validator, compiled once.
func Default() (*Validator, error) {
	defaultValidatorOnce.Do(func() {
		defaultValidator, defaultValidatorErr = NewValidator()
	})
	return defaultValidator, defaultValidatorErr
}

// ValidateDocument validates a decoded JSON document (as produced by
// json.Unmarshal into interface{}).
func (v *Validator) ValidateDocument(doc interface{}) error {
	if err := v.schema.Validate(doc); err != nil {
		if validationErr, ok := err.(*jsonschema.ValidationError); ok {
			var errorMessages []string
			collectErrors(validationErr, &errorMessages)
			if len(errorMessages) == 0 {
				return fmt.Errorf("schema validation failed: %s", validationErr.Message)
			}
			return fmt.Errorf("schema validation failed:\n%s", strings.Join(errorMessages, "\n"))
		}
		return fmt.Errorf("schema validation failed: %w", err)
	}
	return nil
}

// ValidateRaw validates raw JSON bytes.
func (v *Validator) ValidateRaw(raw []byte) error {
	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return v.ValidateDocument(doc)
}

// collectErrors recursively collects all validation errors into a slice
func collectErrors(err *jsonschema.ValidationError, messages *[]string) {
	if err.InstanceLocation != "" || len(err.Causes) == 0 {
		*messages = append(*messages, fmt.Sprintf("- %s: %s", locationOrRoot(err.InstanceLocation), err.Message))
	}
	for _, cause := range err.Causes {
		collectErrors(cause, messages)
	}
}

func locationOrRoot(loc string) string {
	if loc == "" {
		return "/"
	}
	return loc
}

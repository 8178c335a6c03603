package config

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

const (
	schemaDraft = "http://json-schema.org/draft-07/schema#"
	schemaID    = "https://grovetools.dev/schemas/causes.schema.json"
)

// GenerateSchema returns the JSON Schema for causes.yml, reflected from
// Config with yaml key names. The top level stays open so extension
// sections such as "logging" validate.
func GenerateSchema() ([]byte, error) {
	reflector := jsonschema.Reflector{
		FieldNameTag:              "yaml",
		ExpandedStruct:            true,
		AllowAdditionalProperties: true,
	}
	s := reflector.Reflect(new(Config))
	s.Version = schemaDraft
	s.ID = jsonschema.ID(schemaID)
	s.Title, s.Description = "causes configuration", "Schema for causes.yml."
	return json.MarshalIndent(s, "", "  ")
}

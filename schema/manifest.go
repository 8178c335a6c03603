package schema

// DocumentSchemaURL is the canonical identifier of the embedded document schema.
// Both entity kinds share it; kind specific constraints live in their decoders.
const DocumentSchemaURL = "https://schemas.grove.sh/causes/document.schema.json"

// KindSchemas maps entity kinds to the schema resource their documents are checked against.
var KindSchemas = map[string]string{
	"organization": DocumentSchemaURL,
	"event":        DocumentSchemaURL,
}

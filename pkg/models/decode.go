package models

import (
	"encoding/json"
	"fmt"

	"github.com/grovetools/causes/errors"
	"github.com/grovetools/causes/schema"
)

// Decoder parses one raw remote document into an entity. It returns a
// MALFORMED_RECORD error for documents that cannot be parsed.
type Decoder[T Record] func(raw json.RawMessage) (T, error)

// Legacy field names written by older clients, keyed by canonical name.
var (
	organizationAliases = map[string]string{
		"displayName": "name",
		"description": "details",
	}
	eventAliases = map[string]string{
		"displayName": "eventName",
		"description": "eventDescription",
		"category":    "eventCategory",
	}
)

// DecodeOrganization parses an organization document.
func DecodeOrganization(raw json.RawMessage) (Organization, error) {
	doc, err := normalize(raw, organizationAliases)
	if err != nil {
		return Organization{}, err
	}
	return Organization{
		ID:          stringField(doc, "id"),
		DisplayName: stringField(doc, "displayName"),
		Description: stringField(doc, "description"),
		Category:    stringField(doc, "category"),
		ImageURL:    stringField(doc, "imageUrl"),
	}, nil
}

// DecodeEvent parses an event document.
func DecodeEvent(raw json.RawMessage) (Event, error) {
	doc, err := normalize(raw, eventAliases)
	if err != nil {
		return Event{}, err
	}
	return Event{
		ID:          stringField(doc, "id"),
		DisplayName: stringField(doc, "displayName"),
		Description: stringField(doc, "description"),
		Category:    stringField(doc, "category"),
		ImageURL:    stringField(doc, "imageUrl"),
	}, nil
}

// normalize maps legacy keys onto canonical ones (canonical keys win) and
// validates the result against the document schema.
func normalize(raw json.RawMessage, aliases map[string]string) (map[string]interface{}, error) {
	var doc map[string]interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, errors.MalformedRecord("", err)
	}
	if doc == nil {
		return nil, errors.MalformedRecord("", fmt.Errorf("document is null"))
	}

	for canonical, legacy := range aliases {
		if _, ok := doc[canonical]; ok {
			continue
		}
		if v, ok := doc[legacy]; ok {
			doc[canonical] = v
		}
	}

	validator, err := schema.Default()
	if err != nil {
		return nil, errors.Internal("document schema unavailable", err)
	}
	if err := validator.ValidateDocument(doc); err != nil {
		return nil, errors.MalformedRecord(stringField(doc, "id"), err)
	}
	return doc, nil
}

func stringField(doc map[string]interface{}, key string) string {
	s, _ := doc[key].(string)
	return s
}

package models

import (
	"encoding/json"
	"testing"

	"github.com/grovetools/causes/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeOrganization(t *testing.T) {
	org, err := DecodeOrganization(json.RawMessage(`{
		"id": "1",
		"displayName": "Helping Hands",
		"description": "Meals for families",
		"category": "Health",
		"imageUrl": "https://img/1.png"
	}`))
	require.NoError(t, err)
	assert.Equal(t, Organization{
		ID:          "1",
		DisplayName: "Helping Hands",
		Description: "Meals for families",
		Category:    "Health",
		ImageURL:    "https://img/1.png",
	}, org)
}

func TestDecodeOrganizationLegacyFields(t *testing.T) {
	org, err := DecodeOrganization(json.RawMessage(`{"id":"7","name":"Green Earth","details":"Tree planting","category":"Environment"}`))
	require.NoError(t, err)
	assert.Equal(t, "Green Earth", org.DisplayName)
	assert.Equal(t, "Tree planting", org.Description)
}

func TestDecodeCanonicalFieldsWin(t *testing.T) {
	org, err := DecodeOrganization(json.RawMessage(`{"id":"7","name":"old","displayName":"new","category":"Health"}`))
	require.NoError(t, err)
	assert.Equal(t, "new", org.DisplayName)
}

func TestDecodeEventLegacyFields(t *testing.T) {
	ev, err := DecodeEvent(json.RawMessage(`{"id":"e1","eventName":"Beach Cleanup","eventDescription":"Saturday morning","eventCategory":"Environment"}`))
	require.NoError(t, err)
	assert.Equal(t, Event{
		ID:          "e1",
		DisplayName: "Beach Cleanup",
		Description: "Saturday morning",
		Category:    "Environment",
	}, ev)
}

func TestDecodeMalformed(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		wantID string
	}{
		{name: "not json", raw: `{`},
		{name: "null", raw: `null`},
		{name: "array", raw: `[1,2]`},
		{name: "missing display name", raw: `{"id":"9","category":"Health"}`, wantID: "9"},
		{name: "numeric category", raw: `{"id":"10","displayName":"x","category":3}`, wantID: "10"},
		{name: "missing id", raw: `{"displayName":"x","category":"Health"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeOrganization(json.RawMessage(tt.raw))
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrCodeMalformedRecord), "got %v", err)

			var coded *errors.Error
			require.ErrorAs(t, err, &coded)
			assert.Equal(t, tt.wantID, coded.Details["id"])
		})
	}
}

func TestEventAliasesDoNotApplyToOrganizations(t *testing.T) {
	_, err := DecodeOrganization(json.RawMessage(`{"id":"1","eventName":"x","eventCategory":"Health"}`))
	assert.True(t, errors.Is(err, errors.ErrCodeMalformedRecord))
}

func TestKindValid(t *testing.T) {
	assert.True(t, KindOrganization.Valid())
	assert.True(t, KindEvent.Valid())
	assert.False(t, Kind("volunteer").Valid())
}

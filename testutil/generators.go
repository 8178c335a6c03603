package testutil

import (
	"fmt"

	"github.com/grovetools/causes/pkg/models"
	"github.com/grovetools/causes/pkg/query"
	"pgregory.net/rapid"
)

const (
	MinEntities = 0
	MaxEntities = 20
)

// Categories drawn by the generators. Mixed case on purpose so exact
// category matching is exercised.
var Categories = []string{"Health", "health", "Education", "Environment", "Animals"}

var (
	wordGen  = rapid.StringMatching(`[A-Za-z]{1,8}`)
	queryGen = rapid.StringMatching(`[A-Za-z]{1,4}`)
)

// GenOrganization draws an organization with the given id.
func GenOrganization(t *rapid.T, id string) models.Organization {
	name := wordGen.Draw(t, "name")
	if rapid.Bool().Draw(t, "twoWords") {
		name += " " + wordGen.Draw(t, "name2")
	}
	var description string
	if rapid.Bool().Draw(t, "hasDescription") {
		description = wordGen.Draw(t, "description")
	}
	return models.Organization{
		ID:          id,
		DisplayName: name,
		Description: description,
		Category:    rapid.SampledFrom(Categories).Draw(t, "category"),
	}
}

// GenOrganizations draws a list of organizations with unique ids.
func GenOrganizations(t *rapid.T, minCount, maxCount int) []models.Organization {
	n := rapid.IntRange(minCount, maxCount).Draw(t, "numEntities")
	offset := rapid.IntRange(0, 1000).Draw(t, "idOffset")
	items := make([]models.Organization, 0, n)
	for i := range n {
		items = append(items, GenOrganization(t, fmt.Sprintf("org-%d", offset+i)))
	}
	return rapid.Permutation(items).Draw(t, "order")
}

// ParamsGen draws query params, half of them unrestricted per field.
func ParamsGen() *rapid.Generator[query.Params] {
	return rapid.Custom(func(t *rapid.T) query.Params {
		var p query.Params
		if rapid.Bool().Draw(t, "hasCategory") {
			p.Category = rapid.SampledFrom(Categories).Draw(t, "categoryFilter")
		}
		if rapid.Bool().Draw(t, "hasSearch") {
			p.Search = queryGen.Draw(t, "search")
		}
		return p
	})
}

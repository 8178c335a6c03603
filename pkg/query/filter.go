package query

import (
	"strings"

	"github.com/grovetools/causes/pkg/models"
	"golang.org/x/text/cases"
)

// folder maps every case variant of a letter to one form (σ, ς and Σ
// included). The fold Caser is stateless.
var folder = cases.Fold()

// Filter returns the entities of items selected by p, in their original
// order. It never modifies items; the result is a new slice. The only
// failure is invalid params, in which case no partial result is returned.
func Filter[T models.Record](items []T, p Params) ([]T, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	results := make([]T, 0, len(items))
	needle := folder.String(p.Search)
	for _, item := range items {
		if matches(item, p.Category, needle) {
			results = append(results, item)
		}
	}
	return results, nil
}

// Matches reports whether a single entity is selected by p. Invalid params
// match nothing.
func Matches[T models.Record](item T, p Params) bool {
	if p.Validate() != nil {
		return false
	}
	return matches(item, p.Category, folder.String(p.Search))
}

// matches expects needle already folded.
func matches(item models.Record, category, needle string) bool {
	if category != AllCategories && item.GetCategory() != category {
		return false
	}
	if needle == "" {
		return true
	}
	if strings.Contains(folder.String(item.GetDisplayName()), needle) {
		return true
	}
	return strings.Contains(folder.String(item.GetDescription()), needle)
}

// Categories returns the distinct categories of items in first-seen order.
// Presentation layers use it to build category chips.
func Categories[T models.Record](items []T) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, item := range items {
		c := item.GetCategory()
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

// Package query filters collection snapshots by category and free text.
package query

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/grovetools/causes/errors"
)

// AllCategories is the "All" sentinel: no category restriction.
const AllCategories = ""

// Params selects the visible subset of a collection.
type Params struct {
	// Category must equal an entity's category exactly (case-sensitive).
	// AllCategories disables the restriction.
	Category string `json:"category,omitempty" yaml:"category,omitempty"`

	// Search is matched as a substring of the display name or description
	// under Unicode case folding, so "οδος" finds "ΟΔΟΣ". Empty disables the
	// restriction.
	Search string `json:"search,omitempty" yaml:"search,omitempty"`
}

// All returns params that select the whole collection.
func All() Params {
	return Params{}
}

// InCategory returns a copy of p restricted to category.
func (p Params) InCategory(category string) Params {
	p.Category = category
	return p
}

// Matching returns a copy of p with the given search text.
func (p Params) Matching(search string) Params {
	p.Search = search
	return p
}

// IsAll reports whether p selects every entity.
func (p Params) IsAll() bool {
	return p.Category == AllCategories && p.Search == ""
}

// Normalize trims whitespace around the search text. Category tags are kept
// verbatim because matching on them is exact.
func (p Params) Normalize() Params {
	p.Search = strings.TrimSpace(p.Search)
	return p
}

// Validate rejects text that is not valid UTF-8 or contains control
// characters.
func (p Params) Validate() error {
	if err := validateText("category", p.Category); err != nil {
		return err
	}
	return validateText("search", p.Search)
}

func validateText(field, s string) error {
	if !utf8.ValidString(s) {
		return errors.InvalidQuery(field+" is not valid UTF-8").WithDetail("field", field)
	}
	for _, r := range s {
		if unicode.IsControl(r) {
			return errors.InvalidQuery(field+" contains control characters").WithDetail("field", field)
		}
	}
	return nil
}

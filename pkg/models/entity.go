// Package models defines the entities carried by remote collections.
package models

// Kind identifies which entity type a collection holds.
type Kind string

const (
	KindOrganization Kind = "organization"
	KindEvent        Kind = "event"
)

// Kinds lists every supported entity kind.
var Kinds = []Kind{KindOrganization, KindEvent}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindOrganization, KindEvent:
		return true
	}
	return false
}

// Record is the capability set the sync and query engine depends on.
// Getters are used so concrete types keep plain exported fields.
type Record interface {
	GetID() string
	GetDisplayName() string
	GetDescription() string
	GetCategory() string
}

// Organization is a charitable organization listed in the "ngos" collection.
type Organization struct {
	ID          string `json:"id" yaml:"id"`
	DisplayName string `json:"displayName" yaml:"displayName"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Category    string `json:"category" yaml:"category"`
	ImageURL    string `json:"imageUrl,omitempty" yaml:"imageUrl,omitempty"`
}

func (o Organization) GetID() string          { return o.ID }
func (o Organization) GetDisplayName() string { return o.DisplayName }
func (o Organization) GetDescription() string { return o.Description }
func (o Organization) GetCategory() string    { return o.Category }

// Event is a volunteering event listed in the "events" collection.
type Event struct {
	ID          string `json:"id" yaml:"id"`
	DisplayName string `json:"displayName" yaml:"displayName"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Category    string `json:"category" yaml:"category"`
	ImageURL    string `json:"imageUrl,omitempty" yaml:"imageUrl,omitempty"`
}

func (e Event) GetID() string          { return e.ID }
func (e Event) GetDisplayName() string { return e.DisplayName }
func (e Event) GetDescription() string { return e.Description }
func (e Event) GetCategory() string    { return e.Category }

var (
	_ Record = Organization{}
	_ Record = Event{}
)

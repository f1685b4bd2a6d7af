package schema

import (
	"sort"
	"time"
)

// PropertyDescriptor describes one property of an entity type: its semantic
// type, an optional enumerated value domain, business-meaning notes, and
// whether projecting it is forbidden.
type PropertyDescriptor struct {
	Type      string   `toml:"type"`
	Enum      []string `toml:"enum"`
	Notes     string   `toml:"notes"`
	Sensitive bool     `toml:"sensitive"`
}

// Catalog is an immutable snapshot of the valid entity types, relationship
// types, and property domains of the backing graph. It is never mutated after
// construction; refreshes build a new snapshot and swap it in wholesale.
type Catalog struct {
	EntityTypes       map[string]bool
	RelationshipTypes map[string]bool
	Properties        map[string]map[string]PropertyDescriptor
	LoadedAt          time.Time
}

func NewCatalog() *Catalog {
	return &Catalog{
		EntityTypes:       make(map[string]bool),
		RelationshipTypes: make(map[string]bool),
		Properties:        make(map[string]map[string]PropertyDescriptor),
		LoadedAt:          time.Now().UTC(),
	}
}

func (c *Catalog) HasEntity(name string) bool {
	return c.EntityTypes[name]
}

func (c *Catalog) HasRelationship(name string) bool {
	return c.RelationshipTypes[name]
}

func (c *Catalog) HasProperty(entity, property string) bool {
	props, ok := c.Properties[entity]
	if !ok {
		return false
	}
	_, ok = props[property]
	return ok
}

func (c *Catalog) Descriptor(entity, property string) (PropertyDescriptor, bool) {
	props, ok := c.Properties[entity]
	if !ok {
		return PropertyDescriptor{}, false
	}
	d, ok := props[property]
	return d, ok
}

// EntityNames returns the entity type names sorted, for hints and prompts.
func (c *Catalog) EntityNames() []string {
	names := make([]string, 0, len(c.EntityTypes))
	for n := range c.EntityTypes {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (c *Catalog) RelationshipNames() []string {
	names := make([]string, 0, len(c.RelationshipTypes))
	for n := range c.RelationshipTypes {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (c *Catalog) PropertyNames(entity string) []string {
	props := c.Properties[entity]
	names := make([]string, 0, len(props))
	for n := range props {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

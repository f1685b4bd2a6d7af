package schema

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

type seedEntity struct {
	Properties map[string]PropertyDescriptor `toml:"properties"`
}

type seedFile struct {
	Entities      map[string]seedEntity `toml:"entities"`
	Relationships struct {
		Types []string `toml:"types"`
	} `toml:"relationships"`
}

// LoadSeed reads a catalog definition from a TOML file. The seed doubles as
// the initial snapshot when the graph store is unreachable at startup and as
// the annotation source (enums, notes, sensitive flags) for live refreshes.
func LoadSeed(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema seed '%s': %w", path, err)
	}

	var sf seedFile
	if err := toml.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("failed to parse schema seed: %w", err)
	}

	cat := NewCatalog()
	cat.LoadedAt = time.Now().UTC()
	for name, ent := range sf.Entities {
		cat.EntityTypes[name] = true
		props := make(map[string]PropertyDescriptor, len(ent.Properties))
		for pname, desc := range ent.Properties {
			if desc.Type == "" {
				desc.Type = "string"
			}
			props[pname] = desc
		}
		cat.Properties[name] = props
	}
	for _, rel := range sf.Relationships.Types {
		cat.RelationshipTypes[rel] = true
	}

	return cat, nil
}

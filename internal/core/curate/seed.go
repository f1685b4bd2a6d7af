package curate

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/careops/lattice/internal/core/model"
)

type seedFile struct {
	Examples []struct {
		Question string `toml:"question"`
		Query    string `toml:"query"`
	} `toml:"examples"`
}

// LoadSeedExamples reads shipped (question, query) pairs from a TOML file.
// The pairs go through Curator.SeedExamples, which dedupes against whatever
// the store already holds.
func LoadSeedExamples(path string) ([]model.GoldenExample, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read golden seed '%s': %w", path, err)
	}

	var sf seedFile
	if err := toml.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("failed to parse golden seed: %w", err)
	}

	out := make([]model.GoldenExample, 0, len(sf.Examples))
	for _, e := range sf.Examples {
		if e.Question == "" || e.Query == "" {
			continue
		}
		out = append(out, model.GoldenExample{
			Question:      e.Question,
			AcceptedQuery: e.Query,
			Source:        model.SourceSeedData,
		})
	}
	return out, nil
}

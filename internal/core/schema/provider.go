package schema

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/careops/lattice/internal/driver"
)

// ErrCatalogUnavailable signals that the backing metadata source could not be
// reached. The provider keeps serving the last-good snapshot when this
// happens; callers see the error only from an explicit Refresh.
var ErrCatalogUnavailable = errors.New("schema catalog unavailable")

// Provider owns the current catalog snapshot and refreshes it by atomic swap,
// so in-flight readers never observe a half-updated schema.
type Provider struct {
	driver  driver.GraphDriver
	seed    *Catalog
	current atomic.Pointer[Catalog]
	log     *zap.Logger
}

// NewProvider builds a provider over a graph driver. seed, when non-nil,
// contributes the annotations introspection cannot discover (enum domains,
// business notes, sensitive flags) and serves as the initial snapshot.
func NewProvider(d driver.GraphDriver, seed *Catalog, log *zap.Logger) *Provider {
	if log == nil {
		log = zap.NewNop()
	}
	p := &Provider{driver: d, seed: seed, log: log}
	if seed != nil {
		p.current.Store(seed)
	} else {
		p.current.Store(NewCatalog())
	}
	return p
}

// Current returns the active snapshot. The returned catalog is immutable and
// stays valid for the duration of a request even if a refresh lands meanwhile.
func (p *Provider) Current() *Catalog {
	return p.current.Load()
}

// Refresh introspects the live store and swaps in a fresh snapshot. On
// failure the previous snapshot stays active and the error wraps
// ErrCatalogUnavailable.
func (p *Provider) Refresh(ctx context.Context) (*Catalog, error) {
	if p.driver == nil {
		return nil, fmt.Errorf("%w: no graph driver configured", ErrCatalogUnavailable)
	}

	cat, err := p.introspect(ctx)
	if err != nil {
		p.log.Warn("catalog refresh failed, serving last-good snapshot",
			zap.Error(err),
			zap.Time("last_loaded_at", p.Current().LoadedAt))
		return nil, fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
	}

	p.current.Store(cat)
	p.log.Info("catalog refreshed",
		zap.Int("entity_types", len(cat.EntityTypes)),
		zap.Int("relationship_types", len(cat.RelationshipTypes)))
	return cat, nil
}

func (p *Provider) introspect(ctx context.Context) (*Catalog, error) {
	cat := NewCatalog()
	cat.LoadedAt = time.Now().UTC()

	res, err := p.driver.ExecuteQuery(ctx, driver.LabelsQuery, nil)
	if err != nil {
		return nil, fmt.Errorf("listing labels: %w", err)
	}
	for _, rec := range res.Records {
		if v, ok := rec.Get("label"); ok {
			if label, ok := v.(string); ok {
				cat.EntityTypes[label] = true
			}
		}
	}

	res, err = p.driver.ExecuteQuery(ctx, driver.RelationshipTypesQuery, nil)
	if err != nil {
		return nil, fmt.Errorf("listing relationship types: %w", err)
	}
	for _, rec := range res.Records {
		if v, ok := rec.Get("relationshipType"); ok {
			if rel, ok := v.(string); ok {
				cat.RelationshipTypes[rel] = true
			}
		}
	}

	for label := range cat.EntityTypes {
		res, err = p.driver.ExecuteQuery(ctx, driver.PropertyKeysQuery(label), nil)
		if err != nil {
			return nil, fmt.Errorf("listing properties of %s: %w", label, err)
		}
		props := make(map[string]PropertyDescriptor)
		for _, rec := range res.Records {
			v, ok := rec.Get("key")
			if !ok {
				continue
			}
			key, ok := v.(string)
			if !ok {
				continue
			}
			props[key] = p.annotate(label, key)
		}
		cat.Properties[label] = props
	}

	return cat, nil
}

// annotate carries seed annotations over onto a live-discovered property.
// Introspection sees names only; enum domains and sensitivity come from seed.
func (p *Provider) annotate(entity, property string) PropertyDescriptor {
	if p.seed != nil {
		if d, ok := p.seed.Descriptor(entity, property); ok {
			return d
		}
	}
	return PropertyDescriptor{Type: "string"}
}

// Package cache implements the semantic result cache: questions are matched
// by embedding similarity, not exact text, so rephrasings of an already
// answered question skip generation entirely.
package cache

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/careops/lattice/internal/core/model"
	"github.com/careops/lattice/internal/llm"
	"github.com/careops/lattice/internal/metrics"
)

// ErrNotCacheable is returned when a caller tries to store anything other
// than a successful, non-empty outcome. Failures must never populate the
// cache.
var ErrNotCacheable = errors.New("only successful outcomes are cacheable")

// EntryStore persists cache entries. Entries are append-only; Replace exists
// solely for explicit eviction (TTL compaction, schema-drift purges) and must
// swap atomically. Scan order is not part of the contract, so an
// approximate-nearest-neighbor store can replace the linear ones without
// changing caller semantics.
type EntryStore interface {
	Append(ctx context.Context, entry model.CacheEntry) error
	Snapshot(ctx context.Context) ([]model.CacheEntry, error)
	Replace(ctx context.Context, entries []model.CacheEntry) error
}

type SemanticCache struct {
	embedder  llm.EmbedderClient
	store     EntryStore
	threshold float64
	ttl       time.Duration
	group     singleflight.Group
	log       *zap.Logger
}

// New builds a semantic cache. threshold is the minimum cosine similarity
// for a hit; ttl of zero disables staleness eviction.
func New(embedder llm.EmbedderClient, store EntryStore, threshold float64, ttl time.Duration, log *zap.Logger) *SemanticCache {
	if threshold <= 0 {
		threshold = 0.92
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &SemanticCache{
		embedder:  embedder,
		store:     store,
		threshold: threshold,
		ttl:       ttl,
		log:       log,
	}
}

// Lookup embeds the question and returns the most similar live entry above
// the threshold, or nil on a miss. Ties prefer the most recently created
// entry. The scan runs over a snapshot, so concurrent appends never block it.
func (c *SemanticCache) Lookup(ctx context.Context, question string) (*model.CacheEntry, error) {
	vec, err := c.embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embedding question: %w", err)
	}

	entries, err := c.store.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading cache entries: %w", err)
	}

	now := time.Now().UTC()
	var best *model.CacheEntry
	bestScore := 0.0
	for i := range entries {
		e := &entries[i]
		if c.ttl > 0 && now.Sub(e.CreatedAt) > c.ttl {
			continue
		}
		score := cosine(vec, e.QuestionEmbedding)
		if score < c.threshold {
			continue
		}
		if best == nil || score > bestScore || (score == bestScore && e.CreatedAt.After(best.CreatedAt)) {
			best = e
			bestScore = score
		}
	}

	if best == nil {
		metrics.CacheLookups.WithLabelValues("miss").Inc()
		return nil, nil
	}

	metrics.CacheLookups.WithLabelValues("hit").Inc()
	c.log.Debug("semantic cache hit",
		zap.String("question", question),
		zap.String("canonical_question", best.CanonicalQuestion),
		zap.Float64("similarity", bestScore))
	return best, nil
}

// Store appends an entry built from an accepted outcome. Failed or empty
// outcomes are refused: caching them would replay a non-answer forever.
func (c *SemanticCache) Store(ctx context.Context, question, acceptedQuery string, outcome model.ExecutionOutcome) error {
	if !outcome.OK || len(outcome.Rows) == 0 {
		return ErrNotCacheable
	}

	vec, err := c.embed(ctx, question)
	if err != nil {
		return fmt.Errorf("embedding question: %w", err)
	}

	entry := model.CacheEntry{
		QuestionEmbedding: vec,
		CanonicalQuestion: question,
		Rows:              outcome.Rows,
		AcceptedQuery:     acceptedQuery,
		CreatedAt:         time.Now().UTC(),
	}
	return c.store.Append(ctx, entry)
}

// Purge atomically replaces the entry set with the entries keep approves of,
// returning how many were dropped. Expired entries are dropped regardless.
func (c *SemanticCache) Purge(ctx context.Context, keep func(model.CacheEntry) bool) (int, error) {
	entries, err := c.store.Snapshot(ctx)
	if err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	kept := make([]model.CacheEntry, 0, len(entries))
	for _, e := range entries {
		if c.ttl > 0 && now.Sub(e.CreatedAt) > c.ttl {
			continue
		}
		if keep != nil && !keep(e) {
			continue
		}
		kept = append(kept, e)
	}

	dropped := len(entries) - len(kept)
	if dropped == 0 {
		return 0, nil
	}
	if err := c.store.Replace(ctx, kept); err != nil {
		return 0, err
	}
	c.log.Info("cache purged", zap.Int("dropped", dropped), zap.Int("kept", len(kept)))
	return dropped, nil
}

// embed funnels concurrent identical questions through one provider call.
func (c *SemanticCache) embed(ctx context.Context, question string) ([]float32, error) {
	v, err, _ := c.group.Do(question, func() (interface{}, error) {
		return c.embedder.Embed(ctx, question)
	})
	if err != nil {
		return nil, err
	}
	return v.([]float32), nil
}

// cosine computes cosine similarity with float64 accumulation.
func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

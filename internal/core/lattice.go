package core

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/careops/lattice/internal/core/cache"
	"github.com/careops/lattice/internal/core/curate"
	"github.com/careops/lattice/internal/core/execute"
	"github.com/careops/lattice/internal/core/generate"
	"github.com/careops/lattice/internal/core/loop"
	"github.com/careops/lattice/internal/core/model"
	"github.com/careops/lattice/internal/core/repair"
	"github.com/careops/lattice/internal/core/schema"
	"github.com/careops/lattice/internal/core/validate"
	"github.com/careops/lattice/internal/metrics"
)

// goldenPromptExamples caps how many golden examples seed a generation
// prompt.
const goldenPromptExamples = 5

// Lattice wires the answer pipeline together: semantic cache in front,
// generate→validate→execute→repair loop behind it, feedback curation at the
// back.
type Lattice struct {
	Schema    *schema.Provider
	Generator *generate.Generator
	Executor  *execute.Executor
	Cache     *cache.SemanticCache // nil when no embedder is configured
	Curator   *curate.Curator

	MaxAttempts    int
	SafetyBudget   int
	RequestTimeout time.Duration

	log *zap.Logger
}

func NewLattice(provider *schema.Provider, gen *generate.Generator, exec *execute.Executor, sc *cache.SemanticCache, cur *curate.Curator, maxAttempts, safetyBudget int, requestTimeout time.Duration, log *zap.Logger) *Lattice {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if safetyBudget <= 0 {
		safetyBudget = 1
	}
	if requestTimeout <= 0 {
		requestTimeout = 60 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Lattice{
		Schema:         provider,
		Generator:      gen,
		Executor:       exec,
		Cache:          sc,
		Curator:        cur,
		MaxAttempts:    maxAttempts,
		SafetyBudget:   safetyBudget,
		RequestTimeout: requestTimeout,
		log:            log,
	}
}

// Answer resolves a natural-language question to verified rows, or reports
// honestly that it could not. The catalog snapshot is pinned once per
// request, so a concurrent refresh never changes the rules mid-loop.
func (l *Lattice) Answer(ctx context.Context, question string) model.AnswerResult {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, l.RequestTimeout)
	defer cancel()

	if l.Cache != nil {
		entry, err := l.Cache.Lookup(ctx, question)
		if err != nil {
			l.log.Warn("cache lookup failed, proceeding without cache", zap.Error(err))
		} else if entry != nil {
			metrics.AnswersTotal.WithLabelValues("cache_hit").Inc()
			metrics.AnswerDuration.Observe(time.Since(start).Seconds())
			return model.AnswerResult{
				Available:     true,
				Rows:          entry.Rows,
				AcceptedQuery: entry.AcceptedQuery,
				FromCache:     true,
			}
		}
	}

	catalog := l.Schema.Current()

	var examples []model.GoldenExample
	if l.Curator != nil {
		var err error
		examples, err = l.Curator.Examples(goldenPromptExamples)
		if err != nil {
			l.log.Warn("loading golden examples failed, generating without them", zap.Error(err))
		}
	}

	controller := loop.NewController(
		func(ctx context.Context, question string, state *model.RetryState) (model.CandidateQuery, error) {
			return l.Generator.Generate(ctx, question, catalog, examples, state)
		},
		func(q model.CandidateQuery) model.ValidationResult {
			return validate.Validate(q, catalog)
		},
		l.Executor.Execute,
		repair.Advise,
		l.MaxAttempts,
		l.SafetyBudget,
		l.log,
	)

	res := controller.Run(ctx, question)
	metrics.AttemptsPerAnswer.Observe(float64(res.Attempts))
	metrics.AnswerDuration.Observe(time.Since(start).Seconds())

	if res.State != loop.StateSucceeded {
		metrics.AnswersTotal.WithLabelValues("unavailable").Inc()
		return model.AnswerResult{
			Available: false,
			Attempts:  res.Attempts,
			Reason:    res.Reason,
			Detail:    res.Detail,
		}
	}

	metrics.AnswersTotal.WithLabelValues("succeeded").Inc()

	if l.Cache != nil {
		outcome := model.Succeeded(res.Rows)
		if err := l.Cache.Store(ctx, question, res.Query.Text, outcome); err != nil && !errors.Is(err, cache.ErrNotCacheable) {
			l.log.Warn("caching accepted answer failed", zap.Error(err))
		}
	}

	return model.AnswerResult{
		Available:     true,
		Rows:          res.Rows,
		AcceptedQuery: res.Query.Text,
		Attempts:      res.Attempts,
	}
}

// SubmitFeedback records a user verdict on a previously returned answer.
func (l *Lattice) SubmitFeedback(ctx context.Context, question, query string, outcome model.ExecutionOutcome, signal model.FeedbackSignal) error {
	if l.Curator == nil {
		return errors.New("no curator configured")
	}
	return l.Curator.OnFeedback(ctx, question, query, outcome, signal)
}

// RefreshSchema swaps in a fresh catalog snapshot from the live store.
func (l *Lattice) RefreshSchema(ctx context.Context) error {
	_, err := l.Schema.Refresh(ctx)
	return err
}

// RunGoldenSetAudit revalidates the golden set against the current catalog
// and purges semantic-cache entries whose accepted query no longer validates.
// A stale cache hit would bypass validation entirely, so cache entries drift
// out together with the golden examples they mirror.
func (l *Lattice) RunGoldenSetAudit(ctx context.Context) (int, error) {
	if l.Curator == nil {
		return 0, errors.New("no curator configured")
	}

	evicted, err := l.Curator.Revalidate(ctx)
	if err != nil {
		return 0, err
	}

	if l.Cache != nil {
		catalog := l.Schema.Current()
		dropped, err := l.Cache.Purge(ctx, func(e model.CacheEntry) bool {
			vr := validate.Validate(model.CandidateQuery{Text: e.AcceptedQuery, Question: e.CanonicalQuestion}, catalog)
			return vr.Valid
		})
		if err != nil {
			l.log.Warn("cache purge failed during audit", zap.Error(err))
		} else if dropped > 0 {
			l.log.Info("stale cache entries purged", zap.Int("dropped", dropped))
		}
	}

	return evicted, nil
}

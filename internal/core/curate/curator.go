// Package curate maintains the golden example set: promoting accepted
// answers, parking rejections for human review, and sweeping out examples
// that schema drift has invalidated.
package curate

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/careops/lattice/internal/core/model"
	"github.com/careops/lattice/internal/metrics"
)

// revalidateConcurrency bounds the parallel re-executions during an audit so
// the sweep never floods the backend.
const revalidateConcurrency = 4

type (
	ValidateFunc func(q model.CandidateQuery) model.ValidationResult
	ExecuteFunc  func(ctx context.Context, q model.CandidateQuery) model.ExecutionOutcome
)

type Curator struct {
	store    *GoldenStore
	validate ValidateFunc
	execute  ExecuteFunc

	// flagOnly keeps invalidated examples in the store, marked, instead of
	// deleting them.
	flagOnly bool

	log *zap.Logger
}

func NewCurator(store *GoldenStore, validate ValidateFunc, execute ExecuteFunc, flagOnly bool, log *zap.Logger) *Curator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Curator{
		store:    store,
		validate: validate,
		execute:  execute,
		flagOnly: flagOnly,
		log:      log,
	}
}

// OnFeedback routes a user verdict on a (question, query, result) triple.
// Accept promotes the pair into the golden set. Reject parks the triple in
// the review queue and touches nothing else: negative signal is never
// learned from without a human in the loop.
func (c *Curator) OnFeedback(ctx context.Context, question, query string, outcome model.ExecutionOutcome, signal model.FeedbackSignal) error {
	switch signal {
	case model.SignalAccept:
		if !outcome.OK {
			return fmt.Errorf("cannot promote a failed outcome to the golden set")
		}
		ex := model.GoldenExample{
			ID:            uuid.New().String(),
			Question:      question,
			AcceptedQuery: query,
			ValidatedAt:   time.Now().UTC(),
			Source:        model.SourceUserFeedback,
		}
		if err := c.store.InsertExample(ex); err != nil {
			return err
		}
		c.log.Info("golden example promoted", zap.String("question", question))
		c.updateSizeGauge()
		return nil

	case model.SignalReject:
		resultJSON, err := json.Marshal(outcome)
		if err != nil {
			return fmt.Errorf("marshaling rejected outcome: %w", err)
		}
		item := model.ReviewItem{
			ID:         uuid.New().String(),
			Question:   question,
			Query:      query,
			ResultJSON: string(resultJSON),
			CreatedAt:  time.Now().UTC(),
		}
		if err := c.store.InsertReview(item); err != nil {
			return err
		}
		c.log.Info("rejected triple queued for review", zap.String("question", question))
		return nil

	default:
		return fmt.Errorf("unknown feedback signal: %s", signal)
	}
}

// SeedExamples loads shipped (question, query) pairs, skipping any already
// present by question text.
func (c *Curator) SeedExamples(examples []model.GoldenExample) error {
	existing, err := c.store.Examples(0)
	if err != nil {
		return err
	}
	seen := make(map[string]bool, len(existing))
	for _, ex := range existing {
		seen[ex.Question] = true
	}

	for _, ex := range examples {
		if seen[ex.Question] {
			continue
		}
		if ex.ID == "" {
			ex.ID = uuid.New().String()
		}
		ex.Source = model.SourceSeedData
		if ex.ValidatedAt.IsZero() {
			ex.ValidatedAt = time.Now().UTC()
		}
		if err := c.store.InsertExample(ex); err != nil {
			return err
		}
	}
	c.updateSizeGauge()
	return nil
}

// Examples returns up to limit live examples for seeding generation prompts.
func (c *Curator) Examples(limit int) ([]model.GoldenExample, error) {
	return c.store.Examples(limit)
}

// Reviews exposes the human-review queue.
func (c *Curator) Reviews() ([]model.ReviewItem, error) {
	return c.store.Reviews()
}

// Revalidate re-runs every golden example through validation and execution
// against the current catalog and store, then sweeps the casualties out in a
// single transaction (or flags them, per policy). Returns how many examples
// were evicted or flagged. Reads run against a snapshot, so normal traffic
// is never blocked while the re-executions are in flight.
func (c *Curator) Revalidate(ctx context.Context) (int, error) {
	examples, err := c.store.AllExamples()
	if err != nil {
		return 0, err
	}
	if len(examples) == 0 {
		return 0, nil
	}

	stale := make([]bool, len(examples))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(revalidateConcurrency)

	for i, ex := range examples {
		i, ex := i, ex
		g.Go(func() error {
			q := model.CandidateQuery{Text: ex.AcceptedQuery, Question: ex.Question}
			if vr := c.validate(q); !vr.Valid {
				c.log.Info("golden example no longer validates",
					zap.String("question", ex.Question),
					zap.String("kind", string(vr.Kind)),
					zap.String("detail", vr.Detail))
				stale[i] = true
				return nil
			}
			if out := c.execute(gctx, q); !out.OK {
				c.log.Info("golden example no longer executes",
					zap.String("question", ex.Question),
					zap.String("kind", string(out.Kind)))
				stale[i] = true
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	var staleIDs, liveIDs []string
	for i, ex := range examples {
		if stale[i] {
			staleIDs = append(staleIDs, ex.ID)
		} else if !ex.Flagged {
			liveIDs = append(liveIDs, ex.ID)
		}
	}

	if len(staleIDs) > 0 {
		if c.flagOnly {
			err = c.store.FlagExamples(staleIDs)
		} else {
			err = c.store.RemoveExamples(staleIDs)
		}
		if err != nil {
			return 0, err
		}
		metrics.GoldenEvictions.Add(float64(len(staleIDs)))
	}
	if err := c.store.MarkValidated(liveIDs, time.Now().UTC()); err != nil {
		return 0, err
	}

	c.updateSizeGauge()
	c.log.Info("golden set revalidated",
		zap.Int("total", len(examples)),
		zap.Int("evicted", len(staleIDs)),
		zap.Bool("flag_only", c.flagOnly))
	return len(staleIDs), nil
}

func (c *Curator) updateSizeGauge() {
	if n, err := c.store.Count(); err == nil {
		metrics.GoldenSetSize.Set(float64(n))
	}
}

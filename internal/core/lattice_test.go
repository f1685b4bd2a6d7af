package core

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/careops/lattice/internal/core/cache"
	"github.com/careops/lattice/internal/core/curate"
	"github.com/careops/lattice/internal/core/execute"
	"github.com/careops/lattice/internal/core/generate"
	"github.com/careops/lattice/internal/core/model"
	"github.com/careops/lattice/internal/core/schema"
)

// scriptedLLM returns its responses in order, then keeps repeating the last.
type scriptedLLM struct {
	responses []string
	calls     int
	prompts   []string
}

func (s *scriptedLLM) Generate(_ context.Context, prompt string) (string, error) {
	s.prompts = append(s.prompts, prompt)
	i := s.calls
	s.calls++
	if i >= len(s.responses) {
		i = len(s.responses) - 1
	}
	if i < 0 {
		return "", errors.New("no scripted response")
	}
	return s.responses[i], nil
}

type scriptedDriver struct {
	handler func(query string) (neo4j.EagerResult, error)
	calls   []string
}

func (d *scriptedDriver) ExecuteQuery(_ context.Context, query string, _ map[string]interface{}) (neo4j.EagerResult, error) {
	d.calls = append(d.calls, query)
	return d.handler(query)
}

func (d *scriptedDriver) VerifyConnectivity(context.Context) error { return nil }
func (d *scriptedDriver) Close(context.Context) error              { return nil }

type constEmbedder struct{}

func (constEmbedder) Embed(context.Context, string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}

func hospitalProvider() *schema.Provider {
	cat := schema.NewCatalog()
	cat.EntityTypes["Department"] = true
	cat.EntityTypes["Bed"] = true
	cat.EntityTypes["Patient"] = true
	cat.RelationshipTypes["HAS_BED"] = true
	cat.RelationshipTypes["ADMITTED_TO"] = true
	cat.Properties["Department"] = map[string]schema.PropertyDescriptor{
		"name": {Type: "string"},
	}
	cat.Properties["Bed"] = map[string]schema.PropertyDescriptor{
		"status": {Type: "string", Enum: []string{"available", "occupied", "maintenance"}},
	}
	cat.Properties["Patient"] = map[string]schema.PropertyDescriptor{
		"name": {Type: "string"},
		"ssn":  {Type: "string", Sensitive: true},
	}
	return schema.NewProvider(nil, cat, nil)
}

func newCurator(t *testing.T) *curate.Curator {
	t.Helper()
	store, err := curate.OpenGoldenStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return curate.NewCurator(store,
		func(model.CandidateQuery) model.ValidationResult { return model.Valid() },
		func(context.Context, model.CandidateQuery) model.ExecutionOutcome { return model.Succeeded(nil) },
		false, nil)
}

func newLattice(t *testing.T, llmClient *scriptedLLM, d *scriptedDriver, sc *cache.SemanticCache) *Lattice {
	t.Helper()
	return NewLattice(
		hospitalProvider(),
		generate.NewGenerator(llmClient, ""),
		execute.NewExecutor(d, 0, nil),
		sc,
		newCurator(t),
		3, 1, time.Minute, nil,
	)
}

const (
	icuQuery = `MATCH (d:Department {name: 'ICU'})-[:HAS_BED]->(b:Bed {status: 'available'}) RETURN count(b) AS available_beds`
	// Wrong value casing: the store knows the department as 'ICU'.
	intensiveCareQuery = `MATCH (d:Department {name: 'Intensive Care'})-[:HAS_BED]->(b:Bed {status: 'available'}) RETURN count(b) AS available_beds`
)

// hospitalHandler serves the ICU scenario: the correctly-cased query finds
// beds, the miscased one matches nothing, and distinct-value probes reveal
// what the store actually holds.
func hospitalHandler(query string) (neo4j.EagerResult, error) {
	switch {
	case strings.Contains(query, "DISTINCT") && strings.Contains(query, ":Department"):
		return neo4j.EagerResult{Records: []*db.Record{
			{Keys: []string{"value"}, Values: []any{"ICU"}},
			{Keys: []string{"value"}, Values: []any{"ER"}},
		}}, nil
	case strings.Contains(query, "DISTINCT") && strings.Contains(query, ":Bed"):
		return neo4j.EagerResult{Records: []*db.Record{
			{Keys: []string{"value"}, Values: []any{"available"}},
			{Keys: []string{"value"}, Values: []any{"occupied"}},
		}}, nil
	case strings.Contains(query, "'ICU'"):
		return neo4j.EagerResult{Records: []*db.Record{
			{Keys: []string{"available_beds"}, Values: []any{int64(6)}},
		}}, nil
	default:
		return neo4j.EagerResult{}, nil
	}
}

func TestAnswer_FirstAttemptSucceeds(t *testing.T) {
	llmClient := &scriptedLLM{responses: []string{icuQuery}}
	d := &scriptedDriver{handler: hospitalHandler}
	l := newLattice(t, llmClient, d, nil)

	res := l.Answer(context.Background(), "How many ICU beds are available?")

	require.True(t, res.Available)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, icuQuery, res.AcceptedQuery)
	assert.False(t, res.FromCache)
	require.Len(t, res.Rows, 1)
	beds, ok := res.Rows[0].Get("available_beds")
	require.True(t, ok)
	assert.Equal(t, int64(6), beds)
}

func TestAnswer_RepairsValueMismatchWithinBudget(t *testing.T) {
	llmClient := &scriptedLLM{responses: []string{intensiveCareQuery, icuQuery}}
	d := &scriptedDriver{handler: hospitalHandler}
	l := newLattice(t, llmClient, d, nil)

	res := l.Answer(context.Background(), "How many beds are free in intensive care?")

	require.True(t, res.Available)
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, icuQuery, res.AcceptedQuery)
	assert.Equal(t, 2, llmClient.calls)

	// The second prompt carries the repair hint with the store's actual values.
	require.Len(t, llmClient.prompts, 2)
	assert.Contains(t, llmClient.prompts[1], "ICU")
}

func TestAnswer_SafetyViolationNeverExecutes(t *testing.T) {
	llmClient := &scriptedLLM{responses: []string{
		`MATCH (p:Patient) SET p.name = 'x' RETURN p.name`,
	}}
	d := &scriptedDriver{handler: hospitalHandler}
	l := newLattice(t, llmClient, d, nil)

	res := l.Answer(context.Background(), "Rename every patient")

	assert.False(t, res.Available)
	assert.Equal(t, model.KindForbiddenOperation, res.Reason)
	assert.Equal(t, 1, llmClient.calls)
	assert.Empty(t, d.calls)
}

func TestAnswer_SensitiveProjectionNeverExecutes(t *testing.T) {
	llmClient := &scriptedLLM{responses: []string{
		`MATCH (p:Patient) RETURN p.name, p.ssn`,
	}}
	d := &scriptedDriver{handler: hospitalHandler}
	l := newLattice(t, llmClient, d, nil)

	res := l.Answer(context.Background(), "List patients with their SSNs")

	assert.False(t, res.Available)
	assert.Equal(t, model.KindSensitiveFieldExposure, res.Reason)
	assert.Empty(t, d.calls)
}

func TestAnswer_ExhaustionReportsHonestly(t *testing.T) {
	llmClient := &scriptedLLM{responses: []string{
		`MATCH (w:Ward) RETURN w.name`,
	}}
	d := &scriptedDriver{handler: hospitalHandler}
	l := newLattice(t, llmClient, d, nil)

	res := l.Answer(context.Background(), "List all wards")

	assert.False(t, res.Available)
	assert.Empty(t, res.Rows)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, model.KindAttemptsExhausted, res.Reason)
	assert.Equal(t, 3, llmClient.calls)
	assert.Empty(t, d.calls)
}

func TestAnswer_SecondAskServedFromCache(t *testing.T) {
	llmClient := &scriptedLLM{responses: []string{icuQuery}}
	d := &scriptedDriver{handler: hospitalHandler}
	sc := cache.New(constEmbedder{}, cache.NewMemoryStore(), 0.92, 0, nil)
	l := newLattice(t, llmClient, d, sc)

	first := l.Answer(context.Background(), "How many ICU beds are available?")
	require.True(t, first.Available)
	assert.False(t, first.FromCache)

	second := l.Answer(context.Background(), "How many ICU beds are free?")
	require.True(t, second.Available)
	assert.True(t, second.FromCache)
	assert.Equal(t, icuQuery, second.AcceptedQuery)
	assert.Equal(t, first.Rows, second.Rows)
	assert.Equal(t, 1, llmClient.calls)
}

func TestAnswer_FailuresAreNotCached(t *testing.T) {
	llmClient := &scriptedLLM{responses: []string{`MATCH (w:Ward) RETURN w.name`}}
	d := &scriptedDriver{handler: hospitalHandler}
	sc := cache.New(constEmbedder{}, cache.NewMemoryStore(), 0.92, 0, nil)
	l := newLattice(t, llmClient, d, sc)

	res := l.Answer(context.Background(), "List all wards")
	require.False(t, res.Available)

	hit, err := sc.Lookup(context.Background(), "List all wards")
	require.NoError(t, err)
	assert.Nil(t, hit)
}

func TestSubmitFeedback_AcceptSeedsGoldenPrompts(t *testing.T) {
	llmClient := &scriptedLLM{responses: []string{icuQuery}}
	d := &scriptedDriver{handler: hospitalHandler}
	l := newLattice(t, llmClient, d, nil)

	outcome := model.Succeeded([]model.Row{{Columns: []string{"available_beds"}, Values: []any{int64(6)}}})
	err := l.SubmitFeedback(context.Background(), "How many ICU beds are available?", icuQuery, outcome, model.SignalAccept)
	require.NoError(t, err)

	res := l.Answer(context.Background(), "How many ER beds are available?")
	require.True(t, res.Available)
	// The accepted pair now appears as an example in the generation prompt.
	require.NotEmpty(t, llmClient.prompts)
	assert.Contains(t, llmClient.prompts[0], "How many ICU beds are available?")
}

func TestRunGoldenSetAudit_PurgesCacheEntriesThatNoLongerValidate(t *testing.T) {
	llmClient := &scriptedLLM{responses: []string{icuQuery}}
	d := &scriptedDriver{handler: hospitalHandler}
	store := cache.NewMemoryStore()
	sc := cache.New(constEmbedder{}, store, 0.92, 0, nil)
	l := newLattice(t, llmClient, d, sc)

	ctx := context.Background()
	require.NoError(t, store.Append(ctx, model.CacheEntry{
		QuestionEmbedding: []float32{1, 0, 0},
		CanonicalQuestion: "valid",
		Rows:              []model.Row{{Columns: []string{"n"}, Values: []any{int64(1)}}},
		AcceptedQuery:     icuQuery,
		CreatedAt:         time.Now().UTC(),
	}))
	require.NoError(t, store.Append(ctx, model.CacheEntry{
		QuestionEmbedding: []float32{1, 0, 0},
		CanonicalQuestion: "stale",
		Rows:              []model.Row{{Columns: []string{"n"}, Values: []any{int64(1)}}},
		AcceptedQuery:     `MATCH (w:Ward) RETURN w.name`,
		CreatedAt:         time.Now().UTC(),
	}))

	_, err := l.RunGoldenSetAudit(ctx)
	require.NoError(t, err)

	entries, err := store.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "valid", entries[0].CanonicalQuestion)
}

func TestAnswer_TimedOutContext(t *testing.T) {
	llmClient := &scriptedLLM{responses: []string{icuQuery}}
	d := &scriptedDriver{handler: hospitalHandler}
	l := newLattice(t, llmClient, d, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := l.Answer(ctx, "How many ICU beds are available?")
	assert.False(t, res.Available)
	assert.Equal(t, model.KindTimedOut, res.Reason)
	assert.Zero(t, llmClient.calls)
}

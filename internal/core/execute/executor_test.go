package execute

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/careops/lattice/internal/core/model"
)

// mockDriver routes each query to a scripted handler and records every call.
type mockDriver struct {
	handler func(query string) (neo4j.EagerResult, error)
	calls   []string
}

func (m *mockDriver) ExecuteQuery(ctx context.Context, query string, params map[string]interface{}) (neo4j.EagerResult, error) {
	m.calls = append(m.calls, query)
	return m.handler(query)
}

func (m *mockDriver) VerifyConnectivity(ctx context.Context) error { return nil }
func (m *mockDriver) Close(ctx context.Context) error              { return nil }

func record(keys []string, values []any) *db.Record {
	return &db.Record{Keys: keys, Values: values}
}

func TestExecute_SuccessPreservesProjectionOrder(t *testing.T) {
	d := &mockDriver{handler: func(query string) (neo4j.EagerResult, error) {
		return neo4j.EagerResult{Records: []*db.Record{
			record([]string{"department", "available_beds"}, []any{"ICU", int64(6)}),
		}}, nil
	}}
	e := NewExecutor(d, 0, nil)

	out := e.Execute(context.Background(), model.CandidateQuery{
		Text: `MATCH (d:Department {name: 'ICU'})-[:HAS_BED]->(b:Bed {status: 'available'}) RETURN d.name AS department, count(b) AS available_beds`,
	})

	require.True(t, out.OK)
	require.Len(t, out.Rows, 1)
	assert.Equal(t, []string{"department", "available_beds"}, out.Rows[0].Columns)
	beds, ok := out.Rows[0].Get("available_beds")
	require.True(t, ok)
	assert.Equal(t, int64(6), beds)
}

func TestExecute_EmptyResultWithValueMismatchIsSchemaMismatch(t *testing.T) {
	d := &mockDriver{handler: func(query string) (neo4j.EagerResult, error) {
		if strings.Contains(query, "DISTINCT") {
			return neo4j.EagerResult{Records: []*db.Record{
				record([]string{"value"}, []any{"ICU"}),
				record([]string{"value"}, []any{"ER"}),
			}}, nil
		}
		return neo4j.EagerResult{}, nil
	}}
	e := NewExecutor(d, 0, nil)

	out := e.Execute(context.Background(), model.CandidateQuery{
		Text: `MATCH (d:Department {name: 'Intensive Care'})-[:HAS_BED]->(b:Bed) RETURN count(b)`,
	})

	require.False(t, out.OK)
	assert.Equal(t, model.KindSchemaMismatch, out.Kind)
	assert.Contains(t, out.Detail, "Intensive Care")
	assert.Contains(t, out.Detail, "ICU")
}

func TestExecute_HonestEmptyIsSuccess(t *testing.T) {
	d := &mockDriver{handler: func(query string) (neo4j.EagerResult, error) {
		if strings.Contains(query, "DISTINCT") {
			// The probed literal does occur in the store.
			return neo4j.EagerResult{Records: []*db.Record{
				record([]string{"value"}, []any{"ICU"}),
			}}, nil
		}
		return neo4j.EagerResult{}, nil
	}}
	e := NewExecutor(d, 0, nil)

	out := e.Execute(context.Background(), model.CandidateQuery{
		Text: `MATCH (d:Department {name: 'ICU'})-[:HAS_BED]->(b:Bed) RETURN b.id`,
	})

	assert.True(t, out.OK)
	assert.Empty(t, out.Rows)
	assert.Equal(t, model.KindNoResults, out.Kind)
}

func TestExecute_WhereClauseComparisonIsProbed(t *testing.T) {
	d := &mockDriver{handler: func(query string) (neo4j.EagerResult, error) {
		if strings.Contains(query, "DISTINCT") {
			return neo4j.EagerResult{Records: []*db.Record{
				record([]string{"value"}, []any{"available"}),
				record([]string{"value"}, []any{"occupied"}),
			}}, nil
		}
		return neo4j.EagerResult{}, nil
	}}
	e := NewExecutor(d, 0, nil)

	out := e.Execute(context.Background(), model.CandidateQuery{
		Text: `MATCH (b:Bed) WHERE b.status = 'Available' RETURN count(b)`,
	})

	require.False(t, out.OK)
	assert.Equal(t, model.KindSchemaMismatch, out.Kind)
	assert.Contains(t, out.Detail, "available")
}

func TestExecute_BackendErrorAfterBoundedRetries(t *testing.T) {
	d := &mockDriver{handler: func(query string) (neo4j.EagerResult, error) {
		return neo4j.EagerResult{}, errors.New("connection refused")
	}}
	e := NewExecutor(d, 2, nil)

	out := e.Execute(context.Background(), model.CandidateQuery{
		Text: `MATCH (d:Department) RETURN d.name`,
	})

	require.False(t, out.OK)
	assert.Equal(t, model.KindBackendError, out.Kind)
	assert.Contains(t, out.Detail, "connection refused")
	// Initial call plus two infrastructure retries, nothing more.
	assert.Len(t, d.calls, 3)
}

func TestExecute_ProbeFailureDoesNotMaskHonestEmpty(t *testing.T) {
	d := &mockDriver{handler: func(query string) (neo4j.EagerResult, error) {
		if strings.Contains(query, "DISTINCT") {
			return neo4j.EagerResult{}, errors.New("probe failed")
		}
		return neo4j.EagerResult{}, nil
	}}
	e := NewExecutor(d, 0, nil)

	out := e.Execute(context.Background(), model.CandidateQuery{
		Text: `MATCH (d:Department {name: 'ICU'}) RETURN d.name`,
	})

	assert.True(t, out.OK)
	assert.Equal(t, model.KindNoResults, out.Kind)
}

package loop

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/careops/lattice/internal/core/model"
)

// canned builds a controller whose collaborators replay scripted responses.
type canned struct {
	generated  []string
	validation map[string]model.ValidationResult
	execution  map[string]model.ExecutionOutcome

	generateCalls int
	executeCalls  int
	hints         []string
}

func (c *canned) controller(maxAttempts, safetyBudget int) *Controller {
	gen := func(ctx context.Context, question string, state *model.RetryState) (model.CandidateQuery, error) {
		if c.generateCalls >= len(c.generated) {
			return model.CandidateQuery{}, fmt.Errorf("no scripted query for call %d", c.generateCalls)
		}
		q := model.CandidateQuery{Text: c.generated[c.generateCalls], Question: question, Attempt: state.Attempt}
		c.generateCalls++
		return q, nil
	}
	val := func(q model.CandidateQuery) model.ValidationResult {
		if res, ok := c.validation[q.Text]; ok {
			return res
		}
		return model.Valid()
	}
	exec := func(ctx context.Context, q model.CandidateQuery) model.ExecutionOutcome {
		c.executeCalls++
		if out, ok := c.execution[q.Text]; ok {
			return out
		}
		return model.Succeeded([]model.Row{{Columns: []string{"n"}, Values: []any{int64(1)}}})
	}
	advise := func(question string, kind model.ErrorKind, detail string) string {
		hint := fmt.Sprintf("hint(%s): %s", kind, detail)
		c.hints = append(c.hints, hint)
		return hint
	}
	return NewController(gen, val, exec, advise, maxAttempts, safetyBudget, nil)
}

func TestRun_SucceedsFirstAttempt(t *testing.T) {
	c := &canned{generated: []string{"MATCH (n:Bed) RETURN count(n)"}}
	ctrl := c.controller(3, 1)

	res := ctrl.Run(context.Background(), "how many beds?")

	assert.Equal(t, StateSucceeded, res.State)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, 1, c.generateCalls)
	require.Len(t, res.Rows, 1)
}

func TestRun_RepairsAfterSchemaMismatchWithinBudget(t *testing.T) {
	wrong := `MATCH (d:Department {name: 'Intensive Care'}) RETURN count(d)`
	right := `MATCH (d:Department {name: 'ICU'}) RETURN count(d)`
	c := &canned{
		generated: []string{wrong, right},
		execution: map[string]model.ExecutionOutcome{
			wrong: model.ExecFailed(model.KindSchemaMismatch,
				"no Department node has name = 'Intensive Care'; actual values: ICU, ER"),
			right: model.Succeeded([]model.Row{{Columns: []string{"count"}, Values: []any{int64(1)}}}),
		},
	}
	ctrl := c.controller(3, 1)

	res := ctrl.Run(context.Background(), "how many ICU departments?")

	assert.Equal(t, StateSucceeded, res.State)
	assert.Equal(t, 2, res.Attempts)
	require.Len(t, c.hints, 1)
	assert.Contains(t, c.hints[0], "ICU")
	// History keeps the failed attempt and its hint for the next prompt.
	require.Len(t, res.History, 2)
	assert.Equal(t, c.hints[0], res.History[0].RepairHint)
}

func TestRun_NeverGeneratesPastMaxAttempts(t *testing.T) {
	bad := "MATCH (w:Ward) RETURN w"
	c := &canned{
		generated: []string{bad, bad, bad, bad, bad},
		validation: map[string]model.ValidationResult{
			bad: model.Invalid(model.KindUnknownSchemaElement, "unknown entity type 'Ward'"),
		},
	}
	ctrl := c.controller(3, 1)

	res := ctrl.Run(context.Background(), "q")

	assert.Equal(t, StateExhausted, res.State)
	assert.Equal(t, model.KindAttemptsExhausted, res.Reason)
	assert.Equal(t, 3, c.generateCalls)
	assert.Equal(t, 0, c.executeCalls, "invalid queries must never execute")
}

func TestRun_SafetyViolationExhaustsImmediately(t *testing.T) {
	mutating := `MATCH (b:Bed) SET b.status = 'available' RETURN b`
	c := &canned{
		generated: []string{mutating, mutating, mutating},
		validation: map[string]model.ValidationResult{
			mutating: model.Invalid(model.KindForbiddenOperation, "query contains mutating operation 'SET'"),
		},
	}
	ctrl := c.controller(3, 1)

	res := ctrl.Run(context.Background(), "free up bed 12")

	assert.Equal(t, StateExhausted, res.State)
	assert.Equal(t, model.KindForbiddenOperation, res.Reason)
	assert.Equal(t, 1, c.generateCalls, "safety budget of one means no second generation")
	assert.Equal(t, 0, c.executeCalls)
}

func TestRun_InfrastructureFailureDoesNotBurnGenerationBudget(t *testing.T) {
	q := "MATCH (n:Bed) RETURN count(n)"
	c := &canned{
		generated: []string{q, q, q},
		execution: map[string]model.ExecutionOutcome{
			q: model.ExecFailed(model.KindBackendError, "connection refused"),
		},
	}
	ctrl := c.controller(3, 1)

	res := ctrl.Run(context.Background(), "q")

	assert.Equal(t, StateExhausted, res.State)
	assert.Equal(t, model.KindBackendError, res.Reason)
	assert.Equal(t, 1, c.generateCalls)
}

func TestRun_CancelledContextReportsTimedOut(t *testing.T) {
	c := &canned{generated: []string{"MATCH (n:Bed) RETURN n"}}
	ctrl := c.controller(3, 1)

	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	time.Sleep(time.Millisecond)

	res := ctrl.Run(ctx, "q")

	assert.Equal(t, StateExhausted, res.State)
	assert.Equal(t, model.KindTimedOut, res.Reason)
	assert.Equal(t, 0, c.generateCalls)
}

func TestRun_TerminalStateIsAlwaysSucceededOrExhausted(t *testing.T) {
	scripts := []*canned{
		{generated: []string{"q1"}},
		{generated: []string{"q1", "q2", "q3"}, validation: map[string]model.ValidationResult{
			"q1": model.Invalid(model.KindSyntaxError, "x"),
			"q2": model.Invalid(model.KindSyntaxError, "x"),
			"q3": model.Invalid(model.KindSyntaxError, "x"),
		}},
		{generated: []string{"q1"}, execution: map[string]model.ExecutionOutcome{
			"q1": model.ExecFailed(model.KindBackendError, "down"),
		}},
	}

	for i, c := range scripts {
		res := c.controller(3, 1).Run(context.Background(), "q")
		assert.Contains(t, []State{StateSucceeded, StateExhausted}, res.State, "script %d", i)
	}
}

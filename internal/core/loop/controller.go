// Package loop drives the generate → validate → execute → repair cycle for a
// single question, bounded by the attempt budget. Collaborators are injected
// as functions so every transition can be exercised with canned responses.
package loop

import (
	"context"

	"go.uber.org/zap"

	"github.com/careops/lattice/internal/core/model"
	"github.com/careops/lattice/internal/metrics"
)

// State names the controller's state machine positions. Init, Generated,
// Validated and Executed are transit states; Succeeded and Exhausted are the
// only terminals.
type State string

const (
	StateInit      State = "init"
	StateGenerated State = "generated"
	StateValidated State = "validated"
	StateExecuted  State = "executed"
	StateSucceeded State = "succeeded"
	StateExhausted State = "exhausted"
)

type (
	GenerateFunc func(ctx context.Context, question string, state *model.RetryState) (model.CandidateQuery, error)
	ValidateFunc func(q model.CandidateQuery) model.ValidationResult
	ExecuteFunc  func(ctx context.Context, q model.CandidateQuery) model.ExecutionOutcome
	AdviseFunc   func(question string, kind model.ErrorKind, detail string) string
)

type Controller struct {
	Generate GenerateFunc
	Validate ValidateFunc
	Execute  ExecuteFunc
	Advise   AdviseFunc

	// MaxAttempts bounds ordinary retries. SafetyBudget bounds policy
	// violations separately; repeated safety failures indicate misuse, not
	// confusion, so the default budget is a single occurrence.
	MaxAttempts  int
	SafetyBudget int

	log *zap.Logger
}

func NewController(gen GenerateFunc, val ValidateFunc, exec ExecuteFunc, advise AdviseFunc, maxAttempts, safetyBudget int, log *zap.Logger) *Controller {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if safetyBudget <= 0 {
		safetyBudget = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Controller{
		Generate:     gen,
		Validate:     val,
		Execute:      exec,
		Advise:       advise,
		MaxAttempts:  maxAttempts,
		SafetyBudget: safetyBudget,
		log:          log,
	}
}

// Result is the controller's terminal outcome. State is always exactly one
// of StateSucceeded or StateExhausted; on exhaustion Reason distinguishes
// "tried and failed" (AttemptsExhausted), "ran out of time" (TimedOut),
// broken infrastructure, and safety violations. The controller never invents
// rows to cover a failure.
type Result struct {
	State    State
	Query    model.CandidateQuery
	Rows     []model.Row
	Attempts int
	Reason   model.ErrorKind
	Detail   string
	History  []model.AttemptRecord
}

// Run executes the loop for one question. The caller's context carries the
// overall request deadline; when it fires mid-loop the result reports
// TimedOut rather than AttemptsExhausted.
func (c *Controller) Run(ctx context.Context, question string) Result {
	state := &model.RetryState{
		Question:    question,
		MaxAttempts: c.MaxAttempts,
	}
	safetyViolations := 0

	for state.Attempt < c.MaxAttempts {
		if ctx.Err() != nil {
			return c.exhausted(state, model.KindTimedOut, "request deadline exceeded")
		}

		q, err := c.Generate(ctx, question, state)
		if err != nil {
			if ctx.Err() != nil {
				return c.exhausted(state, model.KindTimedOut, "request deadline exceeded during generation")
			}
			return c.exhausted(state, model.KindBackendError, "generation provider failed: "+err.Error())
		}
		c.log.Debug("state transition", zap.String("state", string(StateGenerated)),
			zap.Int("attempt", state.Attempt), zap.String("query", q.Text))

		record := model.AttemptRecord{Query: q}

		vr := c.Validate(q)
		if !vr.Valid {
			record.Validation = &vr
			metrics.AttemptFailures.WithLabelValues(string(vr.Kind)).Inc()
			c.log.Info("candidate query rejected",
				zap.String("kind", string(vr.Kind)), zap.String("detail", vr.Detail))

			if vr.Kind.IsSafetyViolation() {
				metrics.SafetyViolations.Inc()
				safetyViolations++
				if safetyViolations >= c.SafetyBudget {
					record.RepairHint = ""
					state.History = append(state.History, record)
					state.Attempt++
					return c.exhausted(state, vr.Kind, vr.Detail)
				}
			}

			record.RepairHint = c.Advise(question, vr.Kind, vr.Detail)
			state.History = append(state.History, record)
			state.Attempt++
			continue
		}
		c.log.Debug("state transition", zap.String("state", string(StateValidated)),
			zap.Int("attempt", state.Attempt))

		out := c.Execute(ctx, q)
		c.log.Debug("state transition", zap.String("state", string(StateExecuted)),
			zap.Int("attempt", state.Attempt), zap.Bool("ok", out.OK))
		record.Execution = &out

		if out.OK {
			state.History = append(state.History, record)
			state.Attempt++
			return Result{
				State:    StateSucceeded,
				Query:    q,
				Rows:     out.Rows,
				Attempts: state.Attempt,
				History:  state.History,
			}
		}

		metrics.AttemptFailures.WithLabelValues(string(out.Kind)).Inc()

		if ctx.Err() != nil {
			state.History = append(state.History, record)
			state.Attempt++
			return c.exhausted(state, model.KindTimedOut, "request deadline exceeded during execution")
		}

		// A broken backend is not fixed by generating different queries;
		// the executor already retried the transient window.
		if out.Kind.IsInfrastructure() {
			state.History = append(state.History, record)
			state.Attempt++
			return c.exhausted(state, out.Kind, out.Detail)
		}

		record.RepairHint = c.Advise(question, out.Kind, out.Detail)
		state.History = append(state.History, record)
		state.Attempt++
	}

	return c.exhausted(state, model.KindAttemptsExhausted,
		"no valid query produced a result within the attempt budget")
}

func (c *Controller) exhausted(state *model.RetryState, reason model.ErrorKind, detail string) Result {
	c.log.Warn("answer attempt exhausted",
		zap.String("question", state.Question),
		zap.String("reason", string(reason)),
		zap.Int("attempts", state.Attempt))
	return Result{
		State:    StateExhausted,
		Attempts: state.Attempt,
		Reason:   reason,
		Detail:   detail,
		History:  state.History,
	}
}

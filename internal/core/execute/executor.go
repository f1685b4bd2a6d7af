// Package execute runs validated queries against the graph store and maps
// raw driver results and errors onto the pipeline's outcome taxonomy.
package execute

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"github.com/careops/lattice/internal/core/model"
	"github.com/careops/lattice/internal/driver"
)

type Executor struct {
	Driver       driver.GraphDriver
	InfraRetries int
	log          *zap.Logger
}

func NewExecutor(d driver.GraphDriver, infraRetries int, log *zap.Logger) *Executor {
	if log == nil {
		log = zap.NewNop()
	}
	if infraRetries < 0 {
		infraRetries = 0
	}
	return &Executor{Driver: d, InfraRetries: infraRetries, log: log}
}

// Execute runs the candidate query. Transient backend failures are retried a
// bounded number of times before surfacing as BackendError. A zero-row result
// triggers a distinct-values probe of the query's equality literals so a
// value-domain miss (wrong casing, wrong synonym) comes back as
// SchemaMismatch instead of masquerading as an honest empty.
func (e *Executor) Execute(ctx context.Context, q model.CandidateQuery) model.ExecutionOutcome {
	res, err := e.run(ctx, q.Text, nil)
	if err != nil {
		return model.ExecFailed(model.KindBackendError, err.Error())
	}

	rows := toRows(res)
	if len(rows) > 0 {
		return model.Succeeded(rows)
	}

	if out, mismatch := e.probeLiterals(ctx, q.Text); mismatch {
		return out
	}

	out := model.Succeeded(nil)
	out.Kind = model.KindNoResults
	out.Detail = "query ran successfully and matched nothing"
	return out
}

func (e *Executor) run(ctx context.Context, query string, params map[string]interface{}) (neo4j.EagerResult, error) {
	var lastErr error
	for attempt := 0; attempt <= e.InfraRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return neo4j.EagerResult{}, ctx.Err()
			case <-time.After(time.Duration(attempt) * 100 * time.Millisecond):
			}
			e.log.Debug("retrying backend call", zap.Int("attempt", attempt))
		}

		res, err := e.Driver.ExecuteQuery(ctx, query, params)
		if err == nil {
			return res, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return neo4j.EagerResult{}, lastErr
}

func toRows(res neo4j.EagerResult) []model.Row {
	rows := make([]model.Row, 0, len(res.Records))
	for _, rec := range res.Records {
		row := model.Row{
			Columns: append([]string(nil), rec.Keys...),
			Values:  append([]any(nil), rec.Values...),
		}
		rows = append(rows, row)
	}
	return rows
}

// equalityLiteral is one (label, property, value) predicate pulled out of the
// query text, e.g. (d:Department {name: 'Intensive Care'}).
type equalityLiteral struct {
	Label    string
	Property string
	Value    string
}

var (
	inlineMapRe  = regexp.MustCompile(`\(\s*(?:[A-Za-z_][A-Za-z0-9_]*)?\s*:\s*([A-Za-z_][A-Za-z0-9_]*)\s*\{([^}]*)\}`)
	mapLiteralRe = regexp.MustCompile(`([A-Za-z_][A-Za-z0-9_]*)\s*:\s*'([^']*)'`)
	aliasBindRe  = regexp.MustCompile(`\(\s*([A-Za-z_][A-Za-z0-9_]*)\s*:\s*([A-Za-z_][A-Za-z0-9_]*)`)
	comparisonRe = regexp.MustCompile(`([A-Za-z_][A-Za-z0-9_]*)\.([A-Za-z_][A-Za-z0-9_]*)\s*=\s*'([^']*)'`)
)

// probeLiterals checks each string equality in the query against the values
// actually stored for that label/property. Reports (outcome, true) when a
// literal resolves to nothing the store has ever seen.
func (e *Executor) probeLiterals(ctx context.Context, query string) (model.ExecutionOutcome, bool) {
	literals := extractLiterals(query)

	for _, lit := range literals {
		res, err := e.run(ctx, driver.DistinctValuesQuery(lit.Label, lit.Property), nil)
		if err != nil {
			e.log.Warn("distinct-values probe failed",
				zap.String("label", lit.Label),
				zap.String("property", lit.Property),
				zap.Error(err))
			continue
		}

		var actual []string
		found := false
		for _, rec := range res.Records {
			v, ok := rec.Get("value")
			if !ok {
				continue
			}
			s, ok := v.(string)
			if !ok {
				continue
			}
			actual = append(actual, s)
			if s == lit.Value {
				found = true
			}
		}

		if !found && len(actual) > 0 {
			detail := fmt.Sprintf("no %s node has %s = '%s'; actual values: %s",
				lit.Label, lit.Property, lit.Value, strings.Join(actual, ", "))
			return model.ExecFailed(model.KindSchemaMismatch, detail), true
		}
	}

	return model.ExecutionOutcome{}, false
}

func extractLiterals(query string) []equalityLiteral {
	var literals []equalityLiteral

	for _, m := range inlineMapRe.FindAllStringSubmatch(query, -1) {
		label, body := m[1], m[2]
		for _, lm := range mapLiteralRe.FindAllStringSubmatch(body, -1) {
			literals = append(literals, equalityLiteral{Label: label, Property: lm[1], Value: lm[2]})
		}
	}

	bindings := make(map[string]string)
	for _, m := range aliasBindRe.FindAllStringSubmatch(query, -1) {
		bindings[m[1]] = m[2]
	}
	for _, m := range comparisonRe.FindAllStringSubmatch(query, -1) {
		if label, ok := bindings[m[1]]; ok {
			literals = append(literals, equalityLiteral{Label: label, Property: m[2], Value: m[3]})
		}
	}

	return literals
}

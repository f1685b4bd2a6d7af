package model

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// CandidateQuery is one generated-but-unverified Cypher query produced for a
// single attempt. It lives only until the attempt resolves.
type CandidateQuery struct {
	Text     string `json:"text"`
	Question string `json:"question"`
	Attempt  int    `json:"attempt"`
}

// ValidationResult is the outcome of checking a candidate query against the
// schema catalog and the safety policy.
type ValidationResult struct {
	Valid  bool      `json:"valid"`
	Kind   ErrorKind `json:"kind,omitempty"`
	Detail string    `json:"detail,omitempty"`
}

func Valid() ValidationResult {
	return ValidationResult{Valid: true}
}

func Invalid(kind ErrorKind, detail string) ValidationResult {
	return ValidationResult{Valid: false, Kind: kind, Detail: detail}
}

// Row is one result row with projection order preserved. Columns and Values
// are parallel slices; a map would lose the order the query projected.
type Row struct {
	Columns []string
	Values  []any
}

// Get returns the value for a column name.
func (r Row) Get(column string) (any, bool) {
	for i, c := range r.Columns {
		if c == column {
			return r.Values[i], true
		}
	}
	return nil, false
}

// MarshalJSON emits the row as a JSON object in projection order.
func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, c := range r.Columns {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(c)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(r.Values[i])
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON restores a row from its object form, keeping key order.
func (r *Row) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("row: expected JSON object, got %v", tok)
	}

	r.Columns = nil
	r.Values = nil
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("row: expected string key, got %v", keyTok)
		}
		var val any
		if err := dec.Decode(&val); err != nil {
			return err
		}
		r.Columns = append(r.Columns, key)
		r.Values = append(r.Values, val)
	}

	_, err = dec.Token() // closing brace
	return err
}

// ExecutionOutcome is the result of running a validated query. OK with Rows
// on success (possibly zero rows), otherwise Kind/Detail describe the failure.
type ExecutionOutcome struct {
	OK     bool      `json:"ok"`
	Rows   []Row     `json:"rows,omitempty"`
	Kind   ErrorKind `json:"kind,omitempty"`
	Detail string    `json:"detail,omitempty"`
}

func Succeeded(rows []Row) ExecutionOutcome {
	return ExecutionOutcome{OK: true, Rows: rows}
}

func ExecFailed(kind ErrorKind, detail string) ExecutionOutcome {
	return ExecutionOutcome{OK: false, Kind: kind, Detail: detail}
}

// AttemptRecord captures one loop iteration for the generation context and
// for post-mortem logging. Exactly one of Validation/Execution is set unless
// the attempt passed validation and went on to execute.
type AttemptRecord struct {
	Query      CandidateQuery    `json:"query"`
	Validation *ValidationResult `json:"validation,omitempty"`
	Execution  *ExecutionOutcome `json:"execution,omitempty"`
	RepairHint string            `json:"repair_hint,omitempty"`
}

// RetryState is the per-request loop state. Created per incoming question and
// discarded once the request resolves.
type RetryState struct {
	Question    string          `json:"question"`
	Attempt     int             `json:"attempt"`
	MaxAttempts int             `json:"max_attempts"`
	History     []AttemptRecord `json:"history"`
}

// AnswerResult is what the pipeline hands back to the calling layer. When the
// loop exhausts or times out, Available is false and Reason says why; the
// pipeline never fabricates rows to cover a failure.
type AnswerResult struct {
	Available     bool      `json:"available"`
	Rows          []Row     `json:"rows,omitempty"`
	AcceptedQuery string    `json:"accepted_query,omitempty"`
	FromCache     bool      `json:"from_cache,omitempty"`
	Attempts      int       `json:"attempts"`
	Reason        ErrorKind `json:"reason,omitempty"`
	Detail        string    `json:"detail,omitempty"`
}

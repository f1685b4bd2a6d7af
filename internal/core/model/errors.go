package model

// ErrorKind classifies every failure the answer pipeline can produce,
// from validation through execution to the terminal controller states.
type ErrorKind string

const (
	// Validation-time kinds.
	KindSyntaxError            ErrorKind = "syntax_error"
	KindUnknownSchemaElement   ErrorKind = "unknown_schema_element"
	KindForbiddenOperation     ErrorKind = "forbidden_operation"
	KindSensitiveFieldExposure ErrorKind = "sensitive_field_exposure"

	// Execution-time kinds.
	KindNoResults      ErrorKind = "no_results"
	KindSchemaMismatch ErrorKind = "schema_mismatch"
	KindBackendError   ErrorKind = "backend_error"

	// Infrastructure.
	KindCatalogUnavailable ErrorKind = "catalog_unavailable"

	// Terminal controller states.
	KindTimedOut          ErrorKind = "timed_out"
	KindAttemptsExhausted ErrorKind = "attempts_exhausted"
)

// IsSafetyViolation reports whether the kind indicates a policy violation
// rather than an honest generation mistake. Safety violations burn a
// separate, much smaller retry budget.
func (k ErrorKind) IsSafetyViolation() bool {
	return k == KindForbiddenOperation || k == KindSensitiveFieldExposure
}

// IsInfrastructure reports whether the kind indicates a broken collaborator
// rather than a bad query. Regenerating a query does not fix these, so the
// controller surfaces them instead of burning generation attempts.
func (k ErrorKind) IsInfrastructure() bool {
	return k == KindBackendError || k == KindCatalogUnavailable
}

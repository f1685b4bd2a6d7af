// Package repair turns validation and execution failures into natural-
// language instructions for the next generation attempt. The mapping is
// deterministic: same failure in, same hint out.
package repair

import (
	"fmt"

	"github.com/careops/lattice/internal/core/model"
)

// Advise produces the repair hint to append to the next generation attempt.
// The detail string is expected to carry the concrete facts the generator
// needs (valid schema names, actual stored values), which the validator and
// executor already embed.
func Advise(question string, kind model.ErrorKind, detail string) string {
	switch kind {
	case model.KindSyntaxError:
		return fmt.Sprintf(
			"The previous query was not well-formed (%s). Generate a single syntactically valid read-only Cypher query with one MATCH clause and one RETURN clause.",
			detail)

	case model.KindUnknownSchemaElement:
		return fmt.Sprintf(
			"The previous query referenced a schema element that does not exist: %s. Use only the entity types, relationship types and properties listed.",
			detail)

	case model.KindSchemaMismatch:
		return fmt.Sprintf(
			"The previous query matched nothing because a literal value does not occur in the data: %s. Rewrite the query using one of the actual stored values exactly, including casing.",
			detail)

	case model.KindForbiddenOperation, model.KindSensitiveFieldExposure:
		return fmt.Sprintf(
			"The previous query violated the safety policy: %s. Generate a strictly read-only query that performs no writes and projects no sensitive fields.",
			detail)

	case model.KindNoResults:
		return fmt.Sprintf(
			"The previous query ran but matched no data (%s). Reconsider whether the question \"%s\" can be answered with a different traversal of the same schema.",
			detail, question)

	default:
		return fmt.Sprintf(
			"The previous attempt failed (%s). Generate a different read-only query answering: %s",
			detail, question)
	}
}

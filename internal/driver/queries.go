package driver

import "fmt"

const (
	LabelsQuery = `
		CALL db.labels() YIELD label
		RETURN label
	`

	RelationshipTypesQuery = `
		CALL db.relationshipTypes() YIELD relationshipType
		RETURN relationshipType
	`
)

// PropertyKeysQuery returns the distinct property keys present on nodes with
// the given label. The label is interpolated, not parameterized, because
// Cypher does not allow parameters in label position; callers only pass
// labels already confirmed by introspection.
func PropertyKeysQuery(label string) string {
	return fmt.Sprintf(`
		MATCH (n:%s)
		UNWIND keys(n) AS key
		RETURN DISTINCT key
	`, label)
}

// DistinctValuesQuery probes the actual values stored for a label property.
// Used to tell an honestly-empty result apart from a value-domain miss
// (e.g. the query said 'Intensive Care' where the store says 'ICU').
func DistinctValuesQuery(label, property string) string {
	return fmt.Sprintf(`
		MATCH (n:%s)
		RETURN DISTINCT n.%s AS value
		LIMIT 25
	`, label, property)
}

// Package validate checks candidate Cypher queries against the schema
// catalog and the read-only safety policy before anything touches the store.
package validate

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/careops/lattice/internal/core/model"
	"github.com/careops/lattice/internal/core/schema"
)

// Mutating clause keywords. Any of these makes a query a write, which the
// answer pipeline must never run.
var forbiddenKeywords = []string{
	"CREATE", "MERGE", "SET", "DELETE", "DETACH", "REMOVE", "DROP",
}

var (
	nodePatternRe = regexp.MustCompile(`\(\s*([A-Za-z_][A-Za-z0-9_]*)?\s*((?::\s*[A-Za-z_][A-Za-z0-9_]*)+)`)
	relPatternRe  = regexp.MustCompile(`\[\s*(?:[A-Za-z_][A-Za-z0-9_]*)?\s*:\s*([A-Za-z_][A-Za-z0-9_]*)`)
	accessorRe    = regexp.MustCompile(`\b([A-Za-z_][A-Za-z0-9_]*)\.([A-Za-z_][A-Za-z0-9_]*)\b`)
	mapKeyRe      = regexp.MustCompile(`([A-Za-z_][A-Za-z0-9_]*)\s*:`)
	labelRe       = regexp.MustCompile(`:\s*([A-Za-z_][A-Za-z0-9_]*)`)
	keywordRe     = regexp.MustCompile(`[A-Za-z_]+`)
)

// Validate runs the ordered checks from the safety design: syntactic shape,
// schema element existence, property existence, mutation deny-list, sensitive
// projections. The first failing check short-circuits. Pure function: no I/O,
// no retained state.
func Validate(q model.CandidateQuery, cat *schema.Catalog) model.ValidationResult {
	stripped, ok := stripStrings(q.Text)
	if !ok {
		return model.Invalid(model.KindSyntaxError, "unterminated string literal")
	}

	if res := checkShape(q.Text, stripped); !res.Valid {
		return res
	}

	bindings, nodeProps := bindPatterns(stripped)

	if res := checkSchemaElements(stripped, cat); !res.Valid {
		return res
	}
	if res := checkProperties(stripped, bindings, nodeProps, cat); !res.Valid {
		return res
	}
	if res := checkForbidden(stripped); !res.Valid {
		return res
	}
	if res := checkSensitive(stripped, bindings, nodeProps, cat); !res.Valid {
		return res
	}

	return model.Valid()
}

// checkShape gates on the minimal well-formedness of the read subset:
// non-empty, balanced delimiters, a MATCH pattern and a RETURN projection.
func checkShape(original, stripped string) model.ValidationResult {
	if strings.TrimSpace(original) == "" {
		return model.Invalid(model.KindSyntaxError, "empty query")
	}

	pairs := []struct{ open, close rune }{{'(', ')'}, {'[', ']'}, {'{', '}'}}
	for _, p := range pairs {
		if strings.Count(stripped, string(p.open)) != strings.Count(stripped, string(p.close)) {
			return model.Invalid(model.KindSyntaxError,
				fmt.Sprintf("unbalanced '%c'/'%c' delimiters", p.open, p.close))
		}
	}

	upper := strings.ToUpper(stripped)
	if !containsKeyword(upper, "MATCH") {
		return model.Invalid(model.KindSyntaxError, "query has no MATCH clause")
	}
	if !containsKeyword(upper, "RETURN") {
		return model.Invalid(model.KindSyntaxError, "query has no RETURN clause")
	}

	return model.Valid()
}

func checkSchemaElements(stripped string, cat *schema.Catalog) model.ValidationResult {
	for _, m := range nodePatternRe.FindAllStringSubmatch(stripped, -1) {
		for _, lm := range labelRe.FindAllStringSubmatch(m[2], -1) {
			label := lm[1]
			if !cat.HasEntity(label) {
				return model.Invalid(model.KindUnknownSchemaElement,
					fmt.Sprintf("unknown entity type '%s'; valid entity types: %s",
						label, strings.Join(cat.EntityNames(), ", ")))
			}
		}
	}

	for _, m := range relPatternRe.FindAllStringSubmatch(stripped, -1) {
		rel := m[1]
		if !cat.HasRelationship(rel) {
			return model.Invalid(model.KindUnknownSchemaElement,
				fmt.Sprintf("unknown relationship type '%s'; valid relationship types: %s",
					rel, strings.Join(cat.RelationshipNames(), ", ")))
		}
	}

	return model.Valid()
}

func checkProperties(stripped string, bindings map[string]string, nodeProps map[string][]string, cat *schema.Catalog) model.ValidationResult {
	for label, props := range nodeProps {
		if !cat.HasEntity(label) {
			continue // already reported by the schema element check
		}
		for _, prop := range props {
			if !cat.HasProperty(label, prop) {
				return model.Invalid(model.KindUnknownSchemaElement,
					fmt.Sprintf("entity type '%s' has no property '%s'; valid properties: %s",
						label, prop, strings.Join(cat.PropertyNames(label), ", ")))
			}
		}
	}

	for _, m := range accessorRe.FindAllStringSubmatch(stripped, -1) {
		alias, prop := m[1], m[2]
		label, bound := bindings[alias]
		if !bound {
			// Unbound aliases (relationship variables, WITH projections)
			// cannot be checked statically.
			continue
		}
		if !cat.HasProperty(label, prop) {
			return model.Invalid(model.KindUnknownSchemaElement,
				fmt.Sprintf("entity type '%s' has no property '%s'; valid properties: %s",
					label, prop, strings.Join(cat.PropertyNames(label), ", ")))
		}
	}

	return model.Valid()
}

func checkForbidden(stripped string) model.ValidationResult {
	for _, word := range keywordRe.FindAllString(stripped, -1) {
		upper := strings.ToUpper(word)
		for _, banned := range forbiddenKeywords {
			if upper == banned {
				return model.Invalid(model.KindForbiddenOperation,
					fmt.Sprintf("query contains mutating operation '%s'; only read-only queries are permitted", banned))
			}
		}
	}
	return model.Valid()
}

func checkSensitive(stripped string, bindings map[string]string, nodeProps map[string][]string, cat *schema.Catalog) model.ValidationResult {
	sensitive := func(label, prop string) model.ValidationResult {
		d, _ := cat.Descriptor(label, prop)
		detail := fmt.Sprintf("property '%s.%s' is flagged sensitive", label, prop)
		if d.Notes != "" {
			detail += ": " + d.Notes
		}
		return model.Invalid(model.KindSensitiveFieldExposure, detail)
	}

	for label, props := range nodeProps {
		for _, prop := range props {
			if d, ok := cat.Descriptor(label, prop); ok && d.Sensitive {
				return sensitive(label, prop)
			}
		}
	}

	for _, m := range accessorRe.FindAllStringSubmatch(stripped, -1) {
		alias, prop := m[1], m[2]
		label, bound := bindings[alias]
		if !bound {
			continue
		}
		if d, ok := cat.Descriptor(label, prop); ok && d.Sensitive {
			return sensitive(label, prop)
		}
	}

	return model.Valid()
}

// bindPatterns extracts alias→label bindings from node patterns and the
// property keys used in inline map literals, keyed by label.
func bindPatterns(stripped string) (map[string]string, map[string][]string) {
	bindings := make(map[string]string)
	nodeProps := make(map[string][]string)

	for _, loc := range nodePatternRe.FindAllStringSubmatchIndex(stripped, -1) {
		var alias string
		if loc[2] >= 0 {
			alias = stripped[loc[2]:loc[3]]
		}
		labelGroup := stripped[loc[4]:loc[5]]
		labels := labelRe.FindAllStringSubmatch(labelGroup, -1)
		if len(labels) == 0 {
			continue
		}
		label := labels[0][1]
		if alias != "" {
			bindings[alias] = label
		}

		// Inline property map, e.g. (d:Department {name: 'ICU'}).
		rest := stripped[loc[1]:]
		if i := strings.IndexAny(rest, "{)"); i >= 0 && rest[i] == '{' {
			if j := strings.Index(rest[i:], "}"); j >= 0 {
				body := rest[i+1 : i+j]
				for _, km := range mapKeyRe.FindAllStringSubmatch(body, -1) {
					nodeProps[label] = append(nodeProps[label], km[1])
				}
			}
		}
	}

	return bindings, nodeProps
}

// stripStrings blanks out string literal contents so keyword and identifier
// scans never trip on user data. Returns false on an unterminated literal.
func stripStrings(query string) (string, bool) {
	var b strings.Builder
	b.Grow(len(query))

	var quote rune
	for _, r := range query {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
				b.WriteRune(r)
			} else {
				b.WriteByte(' ')
			}
		case r == '\'' || r == '"':
			quote = r
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}

	return b.String(), quote == 0
}

func containsKeyword(upper, keyword string) bool {
	for _, word := range keywordRe.FindAllString(upper, -1) {
		if word == keyword {
			return true
		}
	}
	return false
}

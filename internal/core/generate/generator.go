// Package generate wraps the external LLM behind the narrow interface the
// retry loop needs: question plus accumulated context in, one candidate
// Cypher query out. Prompt construction lives here so the loop stays
// deterministic and testable.
package generate

import (
	"context"
	"fmt"
	"strings"

	"github.com/careops/lattice/internal/core/model"
	"github.com/careops/lattice/internal/core/schema"
	"github.com/careops/lattice/internal/llm"
)

const defaultTemplate = `You translate operational questions into read-only Cypher queries.

%s

Rules:
- Generate exactly one Cypher query, nothing else.
- Read-only: never use CREATE, MERGE, SET, DELETE, DETACH, REMOVE or DROP.
- Use only the entity types, relationship types and properties listed above.
- Match enumerated property values exactly, including casing.
%s%s
Question: %s

Cypher query:`

type Generator struct {
	LLM      llm.LLMClient
	Template string
}

func NewGenerator(client llm.LLMClient, template string) *Generator {
	if template == "" {
		template = defaultTemplate
	}
	return &Generator{LLM: client, Template: template}
}

// Generate produces the next candidate query for the question, feeding prior
// attempts and their repair hints back into the prompt.
func (g *Generator) Generate(ctx context.Context, question string, cat *schema.Catalog, examples []model.GoldenExample, state *model.RetryState) (model.CandidateQuery, error) {
	prompt := fmt.Sprintf(g.Template,
		schemaDigest(cat),
		examplesSection(examples),
		historySection(state),
		question)

	response, err := g.LLM.Generate(ctx, prompt)
	if err != nil {
		return model.CandidateQuery{}, fmt.Errorf("failed to generate query: %w", err)
	}

	attempt := 0
	if state != nil {
		attempt = state.Attempt
	}

	return model.CandidateQuery{
		Text:     ExtractQuery(response),
		Question: question,
		Attempt:  attempt,
	}, nil
}

func schemaDigest(cat *schema.Catalog) string {
	var b strings.Builder
	b.WriteString("Schema:\nEntity types:\n")
	for _, entity := range cat.EntityNames() {
		b.WriteString("- ")
		b.WriteString(entity)
		b.WriteString("(")
		for i, prop := range cat.PropertyNames(entity) {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(prop)
			d, _ := cat.Descriptor(entity, prop)
			if d.Sensitive {
				b.WriteString(" [sensitive, never project]")
			} else if len(d.Enum) > 0 {
				b.WriteString(fmt.Sprintf(" [one of: %s]", strings.Join(d.Enum, ", ")))
			}
		}
		b.WriteString(")\n")
	}
	b.WriteString("Relationship types: ")
	b.WriteString(strings.Join(cat.RelationshipNames(), ", "))
	return b.String()
}

func examplesSection(examples []model.GoldenExample) string {
	if len(examples) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\nExamples of accepted question/query pairs:\n")
	for _, ex := range examples {
		fmt.Fprintf(&b, "Q: %s\nCypher: %s\n", ex.Question, ex.AcceptedQuery)
	}
	return b.String()
}

func historySection(state *model.RetryState) string {
	if state == nil || len(state.History) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\nPrevious failed attempts:\n")
	for _, rec := range state.History {
		fmt.Fprintf(&b, "Attempt %d: %s\n", rec.Query.Attempt+1, rec.Query.Text)
		if rec.RepairHint != "" {
			fmt.Fprintf(&b, "Correction: %s\n", rec.RepairHint)
		}
	}
	return b.String()
}

// ExtractQuery pulls the Cypher out of an LLM response, tolerating markdown
// fences and surrounding prose.
func ExtractQuery(response string) string {
	text := strings.TrimSpace(response)

	if i := strings.Index(text, "```"); i >= 0 {
		rest := text[i+3:]
		if j := strings.Index(rest, "\n"); j >= 0 {
			// Skip a language tag like ```cypher.
			if !strings.ContainsAny(rest[:j], " \t{}()") {
				rest = rest[j+1:]
			}
		}
		if k := strings.Index(rest, "```"); k >= 0 {
			rest = rest[:k]
		}
		text = strings.TrimSpace(rest)
	}

	// Drop any prose before the first MATCH clause.
	upper := strings.ToUpper(text)
	i := strings.Index(upper, "OPTIONAL MATCH")
	if i < 0 {
		i = strings.Index(upper, "MATCH")
	}
	if i > 0 {
		text = text[i:]
	}

	return strings.TrimSuffix(strings.TrimSpace(text), ";")
}

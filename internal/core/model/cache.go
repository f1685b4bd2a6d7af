package model

import "time"

// CacheEntry maps an embedded question to a previously accepted result.
// Only successful outcomes are ever cached; entries are appended, never
// mutated, and removed only by explicit policy.
type CacheEntry struct {
	QuestionEmbedding []float32 `json:"question_embedding"`
	CanonicalQuestion string    `json:"canonical_question"`
	Rows              []Row     `json:"rows"`
	AcceptedQuery     string    `json:"accepted_query"`
	CreatedAt         time.Time `json:"created_at"`
}

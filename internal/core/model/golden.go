package model

import "time"

// GoldenSource records how an example entered the golden set.
type GoldenSource string

const (
	SourceUserFeedback GoldenSource = "user_feedback"
	SourceSeedData     GoldenSource = "seed_data"
)

// GoldenExample is a (question, query) pair promoted into the durable example
// set after explicit positive feedback (or shipped as seed data). Every
// example must have re-executed successfully against the live catalog at
// ValidatedAt; the curator evicts or flags examples that stop satisfying that.
type GoldenExample struct {
	ID            string       `json:"id"`
	Question      string       `json:"question"`
	AcceptedQuery string       `json:"accepted_query"`
	ValidatedAt   time.Time    `json:"validated_at"`
	Source        GoldenSource `json:"source"`
	Flagged       bool         `json:"flagged"`
}

// FeedbackSignal is the user's verdict on a (question, query, result) triple.
type FeedbackSignal string

const (
	SignalAccept FeedbackSignal = "accept"
	SignalReject FeedbackSignal = "reject"
)

// ReviewItem is a rejected triple parked for human review. Rejections are
// never learned from automatically.
type ReviewItem struct {
	ID         string    `json:"id"`
	Question   string    `json:"question"`
	Query      string    `json:"query"`
	ResultJSON string    `json:"result_json"`
	CreatedAt  time.Time `json:"created_at"`
}

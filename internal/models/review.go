package models

import "time"

// MaxSeverityScore is the best possible review score.
const MaxSeverityScore = 100

// Review is one persisted analysis run. Reviews are never updated after creation.
type Review struct {
	ID            string    `json:"id"`
	UserID        string    `json:"userId"`
	OriginalCode  string    `json:"originalCode"`
	Language      string    `json:"language"`
	Context       string    `json:"context"`
	Issues        []Issue   `json:"issues"`
	SeverityScore int       `json:"severityScore"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Identity is the verified caller behind a bearer token.
type Identity struct {
	UID   string `json:"uid"`
	Email string `json:"email"`
}

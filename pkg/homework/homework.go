// Package homework contains the core domain types for the homework review notifier.
package homework

import "time"

// Review status codes reported by the API.
const (
	StatusApproved  = "approved"
	StatusReviewing = "reviewing"
	StatusRejected  = "rejected"
)

// Verdicts maps a review status code to the sentence sent to the user.
var Verdicts = map[string]string{
	StatusApproved:  "Work reviewed: the reviewer liked everything. Hooray!",
	StatusReviewing: "Work taken for review by the reviewer.",
	StatusRejected:  "Work reviewed: the reviewer has remarks.",
}

// Verdict returns the sentence for a status code.
func Verdict(status string) (string, bool) {
	v, ok := Verdicts[status]
	return v, ok
}

// Homework is one submission as reported by the API.
// Name and Status are empty when the field was absent from the payload.
type Homework struct {
	Name            string `json:"homework_name"`
	Status          string `json:"status"`
	ID              int64  `json:"id,omitempty"`
	LessonName      string `json:"lesson_name,omitempty"`
	ReviewerComment string `json:"reviewer_comment,omitempty"`
	DateUpdated     string `json:"date_updated,omitempty"`
}

// Response is a validated homework_statuses payload.
type Response struct {
	Homeworks   []*Homework `json:"homeworks"`
	CurrentDate int64       `json:"current_date"`
}

// Iteration records the outcome of one poll cycle.
type Iteration struct {
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
	ID            string    `json:"id"`
	Error         string    `json:"error,omitempty"`
	CursorBefore  int64     `json:"cursor_before"`
	CursorAfter   int64     `json:"cursor_after"`
	Homeworks     int       `json:"homeworks"`
	Notifications int       `json:"notifications"`
}

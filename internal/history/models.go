package history

import "time"

// Entry is the immutable archive of one finished call.
//
// Invariants:
// - Entries are written once, when a call reaches a terminal status.
// - Live negotiation state (descriptions, candidates) is deliberately not
//   archived; only what the history screen displays.

type Entry struct {
	CallID      string `json:"call_id" db:"call_id"`
	ThreadID    string `json:"thread_id" db:"thread_id"`
	CallerID    string `json:"caller_id" db:"caller_id"`
	RecipientID string `json:"recipient_id" db:"recipient_id"`

	IsVideo bool   `json:"is_video" db:"is_video"`
	Status  string `json:"status" db:"status"`

	StartTime       time.Time `json:"start_time" db:"start_time"`
	EndTime         time.Time `json:"end_time" db:"end_time"`
	DurationSeconds int       `json:"duration_seconds" db:"duration_seconds"`
}

// Summary aggregates one thread's call history.
type Summary struct {
	ThreadID string `json:"thread_id"`

	TotalCalls     int `json:"total_calls"`
	CompletedCalls int `json:"completed_calls"`
	MissedCalls    int `json:"missed_calls"`
	DeclinedCalls  int `json:"declined_calls"`
	FailedCalls    int `json:"failed_calls"`

	TotalDurationSeconds   int `json:"total_duration_seconds"`
	AverageDurationSeconds int `json:"average_duration_seconds"`
}

package models

import "time"

// PendingGrade is an outcome-service delivery that has not been
// acknowledged by the LMS yet.
type PendingGrade struct {
	SessionID     string    `json:"session_id"`
	ServiceURL    string    `json:"service_url"`
	SourcedID     string    `json:"sourced_id"`
	ConsumerKey   string    `json:"consumer_key"`
	Score         float64   `json:"score"`
	Attempts      int       `json:"attempts"`
	LastError     string    `json:"last_error,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	NextAttemptAt time.Time `json:"next_attempt_at"`
}

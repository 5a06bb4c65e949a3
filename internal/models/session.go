package models

import (
	"encoding/json"
	"time"
)

// Result classifications. The string value names the result template.
const (
	ResultPass       = "pass"
	ResultFail       = "fail"
	ResultIncomplete = "incomplete"
)

// Session lives from launch until its results are uploaded.
type Session struct {
	UploadToken string            `json:"upload_token"`
	ConsumerKey string            `json:"consumer_key"`
	Params      map[string]string `json:"params"`
	CreatedAt   time.Time         `json:"created_at"`
}

// ActivityData keeps the raw upload for later analysis.
type ActivityData struct {
	UID   string          `json:"uid"`
	Video string          `json:"video"`
	Data  json.RawMessage `json:"data"`
}

type SessionMetadata struct {
	UID          string     `json:"uid"`
	ContextID    string     `json:"context_id"`
	Activity     string     `json:"activity"`
	ActivityName string     `json:"activity_name"`
	Username     string     `json:"username"`
	Video        string     `json:"video"`
	Result       string     `json:"result"`
	Grade        float64    `json:"grade"`
	ReturnURL    string     `json:"return_url"`
	CreatedAt    time.Time  `json:"created_at"`
	SubmittedAt  *time.Time `json:"submitted_at"`
}

// Submitted reports whether results were already uploaded for the session.
func (m SessionMetadata) Submitted() bool {
	return m.SubmittedAt != nil
}

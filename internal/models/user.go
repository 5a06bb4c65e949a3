package models

// User is keyed by the LMS-derived uid, never by the LMS user id itself.
type User struct {
	Username         string              `json:"username"`
	Sessions         []string            `json:"sessions"`
	Grades           map[string]float64  `json:"grades"`
	ActivitySessions map[string][]string `json:"activity_sessions"`
}

// ConsumerCredential is an OAuth key/secret pair bound to an LMS resource link.
type ConsumerCredential struct {
	ConsumerKey    string `json:"consumer_key"`
	ConsumerSecret string `json:"consumer_secret"`
}

type NonceRecord struct {
	Timestamp int64 `json:"timestamp"`
}

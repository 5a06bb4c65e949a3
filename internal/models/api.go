package models

// WebSocket message types
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

type ResultEvent struct {
	SessionID   string  `json:"session_id"`
	Result      string  `json:"result"`
	Grade       float64 `json:"grade"`
	GradePosted bool    `json:"grade_posted"`
}

// API Error response
type APIError struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id"`
}

type ErrorResponse struct {
	Error APIError `json:"error"`
}

package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"orthobox-backend/internal/services"
)

// ─── Error mapping ───

func TestHandleServiceError_StatusPerKind(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{services.ErrMissingCredentials, http.StatusBadRequest, "MISSING_CREDENTIALS"},
		{services.ErrUnknownConsumer, http.StatusUnauthorized, "UNKNOWN_CONSUMER"},
		{services.ErrInvalidSignature, http.StatusUnauthorized, "INVALID_SIGNATURE"},
		{services.ErrRequestExpired, http.StatusUnauthorized, "REQUEST_EXPIRED"},
		{services.ErrReplayDetected, http.StatusUnauthorized, "REPLAY_DETECTED"},
		{services.ErrCredentialMismatch, http.StatusForbidden, "CREDENTIAL_MISMATCH"},
		{services.ErrUnknownSession, http.StatusNotFound, "UNKNOWN_SESSION"},
		{services.ErrMalformedPayload, http.StatusBadRequest, "MALFORMED_PAYLOAD"},
		{services.ErrNotAnOutcomeService, http.StatusBadRequest, "NOT_AN_OUTCOME_SERVICE"},
		{services.ErrUnknownActivityType, http.StatusBadRequest, "UNKNOWN_ACTIVITY_TYPE"},
		{fmt.Errorf("wrapped: %w", services.ErrUnknownSession), http.StatusNotFound, "UNKNOWN_SESSION"},
		{&services.ValidationError{Fields: map[string]string{"criteria": "bad"}}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{&services.NotFoundError{Message: "unknown activity"}, http.StatusNotFound, "NOT_FOUND"},
		{errors.New("disk on fire"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tc := range tests {
		t.Run(tc.code, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/abc/results", nil)
			req.Header.Set("X-Request-ID", "req-1")
			rr := httptest.NewRecorder()

			handleServiceError(rr, req, tc.err)

			if rr.Code != tc.status {
				t.Errorf("Expected status %d, got %d", tc.status, rr.Code)
			}
			var body struct {
				Error struct {
					Code      string `json:"code"`
					RequestID string `json:"request_id"`
				} `json:"error"`
			}
			if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
				t.Fatalf("Failed to decode body: %v", err)
			}
			if body.Error.Code != tc.code || body.Error.RequestID != "req-1" {
				t.Errorf("Unexpected error body %+v", body.Error)
			}
		})
	}
}

func TestHandlePageError_PlainText(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/launch", nil)
	rr := httptest.NewRecorder()

	handlePageError(rr, req, services.ErrReplayDetected)

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("Expected plain text, got %q", ct)
	}
	if !strings.Contains(rr.Body.String(), "nonce") {
		t.Errorf("Message missing from body: %q", rr.Body.String())
	}
}

// ─── Templates ───

func TestPageURLs(t *testing.T) {
	urls := newPageURLs("https://lti.example.edu", "abc")

	if urls.JNLP != "https://lti.example.edu/abc/launch.jnlp" {
		t.Errorf("JNLP = %q", urls.JNLP)
	}
	if urls.Socket != "wss://lti.example.edu/abc/ws" {
		t.Errorf("Socket = %q", urls.Socket)
	}
	if urls.Results != "https://lti.example.edu/abc/results" {
		t.Errorf("Results = %q", urls.Results)
	}
}

func TestBaseURL_FromRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/abc/view_results", nil)
	req.Host = "tool.local:8128"
	req.Header.Set("X-Forwarded-Proto", "https")

	if got := baseURL("", req); got != "https://tool.local:8128" {
		t.Errorf("baseURL = %q", got)
	}
	if got := baseURL("http://configured", req); got != "http://configured" {
		t.Errorf("configured base ignored: %q", got)
	}
}

func TestTemplatesRender(t *testing.T) {
	urls := newPageURLs("http://tool.test", "abc")

	for _, name := range []string{"launch", "view_results", "pass", "fail", "incomplete"} {
		t.Run(name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			renderPage(rr, http.StatusOK, name, map[string]interface{}{
				"Title":        "Triangulation",
				"ActivityName": "Triangulation",
				"Username":     "<Ada>",
				"View":         map[string]interface{}{"Duration": 60, "ErrorNumber": 1, "Pokes": 9, "Drops": 0, "Completion": "1 of 3"},
				"URLs":         urls,
			})
			if rr.Code != http.StatusOK {
				t.Fatalf("Expected 200, got %d: %s", rr.Code, rr.Body.String())
			}
			if strings.Contains(rr.Body.String(), "<Ada>") {
				t.Error("Username was not escaped")
			}
		})
	}

	var buf bytes.Buffer
	err := jnlpTemplate.Execute(&buf, map[string]interface{}{
		"ActivityName": "Triangulation",
		"SessionID":    "abc",
		"UploadToken":  "tok.en",
		"URLs":         urls,
	})
	if err != nil {
		t.Fatalf("jnlp render failed: %v", err)
	}
	if !strings.Contains(buf.String(), "<argument>tok.en</argument>") {
		t.Errorf("Upload token missing from jnlp:\n%s", buf.String())
	}
}

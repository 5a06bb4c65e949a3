package services

import "fmt"

// Kind classifies the failures of launch and submission handling. The
// handlers map each kind to an HTTP status.
type Kind string

const (
	KindMissingCredentials  Kind = "MISSING_CREDENTIALS"
	KindUnknownConsumer     Kind = "UNKNOWN_CONSUMER"
	KindInvalidSignature    Kind = "INVALID_SIGNATURE"
	KindRequestExpired      Kind = "REQUEST_EXPIRED"
	KindReplayDetected      Kind = "REPLAY_DETECTED"
	KindCredentialMismatch  Kind = "CREDENTIAL_MISMATCH"
	KindUnknownSession      Kind = "UNKNOWN_SESSION"
	KindMalformedPayload    Kind = "MALFORMED_PAYLOAD"
	KindNotAnOutcomeService Kind = "NOT_AN_OUTCOME_SERVICE"
	KindUnknownActivityType Kind = "UNKNOWN_ACTIVITY_TYPE"
)

// Error is a classified service failure.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so the Err* values below work
// with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

func newError(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

var (
	ErrMissingCredentials  = &Error{Kind: KindMissingCredentials, Message: "missing OAuth data"}
	ErrUnknownConsumer     = &Error{Kind: KindUnknownConsumer, Message: "invalid OAuth consumer key"}
	ErrInvalidSignature    = &Error{Kind: KindInvalidSignature, Message: "invalid OAuth signature"}
	ErrRequestExpired      = &Error{Kind: KindRequestExpired, Message: "request timed out"}
	ErrReplayDetected      = &Error{Kind: KindReplayDetected, Message: "OAuth nonce already used"}
	ErrCredentialMismatch  = &Error{Kind: KindCredentialMismatch, Message: "OAuth credentials do not match this resource"}
	ErrUnknownSession      = &Error{Kind: KindUnknownSession, Message: "unknown session"}
	ErrMalformedPayload    = &Error{Kind: KindMalformedPayload, Message: "malformed JSON"}
	ErrNotAnOutcomeService = &Error{Kind: KindNotAnOutcomeService, Message: "tool was not launched as an outcome service"}
	ErrUnknownActivityType = &Error{Kind: KindUnknownActivityType, Message: "unknown activity type"}
)

type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string { return "Validation error" }

type NotFoundError struct{ Message string }

func (e *NotFoundError) Error() string { return e.Message }

package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"orthobox-backend/internal/models"
	"orthobox-backend/internal/services"
)

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func errorResp(code, message string, r *http.Request) models.ErrorResponse {
	return models.ErrorResponse{
		Error: models.APIError{
			Code:      code,
			Message:   message,
			RequestID: r.Header.Get("X-Request-ID"),
		},
	}
}

func errorRespWithFields(code, message string, fields map[string]string, r *http.Request) models.ErrorResponse {
	return models.ErrorResponse{
		Error: models.APIError{
			Code:      code,
			Message:   message,
			Fields:    fields,
			RequestID: r.Header.Get("X-Request-ID"),
		},
	}
}

var kindStatus = map[services.Kind]int{
	services.KindMissingCredentials:  http.StatusBadRequest,
	services.KindUnknownConsumer:     http.StatusUnauthorized,
	services.KindInvalidSignature:    http.StatusUnauthorized,
	services.KindRequestExpired:      http.StatusUnauthorized,
	services.KindReplayDetected:      http.StatusUnauthorized,
	services.KindCredentialMismatch:  http.StatusForbidden,
	services.KindUnknownSession:      http.StatusNotFound,
	services.KindMalformedPayload:    http.StatusBadRequest,
	services.KindNotAnOutcomeService: http.StatusBadRequest,
	services.KindUnknownActivityType: http.StatusBadRequest,
}

// statusFor returns the HTTP status and the client-facing message for err.
func statusFor(err error) (int, *services.Error) {
	var se *services.Error
	if errors.As(err, &se) {
		if status, ok := kindStatus[se.Kind]; ok {
			return status, se
		}
	}
	return http.StatusInternalServerError, nil
}

func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if status, se := statusFor(err); se != nil {
		writeJSON(w, status, errorResp(string(se.Kind), se.Message, r))
		return
	}

	var validation *services.ValidationError
	var notFound *services.NotFoundError
	switch {
	case errors.As(err, &validation):
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed", validation.Fields, r))
	case errors.As(err, &notFound):
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", notFound.Message, r))
	default:
		log.Printf("%s %s: %v", r.Method, r.URL.Path, err)
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "An unexpected error occurred", r))
	}
}

// handlePageError is handleServiceError for browser-facing routes, which
// answer in plain text.
func handlePageError(w http.ResponseWriter, r *http.Request, err error) {
	status, se := statusFor(err)
	if se == nil {
		log.Printf("%s %s: %v", r.Method, r.URL.Path, err)
		http.Error(w, "An unexpected error occurred", status)
		return
	}
	log.Printf("%s %s rejected: %v", r.Method, r.URL.Path, err)
	http.Error(w, se.Message, status)
}

package handlers

import (
	"bytes"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"orthobox-backend/internal/middleware"
	"orthobox-backend/internal/repository"
	"orthobox-backend/internal/services"
	"orthobox-backend/internal/store"
)

const maxUploadBytes = 10 << 20

// ResultWatcher streams result notifications for a session.
type ResultWatcher interface {
	Watch(w http.ResponseWriter, r *http.Request, sessionID string)
}

// ActivityHandler serves the per-session routes used by the browser and
// the activity box client.
type ActivityHandler struct {
	grading  *services.GradingService
	sessions *repository.SessionRepo
	watcher  ResultWatcher
	baseURL  string
}

func NewActivityHandler(grading *services.GradingService, sessions *repository.SessionRepo, watcher ResultWatcher, baseURL string) *ActivityHandler {
	return &ActivityHandler{grading: grading, sessions: sessions, watcher: watcher, baseURL: baseURL}
}

// JNLP returns the Java Web Start file that starts the client. It is gone
// once the session's results are in.
func (h *ActivityHandler) JNLP(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	token, err := h.sessions.GetUploadToken(r.Context(), sessionID)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "Unknown session. (Have you already run this activity?)", http.StatusNotFound)
		return
	}
	if err != nil {
		handlePageError(w, r, err)
		return
	}
	meta, err := h.sessions.GetMetadata(r.Context(), sessionID)
	if err != nil {
		handlePageError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := jnlpTemplate.Execute(&buf, map[string]interface{}{
		"ActivityName": meta.ActivityName,
		"SessionID":    sessionID,
		"UploadToken":  token,
		"URLs":         newPageURLs(baseURL(h.baseURL, r), sessionID),
	}); err != nil {
		log.Printf("render jnlp: %v", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/x-java-jnlp-file")
	w.Header().Set("Content-Disposition", `attachment; filename="launch.jnlp"`)
	w.Write(buf.Bytes())
}

// ViewResults is the page shown while the client runs.
func (h *ActivityHandler) ViewResults(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	meta, err := h.sessions.GetMetadata(r.Context(), sessionID)
	if errors.Is(err, store.ErrNotFound) {
		handlePageError(w, r, services.ErrUnknownSession)
		return
	}
	if err != nil {
		handlePageError(w, r, err)
		return
	}

	renderPage(w, http.StatusOK, "view_results", map[string]interface{}{
		"Title":        meta.ActivityName,
		"ActivityName": meta.ActivityName,
		"Username":     meta.Username,
		"URLs":         newPageURLs(baseURL(h.baseURL, r), sessionID),
	})
}

// Results renders the page for the session's classification.
func (h *ActivityHandler) Results(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	view, err := h.grading.Results(r.Context(), sessionID)
	if err != nil {
		handlePageError(w, r, err)
		return
	}

	renderPage(w, http.StatusOK, view.Metadata.Result, map[string]interface{}{
		"Title":        view.Metadata.ActivityName,
		"ActivityName": view.Metadata.ActivityName,
		"Username":     view.Metadata.Username,
		"View":         view,
		"URLs":         newPageURLs(baseURL(h.baseURL, r), sessionID),
	})
}

// SubmitResults receives the client's performance data.
func (h *ActivityHandler) SubmitResults(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	body, err := io.ReadAll(io.LimitReader(r.Body, maxUploadBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp(string(services.KindMalformedPayload), "Unreadable request body", r))
		return
	}

	result, err := h.grading.Submit(r.Context(), sessionID, middleware.UploadToken(r), body)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *ActivityHandler) Progress(w http.ResponseWriter, r *http.Request) {
	progress, err := h.grading.Progress(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

// Watch upgrades to a websocket that receives the session's result event.
func (h *ActivityHandler) Watch(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	if _, err := h.sessions.GetMetadata(r.Context(), sessionID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			err = services.ErrUnknownSession
		}
		handleServiceError(w, r, err)
		return
	}
	h.watcher.Watch(w, r, sessionID)
}

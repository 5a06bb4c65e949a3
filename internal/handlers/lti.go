package handlers

import (
	"log"
	"net/http"

	"orthobox-backend/internal/repository"
	"orthobox-backend/internal/services"
)

type LTIHandler struct {
	authorizer *services.Authorizer
	factory    *services.SessionService
	sessions   *repository.SessionRepo
	baseURL    string
}

func NewLTIHandler(authorizer *services.Authorizer, factory *services.SessionService, sessions *repository.SessionRepo, baseURL string) *LTIHandler {
	return &LTIHandler{authorizer: authorizer, factory: factory, sessions: sessions, baseURL: baseURL}
}

// Launch handles the LMS basic launch POST.
func (h *LTIHandler) Launch(w http.ResponseWriter, r *http.Request) {
	req, err := services.NewLaunchRequest(r, h.baseURL)
	if err != nil {
		handlePageError(w, r, err)
		return
	}

	tp, err := h.authorizer.Authorize(r.Context(), req)
	if err != nil {
		handlePageError(w, r, err)
		return
	}

	sessionID, err := h.factory.NewSession(r.Context(), tp)
	if err != nil {
		handlePageError(w, r, err)
		return
	}

	// An instructor launch without an outcome service is a preview.
	preview := tp.HasRole("Instructor") && !tp.IsOutcomeService()
	if preview {
		log.Printf("instructor launch %s without outcome service; grades stay local", sessionID)
	}

	meta, err := h.sessions.GetMetadata(r.Context(), sessionID)
	if err != nil {
		handlePageError(w, r, err)
		return
	}

	renderPage(w, http.StatusOK, "launch", map[string]interface{}{
		"Title":        meta.ActivityName,
		"ActivityName": meta.ActivityName,
		"Username":     meta.Username,
		"SessionID":    sessionID,
		"Preview":      preview,
		"URLs":         newPageURLs(baseURL(h.baseURL, r), sessionID),
	})
}

package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"orthobox-backend/internal/evaluation"
	"orthobox-backend/internal/services"
)

type AdminHandler struct {
	admin *services.AdminService
}

func NewAdminHandler(admin *services.AdminService) *AdminHandler {
	return &AdminHandler{admin: admin}
}

func (h *AdminHandler) GetCriteria(w http.ResponseWriter, r *http.Request) {
	c, err := h.admin.Criteria(r.Context(), chi.URLParam(r, "versionString"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// SetCriteria updates only the fields present in the body.
func (h *AdminHandler) SetCriteria(w http.ResponseWriter, r *http.Request) {
	var patch evaluation.CriteriaPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp(string(services.KindMalformedPayload), "Malformed JSON", r))
		return
	}

	c, err := h.admin.UpdateCriteria(r.Context(), chi.URLParam(r, "versionString"), patch)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *AdminHandler) NewOAuthCreds(w http.ResponseWriter, r *http.Request) {
	creds, err := h.admin.NewOAuthCredentials(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, creds)
}

func (h *AdminHandler) SessionData(w http.ResponseWriter, r *http.Request) {
	data, err := h.admin.SessionData(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, data)
}

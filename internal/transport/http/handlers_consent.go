package httptransport

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"caregate/internal/consent"
	dErrors "caregate/pkg/domain-errors"
	"caregate/pkg/platform/httputil"
)

// ConsentHandler exposes the consent and retention engine.
type ConsentHandler struct {
	engine *consent.Engine
}

func NewConsentHandler(engine *consent.Engine) *ConsentHandler {
	return &ConsentHandler{engine: engine}
}

func (h *ConsentHandler) handleCheck(w http.ResponseWriter, r *http.Request) {
	subjectID := chi.URLParam(r, "subjectID")

	valid, err := h.engine.CheckConsent(r.Context(), subjectID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	compliant, err := h.engine.IsRetentionCompliant(r.Context(), subjectID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]bool{
		"consent_valid":       valid,
		"retention_compliant": compliant,
	})
}

type consentUpdateRequest struct {
	Given   bool   `json:"given"`
	Version string `json:"version"`
}

func (h *ConsentHandler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	subjectID := chi.URLParam(r, "subjectID")
	req, ok := httputil.Decode[consentUpdateRequest](w, r)
	if !ok {
		return
	}
	if err := h.engine.UpdateConsent(r.Context(), subjectID, req.Given, req.Version); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ConsentHandler) handleHistory(w http.ResponseWriter, r *http.Request) {
	history, err := h.engine.History(r.Context(), chi.URLParam(r, "subjectID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"records": history})
}

func (h *ConsentHandler) handleMinimizedFields(w http.ResponseWriter, r *http.Request) {
	action := r.URL.Query().Get("action")
	if action == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "action query parameter is required"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"action": action,
		"fields": h.engine.MinimizedFields(action),
	})
}

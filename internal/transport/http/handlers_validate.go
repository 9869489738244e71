package httptransport

import (
	"net/http"

	"caregate/internal/credential"
	"caregate/pkg/platform/httputil"
)

// ValidateHandler exposes format and registry validation for onboarding
// endpoints. Validators return structured results, so these endpoints
// answer 200 for both valid and invalid inputs; only transport or storage
// failures produce error statuses.
type ValidateHandler struct {
	credentials *credential.Validator
}

func NewValidateHandler(credentials *credential.Validator) *ValidateHandler {
	return &ValidateHandler{credentials: credentials}
}

type identifierRequest struct {
	Identifier string `json:"identifier"`
	Registry   bool   `json:"registry,omitempty"`
}

func (h *ValidateHandler) handleCredential(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.Decode[identifierRequest](w, r)
	if !ok {
		return
	}

	if !req.Registry {
		httputil.WriteJSON(w, http.StatusOK, credential.ValidateFormat(req.Identifier))
		return
	}
	result, err := h.credentials.ValidateAgainstRegistry(r.Context(), req.Identifier)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

type nationalIDRequest struct {
	ID string `json:"id"`
}

func (h *ValidateHandler) handleNationalID(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.Decode[nationalIDRequest](w, r)
	if !ok {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, credential.ValidateNationalID(req.ID))
}

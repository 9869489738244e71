package httptransport

import (
	"net/http"

	"caregate/internal/gate"
	dErrors "caregate/pkg/domain-errors"
	"caregate/pkg/platform/httputil"
)

// GateHandler exposes the compliance gate. Every data-access endpoint in a
// host deployment calls through here before touching records.
type GateHandler struct {
	gate *gate.Gate
}

func NewGateHandler(g *gate.Gate) *GateHandler {
	return &GateHandler{gate: g}
}

type authorizeRequest struct {
	Action     string `json:"action"`
	ResourceID string `json:"resource_id"`
}

func (h *GateHandler) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing bearer token"))
		return
	}
	req, ok := httputil.Decode[authorizeRequest](w, r)
	if !ok {
		return
	}
	if req.Action == "" || req.ResourceID == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "action and resource_id are required"))
		return
	}

	decision := h.gate.Authorize(r.Context(), token, req.Action, req.ResourceID)
	status := http.StatusOK
	if !decision.Allowed {
		status = http.StatusForbidden
	}
	httputil.WriteJSON(w, status, decision)
}

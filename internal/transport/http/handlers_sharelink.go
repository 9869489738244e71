package httptransport

import (
	"net/http"
	"time"

	"caregate/internal/session"
	"caregate/internal/sharelink"
	dErrors "caregate/pkg/domain-errors"
	"caregate/pkg/platform/httputil"
)

// ShareLinkHandler mints and redeems share links. Issuing requires a valid
// professional session; redeeming is anonymous by design since the link is
// the credential.
type ShareLinkHandler struct {
	links    *sharelink.Service
	sessions *session.Manager
}

func NewShareLinkHandler(links *sharelink.Service, sessions *session.Manager) *ShareLinkHandler {
	return &ShareLinkHandler{links: links, sessions: sessions}
}

type issueRequest struct {
	ResourceID string `json:"resource_id"`
	PatientID  string `json:"patient_id"`
	Action     string `json:"action"`
	TTLMinutes int    `json:"ttl_minutes"`
}

func (h *ShareLinkHandler) handleIssue(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing bearer token"))
		return
	}
	sess, err := h.sessions.Validate(r.Context(), token)
	if err != nil {
		httputil.WriteError(w, sessionError(err))
		return
	}
	if sess.ProfessionalID == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodePermissionDenied, "only professionals may issue share links"))
		return
	}
	req, ok := httputil.Decode[issueRequest](w, r)
	if !ok {
		return
	}

	signed, link, err := h.links.Issue(r.Context(), sharelink.IssueRequest{
		ResourceID: req.ResourceID,
		PatientID:  req.PatientID,
		Action:     req.Action,
		IssuedBy:   sess.ProfessionalID,
		TTL:        time.Duration(req.TTLMinutes) * time.Minute,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, map[string]any{
		"link":       signed,
		"expires_at": link.ExpiresAt,
	})
}

type redeemRequest struct {
	Link string `json:"link"`
}

func (h *ShareLinkHandler) handleRedeem(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.Decode[redeemRequest](w, r)
	if !ok {
		return
	}
	link, err := h.links.Redeem(r.Context(), req.Link)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, link)
}

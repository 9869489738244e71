// Package httptransport is the thin HTTP layer over the compliance core.
// Handlers decode, delegate and encode; every decision, check and audit
// write lives in the services underneath.
package httptransport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"caregate/internal/audit"
	"caregate/internal/consent"
	"caregate/internal/credential"
	"caregate/internal/gate"
	"caregate/internal/lockout"
	"caregate/internal/session"
	"caregate/internal/sharelink"
	"caregate/pkg/platform/httputil"
)

// Deps carries the wired services the router exposes.
type Deps struct {
	Sessions    *session.Manager
	Credentials *credential.Validator
	Consents    *consent.Engine
	Gate        *gate.Gate
	Auditor     *audit.Logger
	Lockouts    *lockout.Service
	ShareLinks  *sharelink.Service
}

// NewRouter wires all endpoints. Share link routes are mounted only when
// the host configured a signing key.
func NewRouter(deps Deps) http.Handler {
	auth := NewAuthHandler(deps.Sessions, deps.Credentials, deps.Lockouts)
	validate := NewValidateHandler(deps.Credentials)
	consents := NewConsentHandler(deps.Consents)
	gates := NewGateHandler(deps.Gate)
	audits := NewAuditHandler(deps.Auditor)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(RequestContext)

	r.Get("/healthz", handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", auth.handleLogin)
		r.Post("/logout", auth.handleLogout)
		r.Get("/session", auth.handleSession)
		r.Put("/session/two-factor", auth.handleTwoFactor)
		r.Get("/sessions/stats", auth.handleStats)
	})

	r.Post("/gate/authorize", gates.handleAuthorize)

	r.Route("/validate", func(r chi.Router) {
		r.Post("/credential", validate.handleCredential)
		r.Post("/national-id", validate.handleNationalID)
	})

	r.Route("/consent", func(r chi.Router) {
		r.Get("/minimized-fields", consents.handleMinimizedFields)
		r.Get("/{subjectID}", consents.handleCheck)
		r.Put("/{subjectID}", consents.handleUpdate)
		r.Get("/{subjectID}/history", consents.handleHistory)
	})

	r.Route("/audit", func(r chi.Router) {
		r.Get("/events", audits.handleQuery)
		r.Get("/summary", audits.handleSummary)
		r.Get("/critical", audits.handleRecentCritical)
	})

	if deps.ShareLinks != nil {
		links := NewShareLinkHandler(deps.ShareLinks, deps.Sessions)
		r.Route("/sharelinks", func(r chi.Router) {
			r.Post("/", links.handleIssue)
			r.Post("/redeem", links.handleRedeem)
		})
	}

	return r
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

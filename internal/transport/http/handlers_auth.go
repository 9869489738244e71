package httptransport

import (
	"errors"
	"net/http"

	"caregate/internal/credential"
	"caregate/internal/lockout"
	"caregate/internal/session"
	dErrors "caregate/pkg/domain-errors"
	"caregate/pkg/platform/httputil"
	"caregate/pkg/requestcontext"
	"caregate/pkg/sentinel"
)

// AuthHandler exposes session lifecycle endpoints. Authentication is
// credential-based: the professional's registration number is validated
// against the registry, with failed attempts counted toward lockout.
type AuthHandler struct {
	sessions    *session.Manager
	credentials *credential.Validator
	lockouts    *lockout.Service
}

func NewAuthHandler(sessions *session.Manager, credentials *credential.Validator, lockouts *lockout.Service) *AuthHandler {
	return &AuthHandler{sessions: sessions, credentials: credentials, lockouts: lockouts}
}

type loginRequest struct {
	SubjectID      string `json:"subject_id"`
	ProfessionalID string `json:"professional_id"`
	Role           string `json:"role"`
}

type loginResponse struct {
	Token string `json:"token"`
}

func (h *AuthHandler) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.Decode[loginRequest](w, r)
	if !ok {
		return
	}
	if req.SubjectID == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "subject_id is required"))
		return
	}
	sourceAddr := requestcontext.ClientIP(ctx)

	status, err := h.lockouts.Check(ctx, req.SubjectID, sourceAddr)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if status.Locked {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "too many failed attempts, try again later"))
		return
	}

	if req.ProfessionalID != "" {
		result, err := h.credentials.ValidateAgainstRegistry(ctx, req.ProfessionalID)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		if !result.Valid {
			if _, err := h.lockouts.RecordFailure(ctx, req.SubjectID, sourceAddr); err != nil {
				httputil.WriteError(w, err)
				return
			}
			httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "credential validation failed"))
			return
		}
		req.ProfessionalID = result.Number
	}

	token, err := h.sessions.Create(ctx, req.SubjectID, req.ProfessionalID, req.Role, sourceAddr)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.lockouts.Clear(ctx, req.SubjectID, sourceAddr); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, loginResponse{Token: token})
}

func (h *AuthHandler) handleLogout(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing bearer token"))
		return
	}
	if !h.sessions.Destroy(r.Context(), token) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "session not found"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) handleSession(w http.ResponseWriter, r *http.Request) {
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
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"subject_id":          sess.SubjectID,
		"professional_id":     sess.ProfessionalID,
		"role":                sess.Role,
		"created_at":          sess.CreatedAt,
		"last_activity":       sess.LastActivity,
		"two_factor_verified": sess.TwoFactorVerified,
		"metadata":            sess.Metadata,
	})
}

type twoFactorRequest struct {
	Verified bool `json:"verified"`
}

func (h *AuthHandler) handleTwoFactor(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing bearer token"))
		return
	}
	req, ok := httputil.Decode[twoFactorRequest](w, r)
	if !ok {
		return
	}
	if !h.sessions.SetTwoFactor(r.Context(), token, req.Verified) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "session is not valid"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) handleStats(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, h.sessions.Stats(r.Context()))
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
		return ""
	}
	return header[len(prefix):]
}

// sessionError maps session sentinel errors onto coded domain errors.
func sessionError(err error) error {
	switch {
	case errors.Is(err, sentinel.ErrExpired):
		return dErrors.New(dErrors.CodeExpired, "session expired")
	case errors.Is(err, sentinel.ErrNotActive):
		return dErrors.New(dErrors.CodeNotActive, "session is inactive")
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeUnauthorized, "session not found")
	default:
		return err
	}
}

// Package sharelink issues and redeems signed, time-limited links for
// sharing a single resource with an external party. A link is a signed
// claim, not a session: redeeming one grants access to exactly the named
// resource for the named action until expiry.
package sharelink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"caregate/internal/audit"
	dErrors "caregate/pkg/domain-errors"
	"caregate/pkg/requestcontext"
)

// AuditRecorder is the subset of the audit logger the service needs.
type AuditRecorder interface {
	Log(ctx context.Context, event audit.Event) error
}

// Link is the decoded content of a redeemed share link.
type Link struct {
	ID         string    `json:"id"`
	ResourceID string    `json:"resource_id"`
	PatientID  string    `json:"patient_id"`
	Action     string    `json:"action"`
	IssuedBy   string    `json:"issued_by"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// IssueRequest describes the link to mint. A zero TTL gets the service
// maximum; a longer TTL is capped, never rejected.
type IssueRequest struct {
	ResourceID string
	PatientID  string
	Action     string
	IssuedBy   string
	TTL        time.Duration
}

type claims struct {
	jwt.RegisteredClaims
	ResourceID string `json:"resource_id"`
	PatientID  string `json:"patient_id"`
	Action     string `json:"action"`
}

// Service mints and verifies HS256-signed share links.
type Service struct {
	secret  []byte
	maxTTL  time.Duration
	auditor AuditRecorder
	log     *slog.Logger
}

type Option func(*Service)

func WithMaxTTL(d time.Duration) Option {
	return func(s *Service) { s.maxTTL = d }
}

func WithAuditRecorder(a AuditRecorder) Option {
	return func(s *Service) { s.auditor = a }
}

func WithLogger(log *slog.Logger) Option {
	return func(s *Service) { s.log = log }
}

const defaultMaxTTL = 24 * time.Hour

func New(secret []byte, opts ...Option) (*Service, error) {
	if len(secret) == 0 {
		return nil, errors.New("share link signing secret is required")
	}
	s := &Service{secret: secret, maxTTL: defaultMaxTTL}
	for _, opt := range opts {
		opt(s)
	}
	if s.maxTTL <= 0 {
		return nil, errors.New("share link max TTL must be positive")
	}
	return s, nil
}

// Issue mints a signed link for the requested resource and audits the
// issuance as a DATA_ACCESS event attributed to the issuing professional.
func (s *Service) Issue(ctx context.Context, req IssueRequest) (string, Link, error) {
	if req.ResourceID == "" {
		return "", Link{}, dErrors.New(dErrors.CodeBadRequest, "resource id is required")
	}
	if req.IssuedBy == "" {
		return "", Link{}, dErrors.New(dErrors.CodeBadRequest, "issuing professional is required")
	}
	if req.Action == "" {
		return "", Link{}, dErrors.New(dErrors.CodeBadRequest, "action is required")
	}

	ttl := req.TTL
	if ttl <= 0 || ttl > s.maxTTL {
		ttl = s.maxTTL
	}
	now := requestcontext.Now(ctx)
	link := Link{
		ID:         uuid.NewString(),
		ResourceID: req.ResourceID,
		PatientID:  req.PatientID,
		Action:     req.Action,
		IssuedBy:   req.IssuedBy,
		ExpiresAt:  now.Add(ttl),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        link.ID,
			Subject:   req.IssuedBy,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(link.ExpiresAt),
		},
		ResourceID: req.ResourceID,
		PatientID:  req.PatientID,
		Action:     req.Action,
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", Link{}, fmt.Errorf("sign share link: %w", err)
	}

	s.record(ctx, audit.Event{
		Category: audit.CategoryDataAccess,
		Severity: audit.SeverityInfo,
		Actor:    audit.Actor{ProfessionalID: req.IssuedBy},
		Resource: audit.Resource{Type: "share_link", ID: req.ResourceID, ParentID: req.PatientID},
		Action:   "SHARELINK_ISSUED",
		Result:   audit.ResultSuccess,
		Details:  fmt.Sprintf("link_id=%s action=%s ttl=%s", link.ID, req.Action, ttl),
	})
	return signed, link, nil
}

// Redeem verifies a link and returns its content. Expired or tampered
// links fail with coded errors; every redemption attempt is audited.
func (s *Service) Redeem(ctx context.Context, signed string) (Link, error) {
	var parsed claims
	token, err := jwt.ParseWithClaims(signed, &parsed, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return requestcontext.Now(ctx) }))

	if err != nil || !token.Valid {
		code := dErrors.CodeUnauthorized
		if errors.Is(err, jwt.ErrTokenExpired) {
			code = dErrors.CodeExpired
		}
		s.record(ctx, audit.Event{
			Category: audit.CategorySecurity,
			Severity: audit.SeverityWarning,
			Actor:    audit.Actor{SubjectID: "anonymous"},
			Action:   "SHARELINK_REDEEM_FAILED",
			Result:   audit.ResultDenied,
			Details:  fmt.Sprintf("code=%s", code),
		})
		return Link{}, dErrors.New(code, "share link is invalid or expired")
	}

	link := Link{
		ID:         parsed.ID,
		ResourceID: parsed.ResourceID,
		PatientID:  parsed.PatientID,
		Action:     parsed.Action,
		IssuedBy:   parsed.Subject,
		ExpiresAt:  parsed.ExpiresAt.Time,
	}
	s.record(ctx, audit.Event{
		Category: audit.CategoryDataAccess,
		Severity: audit.SeverityInfo,
		Actor:    audit.Actor{ProfessionalID: link.IssuedBy},
		Resource: audit.Resource{Type: "share_link", ID: link.ResourceID, ParentID: link.PatientID},
		Action:   "SHARELINK_REDEEMED",
		Result:   audit.ResultSuccess,
		Details:  fmt.Sprintf("link_id=%s action=%s", link.ID, link.Action),
	})
	return link, nil
}

func (s *Service) record(ctx context.Context, event audit.Event) {
	if s.auditor == nil {
		return
	}
	if err := s.auditor.Log(ctx, event); err != nil && s.log != nil {
		s.log.ErrorContext(ctx, "share link audit write failed",
			"action", event.Action,
			"error", err,
		)
	}
}

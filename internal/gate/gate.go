// Package gate is the compliance gate every data-access path goes through.
// It composes session validation with the consent engine's composite check
// and guarantees exactly one DATA_ACCESS audit event per decision.
//
// The gate is stateless and fail-closed: any condition it cannot positively
// verify, including storage failure or a caller deadline expiring
// mid-check, produces a DENY with a named reason, never an indeterminate
// result.
package gate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"caregate/internal/audit"
	"caregate/internal/consent"
	"caregate/internal/platform/metrics"
	"caregate/internal/session"
	dErrors "caregate/pkg/domain-errors"
	"caregate/pkg/sentinel"
)

// Deny reasons surfaced to callers. The consent engine's violation names
// pass through unchanged; these cover the gate's own checks.
const (
	ReasonSessionNotFound    = "session_not_found"
	ReasonSessionExpired     = "session_expired"
	ReasonSessionInactive    = "session_inactive"
	ReasonStorageUnavailable = "storage_unavailable"
)

// Decision is the gate's answer. Reasons is non-empty exactly when Allowed
// is false; there is no "maybe".
type Decision struct {
	Allowed   bool     `json:"allowed"`
	SubjectID string   `json:"subject_id,omitempty"`
	Reasons   []string `json:"reasons,omitempty"`
}

// SessionValidator is the session manager surface the gate needs.
type SessionValidator interface {
	Validate(ctx context.Context, token string) (session.Session, error)
}

// AccessAuthorizer is the consent engine surface the gate needs.
type AccessAuthorizer interface {
	AuthorizeAccess(ctx context.Context, subjectID, action string) (consent.AccessResult, error)
}

// AuditRecorder is the subset of the audit logger the gate needs.
type AuditRecorder interface {
	Log(ctx context.Context, event audit.Event) error
}

// Gate orchestrates the compliance decision.
type Gate struct {
	sessions SessionValidator
	access   AccessAuthorizer
	auditor  AuditRecorder
	log      *slog.Logger
	metrics  *metrics.Metrics
	tracer   trace.Tracer
}

type Option func(*Gate)

func WithLogger(log *slog.Logger) Option {
	return func(g *Gate) { g.log = log }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Gate) { g.metrics = m }
}

func New(sessions SessionValidator, access AccessAuthorizer, auditor AuditRecorder, opts ...Option) (*Gate, error) {
	if sessions == nil {
		return nil, errors.New("session validator is required")
	}
	if access == nil {
		return nil, errors.New("access authorizer is required")
	}
	if auditor == nil {
		return nil, errors.New("audit recorder is required")
	}
	g := &Gate{
		sessions: sessions,
		access:   access,
		auditor:  auditor,
		tracer:   otel.Tracer("caregate/gate"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Authorize decides whether the session behind token may perform action on
// the resource. Exactly one DATA_ACCESS audit event is written per call;
// for ALLOW and ordinary DENY the write is synchronous and a failed write
// turns the decision into DENY. Only the storage-failure path downgrades
// the audit write to best-effort, since the store that failed may be the
// audit store itself.
func (g *Gate) Authorize(ctx context.Context, token, action, resourceID string) Decision {
	ctx, span := g.tracer.Start(ctx, "gate.Authorize", trace.WithAttributes(
		attribute.String("gate.action", action),
		attribute.String("gate.resource_id", resourceID),
	))
	defer span.End()

	sess, err := g.sessions.Validate(ctx, token)
	if err != nil {
		reason := sessionDenyReason(err)
		g.record(ctx, audit.Event{
			Category:   audit.CategoryAuthentication,
			Severity:   audit.SeverityWarning,
			Actor:      audit.Actor{SubjectID: "unknown", TokenPrefix: audit.TokenPrefix(token)},
			SourceAddr: "unknown",
			Action:     "GATE_SESSION_REJECTED",
			Result:     audit.ResultFailed,
			Details:    fmt.Sprintf("action=%s resource=%s reason=%s", action, resourceID, reason),
		})
		return g.deny(span, "", reason)
	}

	result, err := g.access.AuthorizeAccess(ctx, sess.SubjectID, action)
	if err != nil {
		// The failed store may be the audit store; a synchronous write
		// requirement here could leave the denial unrecorded either way.
		g.record(ctx, g.decisionEvent(sess, action, resourceID, audit.ResultDenied,
			[]string{ReasonStorageUnavailable}, dErrors.CodeOf(err)))
		if g.log != nil {
			g.log.ErrorContext(ctx, "gate check failed", "action", action, "error", err)
		}
		return g.deny(span, sess.SubjectID, ReasonStorageUnavailable)
	}

	if !result.Allowed {
		event := g.decisionEvent(sess, action, resourceID, audit.ResultDenied, result.Violations, "")
		if err := g.auditor.Log(ctx, event); err != nil && g.log != nil {
			g.log.ErrorContext(ctx, "gate audit write failed", "action", action, "error", err)
		}
		return g.deny(span, sess.SubjectID, result.Violations...)
	}

	// An unrecorded approval is itself a compliance violation, so a failed
	// audit write flips the decision to DENY.
	event := g.decisionEvent(sess, action, resourceID, audit.ResultSuccess, nil, "")
	if err := g.auditor.Log(ctx, event); err != nil {
		if g.log != nil {
			g.log.ErrorContext(ctx, "gate audit write failed", "action", action, "error", err)
		}
		return g.deny(span, sess.SubjectID, ReasonStorageUnavailable)
	}

	span.SetAttributes(attribute.Bool("gate.allowed", true))
	if g.metrics != nil {
		g.metrics.GateDecisions.WithLabelValues("allow").Inc()
	}
	return Decision{Allowed: true, SubjectID: sess.SubjectID}
}

func (g *Gate) deny(span trace.Span, subjectID string, reasons ...string) Decision {
	span.SetAttributes(
		attribute.Bool("gate.allowed", false),
		attribute.String("gate.deny_reasons", strings.Join(reasons, ",")),
	)
	if g.metrics != nil {
		g.metrics.GateDecisions.WithLabelValues("deny").Inc()
	}
	return Decision{SubjectID: subjectID, Reasons: reasons}
}

func (g *Gate) decisionEvent(sess session.Session, action, resourceID string, result audit.Result, violations []string, code dErrors.Code) audit.Event {
	details := "action=" + action
	if len(violations) > 0 {
		details += " violations=" + strings.Join(violations, ",")
	}
	if code != "" {
		details += " error_code=" + string(code)
	}
	return audit.Event{
		Category: audit.CategoryDataAccess,
		Severity: decisionSeverity(result),
		Actor: audit.Actor{
			SubjectID:      sess.SubjectID,
			ProfessionalID: sess.ProfessionalID,
			TokenPrefix:    audit.TokenPrefix(sess.Token),
			Role:           sess.Role,
		},
		SourceAddr: sess.SourceAddr,
		Resource:   audit.Resource{Type: "record", ID: resourceID},
		Action:     "GATE_DECISION",
		Result:     result,
		Details:    details,
		ComplianceFlags: map[string]string{
			"consent_checked":   "true",
			"retention_checked": "true",
		},
	}
}

func decisionSeverity(result audit.Result) audit.Severity {
	if result == audit.ResultSuccess {
		return audit.SeverityInfo
	}
	return audit.SeverityWarning
}

// record writes best-effort; used only on paths where a synchronous write
// cannot be required.
func (g *Gate) record(ctx context.Context, event audit.Event) {
	if err := g.auditor.Log(ctx, event); err != nil && g.log != nil {
		g.log.ErrorContext(ctx, "gate audit write failed",
			"action", event.Action,
			"error", err,
		)
	}
}

func sessionDenyReason(err error) string {
	switch {
	case errors.Is(err, sentinel.ErrExpired):
		return ReasonSessionExpired
	case errors.Is(err, sentinel.ErrNotActive):
		return ReasonSessionInactive
	case errors.Is(err, sentinel.ErrNotFound):
		return ReasonSessionNotFound
	default:
		return ReasonStorageUnavailable
	}
}

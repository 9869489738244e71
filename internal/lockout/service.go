package lockout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"caregate/internal/audit"
	"caregate/internal/platform/metrics"
	dErrors "caregate/pkg/domain-errors"
	"caregate/pkg/requestcontext"
)

// AuditRecorder is the subset of the audit logger the lockout service needs.
type AuditRecorder interface {
	Log(ctx context.Context, event audit.Event) error
}

// Status reports the lockout state for an identifier/source pair.
type Status struct {
	Locked     bool          `json:"locked"`
	Failures   int           `json:"failures"`
	RetryAfter time.Duration `json:"retry_after,omitempty"`
}

// Service enforces failed-authentication lockout: too many failures inside
// the sliding window hard-locks the identifier/source pair for the lock
// duration. Crossing the threshold emits a SECURITY audit event.
type Service struct {
	store   Store
	auditor AuditRecorder
	log     *slog.Logger
	metrics *metrics.Metrics

	maxAttempts  int
	window       time.Duration
	lockDuration time.Duration
}

type Option func(*Service)

func WithMaxAttempts(n int) Option {
	return func(s *Service) { s.maxAttempts = n }
}

func WithWindow(d time.Duration) Option {
	return func(s *Service) {
		s.window = d
		s.lockDuration = d
	}
}

func WithAuditRecorder(a AuditRecorder) Option {
	return func(s *Service) { s.auditor = a }
}

func WithLogger(log *slog.Logger) Option {
	return func(s *Service) { s.log = log }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

const (
	defaultMaxAttempts = 5
	defaultWindow      = 15 * time.Minute
)

func New(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("lockout store is required")
	}
	s := &Service{
		store:        store,
		maxAttempts:  defaultMaxAttempts,
		window:       defaultWindow,
		lockDuration: defaultWindow,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.maxAttempts <= 0 {
		return nil, errors.New("lockout max attempts must be positive")
	}
	if s.window <= 0 {
		return nil, errors.New("lockout window must be positive")
	}
	return s, nil
}

// pairKey scopes lockout state to the identifier/source pair so one noisy
// address cannot lock a subject out everywhere.
func pairKey(identifier, sourceAddr string) string {
	return identifier + "|" + sourceAddr
}

// Check reports the current lockout state without recording anything.
func (s *Service) Check(ctx context.Context, identifier, sourceAddr string) (Status, error) {
	key := pairKey(identifier, sourceAddr)

	until, err := s.store.LockedUntil(ctx, key)
	if err != nil {
		return Status{}, dErrors.Wrap(err, dErrors.CodeStorageUnavailable, "read lockout state")
	}
	failures, err := s.store.Failures(ctx, key)
	if err != nil {
		return Status{}, dErrors.Wrap(err, dErrors.CodeStorageUnavailable, "read failure count")
	}

	status := Status{Failures: failures}
	if until != nil {
		status.Locked = true
		status.RetryAfter = until.Sub(requestcontext.Now(ctx))
	}
	return status, nil
}

// RecordFailure counts a failed authentication attempt. Reaching the
// attempt limit locks the pair and emits a SECURITY audit event.
func (s *Service) RecordFailure(ctx context.Context, identifier, sourceAddr string) (Status, error) {
	key := pairKey(identifier, sourceAddr)
	now := requestcontext.Now(ctx)

	count, err := s.store.RecordFailure(ctx, key, s.window)
	if err != nil {
		return Status{}, dErrors.Wrap(err, dErrors.CodeStorageUnavailable, "record auth failure")
	}

	status := Status{Failures: count}
	if count < s.maxAttempts {
		return status, nil
	}

	until := now.Add(s.lockDuration)
	if err := s.store.Lock(ctx, key, until); err != nil {
		return Status{}, dErrors.Wrap(err, dErrors.CodeStorageUnavailable, "set lockout")
	}
	status.Locked = true
	status.RetryAfter = s.lockDuration

	if s.metrics != nil {
		s.metrics.LockoutsTriggered.Inc()
	}
	s.record(ctx, audit.Event{
		Category:   audit.CategorySecurity,
		Severity:   audit.SeverityWarning,
		Actor:      audit.Actor{SubjectID: identifier},
		SourceAddr: sourceAddr,
		Action:     "AUTH_LOCKOUT_TRIGGERED",
		Result:     audit.ResultDenied,
		Details:    fmt.Sprintf("failures=%d locked_until=%s", count, until.UTC().Format(time.RFC3339)),
	})
	if s.log != nil {
		s.log.WarnContext(ctx, "auth lockout triggered",
			"identifier", identifier,
			"source_addr", sourceAddr,
			"failures", count,
		)
	}
	return status, nil
}

// Clear resets lockout state after a successful authentication.
func (s *Service) Clear(ctx context.Context, identifier, sourceAddr string) error {
	if err := s.store.Clear(ctx, pairKey(identifier, sourceAddr)); err != nil {
		return dErrors.Wrap(err, dErrors.CodeStorageUnavailable, "clear lockout state")
	}
	return nil
}

func (s *Service) record(ctx context.Context, event audit.Event) {
	if s.auditor == nil {
		return
	}
	if err := s.auditor.Log(ctx, event); err != nil && s.log != nil {
		s.log.ErrorContext(ctx, "lockout audit write failed",
			"action", event.Action,
			"error", err,
		)
	}
}

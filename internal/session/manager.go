package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"caregate/internal/audit"
	"caregate/internal/platform/metrics"
	"caregate/pkg/requestcontext"
	"caregate/pkg/sentinel"
)

// AuditRecorder is the subset of the audit logger the session manager needs.
type AuditRecorder interface {
	Log(ctx context.Context, event audit.Event) error
}

// Manager owns the session table exclusively. All operations take the table
// mutex for their critical section; audit and any other I/O happen strictly
// outside it. Sessions are small, so coarse whole-table locking is enough —
// only Sweep and per-subject eviction are O(n).
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session

	timeout       time.Duration
	singleSession bool

	auditor AuditRecorder
	log     *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Manager)

func WithSingleSessionMode(enabled bool) Option {
	return func(m *Manager) { m.singleSession = enabled }
}

func WithAuditRecorder(a AuditRecorder) Option {
	return func(m *Manager) { m.auditor = a }
}

func WithLogger(log *slog.Logger) Option {
	return func(m *Manager) { m.log = log }
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

func NewManager(timeout time.Duration, opts ...Option) (*Manager, error) {
	if timeout <= 0 {
		return nil, errors.New("session timeout must be positive")
	}
	m := &Manager{
		sessions: make(map[string]*Session),
		timeout:  timeout,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Create issues a new session for an already-authenticated subject. In
// single-session mode every existing session for the subject is destroyed
// first, each eviction audited before the creation event.
func (m *Manager) Create(ctx context.Context, subjectID, professionalID, role, sourceAddr string) (string, error) {
	if subjectID == "" {
		return "", errors.New("subject id is required")
	}

	now := requestcontext.Now(ctx)
	metadata := map[string]string{}
	if device := requestcontext.Device(ctx); device != "" {
		metadata["device"] = device
	}
	if ua := requestcontext.UserAgent(ctx); ua != "" {
		metadata["user_agent"] = ua
	}

	m.mu.Lock()
	var evicted []Session
	if m.singleSession {
		for token, s := range m.sessions {
			if s.SubjectID == subjectID {
				evicted = append(evicted, s.snapshot())
				delete(m.sessions, token)
			}
		}
	}

	token, err := m.newTokenLocked()
	if err != nil {
		m.mu.Unlock()
		return "", err
	}
	m.sessions[token] = &Session{
		Token:          token,
		SubjectID:      subjectID,
		ProfessionalID: professionalID,
		Role:           role,
		SourceAddr:     sourceAddr,
		CreatedAt:      now,
		LastActivity:   now,
		Active:         true,
		Metadata:       metadata,
	}
	m.mu.Unlock()

	for _, s := range evicted {
		m.recordDestroyed(ctx, s, "single-session mode evicted sibling session")
	}
	m.record(ctx, audit.Event{
		Category: audit.CategoryAuthentication,
		Severity: audit.SeverityInfo,
		Actor: audit.Actor{
			SubjectID:      subjectID,
			ProfessionalID: professionalID,
			TokenPrefix:    audit.TokenPrefix(token),
			Role:           role,
		},
		SourceAddr: sourceAddr,
		Action:     "SESSION_CREATED",
		Result:     audit.ResultSuccess,
	})

	if m.metrics != nil {
		m.metrics.SessionsCreated.Inc()
		m.metrics.ActiveSessions.Set(float64(m.activeCount()))
	}
	return token, nil
}

// Validate returns a copy of the session after bumping its last activity.
// Fails with sentinel.ErrNotFound for unknown tokens, sentinel.ErrExpired
// for timed-out sessions (which are evicted), and sentinel.ErrNotActive for
// deactivated ones. There is no path from expired or destroyed back to
// active.
func (m *Manager) Validate(ctx context.Context, token string) (Session, error) {
	now := requestcontext.Now(ctx)

	m.mu.Lock()
	s, ok := m.sessions[token]
	if !ok {
		m.mu.Unlock()
		return Session{}, sentinel.ErrNotFound
	}
	if s.expired(now, m.timeout) {
		delete(m.sessions, token)
		m.mu.Unlock()
		if m.metrics != nil {
			m.metrics.SessionsExpired.Inc()
			m.metrics.ActiveSessions.Set(float64(m.activeCount()))
		}
		return Session{}, sentinel.ErrExpired
	}
	if !s.Active {
		m.mu.Unlock()
		return Session{}, sentinel.ErrNotActive
	}
	s.LastActivity = now
	out := s.snapshot()
	m.mu.Unlock()

	return out, nil
}

// Touch bumps last activity without returning session data. Returns false
// for unknown, expired (evicted), or inactive sessions — callers must check.
func (m *Manager) Touch(ctx context.Context, token string) bool {
	now := requestcontext.Now(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[token]
	if !ok {
		return false
	}
	if s.expired(now, m.timeout) {
		delete(m.sessions, token)
		return false
	}
	if !s.Active {
		return false
	}
	s.LastActivity = now
	return true
}

// SetTwoFactor updates the two-factor flag on an active, non-expired
// session. Returns false otherwise.
func (m *Manager) SetTwoFactor(ctx context.Context, token string, verified bool) bool {
	now := requestcontext.Now(ctx)

	m.mu.Lock()
	s, ok := m.sessions[token]
	if !ok || s.expired(now, m.timeout) || !s.Active {
		m.mu.Unlock()
		return false
	}
	s.TwoFactorVerified = verified
	s.LastActivity = now
	snap := s.snapshot()
	m.mu.Unlock()

	m.record(ctx, audit.Event{
		Category: audit.CategoryAuthentication,
		Severity: audit.SeverityInfo,
		Actor: audit.Actor{
			SubjectID:   snap.SubjectID,
			TokenPrefix: audit.TokenPrefix(token),
			Role:        snap.Role,
		},
		SourceAddr: snap.SourceAddr,
		Action:     "SESSION_2FA_UPDATED",
		Result:     audit.ResultSuccess,
		Details:    fmt.Sprintf("two_factor_verified=%t", verified),
	})
	return true
}

// Destroy revokes a single session. Always audited when the session existed.
func (m *Manager) Destroy(ctx context.Context, token string) bool {
	m.mu.Lock()
	s, ok := m.sessions[token]
	var snap Session
	if ok {
		snap = s.snapshot()
		delete(m.sessions, token)
	}
	m.mu.Unlock()

	if !ok {
		return false
	}
	m.recordDestroyed(ctx, snap, "explicit logout")
	if m.metrics != nil {
		m.metrics.SessionsRevoked.Inc()
		m.metrics.ActiveSessions.Set(float64(m.activeCount()))
	}
	return true
}

// DestroyAllForSubject revokes every session belonging to a subject and
// returns the count. Each destruction is audited.
func (m *Manager) DestroyAllForSubject(ctx context.Context, subjectID string) int {
	m.mu.Lock()
	var destroyed []Session
	for token, s := range m.sessions {
		if s.SubjectID == subjectID {
			destroyed = append(destroyed, s.snapshot())
			delete(m.sessions, token)
		}
	}
	m.mu.Unlock()

	for _, s := range destroyed {
		m.recordDestroyed(ctx, s, "all sessions revoked for subject")
	}
	if m.metrics != nil && len(destroyed) > 0 {
		m.metrics.SessionsRevoked.Add(float64(len(destroyed)))
		m.metrics.ActiveSessions.Set(float64(m.activeCount()))
	}
	return len(destroyed)
}

// Stats returns a read-only snapshot of table counts. Expired counts cover
// sessions past timeout that the sweeper has not evicted yet.
func (m *Manager) Stats(ctx context.Context) Stats {
	now := requestcontext.Now(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	stats := Stats{Total: len(m.sessions)}
	for _, s := range m.sessions {
		switch {
		case s.expired(now, m.timeout):
			stats.Expired++
		case s.Active:
			stats.Active++
			if s.TwoFactorVerified {
				stats.TwoFactorVerified++
			}
		}
	}
	return stats
}

// Sweep removes every session past the inactivity timeout and returns the
// count removed. Runs on a fixed interval, independent of request traffic.
func (m *Manager) Sweep(ctx context.Context) int {
	now := requestcontext.Now(ctx)

	m.mu.Lock()
	count := 0
	for token, s := range m.sessions {
		if s.expired(now, m.timeout) {
			delete(m.sessions, token)
			count++
		}
	}
	m.mu.Unlock()

	if count > 0 {
		if m.metrics != nil {
			m.metrics.SweepRemovals.Add(float64(count))
			m.metrics.SessionsExpired.Add(float64(count))
			m.metrics.ActiveSessions.Set(float64(m.activeCount()))
		}
		if m.log != nil {
			m.log.InfoContext(ctx, "session sweep", "removed", count)
		}
	}
	return count
}

// RunSweeper runs Sweep on a fixed ticker until ctx is cancelled.
func (m *Manager) RunSweeper(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.Sweep(ctx)
		}
	}
}

// newTokenLocked generates a collision-checked 256-bit random token.
// Caller must hold m.mu.
func (m *Manager) newTokenLocked() (string, error) {
	for range 5 {
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("generate session token: %w", err)
		}
		token := hex.EncodeToString(buf)
		if _, exists := m.sessions[token]; !exists {
			return token, nil
		}
	}
	return "", errors.New("session token collision limit reached")
}

func (m *Manager) activeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *Manager) recordDestroyed(ctx context.Context, s Session, reason string) {
	m.record(ctx, audit.Event{
		Category: audit.CategoryAuthentication,
		Severity: audit.SeverityInfo,
		Actor: audit.Actor{
			SubjectID:      s.SubjectID,
			ProfessionalID: s.ProfessionalID,
			TokenPrefix:    audit.TokenPrefix(s.Token),
			Role:           s.Role,
		},
		SourceAddr: s.SourceAddr,
		Action:     "SESSION_DESTROYED",
		Result:     audit.ResultSuccess,
		Details:    reason,
	})
}

// record writes an audit event best-effort. Session lifecycle continues on
// audit failure, but the failure is never silent.
func (m *Manager) record(ctx context.Context, event audit.Event) {
	if m.auditor == nil {
		return
	}
	if err := m.auditor.Log(ctx, event); err != nil && m.log != nil {
		m.log.ErrorContext(ctx, "session audit write failed",
			"action", event.Action,
			"error", err,
		)
	}
}

package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"caregate/internal/audit"
	"caregate/pkg/requestcontext"
	"caregate/pkg/sentinel"
)

const testTimeout = 30 * time.Minute

type ManagerSuite struct {
	suite.Suite

	auditStore *audit.InMemoryStore
	manager    *Manager
	now        time.Time
}

func TestManagerSuite(t *testing.T) {
	suite.Run(t, new(ManagerSuite))
}

func (s *ManagerSuite) SetupTest() {
	s.auditStore = audit.NewInMemoryStore()
	auditor, err := audit.New(s.auditStore)
	s.Require().NoError(err)

	manager, err := NewManager(testTimeout, WithAuditRecorder(auditor))
	s.Require().NoError(err)
	s.manager = manager
	s.now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
}

func (s *ManagerSuite) ctxAt(t time.Time) context.Context {
	return requestcontext.WithTime(context.Background(), t)
}

func (s *ManagerSuite) TestCreateAndValidate() {
	ctx := s.ctxAt(s.now)

	token, err := s.manager.Create(ctx, "subject-1", "MP123456", "radiologist", "10.0.0.1")
	s.Require().NoError(err)
	s.Len(token, 64)

	s.Run("validate immediately after create succeeds", func() {
		sess, err := s.manager.Validate(ctx, token)
		s.Require().NoError(err)
		s.Equal("subject-1", sess.SubjectID)
		s.Equal("MP123456", sess.ProfessionalID)
		s.True(sess.Active)
	})

	s.Run("creation is audited", func() {
		events, err := s.auditStore.Query(ctx, audit.Filter{Category: audit.CategoryAuthentication})
		s.Require().NoError(err)
		s.Require().NotEmpty(events)
		s.Equal("SESSION_CREATED", events[0].Action)
		s.Equal(audit.TokenPrefix(token), events[0].Actor.TokenPrefix)
	})

	s.Run("unknown token fails with not found", func() {
		_, err := s.manager.Validate(ctx, "bogus")
		s.Require().Error(err)
		s.True(errors.Is(err, sentinel.ErrNotFound))
	})

	s.Run("empty subject is rejected", func() {
		_, err := s.manager.Create(ctx, "", "", "", "10.0.0.1")
		s.Require().Error(err)
	})
}

func (s *ManagerSuite) TestExpiry() {
	ctx := s.ctxAt(s.now)
	token, err := s.manager.Create(ctx, "subject-1", "", "clerk", "10.0.0.1")
	s.Require().NoError(err)

	s.Run("validate past the timeout fails with expired and evicts", func() {
		later := s.ctxAt(s.now.Add(testTimeout))

		_, err := s.manager.Validate(later, token)
		s.Require().Error(err)
		s.True(errors.Is(err, sentinel.ErrExpired))

		// Evicted: a second validate sees not found, and stats drop it.
		_, err = s.manager.Validate(later, token)
		s.True(errors.Is(err, sentinel.ErrNotFound))
		s.Zero(s.manager.Stats(later).Total)
	})

	s.Run("touch keeps a session alive", func() {
		token, err := s.manager.Create(ctx, "subject-2", "", "clerk", "10.0.0.1")
		s.Require().NoError(err)

		halfway := s.ctxAt(s.now.Add(testTimeout / 2))
		s.True(s.manager.Touch(halfway, token))

		stillValid := s.ctxAt(s.now.Add(testTimeout))
		_, err = s.manager.Validate(stillValid, token)
		s.Require().NoError(err)
	})

	s.Run("touch on an expired session returns false", func() {
		token, err := s.manager.Create(ctx, "subject-3", "", "clerk", "10.0.0.1")
		s.Require().NoError(err)

		s.False(s.manager.Touch(s.ctxAt(s.now.Add(testTimeout+time.Minute)), token))
	})
}

func (s *ManagerSuite) TestSingleSessionMode() {
	manager, err := NewManager(testTimeout, WithSingleSessionMode(true))
	s.Require().NoError(err)
	ctx := s.ctxAt(s.now)

	first, err := manager.Create(ctx, "subject-1", "", "clerk", "10.0.0.1")
	s.Require().NoError(err)
	second, err := manager.Create(ctx, "subject-1", "", "clerk", "10.0.0.2")
	s.Require().NoError(err)

	s.Run("exactly one valid session remains", func() {
		_, err := manager.Validate(ctx, first)
		s.True(errors.Is(err, sentinel.ErrNotFound))

		_, err = manager.Validate(ctx, second)
		s.Require().NoError(err)

		s.Equal(1, manager.Stats(ctx).Total)
	})

	s.Run("other subjects are untouched", func() {
		other, err := manager.Create(ctx, "subject-2", "", "clerk", "10.0.0.3")
		s.Require().NoError(err)

		_, err = manager.Validate(ctx, other)
		s.Require().NoError(err)
		_, err = manager.Validate(ctx, second)
		s.Require().NoError(err)
	})
}

func (s *ManagerSuite) TestTwoFactor() {
	ctx := s.ctxAt(s.now)
	token, err := s.manager.Create(ctx, "subject-1", "", "clerk", "10.0.0.1")
	s.Require().NoError(err)

	s.True(s.manager.SetTwoFactor(ctx, token, true))

	sess, err := s.manager.Validate(ctx, token)
	s.Require().NoError(err)
	s.True(sess.TwoFactorVerified)

	s.Run("fails on unknown or expired sessions", func() {
		s.False(s.manager.SetTwoFactor(ctx, "bogus", true))
		s.False(s.manager.SetTwoFactor(s.ctxAt(s.now.Add(testTimeout+time.Hour)), token, true))
	})
}

func (s *ManagerSuite) TestDestroy() {
	ctx := s.ctxAt(s.now)
	token, err := s.manager.Create(ctx, "subject-1", "", "clerk", "10.0.0.1")
	s.Require().NoError(err)

	s.Run("destroy revokes and audits", func() {
		s.True(s.manager.Destroy(ctx, token))

		_, err := s.manager.Validate(ctx, token)
		s.True(errors.Is(err, sentinel.ErrNotFound))

		events, err := s.auditStore.Query(ctx, audit.Filter{Category: audit.CategoryAuthentication})
		s.Require().NoError(err)
		s.Equal("SESSION_DESTROYED", events[0].Action)
	})

	s.Run("destroying twice returns false", func() {
		s.False(s.manager.Destroy(ctx, token))
	})

	s.Run("destroy all for subject returns the count", func() {
		for range 3 {
			_, err := s.manager.Create(ctx, "subject-2", "", "clerk", "10.0.0.1")
			s.Require().NoError(err)
		}
		s.Equal(3, s.manager.DestroyAllForSubject(ctx, "subject-2"))
		s.Zero(s.manager.DestroyAllForSubject(ctx, "subject-2"))
	})
}

func (s *ManagerSuite) TestStatsAndSweep() {
	ctx := s.ctxAt(s.now)
	for range 2 {
		_, err := s.manager.Create(ctx, "subject-1", "", "clerk", "10.0.0.1")
		s.Require().NoError(err)
	}
	staleCtx := s.ctxAt(s.now.Add(-testTimeout - time.Minute))
	_, err := s.manager.Create(staleCtx, "subject-2", "", "clerk", "10.0.0.1")
	s.Require().NoError(err)

	s.Run("stats splits active from expired", func() {
		stats := s.manager.Stats(ctx)
		s.Equal(3, stats.Total)
		s.Equal(2, stats.Active)
		s.Equal(1, stats.Expired)
	})

	s.Run("sweep removes only expired sessions", func() {
		s.Equal(1, s.manager.Sweep(ctx))

		stats := s.manager.Stats(ctx)
		s.Equal(2, stats.Total)
		s.Zero(stats.Expired)
	})

	s.Run("sweep with nothing expired removes nothing", func() {
		s.Zero(s.manager.Sweep(ctx))
	})
}

func (s *ManagerSuite) TestClientMetadataCaptured() {
	ctx := requestcontext.WithDevice(s.ctxAt(s.now), "Firefox on Linux")
	ctx = requestcontext.WithClientMetadata(ctx, "10.0.0.1", "Mozilla/5.0")

	token, err := s.manager.Create(ctx, "subject-1", "", "clerk", "10.0.0.1")
	s.Require().NoError(err)

	sess, err := s.manager.Validate(ctx, token)
	s.Require().NoError(err)
	s.Equal("Firefox on Linux", sess.Metadata["device"])
	s.Equal("Mozilla/5.0", sess.Metadata["user_agent"])
}

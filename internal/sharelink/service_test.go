package sharelink

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"caregate/internal/audit"
	"caregate/pkg/requestcontext"
)

type ServiceSuite struct {
	suite.Suite

	auditStore *audit.InMemoryStore
	service    *Service
	now        time.Time
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.auditStore = audit.NewInMemoryStore()
	auditor, err := audit.New(s.auditStore)
	s.Require().NoError(err)

	service, err := New([]byte("test-signing-secret"), WithAuditRecorder(auditor))
	s.Require().NoError(err)
	s.service = service
	s.now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
}

func (s *ServiceSuite) ctxAt(t time.Time) context.Context {
	return requestcontext.WithTime(context.Background(), t)
}

func (s *ServiceSuite) TestIssueAndRedeem() {
	ctx := s.ctxAt(s.now)

	signed, link, err := s.service.Issue(ctx, IssueRequest{
		ResourceID: "study-42",
		PatientID:  "patient-1",
		Action:     "view",
		IssuedBy:   "MP123456",
		TTL:        time.Hour,
	})
	s.Require().NoError(err)
	s.NotEmpty(signed)
	s.True(link.ExpiresAt.Equal(s.now.Add(time.Hour)))

	s.Run("redeems within the TTL", func() {
		got, err := s.service.Redeem(s.ctxAt(s.now.Add(30*time.Minute)), signed)
		s.Require().NoError(err)
		s.Equal("study-42", got.ResourceID)
		s.Equal("patient-1", got.PatientID)
		s.Equal("view", got.Action)
		s.Equal("MP123456", got.IssuedBy)
	})

	s.Run("issuance and redemption are audited", func() {
		events, err := s.auditStore.Query(ctx, audit.Filter{ResourceID: "study-42"})
		s.Require().NoError(err)
		s.Require().Len(events, 2)
		s.Equal("SHARELINK_REDEEMED", events[0].Action)
		s.Equal("SHARELINK_ISSUED", events[1].Action)
	})
}

func (s *ServiceSuite) TestIssueValidation() {
	ctx := s.ctxAt(s.now)

	_, _, err := s.service.Issue(ctx, IssueRequest{Action: "view", IssuedBy: "MP123456"})
	s.Require().Error(err)

	_, _, err = s.service.Issue(ctx, IssueRequest{ResourceID: "study-1", Action: "view"})
	s.Require().Error(err)

	_, _, err = s.service.Issue(ctx, IssueRequest{ResourceID: "study-1", IssuedBy: "MP123456"})
	s.Require().Error(err)
}

func (s *ServiceSuite) TestTTLIsCapped() {
	ctx := s.ctxAt(s.now)

	_, link, err := s.service.Issue(ctx, IssueRequest{
		ResourceID: "study-42",
		Action:     "view",
		IssuedBy:   "MP123456",
		TTL:        90 * 24 * time.Hour,
	})
	s.Require().NoError(err)
	s.True(link.ExpiresAt.Equal(s.now.Add(defaultMaxTTL)))
}

func (s *ServiceSuite) TestRedeemFailures() {
	ctx := s.ctxAt(s.now)
	signed, _, err := s.service.Issue(ctx, IssueRequest{
		ResourceID: "study-42",
		Action:     "view",
		IssuedBy:   "MP123456",
		TTL:        time.Hour,
	})
	s.Require().NoError(err)

	s.Run("expired link is rejected", func() {
		_, err := s.service.Redeem(s.ctxAt(s.now.Add(2*time.Hour)), signed)
		s.Require().Error(err)
	})

	s.Run("tampered link is rejected", func() {
		_, err := s.service.Redeem(ctx, signed+"x")
		s.Require().Error(err)
	})

	s.Run("link signed with another secret is rejected", func() {
		other, err := New([]byte("different-secret"))
		s.Require().NoError(err)
		foreign, _, err := other.Issue(ctx, IssueRequest{
			ResourceID: "study-42",
			Action:     "view",
			IssuedBy:   "MP123456",
		})
		s.Require().NoError(err)

		_, err = s.service.Redeem(ctx, foreign)
		s.Require().Error(err)
	})

	s.Run("failed redemption is audited as SECURITY", func() {
		events, err := s.auditStore.Query(ctx, audit.Filter{Category: audit.CategorySecurity})
		s.Require().NoError(err)
		s.NotEmpty(events)
		s.Equal("SHARELINK_REDEEM_FAILED", events[0].Action)
	})
}

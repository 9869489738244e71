package consent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"caregate/internal/audit"
	"caregate/internal/storage"
	"caregate/pkg/requestcontext"
)

type EngineSuite struct {
	suite.Suite

	store      *storage.InMemoryRecordStore
	auditStore *audit.InMemoryStore
	engine     *Engine
	now        time.Time
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (s *EngineSuite) SetupTest() {
	s.store = storage.NewInMemoryRecordStore()
	s.auditStore = audit.NewInMemoryStore()
	auditor, err := audit.New(s.auditStore)
	s.Require().NoError(err)

	engine, err := NewEngine(s.store, WithAuditRecorder(auditor))
	s.Require().NoError(err)
	s.engine = engine
	s.now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
}

func (s *EngineSuite) ctx() context.Context {
	return requestcontext.WithTime(context.Background(), s.now)
}

func (s *EngineSuite) ctxAt(t time.Time) context.Context {
	return requestcontext.WithTime(context.Background(), t)
}

func (s *EngineSuite) TestCheckConsent() {
	s.Run("false with no consent record", func() {
		valid, err := s.engine.CheckConsent(s.ctx(), "patient-1")
		s.Require().NoError(err)
		s.False(valid)
	})

	s.Run("true immediately after granting", func() {
		s.Require().NoError(s.engine.UpdateConsent(s.ctx(), "patient-1", true, "1.0"))

		valid, err := s.engine.CheckConsent(s.ctx(), "patient-1")
		s.Require().NoError(err)
		s.True(valid)
	})

	s.Run("false once the validity window elapses", func() {
		later := s.ctxAt(s.now.AddDate(0, 0, defaultValidityDays+1))

		valid, err := s.engine.CheckConsent(later, "patient-1")
		s.Require().NoError(err)
		s.False(valid)
	})

	s.Run("false after revocation", func() {
		s.Require().NoError(s.engine.UpdateConsent(s.ctx(), "patient-1", false, "1.0"))

		valid, err := s.engine.CheckConsent(s.ctx(), "patient-1")
		s.Require().NoError(err)
		s.False(valid)
	})

	s.Run("every check emits a CONSENT audit event", func() {
		before, err := s.auditStore.Query(s.ctx(), audit.Filter{Category: audit.CategoryConsent, Limit: -1})
		s.Require().NoError(err)

		_, err = s.engine.CheckConsent(s.ctx(), "patient-1")
		s.Require().NoError(err)

		after, err := s.auditStore.Query(s.ctx(), audit.Filter{Category: audit.CategoryConsent, Limit: -1})
		s.Require().NoError(err)
		s.Len(after, len(before)+1)
	})

	s.Run("empty subject id is rejected", func() {
		_, err := s.engine.CheckConsent(s.ctx(), "")
		s.Require().Error(err)
	})
}

func (s *EngineSuite) TestUpdateConsentAppendsHistory() {
	ctx := s.ctx()
	s.Require().NoError(s.engine.UpdateConsent(ctx, "patient-2", true, "1.0"))

	later := s.ctxAt(s.now.Add(time.Hour))
	s.Require().NoError(s.engine.UpdateConsent(later, "patient-2", false, "1.1"))

	history, err := s.engine.History(ctx, "patient-2")
	s.Require().NoError(err)
	s.Require().Len(history, 2)

	s.Run("newest first", func() {
		s.Equal("1.1", history[0].Version)
		s.False(history[0].Given)
		s.NotNil(history[0].WithdrawalDate)
	})

	s.Run("prior grant preserved", func() {
		s.Equal("1.0", history[1].Version)
		s.True(history[1].Given)
	})

	s.Run("latest snapshot wins", func() {
		valid, err := s.engine.CheckConsent(later, "patient-2")
		s.Require().NoError(err)
		s.False(valid)
	})
}

func (s *EngineSuite) TestIsRetentionCompliant() {
	s.Run("no records is trivially compliant", func() {
		ok, err := s.engine.IsRetentionCompliant(s.ctx(), "patient-3")
		s.Require().NoError(err)
		s.True(ok)
	})

	s.Run("fresh record is compliant", func() {
		s.Require().NoError(s.engine.UpdateConsent(s.ctx(), "patient-3", true, "1.0"))

		ok, err := s.engine.IsRetentionCompliant(s.ctx(), "patient-3")
		s.Require().NoError(err)
		s.True(ok)
	})

	s.Run("record past the retention window is not", func() {
		later := s.ctxAt(s.now.AddDate(0, 0, defaultRetentionDays+1))

		ok, err := s.engine.IsRetentionCompliant(later, "patient-3")
		s.Require().NoError(err)
		s.False(ok)
	})

	s.Run("independent of consent state", func() {
		s.Require().NoError(s.engine.UpdateConsent(s.ctx(), "patient-3", false, "1.0"))

		ok, err := s.engine.IsRetentionCompliant(s.ctx(), "patient-3")
		s.Require().NoError(err)
		s.True(ok)
	})
}

func (s *EngineSuite) TestMinimization() {
	s.Run("known actions return their allow-list", func() {
		fields := s.engine.MinimizedFields(ActionView)
		s.ElementsMatch([]string{"PatientID", "PatientName", "StudyDate", "StudyDescription", "Modality"}, fields)
	})

	s.Run("unknown action falls back to identifier only", func() {
		s.Equal([]string{"PatientID"}, s.engine.MinimizedFields("bulk-export"))
	})

	s.Run("filter projects without mutating the input", func() {
		record := storage.Record{
			"PatientID":   "P-1",
			"PatientName": "Doe^Jane",
			"StudyDate":   "20250101",
			"Diagnosis":   "confidential",
		}
		filtered := s.engine.FilterRecord(record, ActionShare)

		s.NotContains(filtered, "Diagnosis")
		s.Equal("P-1", filtered["PatientID"])
		s.Contains(record, "Diagnosis")
	})

	s.Run("filtering twice is idempotent", func() {
		record := storage.Record{"PatientID": "P-1", "PatientName": "Doe^Jane", "Diagnosis": "x"}
		once := s.engine.FilterRecord(record, ActionView)
		twice := s.engine.FilterRecord(once, ActionView)
		s.Equal(once, twice)
	})

	s.Run("startup rule extension", func() {
		engine, err := NewEngine(s.store, WithMinimizationRule("teach", []string{"PatientID", "Modality"}))
		s.Require().NoError(err)
		s.ElementsMatch([]string{"PatientID", "Modality"}, engine.MinimizedFields("teach"))
	})
}

func (s *EngineSuite) TestAuthorizeAccess() {
	s.Run("allowed when all checks pass with empty violations", func() {
		s.Require().NoError(s.engine.UpdateConsent(s.ctx(), "patient-4", true, "1.0"))

		result, err := s.engine.AuthorizeAccess(s.ctx(), "patient-4", ActionView)
		s.Require().NoError(err)
		s.True(result.Allowed)
		s.Empty(result.Violations)
	})

	s.Run("missing consent is named", func() {
		result, err := s.engine.AuthorizeAccess(s.ctx(), "patient-5", ActionView)
		s.Require().NoError(err)
		s.False(result.Allowed)
		s.Equal([]string{ViolationConsentMissing}, result.Violations)
	})

	s.Run("withdrawn consent is named", func() {
		s.Require().NoError(s.engine.UpdateConsent(s.ctx(), "patient-6", true, "1.0"))
		s.Require().NoError(s.engine.UpdateConsent(s.ctxAt(s.now.Add(time.Hour)), "patient-6", false, "1.0"))

		result, err := s.engine.AuthorizeAccess(s.ctxAt(s.now.Add(2*time.Hour)), "patient-6", ActionView)
		s.Require().NoError(err)
		s.False(result.Allowed)
		s.Contains(result.Violations, ViolationConsentWithdrawn)
	})

	s.Run("expired consent is named", func() {
		s.Require().NoError(s.engine.UpdateConsent(s.ctx(), "patient-7", true, "1.0"))
		later := s.ctxAt(s.now.AddDate(0, 0, defaultValidityDays+1))

		result, err := s.engine.AuthorizeAccess(later, "patient-7", ActionView)
		s.Require().NoError(err)
		s.Contains(result.Violations, ViolationConsentExpired)
	})

	s.Run("all failed checks reported together", func() {
		s.Require().NoError(s.engine.UpdateConsent(s.ctx(), "patient-8", true, "1.0"))
		later := s.ctxAt(s.now.AddDate(0, 0, defaultRetentionDays+1))

		result, err := s.engine.AuthorizeAccess(later, "patient-8", "bulk-export")
		s.Require().NoError(err)
		s.False(result.Allowed)
		s.Contains(result.Violations, ViolationConsentExpired)
		s.Contains(result.Violations, ViolationRetentionExceeded)
		s.Contains(result.Violations, ViolationActionUnknown)
	})
}

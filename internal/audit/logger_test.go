package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"caregate/pkg/requestcontext"
)

type LoggerSuite struct {
	suite.Suite

	store  *InMemoryStore
	logger *Logger
	now    time.Time
}

func TestLoggerSuite(t *testing.T) {
	suite.Run(t, new(LoggerSuite))
}

func (s *LoggerSuite) SetupTest() {
	s.store = NewInMemoryStore()
	logger, err := New(s.store)
	s.Require().NoError(err)
	s.logger = logger
	s.now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
}

func (s *LoggerSuite) ctx() context.Context {
	return requestcontext.WithTime(context.Background(), s.now)
}

func (s *LoggerSuite) logAt(t time.Time, event Event) {
	s.Require().NoError(s.logger.Log(requestcontext.WithTime(context.Background(), t), event))
}

func systemEvent(action string) Event {
	return Event{
		Category: CategorySystem,
		Severity: SeverityInfo,
		Actor:    Actor{SubjectID: "system"},
		Action:   action,
		Result:   ResultSuccess,
	}
}

func (s *LoggerSuite) TestLogAssignsIdentityAndTime() {
	s.Require().NoError(s.logger.Log(s.ctx(), systemEvent("STARTUP")))

	events, err := s.logger.Query(s.ctx(), Filter{})
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.NotEmpty(events[0].ID)
	s.True(events[0].Timestamp.Equal(s.now))
}

func (s *LoggerSuite) TestValidation() {
	ctx := s.ctx()

	s.Run("unknown category rejected", func() {
		event := systemEvent("X")
		event.Category = "BOGUS"
		s.Require().Error(s.logger.Log(ctx, event))
	})

	s.Run("unknown severity rejected", func() {
		event := systemEvent("X")
		event.Severity = "LOUD"
		s.Require().Error(s.logger.Log(ctx, event))
	})

	s.Run("missing action rejected", func() {
		event := systemEvent("")
		s.Require().Error(s.logger.Log(ctx, event))
	})

	s.Run("DATA_ACCESS requires actor and resource", func() {
		event := Event{
			Category: CategoryDataAccess,
			Severity: SeverityInfo,
			Actor:    Actor{SubjectID: "subject-1"},
			Action:   "READ",
			Result:   ResultSuccess,
		}
		s.Require().Error(s.logger.Log(ctx, event))

		event.Resource = Resource{Type: "record", ID: "r-1"}
		s.Require().NoError(s.logger.Log(ctx, event))
	})

	s.Run("AUTHENTICATION requires actor and source address", func() {
		event := Event{
			Category: CategoryAuthentication,
			Severity: SeverityInfo,
			Actor:    Actor{SubjectID: "subject-1"},
			Action:   "LOGIN",
			Result:   ResultSuccess,
		}
		s.Require().Error(s.logger.Log(ctx, event))

		event.SourceAddr = "10.0.0.1"
		s.Require().NoError(s.logger.Log(ctx, event))
	})

	s.Run("rejected events are not stored", func() {
		events, err := s.logger.Query(ctx, Filter{Limit: -1})
		s.Require().NoError(err)
		s.Len(events, 2)
	})
}

func (s *LoggerSuite) TestQueryFilters() {
	s.logAt(s.now, systemEvent("FIRST"))
	s.logAt(s.now.Add(time.Hour), Event{
		Category:   CategoryAuthentication,
		Severity:   SeverityWarning,
		Actor:      Actor{SubjectID: "subject-1"},
		SourceAddr: "10.0.0.1",
		Action:     "LOGIN_FAILED",
		Result:     ResultFailed,
	})
	s.logAt(s.now.Add(2*time.Hour), systemEvent("LAST"))

	s.Run("newest first by default", func() {
		events, err := s.logger.Query(s.ctx(), Filter{})
		s.Require().NoError(err)
		s.Require().Len(events, 3)
		s.Equal("LAST", events[0].Action)
		s.Equal("FIRST", events[2].Action)
	})

	s.Run("category and severity filters", func() {
		events, err := s.logger.Query(s.ctx(), Filter{Category: CategoryAuthentication})
		s.Require().NoError(err)
		s.Require().Len(events, 1)
		s.Equal("LOGIN_FAILED", events[0].Action)

		events, err = s.logger.Query(s.ctx(), Filter{Severity: SeverityWarning})
		s.Require().NoError(err)
		s.Len(events, 1)
	})

	s.Run("date range filter", func() {
		events, err := s.logger.Query(s.ctx(), Filter{
			From: s.now.Add(30 * time.Minute),
			To:   s.now.Add(90 * time.Minute),
		})
		s.Require().NoError(err)
		s.Require().Len(events, 1)
		s.Equal("LOGIN_FAILED", events[0].Action)
	})

	s.Run("pagination", func() {
		events, err := s.logger.Query(s.ctx(), Filter{Limit: 1, Offset: 1})
		s.Require().NoError(err)
		s.Require().Len(events, 1)
		s.Equal("LOGIN_FAILED", events[0].Action)
	})
}

func (s *LoggerSuite) TestSummarize() {
	s.logAt(s.now, systemEvent("A"))
	failed := systemEvent("B")
	failed.Result = ResultFailed
	failed.Severity = SeverityError
	s.logAt(s.now.Add(time.Minute), failed)

	summary, err := s.logger.Summarize(s.ctx(), s.now.Add(-time.Hour), s.now.Add(time.Hour), "")
	s.Require().NoError(err)
	s.Equal(2, summary["total"])
	s.Equal(1, summary["result:SUCCESS"])
	s.Equal(1, summary["result:FAILED"])
	s.Equal(1, summary["severity:ERROR"])
}

func (s *LoggerSuite) TestRecentCritical() {
	critical := systemEvent("BREACH")
	critical.Severity = SeverityCritical
	s.logAt(s.now.Add(-2*time.Hour), critical)

	old := systemEvent("OLD_BREACH")
	old.Severity = SeverityCritical
	s.logAt(s.now.Add(-48*time.Hour), old)

	events, err := s.logger.RecentCritical(s.ctx(), 24)
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Equal("BREACH", events[0].Action)
}

func (s *LoggerSuite) TestArchiveAndPurge() {
	s.logAt(s.now.AddDate(0, 0, -10), systemEvent("OLD"))
	s.logAt(s.now, systemEvent("FRESH"))

	s.Run("archive flags without deleting", func() {
		count, err := s.logger.ArchiveOlderThan(s.ctx(), 7)
		s.Require().NoError(err)
		s.Equal(1, count)

		visible, err := s.logger.Query(s.ctx(), Filter{})
		s.Require().NoError(err)
		s.Len(visible, 1)

		all, err := s.logger.Query(s.ctx(), Filter{IncludeArchived: true})
		s.Require().NoError(err)
		s.Len(all, 2)
	})

	s.Run("purge deletes archived events and audits itself first", func() {
		count, err := s.logger.PurgeArchived(s.ctx(), 7)
		s.Require().NoError(err)
		s.Equal(1, count)

		all, err := s.logger.Query(s.ctx(), Filter{IncludeArchived: true, Limit: -1})
		s.Require().NoError(err)
		s.Require().Len(all, 2)

		actions := []string{all[0].Action, all[1].Action}
		s.Contains(actions, "AUDIT_PURGE_ARCHIVED")
		s.Contains(actions, "FRESH")
	})

	s.Run("purge is refused when its own audit write fails", func() {
		logger, err := New(appendFailingStore{s.store})
		s.Require().NoError(err)

		_, err = logger.PurgeArchived(s.ctx(), 7)
		s.Require().Error(err)
	})
}

type appendFailingStore struct {
	*InMemoryStore
}

func (appendFailingStore) Append(context.Context, Event) error {
	return errors.New("append refused")
}

package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"caregate/internal/platform/metrics"
	"caregate/pkg/requestcontext"
)

// Logger is the only writer to the audit store. It validates events before
// accepting them and never drops an accepted event silently: Log returns an
// error whenever the store write fails so callers can fail closed.
type Logger struct {
	store   Store
	log     *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Logger)

func WithLogger(log *slog.Logger) Option {
	return func(l *Logger) { l.log = log }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Logger) { l.metrics = m }
}

func New(store Store, opts ...Option) (*Logger, error) {
	if store == nil {
		return nil, errors.New("audit store is required")
	}
	l := &Logger{store: store}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Log validates and persists an event. The event ID and timestamp are
// assigned here when unset so callers only describe what happened.
// Malformed events are rejected, never truncated into shape.
func (l *Logger) Log(ctx context.Context, event Event) error {
	if err := validate(event); err != nil {
		return err
	}

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = requestcontext.Now(ctx)
	}

	if err := l.store.Append(ctx, event); err != nil {
		if l.log != nil {
			l.log.ErrorContext(ctx, "audit append failed",
				"category", event.Category,
				"action", event.Action,
				"error", err,
			)
		}
		return fmt.Errorf("append audit event: %w", err)
	}

	if l.metrics != nil {
		l.metrics.AuditEvents.WithLabelValues(string(event.Category)).Inc()
	}
	if l.log != nil {
		l.log.InfoContext(ctx, "audit event",
			"event_id", event.ID,
			"category", event.Category,
			"severity", event.Severity,
			"action", event.Action,
			"result", event.Result,
			"log_type", "audit",
		)
	}
	return nil
}

// Query returns events matching the filter, newest first.
func (l *Logger) Query(ctx context.Context, filter Filter) ([]Event, error) {
	return l.store.Query(ctx, filter)
}

// Summarize aggregates counts by result and severity over a date range,
// optionally restricted to one category. Keys are "total", "result:<R>"
// and "severity:<S>".
func (l *Logger) Summarize(ctx context.Context, from, to time.Time, category Category) (map[string]int, error) {
	events, err := l.store.Query(ctx, Filter{
		From:     from,
		To:       to,
		Category: category,
		Limit:    -1,
	})
	if err != nil {
		return nil, err
	}

	summary := map[string]int{"total": len(events)}
	for _, e := range events {
		summary["result:"+string(e.Result)]++
		summary["severity:"+string(e.Severity)]++
	}
	return summary, nil
}

// RecentCritical returns CRITICAL events from the trailing window.
func (l *Logger) RecentCritical(ctx context.Context, windowHours int) ([]Event, error) {
	if windowHours <= 0 {
		windowHours = 24
	}
	now := requestcontext.Now(ctx)
	return l.store.Query(ctx, Filter{
		From:     now.Add(-time.Duration(windowHours) * time.Hour),
		Severity: SeverityCritical,
	})
}

// ArchiveOlderThan flags events past the retention horizon. Nothing is
// deleted; archived events drop out of default queries only.
func (l *Logger) ArchiveOlderThan(ctx context.Context, days int) (int, error) {
	cutoff := requestcontext.Now(ctx).AddDate(0, 0, -days)
	count, err := l.store.ArchiveOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("archive audit events: %w", err)
	}
	if l.log != nil {
		l.log.InfoContext(ctx, "audit events archived", "count", count, "cutoff", cutoff)
	}
	return count, nil
}

// PurgeArchived deletes archived events past the horizon. As the only
// destructive operation on the store, the purge itself is audited before
// execution; a failed audit write aborts the purge.
func (l *Logger) PurgeArchived(ctx context.Context, days int) (int, error) {
	cutoff := requestcontext.Now(ctx).AddDate(0, 0, -days)

	err := l.Log(ctx, Event{
		Category: CategorySystem,
		Severity: SeverityWarning,
		Actor:    Actor{SubjectID: "system"},
		Action:   "AUDIT_PURGE_ARCHIVED",
		Result:   ResultSuccess,
		Details:  fmt.Sprintf("purging archived events older than %s", cutoff.Format(time.RFC3339)),
	})
	if err != nil {
		return 0, fmt.Errorf("audit purge refused, pre-purge event not recorded: %w", err)
	}

	count, err := l.store.PurgeArchived(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge archived audit events: %w", err)
	}
	return count, nil
}

// validate enforces the per-category required fields. DATA_ACCESS needs an
// actor and a resource; AUTHENTICATION needs an actor and a source address.
func validate(event Event) error {
	if _, ok := validCategories[event.Category]; !ok {
		return fmt.Errorf("invalid audit category %q", event.Category)
	}
	if _, ok := validSeverities[event.Severity]; !ok {
		return fmt.Errorf("invalid audit severity %q", event.Severity)
	}
	if _, ok := validResults[event.Result]; !ok {
		return fmt.Errorf("invalid audit result %q", event.Result)
	}
	if event.Action == "" {
		return errors.New("audit event requires an action")
	}

	switch event.Category {
	case CategoryDataAccess:
		if !event.Actor.hasActor() {
			return errors.New("DATA_ACCESS audit event requires an actor")
		}
		if event.Resource.ID == "" {
			return errors.New("DATA_ACCESS audit event requires a resource")
		}
	case CategoryAuthentication:
		if !event.Actor.hasActor() {
			return errors.New("AUTHENTICATION audit event requires an actor")
		}
		if event.SourceAddr == "" {
			return errors.New("AUTHENTICATION audit event requires a source address")
		}
	}
	return nil
}

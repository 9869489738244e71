package audit

import (
	"context"
	"time"
)

// Filter narrows a Query. Zero values mean "no constraint". Results are
// returned newest-first; Limit defaults to 100 when unset, negative means
// unlimited.
type Filter struct {
	From           time.Time
	To             time.Time
	Category       Category
	Severity       Severity
	ActorSubject   string
	ProfessionalID string
	ResourceID     string
	IncludeArchived bool
	Limit          int
	Offset         int
}

const defaultQueryLimit = 100

// Matches reports whether the event satisfies every set constraint. Shared
// by the memory store and tests; the Postgres store pushes the same
// constraints into SQL.
func (f Filter) Matches(e Event) bool {
	if !f.From.IsZero() && e.Timestamp.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && e.Timestamp.After(f.To) {
		return false
	}
	if f.Category != "" && e.Category != f.Category {
		return false
	}
	if f.Severity != "" && e.Severity != f.Severity {
		return false
	}
	if f.ActorSubject != "" && e.Actor.SubjectID != f.ActorSubject {
		return false
	}
	if f.ProfessionalID != "" && e.Actor.ProfessionalID != f.ProfessionalID {
		return false
	}
	if f.ResourceID != "" && e.Resource.ID != f.ResourceID {
		return false
	}
	if !f.IncludeArchived && e.Archived {
		return false
	}
	return true
}

// Store persists audit events. Append-only: events are never updated after
// the fact except for the archival flag, and only PurgeArchived deletes.
type Store interface {
	Append(ctx context.Context, event Event) error
	Query(ctx context.Context, filter Filter) ([]Event, error)
	// ArchiveOlderThan flags events with timestamps before cutoff and
	// returns the number flagged. Already-archived events are not counted
	// twice.
	ArchiveOlderThan(ctx context.Context, cutoff time.Time) (int, error)
	// PurgeArchived deletes archived events older than cutoff and returns
	// the number removed. The only destructive operation on the store.
	PurgeArchived(ctx context.Context, cutoff time.Time) (int, error)
}

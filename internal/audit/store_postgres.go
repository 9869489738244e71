package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// PostgresStore persists audit events in PostgreSQL. Pure I/O: validation
// and event construction belong to the Logger.
//
// Queries are always parameterized; caller input is never interpolated into
// SQL text.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed audit store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Schema creates the audit_events table. Called at startup by hosts that
// manage their own migrations inline.
func (s *PostgresStore) Schema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS audit_events (
			id               TEXT PRIMARY KEY,
			category         TEXT NOT NULL,
			severity         TEXT NOT NULL,
			subject_id       TEXT NOT NULL DEFAULT '',
			professional_id  TEXT NOT NULL DEFAULT '',
			token_prefix     TEXT NOT NULL DEFAULT '',
			actor_role       TEXT NOT NULL DEFAULT '',
			source_addr      TEXT NOT NULL DEFAULT '',
			resource_type    TEXT NOT NULL DEFAULT '',
			resource_id      TEXT NOT NULL DEFAULT '',
			parent_id        TEXT NOT NULL DEFAULT '',
			action           TEXT NOT NULL,
			result           TEXT NOT NULL,
			details          TEXT NOT NULL DEFAULT '',
			compliance_flags JSONB,
			archived         BOOLEAN NOT NULL DEFAULT FALSE,
			timestamp        TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS audit_events_timestamp_idx ON audit_events (timestamp DESC);
		CREATE INDEX IF NOT EXISTS audit_events_category_idx ON audit_events (category);
	`)
	if err != nil {
		return fmt.Errorf("create audit_events table: %w", err)
	}
	return nil
}

func (s *PostgresStore) Append(ctx context.Context, event Event) error {
	var flags []byte
	if event.ComplianceFlags != nil {
		var err error
		flags, err = json.Marshal(event.ComplianceFlags)
		if err != nil {
			return fmt.Errorf("encode compliance flags: %w", err)
		}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_events (
			id, category, severity, subject_id, professional_id, token_prefix,
			actor_role, source_addr, resource_type, resource_id, parent_id,
			action, result, details, compliance_flags, archived, timestamp
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`,
		event.ID,
		string(event.Category),
		string(event.Severity),
		event.Actor.SubjectID,
		event.Actor.ProfessionalID,
		event.Actor.TokenPrefix,
		event.Actor.Role,
		event.SourceAddr,
		event.Resource.Type,
		event.Resource.ID,
		event.Resource.ParentID,
		event.Action,
		string(event.Result),
		event.Details,
		flags,
		event.Archived,
		event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

func (s *PostgresStore) Query(ctx context.Context, filter Filter) ([]Event, error) {
	query := `
		SELECT id, category, severity, subject_id, professional_id, token_prefix,
		       actor_role, source_addr, resource_type, resource_id, parent_id,
		       action, result, details, compliance_flags, archived, timestamp
		FROM audit_events
		WHERE 1=1
	`
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if !filter.From.IsZero() {
		query += " AND timestamp >= " + arg(filter.From)
	}
	if !filter.To.IsZero() {
		query += " AND timestamp <= " + arg(filter.To)
	}
	if filter.Category != "" {
		query += " AND category = " + arg(string(filter.Category))
	}
	if filter.Severity != "" {
		query += " AND severity = " + arg(string(filter.Severity))
	}
	if filter.ActorSubject != "" {
		query += " AND subject_id = " + arg(filter.ActorSubject)
	}
	if filter.ProfessionalID != "" {
		query += " AND professional_id = " + arg(filter.ProfessionalID)
	}
	if filter.ResourceID != "" {
		query += " AND resource_id = " + arg(filter.ResourceID)
	}
	if !filter.IncludeArchived {
		query += " AND archived = FALSE"
	}

	query += " ORDER BY timestamp DESC"
	limit := filter.Limit
	if limit == 0 {
		limit = defaultQueryLimit
	}
	if limit > 0 {
		query += " LIMIT " + arg(limit)
	}
	query += " OFFSET " + arg(filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		var category, severity, result string
		var flags []byte
		if err := rows.Scan(
			&e.ID, &category, &severity,
			&e.Actor.SubjectID, &e.Actor.ProfessionalID, &e.Actor.TokenPrefix,
			&e.Actor.Role, &e.SourceAddr,
			&e.Resource.Type, &e.Resource.ID, &e.Resource.ParentID,
			&e.Action, &result, &e.Details, &flags, &e.Archived, &e.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		e.Category = Category(category)
		e.Severity = Severity(severity)
		e.Result = Result(result)
		if len(flags) > 0 {
			if err := json.Unmarshal(flags, &e.ComplianceFlags); err != nil {
				return nil, fmt.Errorf("decode compliance flags: %w", err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ArchiveOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE audit_events SET archived = TRUE WHERE archived = FALSE AND timestamp < $1`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("archive audit events: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *PostgresStore) PurgeArchived(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM audit_events WHERE archived = TRUE AND timestamp < $1`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("purge archived audit events: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

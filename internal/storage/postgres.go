package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/lib/pq"

	"caregate/pkg/sentinel"
)

// PostgresRecordStore persists records as JSONB documents in a single
// table. Pure I/O: all domain logic stays in the services.
//
// Queries are always parameterized; caller input is never interpolated into
// SQL text.
type PostgresRecordStore struct {
	db *sql.DB
}

// NewPostgres constructs a Postgres-backed record store.
func NewPostgres(db *sql.DB) *PostgresRecordStore {
	return &PostgresRecordStore{db: db}
}

// OpenPostgres opens a lib/pq connection and verifies it with a ping.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}
	return db, nil
}

// Schema creates the records table. Called at startup by hosts that manage
// their own migrations inline.
func (s *PostgresRecordStore) Schema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS records (
			collection TEXT NOT NULL,
			key        TEXT NOT NULL,
			payload    JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (collection, key)
		)
	`)
	if err != nil {
		return fmt.Errorf("create records table: %w", err)
	}
	return nil
}

func (s *PostgresRecordStore) Get(ctx context.Context, collection, key string) (Record, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM records WHERE collection = $1 AND key = $2`,
		collection, key,
	).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}

	var record Record
	if err := json.Unmarshal(payload, &record); err != nil {
		return nil, fmt.Errorf("decode record payload: %w", err)
	}
	return record, nil
}

func (s *PostgresRecordStore) Put(ctx context.Context, collection, key string, record Record) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode record payload: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO records (collection, key, payload, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (collection, key) DO UPDATE SET
			payload = EXCLUDED.payload,
			updated_at = now()
	`, collection, key, payload)
	if err != nil {
		return fmt.Errorf("put record: %w", err)
	}
	return nil
}

func (s *PostgresRecordStore) Query(ctx context.Context, collection string, pred Predicate) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM records WHERE collection = $1`, collection)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		var record Record
		if err := json.Unmarshal(payload, &record); err != nil {
			return nil, fmt.Errorf("decode record payload: %w", err)
		}
		if pred == nil || pred(record) {
			out = append(out, record)
		}
	}
	return out, rows.Err()
}

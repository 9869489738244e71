package storage

import "context"

// Record is an untyped document. The core never assumes a schema beyond the
// field names it reads and writes (credential records, consent records).
type Record map[string]any

// Predicate selects records during a Query scan. Implementations receive a
// copy-safe view and must not retain the record.
type Predicate func(Record) bool

// RecordStore is the abstract persistence port consumed by the credential
// validator and the consent engine. Implementations own their concurrency
// guarantees; callers never hold locks across these calls.
//
// Stores are interface-driven to keep the domain logic testable and to allow
// swapping in-memory or external persistence without rewiring business code.
type RecordStore interface {
	// Get returns the record stored under collection/key, or
	// sentinel.ErrNotFound.
	Get(ctx context.Context, collection, key string) (Record, error)
	// Put stores (or replaces) the record under collection/key.
	Put(ctx context.Context, collection, key string, record Record) error
	// Query scans a collection and returns every record matching pred.
	Query(ctx context.Context, collection string, pred Predicate) ([]Record, error)
}

// Collections used by the core. Kept here so memory and Postgres
// implementations agree on names.
const (
	CollectionCredentials = "credentials"
	CollectionConsents    = "consents"
)

// Clone returns a shallow copy of a record so callers can project or mutate
// without touching the stored version.
func Clone(r Record) Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

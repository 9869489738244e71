package consent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"caregate/internal/audit"
	"caregate/internal/storage"
	dErrors "caregate/pkg/domain-errors"
	"caregate/pkg/requestcontext"
)

// AuditRecorder is the subset of the audit logger the engine needs.
type AuditRecorder interface {
	Log(ctx context.Context, event audit.Event) error
}

// Engine evaluates consent validity, retention compliance and data
// minimization. It owns all consent record reads and writes; nothing else
// touches the consents collection.
//
// The engine is stateless with respect to in-process memory and may run in
// parallel across requests.
type Engine struct {
	store   storage.RecordStore
	auditor AuditRecorder
	log     *slog.Logger

	validity      time.Duration
	retentionDays int
	rules         map[string][]string
}

type Option func(*Engine)

func WithConsentValidity(d time.Duration) Option {
	return func(e *Engine) { e.validity = d }
}

func WithRetentionDays(days int) Option {
	return func(e *Engine) { e.retentionDays = days }
}

// WithMinimizationRule extends or overrides the built-in action table at
// startup.
func WithMinimizationRule(action string, fields []string) Option {
	return func(e *Engine) { e.rules[action] = fields }
}

func WithAuditRecorder(a AuditRecorder) Option {
	return func(e *Engine) { e.auditor = a }
}

func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

const (
	defaultValidityDays  = 365
	defaultRetentionDays = 2555
)

func NewEngine(store storage.RecordStore, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, errors.New("consent store is required")
	}
	e := &Engine{
		store:         store,
		validity:      defaultValidityDays * 24 * time.Hour,
		retentionDays: defaultRetentionDays,
		rules:         defaultMinimizationRules(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.validity <= 0 {
		return nil, errors.New("consent validity must be positive")
	}
	if e.retentionDays <= 0 {
		return nil, errors.New("retention days must be positive")
	}
	return e, nil
}

// CheckConsent reports whether the subject has live consent: a latest
// record that is given, not withdrawn and inside the validity window. Every
// evaluation emits a CONSENT audit event describing the state it saw.
func (e *Engine) CheckConsent(ctx context.Context, subjectID string) (bool, error) {
	if subjectID == "" {
		return false, dErrors.New(dErrors.CodeBadRequest, "subject id is required")
	}
	now := requestcontext.Now(ctx)

	record, found, err := e.latest(ctx, subjectID)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeStorageUnavailable, "read consent records")
	}

	valid := found && record.validAt(now, e.validity)
	state := consentState(record, found, now, e.validity)

	e.record(ctx, audit.Event{
		Category: audit.CategoryConsent,
		Severity: audit.SeverityInfo,
		Actor:    audit.Actor{SubjectID: subjectID},
		Action:   "CONSENT_CHECKED",
		Result:   checkResult(valid),
		Details:  fmt.Sprintf("state=%s version=%s", state, record.Version),
		ComplianceFlags: map[string]string{
			"consent_checked": "true",
			"consent_state":   state,
		},
	})
	return valid, nil
}

// UpdateConsent appends a new consent snapshot. Revocations are new records
// carrying given=false and a withdrawal stamp; prior history is preserved.
func (e *Engine) UpdateConsent(ctx context.Context, subjectID string, given bool, version string) error {
	if subjectID == "" {
		return dErrors.New(dErrors.CodeBadRequest, "subject id is required")
	}
	if version == "" {
		return dErrors.New(dErrors.CodeBadRequest, "consent version is required")
	}
	now := requestcontext.Now(ctx)

	record := Record{
		ID:            uuid.NewString(),
		SubjectID:     subjectID,
		Given:         given,
		Version:       version,
		ConsentDate:   now,
		RetentionDays: e.retentionDays,
		CreatedAt:     now,
	}
	if !given {
		record.WithdrawalDate = &now
	}

	if err := e.store.Put(ctx, storage.CollectionConsents, record.ID, encodeRecord(record)); err != nil {
		return dErrors.Wrap(err, dErrors.CodeStorageUnavailable, "store consent record")
	}

	action := "CONSENT_GRANTED"
	if !given {
		action = "CONSENT_REVOKED"
	}
	e.record(ctx, audit.Event{
		Category: audit.CategoryConsent,
		Severity: audit.SeverityInfo,
		Actor:    audit.Actor{SubjectID: subjectID},
		Action:   action,
		Result:   audit.ResultSuccess,
		Details:  fmt.Sprintf("version=%s", version),
	})
	if e.log != nil {
		e.log.InfoContext(ctx, "consent updated",
			"subject_id", subjectID,
			"given", given,
			"version", version,
		)
	}
	return nil
}

// IsRetentionCompliant reports whether the subject's record is still inside
// its retention window, measured from record creation. Independent of
// consent state: a withdrawn consent can still be retention compliant. A
// subject with no records retains nothing and is trivially compliant.
func (e *Engine) IsRetentionCompliant(ctx context.Context, subjectID string) (bool, error) {
	if subjectID == "" {
		return false, dErrors.New(dErrors.CodeBadRequest, "subject id is required")
	}
	record, found, err := e.latest(ctx, subjectID)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeStorageUnavailable, "read consent records")
	}
	if !found {
		return true, nil
	}

	days := record.RetentionDays
	if days <= 0 {
		days = e.retentionDays
	}
	now := requestcontext.Now(ctx)
	return now.Before(record.CreatedAt.AddDate(0, 0, days)), nil
}

// AuthorizeAccess composes consent, retention and minimization into one
// decision. It runs every check and reports all failures, so a caller sees
// the complete violation list rather than the first one found. Pure
// composition: no logic beyond the three underlying checks.
func (e *Engine) AuthorizeAccess(ctx context.Context, subjectID, action string) (AccessResult, error) {
	now := requestcontext.Now(ctx)

	record, found, err := e.latest(ctx, subjectID)
	if err != nil {
		return AccessResult{}, dErrors.Wrap(err, dErrors.CodeStorageUnavailable, "read consent records")
	}

	var violations []string
	if !found || !record.validAt(now, e.validity) {
		violations = append(violations, consentViolation(record, found, now, e.validity))
	}

	compliant, err := e.IsRetentionCompliant(ctx, subjectID)
	if err != nil {
		return AccessResult{}, err
	}
	if !compliant {
		violations = append(violations, ViolationRetentionExceeded)
	}

	if _, ok := e.rules[action]; !ok {
		violations = append(violations, ViolationActionUnknown)
	}

	return AccessResult{Allowed: len(violations) == 0, Violations: violations}, nil
}

// History returns a subject's full consent history, newest first.
func (e *Engine) History(ctx context.Context, subjectID string) ([]Record, error) {
	records, err := e.store.Query(ctx, storage.CollectionConsents, func(r storage.Record) bool {
		id, _ := r["subject_id"].(string)
		return id == subjectID
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStorageUnavailable, "read consent records")
	}

	out := make([]Record, 0, len(records))
	for _, raw := range records {
		record, err := decodeRecord(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, record)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// latest returns the most recent consent snapshot for a subject.
func (e *Engine) latest(ctx context.Context, subjectID string) (Record, bool, error) {
	history, err := e.History(ctx, subjectID)
	if err != nil {
		return Record{}, false, err
	}
	if len(history) == 0 {
		return Record{}, false, nil
	}
	return history[0], true, nil
}

// consentViolation names the specific reason live consent is absent.
func consentViolation(record Record, found bool, now time.Time, validity time.Duration) string {
	switch {
	case !found:
		return ViolationConsentMissing
	case record.WithdrawalDate != nil:
		return ViolationConsentWithdrawn
	case !record.Given:
		return ViolationConsentMissing
	default:
		return ViolationConsentExpired
	}
}

// consentState describes the evaluated state for audit details.
func consentState(record Record, found bool, now time.Time, validity time.Duration) string {
	switch {
	case !found:
		return "missing"
	case record.WithdrawalDate != nil:
		return "withdrawn"
	case !record.Given:
		return "not_given"
	case now.Sub(record.ConsentDate) >= validity:
		return "expired"
	default:
		return "valid"
	}
}

func checkResult(valid bool) audit.Result {
	if valid {
		return audit.ResultSuccess
	}
	return audit.ResultDenied
}

func (e *Engine) record(ctx context.Context, event audit.Event) {
	if e.auditor == nil {
		return
	}
	if err := e.auditor.Log(ctx, event); err != nil && e.log != nil {
		e.log.ErrorContext(ctx, "consent audit write failed",
			"action", event.Action,
			"error", err,
		)
	}
}

func encodeRecord(record Record) storage.Record {
	raw, _ := json.Marshal(record)
	var out storage.Record
	_ = json.Unmarshal(raw, &out)
	return out
}

func decodeRecord(raw storage.Record) (Record, error) {
	encoded, err := json.Marshal(raw)
	if err != nil {
		return Record{}, fmt.Errorf("encode consent record: %w", err)
	}
	var record Record
	if err := json.Unmarshal(encoded, &record); err != nil {
		return Record{}, fmt.Errorf("decode consent record: %w", err)
	}
	return record, nil
}

package credential

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"caregate/internal/audit"
	"caregate/internal/storage"
	dErrors "caregate/pkg/domain-errors"
	"caregate/pkg/requestcontext"
	"caregate/pkg/sentinel"
)

var numberPattern = regexp.MustCompile(`^[A-Z]{2,3}\d{6}$`)

// Normalize canonicalizes a registration number: trim, uppercase, strip
// everything outside [A-Z0-9]. "mp 123456" and "MP-123456" normalize to the
// same value.
func Normalize(input string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(strings.TrimSpace(input)) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ValidateFormat checks a registration number against the council format:
// a recognized two-letter category prefix followed by six digits. Pure
// function, no registry lookup.
func ValidateFormat(input string) Result {
	clean := Normalize(input)
	if clean == "" {
		return Result{Reason: "registration number is empty"}
	}
	if !numberPattern.MatchString(clean) {
		return Result{Reason: "registration number must be a category prefix followed by six digits"}
	}

	prefix := clean[:len(clean)-6]
	if _, ok := Categories[prefix]; !ok {
		return Result{Reason: fmt.Sprintf("unknown registration category %q", prefix)}
	}
	return Result{Valid: true, Category: prefix, Number: clean}
}

// AuditRecorder is the subset of the audit logger the validator needs.
type AuditRecorder interface {
	Log(ctx context.Context, event audit.Event) error
}

// Validator checks professional credentials against the registry. Format
// checks are pure; registry checks read the credential store.
type Validator struct {
	store   storage.RecordStore
	auditor AuditRecorder
	log     *slog.Logger
}

type Option func(*Validator)

func WithAuditRecorder(a AuditRecorder) Option {
	return func(v *Validator) { v.auditor = a }
}

func WithLogger(log *slog.Logger) Option {
	return func(v *Validator) { v.log = log }
}

func NewValidator(store storage.RecordStore, opts ...Option) (*Validator, error) {
	if store == nil {
		return nil, errors.New("credential store is required")
	}
	v := &Validator{store: store}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// ValidateAgainstRegistry runs the format check, then looks the number up in
// the registry. Unknown or non-ACTIVE registrations produce an invalid
// Result; only store failures surface as errors so callers can distinguish
// "denied" from "cannot decide".
func (v *Validator) ValidateAgainstRegistry(ctx context.Context, input string) (Result, error) {
	res := ValidateFormat(input)
	if !res.Valid {
		return res, nil
	}

	cred, err := v.Lookup(ctx, res.Number)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return Result{Category: res.Category, Number: res.Number, Reason: "registration number not found in registry"}, nil
		}
		return Result{}, dErrors.Wrap(err, dErrors.CodeStorageUnavailable, "credential registry lookup failed")
	}

	if cred.Status != StatusActive {
		return Result{
			Category: res.Category,
			Number:   res.Number,
			Reason:   fmt.Sprintf("registration is %s", cred.Status),
		}, nil
	}
	return Result{Valid: true, Category: res.Category, Number: res.Number}, nil
}

// Lookup fetches a registry record by its normalized number.
func (v *Validator) Lookup(ctx context.Context, number string) (ProfessionalCredential, error) {
	record, err := v.store.Get(ctx, storage.CollectionCredentials, Normalize(number))
	if err != nil {
		return ProfessionalCredential{}, err
	}
	return decodeCredential(record)
}

// Register inserts or replaces a registry record. The identifier is
// normalized and must pass the format check.
func (v *Validator) Register(ctx context.Context, cred ProfessionalCredential) error {
	res := ValidateFormat(cred.Identifier)
	if !res.Valid {
		return dErrors.New(dErrors.CodeFormatInvalid, res.Reason)
	}
	cred.Identifier = res.Number
	if cred.Category == "" {
		cred.Category = res.Category
	}
	if cred.Province != "" {
		if _, ok := Provinces[cred.Province]; !ok {
			return dErrors.New(dErrors.CodeFormatInvalid, fmt.Sprintf("unknown province code %q", cred.Province))
		}
	}
	if cred.Status == "" {
		cred.Status = StatusPending
	}

	if err := v.store.Put(ctx, storage.CollectionCredentials, cred.Identifier, encodeCredential(cred)); err != nil {
		return dErrors.Wrap(err, dErrors.CodeStorageUnavailable, "store credential")
	}
	if v.log != nil {
		v.log.InfoContext(ctx, "credential registered",
			"identifier", cred.Identifier,
			"category", cred.Category,
			"status", cred.Status,
		)
	}
	return nil
}

// UpdateVerificationStatus marks a registration verified or unverified.
// Verification changes are compliance-relevant and always audited.
func (v *Validator) UpdateVerificationStatus(ctx context.Context, number string, verified bool, details string) error {
	cred, err := v.Lookup(ctx, number)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "registration number not found in registry")
		}
		return dErrors.Wrap(err, dErrors.CodeStorageUnavailable, "credential registry lookup failed")
	}

	now := requestcontext.Now(ctx)
	cred.Verified = verified
	if verified {
		cred.VerifiedAt = &now
	} else {
		cred.VerifiedAt = nil
	}
	if err := v.store.Put(ctx, storage.CollectionCredentials, cred.Identifier, encodeCredential(cred)); err != nil {
		return dErrors.Wrap(err, dErrors.CodeStorageUnavailable, "store credential")
	}

	v.record(ctx, audit.Event{
		Category: audit.CategorySystem,
		Severity: audit.SeverityInfo,
		Actor:    audit.Actor{ProfessionalID: cred.Identifier},
		Action:   "CREDENTIAL_VERIFICATION_UPDATED",
		Result:   audit.ResultSuccess,
		Details:  fmt.Sprintf("verified=%t %s", verified, details),
	})
	return nil
}

// GrantPermission adds or reactivates a practice permission on a
// registration. A repeat grant for the same type replaces the prior one.
func (v *Validator) GrantPermission(ctx context.Context, number string, perm Permission) error {
	if perm.Type == "" {
		return dErrors.New(dErrors.CodeBadRequest, "permission type is required")
	}
	cred, err := v.Lookup(ctx, number)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "registration number not found in registry")
		}
		return dErrors.Wrap(err, dErrors.CodeStorageUnavailable, "credential registry lookup failed")
	}

	perm.Active = true
	if perm.GrantedAt.IsZero() {
		perm.GrantedAt = requestcontext.Now(ctx)
	}

	replaced := false
	for i, existing := range cred.Permissions {
		if existing.Type == perm.Type {
			cred.Permissions[i] = perm
			replaced = true
			break
		}
	}
	if !replaced {
		cred.Permissions = append(cred.Permissions, perm)
	}

	if err := v.store.Put(ctx, storage.CollectionCredentials, cred.Identifier, encodeCredential(cred)); err != nil {
		return dErrors.Wrap(err, dErrors.CodeStorageUnavailable, "store credential")
	}
	if v.log != nil {
		v.log.InfoContext(ctx, "permission granted",
			"identifier", cred.Identifier,
			"permission", perm.Type,
		)
	}
	return nil
}

// RevokePermission deactivates a permission grant. Revoking a permission
// the registration never had is a no-op.
func (v *Validator) RevokePermission(ctx context.Context, number, permType string) error {
	cred, err := v.Lookup(ctx, number)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "registration number not found in registry")
		}
		return dErrors.Wrap(err, dErrors.CodeStorageUnavailable, "credential registry lookup failed")
	}

	changed := false
	for i := range cred.Permissions {
		if cred.Permissions[i].Type == permType && cred.Permissions[i].Active {
			cred.Permissions[i].Active = false
			changed = true
		}
	}
	if !changed {
		return nil
	}
	if err := v.store.Put(ctx, storage.CollectionCredentials, cred.Identifier, encodeCredential(cred)); err != nil {
		return dErrors.Wrap(err, dErrors.CodeStorageUnavailable, "store credential")
	}
	if v.log != nil {
		v.log.InfoContext(ctx, "permission revoked",
			"identifier", cred.Identifier,
			"permission", permType,
		)
	}
	return nil
}

// HasPermission reports whether an ACTIVE registration holds a live grant of
// the given type. Suspended and revoked registrations hold no permissions,
// whatever their grant list says.
func (v *Validator) HasPermission(ctx context.Context, number, permType string) (bool, error) {
	cred, err := v.Lookup(ctx, number)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return false, nil
		}
		return false, dErrors.Wrap(err, dErrors.CodeStorageUnavailable, "credential registry lookup failed")
	}
	if cred.Status != StatusActive {
		return false, nil
	}

	now := requestcontext.Now(ctx)
	for _, perm := range cred.Permissions {
		if perm.Type == permType && perm.validAt(now) {
			return true, nil
		}
	}
	return false, nil
}

func (v *Validator) record(ctx context.Context, event audit.Event) {
	if v.auditor == nil {
		return
	}
	if err := v.auditor.Log(ctx, event); err != nil && v.log != nil {
		v.log.ErrorContext(ctx, "credential audit write failed",
			"action", event.Action,
			"error", err,
		)
	}
}

// encodeCredential converts a credential to the store's document form via
// its JSON shape so the struct tags stay the single source of field names.
func encodeCredential(cred ProfessionalCredential) storage.Record {
	raw, _ := json.Marshal(cred)
	var record storage.Record
	_ = json.Unmarshal(raw, &record)
	return record
}

func decodeCredential(record storage.Record) (ProfessionalCredential, error) {
	raw, err := json.Marshal(record)
	if err != nil {
		return ProfessionalCredential{}, fmt.Errorf("encode credential record: %w", err)
	}
	var cred ProfessionalCredential
	if err := json.Unmarshal(raw, &cred); err != nil {
		return ProfessionalCredential{}, fmt.Errorf("decode credential record: %w", err)
	}
	return cred, nil
}

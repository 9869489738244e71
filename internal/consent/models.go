package consent

import "time"

// Record is one snapshot in a subject's append-only consent history.
// Updates append a new record; nothing is edited in place except the
// withdrawal stamp on the latest snapshot, so the full history remains
// reconstructable for compliance review.
type Record struct {
	ID             string     `json:"id"`
	SubjectID      string     `json:"subject_id"`
	Given          bool       `json:"given"`
	Version        string     `json:"version"`
	ConsentDate    time.Time  `json:"consent_date"`
	WithdrawalDate *time.Time `json:"withdrawal_date,omitempty"`
	RetentionDays  int        `json:"retention_days"`
	CreatedAt      time.Time  `json:"created_at"`
}

// validAt reports whether this record represents live consent at now:
// given, not withdrawn, and inside the validity window measured from the
// consent date.
func (r Record) validAt(now time.Time, validity time.Duration) bool {
	if !r.Given || r.WithdrawalDate != nil {
		return false
	}
	return now.Sub(r.ConsentDate) < validity
}

// Violation names a failed authorization check. The gate surfaces these
// verbatim in deny reasons and audit details.
const (
	ViolationConsentMissing    = "consent_missing"
	ViolationConsentWithdrawn  = "consent_withdrawn"
	ViolationConsentExpired    = "consent_expired"
	ViolationRetentionExceeded = "retention_exceeded"
	ViolationActionUnknown     = "action_not_permitted"
)

// AccessResult is the composite outcome of AuthorizeAccess. Violations
// lists every failed check, never just the first; it is empty exactly when
// Allowed is true.
type AccessResult struct {
	Allowed    bool     `json:"allowed"`
	Violations []string `json:"violations,omitempty"`
}

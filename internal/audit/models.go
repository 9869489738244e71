package audit

import "time"

// Category classifies audit events by their primary purpose. This enables
// different retention policies and report routing.
type Category string

const (
	CategoryAuthentication Category = "AUTHENTICATION"
	CategoryDataAccess     Category = "DATA_ACCESS"
	CategoryConsent        Category = "CONSENT"
	CategoryRetention      Category = "RETENTION"
	CategorySecurity       Category = "SECURITY"
	CategorySystem         Category = "SYSTEM"
)

// Severity levels for audit events.
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityError    Severity = "ERROR"
	SeverityCritical Severity = "CRITICAL"
)

// Result of the audited action.
type Result string

const (
	ResultSuccess Result = "SUCCESS"
	ResultFailed  Result = "FAILED"
	ResultPartial Result = "PARTIAL"
	ResultDenied  Result = "DENIED"
)

// Actor identifies who performed the audited action. TokenPrefix carries
// only the first characters of the session token so events never store a
// usable credential.
type Actor struct {
	SubjectID      string `json:"subject_id,omitempty"`
	ProfessionalID string `json:"professional_id,omitempty"`
	TokenPrefix    string `json:"token_prefix,omitempty"`
	Role           string `json:"role,omitempty"`
}

// Resource references the data the action touched. ParentID carries the
// patient linkage when the resource itself is a study or report.
type Resource struct {
	Type     string `json:"type,omitempty"`
	ID       string `json:"id,omitempty"`
	ParentID string `json:"parent_id,omitempty"`
}

// Event is emitted from domain logic to capture every security-relevant
// decision. Immutable once written; the store is append-only apart from
// archival flagging.
type Event struct {
	ID              string            `json:"id"`
	Category        Category          `json:"category"`
	Severity        Severity          `json:"severity"`
	Actor           Actor             `json:"actor"`
	SourceAddr      string            `json:"source_addr,omitempty"`
	Resource        Resource          `json:"resource"`
	Action          string            `json:"action"`
	Result          Result            `json:"result"`
	Details         string            `json:"details,omitempty"`
	ComplianceFlags map[string]string `json:"compliance_flags,omitempty"`
	Timestamp       time.Time         `json:"timestamp"`
	Archived        bool              `json:"archived"`
}

// TokenPrefix returns the loggable prefix of a session token. Full tokens
// must never reach the audit store.
func TokenPrefix(token string) string {
	const n = 8
	if len(token) <= n {
		return token
	}
	return token[:n]
}

var validCategories = map[Category]struct{}{
	CategoryAuthentication: {},
	CategoryDataAccess:     {},
	CategoryConsent:        {},
	CategoryRetention:      {},
	CategorySecurity:       {},
	CategorySystem:         {},
}

var validSeverities = map[Severity]struct{}{
	SeverityInfo:     {},
	SeverityWarning:  {},
	SeverityError:    {},
	SeverityCritical: {},
}

var validResults = map[Result]struct{}{
	ResultSuccess: {},
	ResultFailed:  {},
	ResultPartial: {},
	ResultDenied:  {},
}

// hasActor reports whether any actor field identifies a principal.
func (a Actor) hasActor() bool {
	return a.SubjectID != "" || a.ProfessionalID != "" || a.TokenPrefix != ""
}

package credential

import "time"

// RegistrationStatus of a professional with the council. Anything other
// than ACTIVE fails every authorization check regardless of grants.
type RegistrationStatus string

const (
	StatusActive    RegistrationStatus = "ACTIVE"
	StatusSuspended RegistrationStatus = "SUSPENDED"
	StatusRevoked   RegistrationStatus = "REVOKED"
	StatusPending   RegistrationStatus = "PENDING"
)

// Permission is a practice grant with its own expiry clock.
type Permission struct {
	Type      string     `json:"type"`
	Active    bool       `json:"active"`
	GrantedAt time.Time  `json:"granted_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// validAt reports whether the grant is usable at now.
func (p Permission) validAt(now time.Time) bool {
	if !p.Active {
		return false
	}
	return p.ExpiresAt == nil || p.ExpiresAt.After(now)
}

// ProfessionalCredential is the registry record for a regulated healthcare
// professional.
type ProfessionalCredential struct {
	Identifier     string             `json:"identifier"`
	Category       string             `json:"category"`
	FirstName      string             `json:"first_name"`
	LastName       string             `json:"last_name"`
	Specialization string             `json:"specialization"`
	Province       string             `json:"province"`
	Status         RegistrationStatus `json:"status"`
	Verified       bool               `json:"verified"`
	VerifiedAt     *time.Time         `json:"verified_at,omitempty"`
	Permissions    []Permission       `json:"permissions,omitempty"`
}

// Result is the outcome of a format or registry validation. Validators
// return structured results for expected conditions, never errors.
type Result struct {
	Valid    bool   `json:"valid"`
	Category string `json:"category,omitempty"`
	Number   string `json:"number,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// Categories maps the fixed set of council registration prefixes to
// display names.
var Categories = map[string]string{
	"MP": "Medical Practitioner",
	"DP": "Dental Practitioner",
	"PS": "Psychology",
	"DT": "Dental Therapy",
	"OH": "Oral Hygiene",
	"EM": "Emergency Medical Care",
	"OT": "Occupational Therapy",
	"PT": "Physiotherapy",
	"PO": "Podiatry",
	"OP": "Optometry",
	"SP": "Speech-Language Pathology",
	"AU": "Audiology",
}

// Provinces maps province codes used on credential records to names.
var Provinces = map[string]string{
	"GP":  "Gauteng",
	"WC":  "Western Cape",
	"KZN": "KwaZulu-Natal",
	"EC":  "Eastern Cape",
	"FS":  "Free State",
	"LP":  "Limpopo",
	"MP":  "Mpumalanga",
	"NC":  "Northern Cape",
	"NW":  "North West",
}

// Practice permission types recognized by the registry.
const (
	PermissionDicomAccess   = "DICOM_ACCESS"
	PermissionPatientView   = "PATIENT_VIEW"
	PermissionPatientEdit   = "PATIENT_EDIT"
	PermissionReportGen     = "REPORT_GENERATE"
	PermissionStudyDownload = "STUDY_DOWNLOAD"
)

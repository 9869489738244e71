package session

import "time"

// Session models an authenticated session. Records live inside the Manager's
// table; callers only ever receive copies, never references into the table.
type Session struct {
	Token             string
	SubjectID         string
	ProfessionalID    string
	Role              string
	SourceAddr        string
	CreatedAt         time.Time
	LastActivity      time.Time
	Active            bool
	TwoFactorVerified bool
	Metadata          map[string]string
}

// expired reports whether the inactivity timeout has elapsed at now.
func (s *Session) expired(now time.Time, timeout time.Duration) bool {
	return now.Sub(s.LastActivity) >= timeout
}

// snapshot returns a defensive copy for handing outside the table.
func (s *Session) snapshot() Session {
	out := *s
	if s.Metadata != nil {
		out.Metadata = make(map[string]string, len(s.Metadata))
		for k, v := range s.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

// Stats is a read-only snapshot of the session table for operational
// monitoring.
type Stats struct {
	Total             int `json:"total"`
	Active            int `json:"active"`
	Expired           int `json:"expired"`
	TwoFactorVerified int `json:"two_factor_verified"`
}

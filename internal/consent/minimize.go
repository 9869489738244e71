package consent

import (
	"sort"

	"caregate/internal/storage"
)

// Minimization actions with built-in rules.
const (
	ActionView     = "view"
	ActionDownload = "download"
	ActionReport   = "report"
	ActionShare    = "share"
)

// defaultMinimizationRules is the built-in action to allow-list table.
// Hosts may extend or override it at startup via WithMinimizationRule.
func defaultMinimizationRules() map[string][]string {
	return map[string][]string{
		ActionView:     {"PatientID", "PatientName", "StudyDate", "StudyDescription", "Modality"},
		ActionDownload: {"PatientID", "PatientName", "StudyDate", "StudyDescription", "Modality", "SeriesDescription"},
		ActionReport:   {"PatientID", "PatientName", "StudyDate", "StudyDescription", "Modality", "SeriesDescription", "InstanceNumber"},
		ActionShare:    {"PatientID", "PatientName", "StudyDate", "StudyDescription"},
	}
}

// minimalFieldSet is what unknown actions fall back to: the identifier only.
var minimalFieldSet = []string{"PatientID"}

// MinimizedFields returns the allow-listed field set for an action, sorted
// for stable output. Unknown actions get the minimal set rather than
// nothing, so a caller typo narrows disclosure instead of widening it.
func (e *Engine) MinimizedFields(action string) []string {
	fields, ok := e.rules[action]
	if !ok {
		fields = minimalFieldSet
	}
	out := make([]string, len(fields))
	copy(out, fields)
	sort.Strings(out)
	return out
}

// FilterRecord projects a record down to the allow-listed fields for the
// action. The input is never mutated. Applying the same action twice is
// idempotent.
func (e *Engine) FilterRecord(record storage.Record, action string) storage.Record {
	if record == nil {
		return nil
	}
	out := storage.Record{}
	for _, field := range e.MinimizedFields(action) {
		if value, ok := record[field]; ok {
			out[field] = value
		}
	}
	return out
}

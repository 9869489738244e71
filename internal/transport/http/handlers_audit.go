package httptransport

import (
	"net/http"
	"strconv"
	"time"

	"caregate/internal/audit"
	dErrors "caregate/pkg/domain-errors"
	"caregate/pkg/platform/httputil"
)

// AuditHandler exposes the compliance-reporting queries. Write access to
// the audit trail never goes through HTTP; the logger is the only writer.
type AuditHandler struct {
	auditor *audit.Logger
}

func NewAuditHandler(auditor *audit.Logger) *AuditHandler {
	return &AuditHandler{auditor: auditor}
}

func (h *AuditHandler) handleQuery(w http.ResponseWriter, r *http.Request) {
	filter, err := filterFromQuery(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	events, err := h.auditor.Query(r.Context(), filter)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (h *AuditHandler) handleSummary(w http.ResponseWriter, r *http.Request) {
	from, to, err := dateRange(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	summary, err := h.auditor.Summarize(r.Context(), from, to, audit.Category(r.URL.Query().Get("category")))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, summary)
}

func (h *AuditHandler) handleRecentCritical(w http.ResponseWriter, r *http.Request) {
	window, _ := strconv.Atoi(r.URL.Query().Get("window_hours"))

	events, err := h.auditor.RecentCritical(r.Context(), window)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"events": events})
}

func filterFromQuery(r *http.Request) (audit.Filter, error) {
	q := r.URL.Query()
	filter := audit.Filter{
		Category:       audit.Category(q.Get("category")),
		Severity:       audit.Severity(q.Get("severity")),
		ActorSubject:   q.Get("subject_id"),
		ProfessionalID: q.Get("professional_id"),
		ResourceID:     q.Get("resource_id"),
	}

	for key, dst := range map[string]*time.Time{"from": &filter.From, "to": &filter.To} {
		if raw := q.Get(key); raw != "" {
			t, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				return audit.Filter{}, dErrors.New(dErrors.CodeBadRequest, key+" must be RFC 3339")
			}
			*dst = t
		}
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return audit.Filter{}, dErrors.New(dErrors.CodeBadRequest, "limit must be a positive integer")
		}
		filter.Limit = n
	}
	if raw := q.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return audit.Filter{}, dErrors.New(dErrors.CodeBadRequest, "offset must be a non-negative integer")
		}
		filter.Offset = n
	}
	return filter, nil
}

func dateRange(r *http.Request) (time.Time, time.Time, error) {
	q := r.URL.Query()
	from, err := time.Parse(time.RFC3339, q.Get("from"))
	if err != nil {
		return time.Time{}, time.Time{}, dErrors.New(dErrors.CodeBadRequest, "from must be RFC 3339")
	}
	to, err := time.Parse(time.RFC3339, q.Get("to"))
	if err != nil {
		return time.Time{}, time.Time{}, dErrors.New(dErrors.CodeBadRequest, "to must be RFC 3339")
	}
	return from, to, nil
}

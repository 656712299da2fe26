package handler

import (
	"net/http"
	"strings"
	"time"

	"go-request-guard/internal/service"
	"go-request-guard/internal/validation"
)

type AnalyticsHandler struct {
	service   *service.AnalyticsService
	validator *validation.Validator
	observer  ValidationObserver
}

func NewAnalyticsHandler(service *service.AnalyticsService, validator *validation.Validator, observer ValidationObserver) *AnalyticsHandler {
	if observer == nil {
		observer = noopValidationObserver{}
	}
	return &AnalyticsHandler{service: service, validator: validator, observer: observer}
}

// Report reads the filter from the query string. Dates may be RFC 3339
// timestamps or plain days; a plain "to" day covers the whole day.
func (h *AnalyticsHandler) Report(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := validation.AnalyticsFilter{
		Metric:  strings.TrimSpace(query.Get("metric")),
		GroupBy: strings.TrimSpace(query.Get("groupBy")),
		StaffID: strings.TrimSpace(query.Get("staffId")),
	}

	fields := map[string]string{}
	if from, ok := parseQueryTime(query.Get("from"), false); ok {
		filter.From = from
	} else if query.Get("from") != "" {
		fields["from"] = "must be a date or RFC 3339 timestamp"
	}
	if to, ok := parseQueryTime(query.Get("to"), true); ok {
		filter.To = to
	} else if query.Get("to") != "" {
		fields["to"] = "must be a date or RFC 3339 timestamp"
	}
	if len(fields) > 0 {
		h.observer.ObserveValidationFailure("analytics-filter")
		writeError(w, &validation.Error{Fields: fields})
		return
	}

	if err := h.validator.Validate(&filter); err != nil {
		h.observer.ObserveValidationFailure("analytics-filter")
		writeError(w, err)
		return
	}
	filter.Normalize()

	report, err := h.service.Report(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, report, nil)
}

func parseQueryTime(raw string, endOfDay bool) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	if value, err := time.Parse(time.RFC3339, raw); err == nil {
		return value.UTC(), true
	}
	day, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, false
	}
	if endOfDay {
		return day.Add(24*time.Hour - time.Nanosecond), true
	}
	return day, true
}

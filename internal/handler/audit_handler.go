package handler

import (
	"net/http"
	"net/url"
	"strings"

	"go-request-guard/internal/model"
	"go-request-guard/internal/service"
	"go-request-guard/pkg/apierror"
)

const (
	auditStatusSuccess = "success"
	auditStatusFailure = "failure"
)

// AuditHandler lists recorded governance denials and accepted writes.
type AuditHandler struct {
	service *service.AuditService
}

func NewAuditHandler(service *service.AuditService) *AuditHandler {
	return &AuditHandler{service: service}
}

// List answers GET /api/admin/audit. Filters: action, actor_id, status
// (success|failure), code (e.g. CSRF_REQUIRED), path, from, to, page, limit.
func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	query, err := parseAuditQuery(r.URL.Query())
	if err != nil {
		writeError(w, err)
		return
	}

	items, meta, err := h.service.Query(r.Context(), query)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, model.AuditListData{Items: items}, &meta)
}

func parseAuditQuery(values url.Values) (model.AuditQuery, error) {
	status := strings.ToLower(strings.TrimSpace(values.Get("status")))
	switch status {
	case "", auditStatusSuccess, auditStatusFailure:
	default:
		return model.AuditQuery{}, apierror.BadRequest("invalid 'status' filter", "status must be success or failure")
	}

	code := strings.ToUpper(strings.TrimSpace(values.Get("code")))
	if strings.ContainsFunc(code, func(r rune) bool { return !(r == '_' || (r >= 'A' && r <= 'Z')) }) {
		return model.AuditQuery{}, apierror.BadRequest("invalid 'code' filter", code)
	}

	return model.AuditQuery{
		Action:  strings.TrimSpace(values.Get("action")),
		ActorID: strings.TrimSpace(values.Get("actor_id")),
		Status:  status,
		Code:    code,
		Path:    strings.TrimSpace(values.Get("path")),
		From:    strings.TrimSpace(values.Get("from")),
		To:      strings.TrimSpace(values.Get("to")),
		Page:    parseIntOrDefault(values.Get("page"), 1),
		Limit:   parseIntOrDefault(values.Get("limit"), 50),
	}, nil
}

package handler

import (
	"net/http"
	"strconv"

	"github.com/xela07ax/radar-bff/internal/audit"
	"github.com/xela07ax/radar-bff/internal/bff/service"
)

type AuditHandler struct {
	service *service.AuditService
}

func NewAuditHandler(s *service.AuditService) *AuditHandler {
	return &AuditHandler{service: s}
}

// GetLogs возвращает журнал запросов с фильтрацией
// GET /api/auditoria?user_id=...&endpoint=...&limit=...
func (h *AuditHandler) GetLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := audit.Filter{UserID: q.Get("user_id"), Endpoint: q.Get("endpoint")}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		f.Limit = n
	}

	logs, err := h.service.FetchLogs(r.Context(), f)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to fetch audit logs")
		return
	}
	writeJSON(w, http.StatusOK, logs)
}

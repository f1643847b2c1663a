package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/xela07ax/radar-bff/internal/domain"
	"github.com/xela07ax/radar-bff/internal/monitoring"
	"go.uber.org/zap"
)

// MonitoringService: прокси сервиса наблюдаемых номеров.
type MonitoringService interface {
	List(ctx context.Context, p monitoring.PageRequest) (domain.Page[domain.MonitoredPlate], error)
	Get(ctx context.Context, id int64) (domain.MonitoredPlate, error)
	Create(ctx context.Context, p domain.MonitoredPlate) (domain.MonitoredPlate, error)
	Update(ctx context.Context, id int64, p domain.MonitoredPlate) (domain.MonitoredPlate, error)
	Delete(ctx context.Context, id int64) error
	Alerts(ctx context.Context, p monitoring.PageRequest) (domain.Page[domain.PassageAlert], error)
}

type MonitoringHandler struct {
	service MonitoringService
	paging  Paging
	logger  *zap.Logger
}

func NewMonitoringHandler(s MonitoringService, paging Paging, logger *zap.Logger) *MonitoringHandler {
	return &MonitoringHandler{service: s, paging: paging, logger: logger.Named("monitoring")}
}

func (h *MonitoringHandler) pageRequest(r *http.Request) (monitoring.PageRequest, error) {
	page, size, err := h.paging.parse(r)
	if err != nil {
		return monitoring.PageRequest{}, err
	}
	return monitoring.PageRequest{Page: page, Size: size, Sort: r.URL.Query()["sort"]}, nil
}

func (h *MonitoringHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("monitoring request failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
	writeError(w, status, err.Error())
}

// List GET /api/monitoramento
func (h *MonitoringHandler) List(w http.ResponseWriter, r *http.Request) {
	p, err := h.pageRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	page, err := h.service.List(r.Context(), p)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// Get GET /api/monitoramento/{id}
func (h *MonitoringHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	plate, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, plate)
}

// Create POST /api/monitoramento
func (h *MonitoringHandler) Create(w http.ResponseWriter, r *http.Request) {
	var body domain.MonitoredPlate
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	created, err := h.service.Create(r.Context(), body)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// Update PUT /api/monitoramento/{id}
func (h *MonitoringHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var body domain.MonitoredPlate
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	updated, err := h.service.Update(r.Context(), id, body)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// Delete DELETE /api/monitoramento/{id} (только ADMIN)
func (h *MonitoringHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Alerts GET /api/monitoramento/alertas?page&size&sort
func (h *MonitoringHandler) Alerts(w http.ResponseWriter, r *http.Request) {
	p, err := h.pageRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	page, err := h.service.Alerts(r.Context(), p)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "id must be a positive integer")
		return 0, false
	}
	return id, true
}

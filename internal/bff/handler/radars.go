package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/xela07ax/radar-bff/internal/bff/service"
	"go.uber.org/zap"
)

type RadarHandler struct {
	service *service.RadarService
	paging  Paging
	logger  *zap.Logger
}

func NewRadarHandler(s *service.RadarService, paging Paging, logger *zap.Logger) *RadarHandler {
	return &RadarHandler{service: s, paging: paging, logger: logger.Named("radars")}
}

// ByPlate GET /api/radares/placa/{placa}
func (h *RadarHandler) ByPlate(w http.ResponseWriter, r *http.Request) {
	plate := chi.URLParam(r, "placa")
	if plate == "" {
		writeError(w, http.StatusBadRequest, "placa is required")
		return
	}
	page, size, err := h.paging.parse(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, h.service.ByPlate(r.Context(), plate, page, size))
}

// Search GET /api/radares/filtros?concessionaria=...&placa=...
func (h *RadarHandler) Search(w http.ResponseWriter, r *http.Request) {
	q, err := parseFilters(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if q.PageNumber, q.PageSize, err = h.paging.parse(r); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, h.service.Search(r.Context(), q))
}

// BySource GET /api/radares/concessionaria/{nome}/filtros
func (h *RadarHandler) BySource(w http.ResponseWriter, r *http.Request) {
	q, err := parseFilters(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if q.PageNumber, q.PageSize, err = h.paging.parse(r); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, h.service.BySource(r.Context(), chi.URLParam(r, "nome"), q))
}

// FilterOptions GET /api/radares/concessionaria/{nome}/opcoes-filtro
func (h *RadarHandler) FilterOptions(w http.ResponseWriter, r *http.Request) {
	opts, err := h.service.FilterOptions(r.Context(), chi.URLParam(r, "nome"))
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, opts)
}

// KMs GET /api/radares/concessionaria/{nome}/kms-por-rodovia?rodovia=
func (h *RadarHandler) KMs(w http.ResponseWriter, r *http.Request) {
	highway := r.URL.Query().Get("rodovia")
	if highway == "" {
		writeError(w, http.StatusBadRequest, "rodovia is required")
		return
	}
	kms, err := h.service.KMs(r.Context(), chi.URLParam(r, "nome"), highway)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, kms)
}

// Latest GET /api/radares/ultimos-processados
func (h *RadarHandler) Latest(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.Latest())
}

// Export GET /api/radares/exportar: без пагинации.
func (h *RadarHandler) Export(w http.ResponseWriter, r *http.Request) {
	q, err := parseFilters(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, h.service.Export(r.Context(), q))
}

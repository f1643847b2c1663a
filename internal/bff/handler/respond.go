package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/xela07ax/radar-bff/internal/connectors"
	"github.com/xela07ax/radar-bff/internal/engine"
	"github.com/xela07ax/radar-bff/internal/monitoring"
)

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// statusFor переводит доменные ошибки в HTTP-коды.
func statusFor(err error) int {
	var se *connectors.StatusError
	switch {
	case errors.Is(err, monitoring.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, monitoring.ErrInvalid):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrServiceUnavailable):
		return http.StatusServiceUnavailable
	case errors.As(err, &se) && se.Code >= 400 && se.Code < 500:
		return se.Code
	default:
		return http.StatusInternalServerError
	}
}

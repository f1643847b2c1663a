package audit

import "time"

// QueryEvent: одна агрегированная выборка: кто, что искал и какие источники ответили.
type QueryEvent struct {
	ID            string            `json:"id"`       // UUID события
	TraceID       string            `json:"trace_id"` // X-Request-Id
	UserID        string            `json:"user_id"`  // sub токена
	Endpoint      string            `json:"endpoint"` // filtros, placa, concessionaria, exportar
	Filters       map[string]string `json:"filters"`
	Sources       []string          `json:"sources"`
	FailedSources []string          `json:"failed_sources"`
	TotalElements int64             `json:"total_elements"`
	DurationMs    int64             `json:"duration_ms"`
	Timestamp     time.Time         `json:"timestamp"`
}

// Filter: выборка журнала; пустые поля не фильтруют.
type Filter struct {
	UserID   string
	Endpoint string
	Limit    int
}

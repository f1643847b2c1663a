package engine

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestTracingMiddleware_PropagatesOrGenerates(t *testing.T) {
	var seen string
	h := TracingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = TraceIDFrom(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(TraceHeader, "abc-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if seen != "abc-123" || rec.Header().Get(TraceHeader) != "abc-123" {
		t.Fatalf("expected trace abc-123 to propagate, got ctx=%q header=%q", seen, rec.Header().Get(TraceHeader))
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if seen == "" || seen != rec.Header().Get(TraceHeader) {
		t.Fatalf("expected generated trace id in ctx and header, got ctx=%q header=%q", seen, rec.Header().Get(TraceHeader))
	}
}

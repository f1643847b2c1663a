package connectors

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/xela07ax/radar-bff/internal/domain"
)

func testEndpoint(srv *httptest.Server) domain.SourceEndpoint {
	return domain.SourceEndpoint{Name: "cart", BaseURL: srv.URL, Resource: "radares"}
}

func TestFetchPageNestedEnvelope(t *testing.T) {
	var gotQuery map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/radares/filtros" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotQuery = r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"content":[{"id":7,"data":"2024-01-15","hora":"08:30:00","placa":"ABC1234","praca":"P01","rodovia":"BR-101","km":"120","sentido":"NORTE"}],
			"page":{"number":1,"size":10,"totalElements":11,"totalPages":2}}`))
	}))
	defer srv.Close()

	date, _ := domain.ParseLocalDate("2024-01-15")
	from, _ := domain.ParseLocalTime("08:00")
	q := domain.FilterQuery{Plate: "ABC1234", Date: &date, TimeFrom: &from, PageNumber: 1, PageSize: 10}

	res, err := NewHTTPSource(srv.Client()).FetchPage(context.Background(), testEndpoint(srv), q)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotQuery["placa"][0] != "ABC1234" || gotQuery["data"][0] != "2024-01-15" || gotQuery["horaInicial"][0] != "08:00:00" {
		t.Fatalf("filter params not forwarded: %v", gotQuery)
	}
	if len(gotQuery["sort"]) != 2 || gotQuery["sort"][0] != "data,desc" {
		t.Fatalf("expected sort by data,hora desc, got %v", gotQuery["sort"])
	}
	if _, ok := gotQuery["praca"]; ok {
		t.Fatal("empty filters must not be sent")
	}

	if res.Page.TotalElements != 11 || res.Page.TotalPages != 2 || res.Page.Number != 1 {
		t.Fatalf("unexpected page metadata: %+v", res.Page)
	}
	if len(res.Content) != 1 || res.Content[0].SourceName != "CART" || *res.Content[0].ID != 7 {
		t.Fatalf("unexpected content: %+v", res.Content)
	}
}

func TestFetchPageFlatSpringPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"content":[],"number":0,"size":20,"totalElements":0,"totalPages":0}`))
	}))
	defer srv.Close()

	res, err := NewHTTPSource(srv.Client()).FetchPage(context.Background(), testEndpoint(srv), domain.FilterQuery{PageSize: 20})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Content == nil || len(res.Content) != 0 || res.Page.Size != 20 {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestFetchPageErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "1" {
			w.Header().Set("Retry-After", "3")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	src := NewHTTPSource(srv.Client())
	_, err := src.FetchPage(context.Background(), testEndpoint(srv), domain.FilterQuery{PageSize: 20})
	if !errors.Is(err, ErrUnexpectedStatus) || !IsStatus(err, http.StatusInternalServerError) {
		t.Fatalf("expected 500 status error, got %v", err)
	}

	_, err = src.FetchPage(context.Background(), testEndpoint(srv), domain.FilterQuery{PageNumber: 1, PageSize: 20})
	var tErr *ThrottleError
	if !errors.As(err, &tErr) {
		t.Fatalf("expected ThrottleError, got %v", err)
	}
	if tErr.RetryAfter != 3*time.Second {
		t.Fatalf("expected retry after 3s, got %v", tErr.RetryAfter)
	}
}

func TestFetchPageHonorsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := NewHTTPSource(srv.Client()).FetchPage(ctx, testEndpoint(srv), domain.FilterQuery{PageSize: 1})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatal("call was not bounded by context")
	}
}

func TestFetchFilterOptionsAndKMs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/radares/opcoes-filtro":
			_, _ = w.Write([]byte(`{"highways":["BR-101"],"pracas":["P01"]}`))
		case "/radares/kms-por-rodovia":
			if r.URL.Query().Get("rodovia") != "SP 270" {
				t.Errorf("unexpected rodovia %q", r.URL.Query().Get("rodovia"))
			}
			_, _ = w.Write([]byte(`["120","121"]`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	src := NewHTTPSource(srv.Client())
	opts, err := src.FetchFilterOptions(context.Background(), testEndpoint(srv))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(opts.Highways) != 1 || len(opts.TollPlazas) != 1 || opts.Directions == nil || len(opts.Directions) != 0 {
		t.Fatalf("unexpected options: %+v", opts)
	}

	kms, err := src.FetchKMs(context.Background(), testEndpoint(srv), "SP 270")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(kms) != 2 || kms[1] != "121" {
		t.Fatalf("unexpected kms: %v", kms)
	}
}

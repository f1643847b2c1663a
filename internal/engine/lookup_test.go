package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/xela07ax/radar-bff/internal/domain"
	"github.com/xela07ax/radar-bff/internal/infra"
	"go.uber.org/zap"
)

type memOptionsCache struct {
	mu    sync.Mutex
	items map[string]domain.FilterOptions
	ttls  map[string]time.Duration
}

func newMemOptionsCache() *memOptionsCache {
	return &memOptionsCache{items: map[string]domain.FilterOptions{}, ttls: map[string]time.Duration{}}
}

func (c *memOptionsCache) Load(_ context.Context, source string) (domain.FilterOptions, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	o, ok := c.items[source]
	return o, ok, nil
}

func (c *memOptionsCache) Store(_ context.Context, source string, opts domain.FilterOptions, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[source] = opts
	c.ttls[source] = ttl
	return nil
}

func newTestLookup(mock SourceClient, cache OptionsCache, sources ...string) *Lookup {
	m := NewMetrics(nil)
	breakers := NewBreakerRegistry(testBreakerConfig(), m, zap.NewNop())
	return NewLookup(testRegistry(sources...), mock, breakers, m, cache,
		testFanoutConfig(), infra.APIConfig{FilterOptionsTTL: 10 * time.Minute}, zap.NewNop())
}

func TestFilterOptions_CachedAfterFirstFetch(t *testing.T) {
	mock := newMock()
	recs := makeRecords("CART", 3, baseTime, time.Second)
	recs[1].Highway = "SP-270"
	mock.SetRecords("cart", recs)
	cache := newMemOptionsCache()
	l := newTestLookup(mock, cache, "cart")

	first, err := l.FilterOptions(context.Background(), "CART")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(first.Highways) != 2 {
		t.Fatalf("expected 2 highways, got %v", first.Highways)
	}
	if cache.ttls["cart"] != 10*time.Minute {
		t.Fatalf("expected 10m ttl, got %v", cache.ttls["cart"])
	}

	if _, err := l.FilterOptions(context.Background(), "cart"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mock.Calls("cart") != 1 {
		t.Fatalf("expected second lookup from cache, got %d source calls", mock.Calls("cart"))
	}
}

func TestFilterOptions_FailureFallsBackWithoutCaching(t *testing.T) {
	mock := newMock()
	mock.Fail("cart", errBoom)
	cache := newMemOptionsCache()
	l := newTestLookup(mock, cache, "cart")

	opts, err := l.FilterOptions(context.Background(), "cart")
	if err != nil {
		t.Fatalf("read path must not fail, got %v", err)
	}
	if opts.Highways == nil || len(opts.Highways) != 0 {
		t.Fatalf("expected empty options, got %+v", opts)
	}
	if _, ok := cache.items["cart"]; ok {
		t.Fatal("fallback must not be cached")
	}
}

func TestLookup_UnknownSourceIsEmptyFallback(t *testing.T) {
	mock := newMock()
	l := newTestLookup(mock, nil, "cart")

	opts, err := l.FilterOptions(context.Background(), "eixo")
	if err != nil {
		t.Fatalf("unknown source must not be an error, got %v", err)
	}
	if opts.Highways == nil || opts.TollPlazas == nil || opts.KilometerMarkers == nil || opts.Directions == nil {
		t.Fatalf("expected non-nil empty lists, got %+v", opts)
	}
	if len(opts.Highways)+len(opts.TollPlazas)+len(opts.KilometerMarkers)+len(opts.Directions) != 0 {
		t.Fatalf("expected empty options, got %+v", opts)
	}

	kms, err := l.KMs(context.Background(), "eixo", "BR-101")
	if err != nil {
		t.Fatalf("unknown source must not be an error, got %v", err)
	}
	if kms == nil || len(kms) != 0 {
		t.Fatalf("expected empty non-nil kms, got %v", kms)
	}
}

func TestKMs(t *testing.T) {
	mock := newMock()
	recs := makeRecords("CART", 3, baseTime, time.Second)
	recs[0].KilometerMarker = "120"
	recs[1].KilometerMarker = "121"
	recs[2].KilometerMarker = "120"
	mock.SetRecords("cart", recs)
	l := newTestLookup(mock, nil, "cart")

	kms, err := l.KMs(context.Background(), "cart", "BR-101")
	if err != nil || len(kms) != 2 {
		t.Fatalf("expected 2 distinct kms, got %v (%v)", kms, err)
	}

	mock.Fail("cart", errBoom)
	kms, err = l.KMs(context.Background(), "cart", "BR-101")
	if err != nil || kms == nil || len(kms) != 0 {
		t.Fatalf("expected empty fallback, got %v (%v)", kms, err)
	}
}

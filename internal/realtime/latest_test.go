package realtime

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/xela07ax/radar-bff/internal/domain"
	"go.uber.org/zap"
)

type memMirror struct {
	mu      sync.Mutex
	entries map[string]domain.RadarRecord
	failing bool
}

func (m *memMirror) Save(_ context.Context, source string, rec domain.RadarRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return errors.New("redis down")
	}
	m.entries[source] = rec
	return nil
}

func (m *memMirror) LoadAll(context.Context) (map[string]domain.RadarRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]domain.RadarRecord, len(m.entries))
	for k, v := range m.entries {
		out[k] = v
	}
	return out, nil
}

func mustDecode(t *testing.T, raw string) domain.RadarRecord {
	t.Helper()
	rec, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode %q: %v", raw, err)
	}
	return rec
}

func TestLatestStore_WriteThroughAndWarmup(t *testing.T) {
	mirror := &memMirror{entries: map[string]domain.RadarRecord{}}
	first := NewLatestStore(mirror, zap.NewNop())
	first.Put("CART", mustDecode(t, "CART|2024-01-15|08:30:00|ABC1234|P01|BR-101|120|NORTE"))
	first.Put("EIXO", mustDecode(t, "EIXO|2024-01-15|09:00:00|EIX0001|P02|SP-310|10|SUL"))

	if len(mirror.entries) != 2 {
		t.Fatalf("expected mirror write-through, got %d entries", len(mirror.entries))
	}

	// рестарт: новый процесс успел получить свежий CART до прогрева
	restarted := NewLatestStore(mirror, zap.NewNop())
	fresh := mustDecode(t, "CART|2024-01-15|10:00:00|NEW0001|P01|BR-101|120|NORTE")
	restarted.m.Store("CART", fresh)

	if err := restarted.Warmup(context.Background()); err != nil {
		t.Fatalf("warmup: %v", err)
	}
	cart, _ := restarted.Get("CART")
	if cart.Plate != "NEW0001" {
		t.Fatalf("warmup must not overwrite live data, got %s", cart.Plate)
	}
	if _, ok := restarted.Get("EIXO"); !ok {
		t.Fatal("expected EIXO restored from mirror")
	}
}

func TestLatestStore_MirrorFailureKeepsL1(t *testing.T) {
	mirror := &memMirror{entries: map[string]domain.RadarRecord{}, failing: true}
	s := NewLatestStore(mirror, zap.NewNop())
	s.Put("CART", mustDecode(t, "CART|2024-01-15|08:30:00|ABC1234|P01|BR-101|120|NORTE"))

	if _, ok := s.Get("CART"); !ok {
		t.Fatal("L1 must be updated even when mirror fails")
	}
}

func TestLatestStore_SnapshotConcurrentWithWrites(t *testing.T) {
	s := NewLatestStore(nil, zap.NewNop())
	rec := mustDecode(t, "CART|2024-01-15|08:30:00|ABC1234|P01|BR-101|120|NORTE")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for range 1000 {
			s.Put("CART", rec)
		}
	}()
	for range 100 {
		if snap := s.Snapshot(); len(snap) > 1 {
			t.Errorf("expected at most one record, got %d", len(snap))
		}
	}
	wg.Wait()
}

package engine

import (
	"time"

	"github.com/xela07ax/radar-bff/internal/connectors"
	"github.com/xela07ax/radar-bff/internal/domain"
	"github.com/xela07ax/radar-bff/internal/infra"
	"github.com/xela07ax/radar-bff/internal/registry"
	"go.uber.org/zap"
)

func testBreakerConfig() infra.BreakerConfig {
	return infra.BreakerConfig{
		WindowSize:       100,
		MinCalls:         5,
		FailureRate:      0.5,
		SlowCallRate:     0.5,
		SlowCallDuration: 5 * time.Second,
		OpenTimeout:      30 * time.Second,
		HalfOpenCalls:    3,
	}
}

func testFanoutConfig() infra.FanoutConfig {
	return infra.FanoutConfig{
		Parallelism:    10,
		CallTimeout:    2 * time.Second,
		RequestTimeout: 3 * time.Second,
		MergeStrategy:  MergeTopK,
		MaxProbeSize:   2000,
	}
}

func testRegistry(names ...string) *registry.Registry {
	src := make(map[string]infra.SourceConfig, len(names))
	for _, n := range names {
		src[n] = infra.SourceConfig{URL: "http://" + n}
	}
	return registry.New(src, zap.NewNop())
}

// makeRecords строит n записей, от start назад с шагом step (уже отсортированы desc).
func makeRecords(source string, n int, start time.Time, step time.Duration) []domain.RadarRecord {
	out := make([]domain.RadarRecord, 0, n)
	for i := range n {
		ts := start.Add(-time.Duration(i) * step)
		out = append(out, record(source, ts))
	}
	return out
}

func record(source string, ts time.Time) domain.RadarRecord {
	d := domain.LocalDate{Time: time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)}
	tm := domain.LocalTime{Time: time.Date(0, 1, 1, ts.Hour(), ts.Minute(), ts.Second(), 0, time.UTC)}
	return domain.RadarRecord{
		Date:       &d,
		Time:       &tm,
		Plate:      "ABC1234",
		Highway:    "BR-101",
		SourceName: source,
	}
}

func newMock() *connectors.MockSource { return connectors.NewMockSource() }

var baseTime = time.Date(2024, 1, 15, 23, 0, 0, 0, time.UTC)

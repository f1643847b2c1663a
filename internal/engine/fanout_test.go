package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xela07ax/radar-bff/internal/domain"
	"github.com/xela07ax/radar-bff/internal/infra"
	"go.uber.org/zap"
)

func newTestExecutor(mock SourceClient, cfg func(*testEnv), sources ...string) (*Executor, *BreakerRegistry) {
	env := &testEnv{fanout: testFanoutConfig(), breaker: testBreakerConfig()}
	if cfg != nil {
		cfg(env)
	}
	m := NewMetrics(nil)
	breakers := NewBreakerRegistry(env.breaker, m, zap.NewNop())
	return NewExecutor(testRegistry(sources...), mock, breakers, m, env.fanout, zap.NewNop()), breakers
}

type testEnv struct {
	fanout  infra.FanoutConfig
	breaker infra.BreakerConfig
}

func openCircuit(t *testing.T, breakers *BreakerRegistry, source string) {
	t.Helper()
	b := breakers.For(source)
	for range 5 {
		_, _ = b.Execute(context.Background(), func(context.Context) (any, error) { return nil, errBoom })
	}
	if _, err := b.Execute(context.Background(), func(context.Context) (any, error) { return nil, nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("precondition: expected %s open, got %v", source, err)
	}
}

func TestQuery_OpenCircuitSourceContributesNothing(t *testing.T) {
	mock := newMock()
	mock.SetRecords("s1", makeRecords("S1", 200, baseTime, time.Second))
	mock.SetRecords("s2", makeRecords("S2", 50, baseTime, time.Second))

	exec, breakers := newTestExecutor(mock, nil, "s1", "s2")
	openCircuit(t, breakers, "s2")

	res, outcomes := exec.Query(context.Background(), domain.FilterQuery{PageNumber: 0, PageSize: 20})

	if len(res.Content) != 20 {
		t.Fatalf("expected 20 records, got %d", len(res.Content))
	}
	for _, r := range res.Content {
		if r.SourceName != "S1" {
			t.Fatalf("expected only S1 records, got %s", r.SourceName)
		}
	}
	if res.Page.TotalElements != 200 {
		t.Fatalf("expected totalElements 200, got %d", res.Page.TotalElements)
	}
	if res.Page.TotalPages != 10 {
		t.Fatalf("expected 10 pages, got %d", res.Page.TotalPages)
	}
	if mock.Calls("s2") != 0 {
		t.Fatalf("open circuit must not call s2, got %d calls", mock.Calls("s2"))
	}

	byName := map[string]Outcome{}
	for _, o := range outcomes {
		byName[o.Source] = o.Outcome
	}
	if byName["s1"] != OutcomeOK || byName["s2"] != OutcomeShortCircuited {
		t.Fatalf("unexpected outcomes: %+v", outcomes)
	}
	if got := Failed(outcomes); len(got) != 1 || got[0] != "s2" {
		t.Fatalf("expected failed [s2], got %v", got)
	}
}

func TestQuery_TopKIsCorrectSliceOfCombinedOrder(t *testing.T) {
	mock := newMock()
	// s1 на четных секундах, s2 на нечетных: глобальный порядок чередуется
	mock.SetRecords("s1", makeRecords("S1", 30, baseTime, 2*time.Second))
	mock.SetRecords("s2", makeRecords("S2", 30, baseTime.Add(-time.Second), 2*time.Second))

	exec, _ := newTestExecutor(mock, nil, "s1", "s2")
	res, _ := exec.Query(context.Background(), domain.FilterQuery{PageNumber: 1, PageSize: 10})

	if len(res.Content) != 10 {
		t.Fatalf("expected 10 records, got %d", len(res.Content))
	}
	want := baseTime.Add(-10 * time.Second)
	first := res.Content[0]
	if first.Time.Hour() != want.Hour() || first.Time.Minute() != want.Minute() || first.Time.Second() != want.Second() {
		t.Fatalf("expected page 1 to start at %s, got %s", want.Format("15:04:05"), first.Time)
	}
	if first.SourceName != "S1" || res.Content[1].SourceName != "S2" {
		t.Fatalf("expected interleaved sources, got %s, %s", first.SourceName, res.Content[1].SourceName)
	}
	if res.Page.TotalElements != 60 || res.Page.Number != 1 || res.Page.Size != 10 {
		t.Fatalf("unexpected metadata: %+v", res.Page)
	}
}

func TestQuery_WindowStrategyReturnsMergedWindows(t *testing.T) {
	mock := newMock()
	mock.SetRecords("s1", makeRecords("S1", 30, baseTime, 2*time.Second))
	mock.SetRecords("s2", makeRecords("S2", 30, baseTime.Add(-time.Second), 2*time.Second))

	exec, _ := newTestExecutor(mock, func(e *testEnv) { e.fanout.MergeStrategy = MergeWindow }, "s1", "s2")
	res, _ := exec.Query(context.Background(), domain.FilterQuery{PageNumber: 1, PageSize: 10})

	if len(res.Content) != 20 {
		t.Fatalf("window merge must return both windows unsliced, got %d", len(res.Content))
	}
	for i := 1; i < len(res.Content); i++ {
		if domain.CompareNewestFirst(res.Content[i-1], res.Content[i]) > 0 {
			t.Fatalf("content not sorted at %d", i)
		}
	}
}

func TestQuery_LargeProbeFallsBackToWindow(t *testing.T) {
	mock := newMock()
	mock.SetRecords("s1", makeRecords("S1", 100, baseTime, time.Second))

	exec, _ := newTestExecutor(mock, func(e *testEnv) { e.fanout.MaxProbeSize = 15 }, "s1")
	res, _ := exec.Query(context.Background(), domain.FilterQuery{PageNumber: 1, PageSize: 10})

	if len(res.Content) != 10 {
		t.Fatalf("expected the caller's window from s1, got %d", len(res.Content))
	}
	if res.Content[0].Time.Second() != baseTime.Add(-10*time.Second).Second() {
		t.Fatalf("expected page 1 window, got %s", res.Content[0].Time)
	}
}

func TestQuery_UnknownSourcesAreDropped(t *testing.T) {
	mock := newMock()
	exec, _ := newTestExecutor(mock, nil, "s1")

	res, outcomes := exec.Query(context.Background(), domain.FilterQuery{Sources: []string{"nope"}, PageSize: 20})
	if len(res.Content) != 0 || res.Page.TotalElements != 0 || res.Page.TotalPages != 0 {
		t.Fatalf("expected empty page, got %+v", res)
	}
	if res.Content == nil {
		t.Fatal("content must be an empty slice, not nil")
	}
	if len(outcomes) != 0 {
		t.Fatalf("expected no outcomes, got %+v", outcomes)
	}
	if mock.Calls("s1") != 0 {
		t.Fatal("no source should be called")
	}
}

func TestQuery_StuckSourceIsBoundedByCallTimeout(t *testing.T) {
	mock := newMock()
	mock.SetRecords("fast", makeRecords("FAST", 5, baseTime, time.Second))
	mock.SetRecords("stuck", makeRecords("STUCK", 5, baseTime, time.Second))
	mock.SetLatency("stuck", 5*time.Second)

	exec, _ := newTestExecutor(mock, func(e *testEnv) { e.fanout.CallTimeout = 50 * time.Millisecond }, "fast", "stuck")

	start := time.Now()
	res, outcomes := exec.Query(context.Background(), domain.FilterQuery{PageSize: 20})
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("stuck source delayed the request: %v", elapsed)
	}
	if len(res.Content) != 5 || res.Page.TotalElements != 5 {
		t.Fatalf("expected fast source results only, got %d/%d", len(res.Content), res.Page.TotalElements)
	}
	for _, o := range outcomes {
		if o.Source == "stuck" && o.Outcome != OutcomeTimeout {
			t.Fatalf("expected timeout outcome, got %s", o.Outcome)
		}
	}
}

func TestQuery_FailedSourceYieldsEmptyPage(t *testing.T) {
	mock := newMock()
	mock.SetRecords("s1", makeRecords("S1", 3, baseTime, time.Second))
	mock.Fail("s2", errBoom)

	exec, _ := newTestExecutor(mock, nil, "s1", "s2")
	res, outcomes := exec.Query(context.Background(), domain.FilterQuery{PageSize: 20})

	if res.Page.TotalElements != 3 || len(res.Content) != 3 {
		t.Fatalf("expected 3 records from s1, got %+v", res.Page)
	}
	for _, o := range outcomes {
		if o.Source == "s2" && o.Outcome != OutcomeFailed {
			t.Fatalf("expected failed outcome for s2, got %s", o.Outcome)
		}
	}
}

package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

var errBoom = errors.New("boom")

func newTestBreaker() *SourceBreaker {
	return NewBreakerRegistry(testBreakerConfig(), nil, zap.NewNop()).For("s1")
}

func run(b *SourceBreaker, err error, calls *int) error {
	_, got := b.Execute(context.Background(), func(context.Context) (any, error) {
		*calls++
		return "ok", err
	})
	return got
}

func TestBreaker_OpensAfterThreeOfFiveFailures(t *testing.T) {
	b := newTestBreaker()
	calls := 0

	for _, err := range []error{nil, nil, errBoom, errBoom, errBoom} {
		_ = run(b, err, &calls)
	}
	if b.State() != gobreaker.StateOpen {
		t.Fatalf("expected open after 3/5 failures, got %s", b.State())
	}

	err := run(b, nil, &calls)
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if calls != 5 {
		t.Fatalf("6th call must not reach the source, got %d calls", calls)
	}
}

func TestBreaker_BreachAfterSuccessShortCircuitsNextCall(t *testing.T) {
	b := newTestBreaker()
	calls := 0

	// 3 отказа до набора минимума, окно нарушается на 5-м (успешном) вызове
	for _, err := range []error{errBoom, errBoom, errBoom, nil, nil} {
		_ = run(b, err, &calls)
	}
	if b.State() != gobreaker.StateClosed {
		t.Fatalf("expected still closed right after the 5th success, got %s", b.State())
	}

	err := run(b, nil, &calls)
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected 6th call short-circuited, got %v", err)
	}
	if calls != 5 {
		t.Fatalf("expected no network call on 6th attempt, got %d calls", calls)
	}
	if b.State() != gobreaker.StateOpen {
		t.Fatalf("expected open, got %s", b.State())
	}
}

func TestBreaker_BelowMinimumCallsStaysClosed(t *testing.T) {
	b := newTestBreaker()
	calls := 0
	for range 4 {
		_ = run(b, errBoom, &calls)
	}
	if b.State() != gobreaker.StateClosed {
		t.Fatalf("expected closed below min calls, got %s", b.State())
	}
}

func TestBreaker_HalfOpenClosesAfterSuccessfulTrials(t *testing.T) {
	cfg := testBreakerConfig()
	cfg.OpenTimeout = 50 * time.Millisecond
	b := NewBreakerRegistry(cfg, nil, zap.NewNop()).For("s1")
	calls := 0

	for range 5 {
		_ = run(b, errBoom, &calls)
	}
	if b.State() != gobreaker.StateOpen {
		t.Fatalf("expected open, got %s", b.State())
	}

	time.Sleep(80 * time.Millisecond)
	if b.State() != gobreaker.StateHalfOpen {
		t.Fatalf("expected half-open after cool-down, got %s", b.State())
	}

	for i := range 3 {
		if err := run(b, nil, &calls); err != nil {
			t.Fatalf("trial %d: unexpected error %v", i, err)
		}
	}
	if b.State() != gobreaker.StateClosed {
		t.Fatalf("expected closed after 3 good trials, got %s", b.State())
	}

	// счетчики сброшены: снова нужно набрать минимум вызовов
	for range 4 {
		_ = run(b, errBoom, &calls)
	}
	if b.State() != gobreaker.StateClosed {
		t.Fatalf("expected counters reset on close, got %s", b.State())
	}
}

// openThenCoolDown открывает цепь пятью отказами и ждет перехода в half-open.
func openThenCoolDown(t *testing.T, calls *int) *SourceBreaker {
	t.Helper()
	cfg := testBreakerConfig()
	cfg.OpenTimeout = 50 * time.Millisecond
	b := NewBreakerRegistry(cfg, nil, zap.NewNop()).For("s1")

	for range 5 {
		_ = run(b, errBoom, calls)
	}
	if b.State() != gobreaker.StateOpen {
		t.Fatalf("expected open, got %s", b.State())
	}
	time.Sleep(80 * time.Millisecond)
	if b.State() != gobreaker.StateHalfOpen {
		t.Fatalf("expected half-open after cool-down, got %s", b.State())
	}
	return b
}

func TestBreaker_HalfOpenOneFailedTrialOfThreeCloses(t *testing.T) {
	calls := 0
	b := openThenCoolDown(t, &calls)

	for i, err := range []error{nil, errBoom, nil} {
		got := run(b, err, &calls)
		if !errors.Is(got, err) {
			t.Fatalf("trial %d: expected %v for the caller, got %v", i, err, got)
		}
		if i < 2 && b.State() != gobreaker.StateHalfOpen {
			t.Fatalf("trial %d: decision must wait for all trials, got %s", i, b.State())
		}
	}
	if b.State() != gobreaker.StateClosed {
		t.Fatalf("expected closed at 33%% failed trials, got %s", b.State())
	}
}

func TestBreaker_HalfOpenTwoFailedTrialsOfThreeReopens(t *testing.T) {
	calls := 0
	b := openThenCoolDown(t, &calls)

	for _, err := range []error{errBoom, nil, errBoom} {
		_ = run(b, err, &calls)
	}
	if b.State() != gobreaker.StateOpen {
		t.Fatalf("expected reopen at 67%% failed trials, got %s", b.State())
	}
	if err := run(b, nil, &calls); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen after reopen, got %v", err)
	}
}

func TestBreaker_HalfOpenIgnoresCanceledCallers(t *testing.T) {
	calls := 0
	b := openThenCoolDown(t, &calls)
	before := calls

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for range 3 {
		_, err := b.Execute(ctx, func(context.Context) (any, error) {
			calls++
			return "ok", nil
		})
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	}
	if calls != before {
		t.Fatalf("canceled callers must not reach the source, got %d calls", calls-before)
	}
	if b.State() != gobreaker.StateHalfOpen {
		t.Fatalf("expected still half-open without real trials, got %s", b.State())
	}

	// слоты проб свободны для настоящих вызовов
	for range 3 {
		if err := run(b, nil, &calls); err != nil {
			t.Fatalf("unexpected trial error %v", err)
		}
	}
	if b.State() != gobreaker.StateClosed {
		t.Fatalf("expected closed after genuine trials, got %s", b.State())
	}
}

func TestBreaker_SlowCallsOpenCircuit(t *testing.T) {
	cfg := testBreakerConfig()
	cfg.SlowCallDuration = 10 * time.Millisecond
	b := NewBreakerRegistry(cfg, nil, zap.NewNop()).For("s1")

	for i := range 5 {
		v, err := b.Execute(context.Background(), func(context.Context) (any, error) {
			time.Sleep(15 * time.Millisecond)
			return "late", nil
		})
		if err != nil {
			t.Fatalf("slow call %d must still succeed for the caller, got %v", i, err)
		}
		if v != "late" {
			t.Fatalf("slow call %d lost its result: %v", i, v)
		}
	}
	if b.State() != gobreaker.StateOpen {
		t.Fatalf("expected open after slow calls, got %s", b.State())
	}
}

func TestBreaker_CallerCancellationIsNotAFailure(t *testing.T) {
	b := newTestBreaker()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for range 10 {
		_, _ = b.Execute(ctx, func(ctx context.Context) (any, error) {
			return nil, ctx.Err()
		})
	}
	if b.State() != gobreaker.StateClosed {
		t.Fatalf("expected closed, got %s", b.State())
	}
}

func TestBreaker_RequestDeadlineIsNotAFailure(t *testing.T) {
	b := newTestBreaker()

	for range 10 {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
		_, err := b.Execute(ctx, func(ctx context.Context) (any, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		})
		cancel()
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("expected DeadlineExceeded for the caller, got %v", err)
		}
	}
	if b.State() != gobreaker.StateClosed {
		t.Fatalf("expired request deadline must not trip the source, got %s", b.State())
	}
}

func TestBreaker_CallTimeoutIsAFailure(t *testing.T) {
	b := newTestBreaker()

	for range 5 {
		_, _ = b.Execute(context.Background(), func(ctx context.Context) (any, error) {
			callCtx, cancel := context.WithTimeout(ctx, time.Millisecond)
			defer cancel()
			<-callCtx.Done()
			return nil, callCtx.Err()
		})
	}
	if b.State() != gobreaker.StateOpen {
		t.Fatalf("expected per-call timeouts to open the circuit, got %s", b.State())
	}
}

func TestBreakerRegistry_IndependentSources(t *testing.T) {
	reg := NewBreakerRegistry(testBreakerConfig(), nil, zap.NewNop())
	calls := 0
	for range 5 {
		_ = run(reg.For("a"), errBoom, &calls)
	}
	if reg.For("a").State() != gobreaker.StateOpen {
		t.Fatal("expected a open")
	}
	if reg.For("b").State() != gobreaker.StateClosed {
		t.Fatal("b must not be affected by a")
	}
	if reg.For("a") != reg.For("a") {
		t.Fatal("registry must return the same breaker per source")
	}
	if got := reg.States()["a"]; got != "open" {
		t.Fatalf("expected states snapshot open, got %q", got)
	}
}

func TestCall_Typed(t *testing.T) {
	b := newTestBreaker()
	n, err := Call(context.Background(), b, func(context.Context) (int, error) { return 42, nil })
	if err != nil || n != 42 {
		t.Fatalf("expected 42, got %d (%v)", n, err)
	}
}

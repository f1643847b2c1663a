package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker"
	"github.com/xela07ax/radar-bff/internal/infra"
	"go.uber.org/zap"
)

// ErrCircuitOpen: вызов отклонен предохранителем без обращения к источнику.
var ErrCircuitOpen = errors.New("circuit open")

// errSlowCall помечает успешный, но медленный вызов как отказ для gobreaker.
// Наружу не выходит.
var errSlowCall = errors.New("slow call")

// errTrialsBreached: пробные вызовы полуоткрытой цепи нарушили пороги.
var errTrialsBreached = errors.New("half-open trials breached thresholds")

// SourceBreaker: предохранитель одного источника.
// Состояния ведет gobreaker, пороги считаются по собственному окну исходов:
// gobreaker не умеет ни slow-call rate, ни процент отказов по окну.
type SourceBreaker struct {
	name   string
	cfg    infra.BreakerConfig
	cb     *gobreaker.CircuitBreaker
	win    *outcomeWindow
	logger *zap.Logger

	halfOpen uint32
	// trials: завершенные пробы текущего полуоткрытого периода.
	trials atomic.Uint32

	// tripPending: окно нарушено после успешного вызова, следующий вызов откроет цепь.
	tripPending atomic.Bool
}

func newSourceBreaker(name string, cfg infra.BreakerConfig, m *Metrics, logger *zap.Logger) *SourceBreaker {
	b := &SourceBreaker{
		name:   name,
		cfg:    cfg,
		win:    newOutcomeWindow(cfg.WindowSize),
		logger: logger.With(zap.String("source", name)),
	}

	halfOpen := cfg.HalfOpenCalls
	if halfOpen == 0 {
		halfOpen = 1
	}
	b.halfOpen = halfOpen

	b.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: halfOpen,
		Interval:    0, // счетчики gobreaker не используются, окно свое
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(gobreaker.Counts) bool {
			return b.breached()
		},
		OnStateChange: func(_ string, from, to gobreaker.State) {
			b.win.reset()
			b.tripPending.Store(false)
			b.trials.Store(0)
			m.CircuitBreakerState.WithLabelValues(name).Set(stateValue(to))
			b.logger.Warn("circuit state changed",
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	m.CircuitBreakerState.WithLabelValues(name).Set(0)
	return b
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateOpen:
		return 1
	case gobreaker.StateHalfOpen:
		return 2
	default:
		return 0
	}
}

func (b *SourceBreaker) breached() bool {
	calls, failures, slows := b.win.snapshot()
	if calls == 0 || calls < b.cfg.MinCalls {
		return false
	}
	if float64(failures)/float64(calls) >= b.cfg.FailureRate {
		return true
	}
	return b.cfg.SlowCallRate > 0 && float64(slows)/float64(calls) >= b.cfg.SlowCallRate
}

func (b *SourceBreaker) Name() string { return b.name }

func (b *SourceBreaker) State() gobreaker.State { return b.cb.State() }

// trialsBreached: решение по итогам проб. Минимум вызовов не применяется,
// без единого настоящего ответа цепь остается открытой.
func (b *SourceBreaker) trialsBreached() bool {
	calls, failures, slows := b.win.snapshot()
	if calls == 0 {
		return true
	}
	if float64(failures)/float64(calls) >= b.cfg.FailureRate {
		return true
	}
	return b.cfg.SlowCallRate > 0 && float64(slows)/float64(calls) >= b.cfg.SlowCallRate
}

// settleTrial учитывает пробу полуоткрытой цепи. Пока не завершены все
// half_open_calls проб, gobreaker видит успех; последняя проба закрывает
// или снова открывает цепь по порогам окна.
func (b *SourceBreaker) settleTrial(aborted, failed, slow bool) error {
	if !aborted {
		b.win.record(failed, slow)
	}
	if b.trials.Add(1) < b.halfOpen {
		return nil
	}
	if b.trialsBreached() {
		return errTrialsBreached
	}
	return nil
}

// Execute прогоняет fn через предохранитель.
// Отказ по открытой цепи возвращается как ErrCircuitOpen.
// Прерывание вызывающей стороной (отмена или общий дедлайн запроса)
// не считается ни успехом, ни отказом источника.
func (b *SourceBreaker) Execute(ctx context.Context, fn func(context.Context) (any, error)) (any, error) {
	// уже прерванный вызов не занимает пробный слот
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		v       any
		callErr error
		ran     bool
	)
	_, verdict := b.cb.Execute(func() (any, error) {
		trial := b.cb.State() == gobreaker.StateHalfOpen
		if !trial && b.tripPending.CompareAndSwap(true, false) && b.breached() {
			return nil, fmt.Errorf("%w: %s", ErrCircuitOpen, b.name)
		}

		ran = true
		start := time.Now()
		v, callErr = fn(ctx)
		elapsed := time.Since(start)

		// ctx общий для запроса, таймаут одного вызова живет внутри fn
		aborted := callErr != nil && ctx.Err() != nil
		slow := b.cfg.SlowCallDuration > 0 && elapsed >= b.cfg.SlowCallDuration

		if trial {
			return nil, b.settleTrial(aborted, callErr != nil, slow)
		}
		if aborted {
			return nil, nil
		}
		b.win.record(callErr != nil, slow)
		if callErr != nil {
			return nil, callErr
		}
		if slow {
			return nil, errSlowCall
		}
		return nil, nil
	})

	switch {
	case errors.Is(verdict, gobreaker.ErrOpenState), errors.Is(verdict, gobreaker.ErrTooManyRequests):
		return nil, fmt.Errorf("%w: %s (%v)", ErrCircuitOpen, b.name, verdict)
	case !ran:
		return nil, verdict
	case callErr != nil:
		return nil, callErr
	}

	if b.cb.State() == gobreaker.StateClosed && b.breached() {
		b.tripPending.Store(true)
	}
	return v, nil
}

// Call: типизированная обертка над SourceBreaker.Execute.
func Call[T any](ctx context.Context, b *SourceBreaker, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	v, err := b.Execute(ctx, func(ctx context.Context) (any, error) {
		return fn(ctx)
	})
	if err != nil {
		return zero, err
	}
	out, ok := v.(T)
	if !ok {
		return zero, nil
	}
	return out, nil
}

// BreakerRegistry: независимые предохранители по имени источника.
// Внедряется зависимостью, глобального состояния нет.
type BreakerRegistry struct {
	mu       sync.Mutex
	cfg      infra.BreakerConfig
	metrics  *Metrics
	logger   *zap.Logger
	breakers map[string]*SourceBreaker
}

func NewBreakerRegistry(cfg infra.BreakerConfig, m *Metrics, logger *zap.Logger) *BreakerRegistry {
	if m == nil {
		m = NewMetrics(nil)
	}
	return &BreakerRegistry{
		cfg:      cfg,
		metrics:  m,
		logger:   logger.Named("breaker"),
		breakers: make(map[string]*SourceBreaker),
	}
}

// For возвращает предохранитель источника, создавая его при первом обращении.
func (r *BreakerRegistry) For(source string) *SourceBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.breakers[source]
	if !ok {
		b = newSourceBreaker(source, r.cfg, r.metrics, r.logger)
		r.breakers[source] = b
	}
	return b
}

// States: снимок состояний для /health.
func (r *BreakerRegistry) States() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]string, len(r.breakers))
	for name, b := range r.breakers {
		out[name] = b.State().String()
	}
	return out
}

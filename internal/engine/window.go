package engine

import "sync"

type callOutcome struct {
	failed bool
	slow   bool
}

// outcomeWindow: скользящее окно последних N исходов вызовов (count-based).
type outcomeWindow struct {
	mu       sync.Mutex
	ring     []callOutcome
	next     int
	count    int
	failures int
	slows    int
}

func newOutcomeWindow(size int) *outcomeWindow {
	if size <= 0 {
		size = 100
	}
	return &outcomeWindow{ring: make([]callOutcome, size)}
}

func (w *outcomeWindow) record(failed, slow bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.count == len(w.ring) {
		old := w.ring[w.next]
		if old.failed {
			w.failures--
		}
		if old.slow {
			w.slows--
		}
	} else {
		w.count++
	}

	w.ring[w.next] = callOutcome{failed: failed, slow: slow}
	w.next = (w.next + 1) % len(w.ring)
	if failed {
		w.failures++
	}
	if slow {
		w.slows++
	}
}

func (w *outcomeWindow) snapshot() (calls, failures, slows int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count, w.failures, w.slows
}

func (w *outcomeWindow) reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	clear(w.ring)
	w.next, w.count, w.failures, w.slows = 0, 0, 0, 0
}

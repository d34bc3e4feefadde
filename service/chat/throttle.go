package chat

import (
	"sync"
	"time"
)

// Window is a "at most once per window" gate: key -> last accepted time. The
// gateway runs four independent instances (presence, typing, join/leave,
// message dedupe) with disjoint key spaces.
type Window struct {
	mu    sync.Mutex
	last  map[string]time.Time
	clock func() time.Time
}

func NewWindow(clock func() time.Time) *Window {
	if clock == nil {
		clock = time.Now
	}
	return &Window{last: make(map[string]time.Time), clock: clock}
}

// TryAccept accepts and refreshes the entry if none exists or the previous
// acceptance is older than window. A delta exactly at the boundary is still
// throttled. Throttled calls do not mutate state.
func (w *Window) TryAccept(key string, window time.Duration) bool {
	now := w.clock()
	w.mu.Lock()
	defer w.mu.Unlock()

	if prev, ok := w.last[key]; ok && now.Sub(prev) <= window {
		return false
	}
	w.last[key] = now
	return true
}

// Forget drops the entry so the next TryAccept for key succeeds.
func (w *Window) Forget(key string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.last, key)
}

// Sweep removes entries older than maxAge and returns how many were dropped.
func (w *Window) Sweep(maxAge time.Duration) int {
	now := w.clock()
	w.mu.Lock()
	defer w.mu.Unlock()

	n := 0
	for k, t := range w.last {
		if now.Sub(t) > maxAge {
			delete(w.last, k)
			n++
		}
	}
	return n
}

func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.last)
}

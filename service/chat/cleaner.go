package chat

import (
	"sync"
	"time"

	"github.com/TienThuan29/FreelanceIT-App-sub003/logger"
)

// Cleaner is the recurring background task that bounds transient-state
// memory: on each tick it evicts stale throttle/dedupe entries and drops
// zero-count connection bookkeeping. It is the only unconditionally-running
// background task and is a no-op on empty state.
type Cleaner struct {
	interval time.Duration
	maxAge   time.Duration

	windows  []*Window
	registry *Registry

	clock     func() time.Time
	stopCh    chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once
	done      chan struct{}
}

func NewCleaner(interval, maxAge time.Duration, registry *Registry, windows ...*Window) *Cleaner {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	if maxAge <= 0 {
		maxAge = 10 * time.Minute
	}
	return &Cleaner{
		interval: interval,
		maxAge:   maxAge,
		windows:  windows,
		registry: registry,
		clock:    time.Now,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (cl *Cleaner) Start() {
	cl.startOnce.Do(func() { go cl.loop() })
}

// Stop is safe to call whether or not Start ran.
func (cl *Cleaner) Stop() {
	cl.stopOnce.Do(func() { close(cl.stopCh) })
	cl.startOnce.Do(func() { close(cl.done) })
	<-cl.done
}

func (cl *Cleaner) loop() {
	defer close(cl.done)
	t := time.NewTicker(cl.interval)
	defer t.Stop()
	for {
		select {
		case <-cl.stopCh:
			return
		case <-t.C:
			cl.sweepOnce()
		}
	}
}

func (cl *Cleaner) sweepOnce() {
	swept := 0
	for _, w := range cl.windows {
		swept += w.Sweep(cl.maxAge)
	}
	users := 0
	if cl.registry != nil {
		users = cl.registry.SweepZero()
	}
	if swept > 0 || users > 0 {
		logger.Debug("[cleaner] swept stale state")
	}
}

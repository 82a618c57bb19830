package loader

import (
	"context"
	"sync"
)

// gauge is the advisory memory accountant of the pipeline. Acquire blocks
// while admitting more bytes would exceed the limit, but always admits
// work when nothing is in flight, so a single oversized file cannot wedge
// the pool.
type gauge struct {
	mu    sync.Mutex
	cond  *sync.Cond
	used  int64
	limit int64
}

func newGauge(limit int64) *gauge {
	g := &gauge{limit: limit}
	g.cond = sync.NewCond(&g.mu)
	return g
}

// watch wakes blocked acquirers when ctx is cancelled. The returned stop
// function releases the watcher.
func (g *gauge) watch(ctx context.Context) (stop func()) {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			g.mu.Lock()
			g.cond.Broadcast()
			g.mu.Unlock()
		case <-done:
		}
	}()
	return func() { close(done) }
}

func (g *gauge) acquire(ctx context.Context, n int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for g.used > 0 && g.used+n > g.limit {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		g.cond.Wait()
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	g.used += n
	return nil
}

func (g *gauge) release(n int64) {
	g.mu.Lock()
	g.used -= n
	g.mu.Unlock()
	g.cond.Broadcast()
}

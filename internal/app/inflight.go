package service

import (
	"context"
	"sync"
)

// inflight counts batches queued but not yet applied, per session, so a
// finish can wait for them. A session being finished is closed: add refuses
// new batches for it, so nothing can slip in between the wait and the
// matcher's Finish.
type inflight struct {
	mu      sync.Mutex
	counts  map[string]int
	closed  map[string]struct{}
	changed chan struct{}
}

func newInflight() *inflight {
	return &inflight{
		counts:  make(map[string]int),
		closed:  make(map[string]struct{}),
		changed: make(chan struct{}),
	}
}

// add reserves a slot for one batch. It returns false once id is closed.
func (f *inflight) add(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.closed[id]; ok {
		return false
	}
	f.counts[id]++
	return true
}

func (f *inflight) done(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.counts[id] <= 1 {
		delete(f.counts, id)
	} else {
		f.counts[id]--
	}
	close(f.changed)
	f.changed = make(chan struct{})
}

// close stops id from taking new batches and waits for those already added.
func (f *inflight) close(ctx context.Context, id string) error {
	f.mu.Lock()
	f.closed[id] = struct{}{}
	f.mu.Unlock()
	return f.wait(ctx, id)
}

// reopen undoes close, for a finish that gave up before completing.
func (f *inflight) reopen(id string) {
	f.mu.Lock()
	delete(f.closed, id)
	f.mu.Unlock()
}

// wait blocks until id has no batches in flight.
func (f *inflight) wait(ctx context.Context, id string) error {
	for {
		f.mu.Lock()
		if f.counts[id] == 0 {
			f.mu.Unlock()
			return nil
		}
		ch := f.changed
		f.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

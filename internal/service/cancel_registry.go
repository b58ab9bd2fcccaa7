package service

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// runRegistry tracks the cancel funcs of in-flight processing runs.
type runRegistry struct {
	mu   sync.Mutex
	runs map[uuid.UUID]context.CancelFunc
}

func newRunRegistry() *runRegistry {
	return &runRegistry{runs: make(map[uuid.UUID]context.CancelFunc)}
}

// start derives a cancelable context for id. The returned release func must
// be called when the run ends.
func (r *runRegistry) start(ctx context.Context, id uuid.UUID) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.runs[id] = cancel
	r.mu.Unlock()
	return ctx, func() {
		r.mu.Lock()
		delete(r.runs, id)
		r.mu.Unlock()
		cancel()
	}
}

// cancel stops the run for id, if any, and reports whether one was found.
func (r *runRegistry) cancel(id uuid.UUID) bool {
	r.mu.Lock()
	cancel, ok := r.runs[id]
	r.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

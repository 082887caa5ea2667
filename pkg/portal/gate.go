package portal

import (
	"context"
	"sync"
)

// UsageGate is the single process-wide exclusion point between foreground
// automation (downloads) and background keep-alive navigation.
//
// Acquire blocks and is used by foreground work. TryAcquire never blocks and
// is used by the keep-alive, which skips its turn instead of waiting.
// Both return a release function that is safe to call more than once.
type UsageGate struct {
	slot chan struct{}

	mu     sync.Mutex
	holder string
}

// NewUsageGate returns a clear gate.
func NewUsageGate() *UsageGate {
	return &UsageGate{slot: make(chan struct{}, 1)}
}

// Acquire waits until the gate is clear or ctx is done.
func (g *UsageGate) Acquire(ctx context.Context, holder string) (func(), error) {
	select {
	case g.slot <- struct{}{}:
		return g.hold(holder), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// TryAcquire takes the gate only if it is clear.
func (g *UsageGate) TryAcquire(holder string) (func(), bool) {
	select {
	case g.slot <- struct{}{}:
		return g.hold(holder), true
	default:
		return nil, false
	}
}

// Busy reports whether the gate is held.
func (g *UsageGate) Busy() bool {
	return len(g.slot) > 0
}

// Holder returns the name passed by the current holder, or "".
func (g *UsageGate) Holder() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.holder
}

func (g *UsageGate) hold(holder string) func() {
	g.mu.Lock()
	g.holder = holder
	g.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			g.holder = ""
			g.mu.Unlock()
			<-g.slot
		})
	}
}

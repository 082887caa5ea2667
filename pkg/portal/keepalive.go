package portal

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/entrhq/portalkeeper/pkg/browser"
	"github.com/entrhq/portalkeeper/pkg/logging"
)

// Keep-alive defaults
const (
	DefaultKeepAliveInterval = 90 * time.Second
	DefaultFallbackInterval  = 60 * time.Second
	DefaultStepDelay         = 2 * time.Second
)

// KeepAliveConfig configures the periodic navigation.
type KeepAliveConfig struct {
	PrimaryURL       string
	SecondaryURL     string
	Interval         time.Duration
	FallbackInterval time.Duration
	StepDelay        time.Duration
}

func (c KeepAliveConfig) withDefaults() KeepAliveConfig {
	if c.Interval <= 0 {
		c.Interval = DefaultKeepAliveInterval
	}
	if c.FallbackInterval <= 0 {
		c.FallbackInterval = DefaultFallbackInterval
	}
	if c.StepDelay < 0 {
		c.StepDelay = 0
	}
	return c
}

// KeepAlive runs one background task per session name that periodically
// navigates the session to keep the portal from expiring it.
//
// A tick never waits for the usage gate: when foreground work holds it, or
// when the session is not registered, the tick is skipped. Navigation errors
// are logged and followed by a longer fallback pause; only cancellation ends
// a task.
type KeepAlive struct {
	cfg      KeepAliveConfig
	registry *browser.Registry
	gate     *UsageGate
	logger   *logging.Logger
	metrics  *Metrics
	emit     EventEmitter
	sleep    SleepFunc

	mu    sync.Mutex
	tasks map[string]*keepAliveTask
}

// keepAliveTask is the record of one running or finished task.
type keepAliveTask struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func (t *keepAliveTask) finished() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// KeepAliveOption customizes a KeepAlive.
type KeepAliveOption func(*KeepAlive)

// WithKeepAliveSleep replaces the pause function.
func WithKeepAliveSleep(sleep SleepFunc) KeepAliveOption {
	return func(k *KeepAlive) {
		k.sleep = sleep
	}
}

// WithKeepAliveEvents sets the event sink.
func WithKeepAliveEvents(emit EventEmitter) KeepAliveOption {
	return func(k *KeepAlive) {
		k.emit = emit
	}
}

// WithKeepAliveMetrics sets the metrics recorder.
func WithKeepAliveMetrics(m *Metrics) KeepAliveOption {
	return func(k *KeepAlive) {
		k.metrics = m
	}
}

// NewKeepAlive creates a scheduler over registry and gate.
func NewKeepAlive(cfg KeepAliveConfig, registry *browser.Registry, gate *UsageGate, logger *logging.Logger, opts ...KeepAliveOption) *KeepAlive {
	if logger == nil {
		logger = logging.Nop()
	}
	k := &KeepAlive{
		cfg:      cfg.withDefaults(),
		registry: registry,
		gate:     gate,
		logger:   logger,
		sleep:    sleepContext,
		tasks:    make(map[string]*keepAliveTask),
	}
	for _, opt := range opts {
		opt(k)
	}
	return k
}

// Ensure starts the task for name unless one is already running.
// It reports whether a new task was started.
func (k *KeepAlive) Ensure(name string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()

	if t, ok := k.tasks[name]; ok && !t.finished() {
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &keepAliveTask{cancel: cancel, done: make(chan struct{})}
	k.tasks[name] = t

	go k.run(ctx, name, t.done)
	k.logger.Debugf("keep-alive started for %s", name)
	return true
}

// Running reports whether a task for name is alive.
func (k *KeepAlive) Running(name string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()

	t, ok := k.tasks[name]
	return ok && !t.finished()
}

// Stop cancels the task for name and waits for it to exit, or for ctx.
// The task record is dropped only once the task has exited, so Ensure
// cannot start a second task beside one that is still running.
// Stopping a name without a task is a no-op.
func (k *KeepAlive) Stop(ctx context.Context, name string) error {
	k.mu.Lock()
	t, ok := k.tasks[name]
	k.mu.Unlock()

	if !ok {
		return nil
	}

	t.cancel()
	select {
	case <-t.done:
	case <-ctx.Done():
		return fmt.Errorf("waiting for keep-alive %s to exit: %w", name, ctx.Err())
	}

	k.mu.Lock()
	if k.tasks[name] == t {
		delete(k.tasks, name)
	}
	k.mu.Unlock()

	k.logger.Debugf("keep-alive stopped for %s", name)
	return nil
}

// Done returns a channel closed when the task for name exits. It is nil
// when name has no task record.
func (k *KeepAlive) Done(name string) <-chan struct{} {
	k.mu.Lock()
	defer k.mu.Unlock()

	t, ok := k.tasks[name]
	if !ok {
		return nil
	}
	return t.done
}

// StopAll stops every task and waits for all of them.
func (k *KeepAlive) StopAll(ctx context.Context) error {
	k.mu.Lock()
	names := make([]string, 0, len(k.tasks))
	for name := range k.tasks {
		names = append(names, name)
	}
	k.mu.Unlock()

	for _, name := range names {
		if err := k.Stop(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

func (k *KeepAlive) run(ctx context.Context, name string, done chan struct{}) {
	defer close(done)

	for ctx.Err() == nil {
		if err := k.sleep(ctx, k.cfg.Interval); err != nil {
			return
		}

		err := k.tick(ctx, name)
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			return
		}

		k.logger.Warnf("keep-alive for %s failed, retrying in %s: %v", name, k.cfg.FallbackInterval, err)
		k.metrics.RecordKeepAlive(name, outcomeFailed)
		k.emit.emit(Event{Type: EventKeepAliveFailed, Session: name, Err: err})

		if err := k.sleep(ctx, k.cfg.FallbackInterval); err != nil {
			return
		}
	}
}

// tick performs one keep-alive navigation. Skips return nil.
func (k *KeepAlive) tick(ctx context.Context, name string) error {
	h, ok := k.registry.Get(name)
	if !ok {
		k.skip(name, outcomeAbsent)
		return nil
	}

	release, ok := k.gate.TryAcquire("keepalive:" + name)
	if !ok {
		k.skip(name, outcomeBusy)
		return nil
	}
	err := k.navigate(ctx, h)
	release()
	if err != nil {
		return err
	}

	k.logger.Debugf("keep-alive navigation done for %s", name)
	k.metrics.RecordKeepAlive(name, outcomeOK)
	k.emit.emit(Event{Type: EventKeepAliveTick, Session: name})
	return nil
}

// navigate visits the primary then the secondary URL, pausing after each.
func (k *KeepAlive) navigate(ctx context.Context, h browser.Handle) error {
	for _, url := range []string{k.cfg.PrimaryURL, k.cfg.SecondaryURL} {
		if err := h.Navigate(ctx, url); err != nil {
			return err
		}
		if err := k.sleep(ctx, k.cfg.StepDelay); err != nil {
			return err
		}
	}
	return nil
}

func (k *KeepAlive) skip(name, reason string) {
	k.logger.Debugf("keep-alive tick skipped for %s: %s", name, reason)
	k.metrics.RecordKeepAlive(name, reason)
	k.emit.emit(Event{Type: EventKeepAliveSkipped, Session: name, Reason: reason})
}

package portal

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/entrhq/portalkeeper/pkg/browser"
)

// fakeHandle is a browser.Handle that records every primitive call.
// Behaviour is scripted through the optional hook functions.
type fakeHandle struct {
	name string

	navigateFn func(url string) error
	clickFn    func(selector string) error
	textFn     func(selector string) (string, error)
	waitFn     func(selector string) error
	downloadFn func(selector, dest string) error
	closeErr   error

	mu         sync.Mutex
	calls      []string
	closeCount int
}

var _ browser.Handle = (*fakeHandle)(nil)

func newFakeHandle(name string) *fakeHandle {
	return &fakeHandle{name: name}
}

func (f *fakeHandle) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeHandle) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// CallsWithPrefix returns the recorded calls starting with prefix.
func (f *fakeHandle) CallsWithPrefix(prefix string) []string {
	var out []string
	for _, c := range f.Calls() {
		if strings.HasPrefix(c, prefix) {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeHandle) Closed() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closeCount
}

func (f *fakeHandle) Name() string { return f.name }

func (f *fakeHandle) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.record("navigate:" + url)
	if f.navigateFn != nil {
		return f.navigateFn(url)
	}
	return nil
}

func (f *fakeHandle) WaitVisible(ctx context.Context, selector string, _ time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.record("wait:" + selector)
	if f.waitFn != nil {
		return f.waitFn(selector)
	}
	return nil
}

func (f *fakeHandle) Fill(ctx context.Context, selector, value string, _ time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.record("fill:" + selector + "=" + value)
	return nil
}

func (f *fakeHandle) Press(ctx context.Context, selector, key string, _ time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.record("press:" + selector + ":" + key)
	return nil
}

func (f *fakeHandle) Click(ctx context.Context, selector string, _ time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.record("click:" + selector)
	if f.clickFn != nil {
		return f.clickFn(selector)
	}
	return nil
}

func (f *fakeHandle) Text(ctx context.Context, selector string, _ time.Duration) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	f.record("text:" + selector)
	if f.textFn != nil {
		return f.textFn(selector)
	}
	return "", errors.New("element not found")
}

func (f *fakeHandle) Download(ctx context.Context, selector, dest string, _ time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.record("download:" + dest)
	if f.downloadFn != nil {
		return f.downloadFn(selector, dest)
	}
	return os.WriteFile(dest, []byte("exported"), 0o600)
}

func (f *fakeHandle) Info() browser.SessionInfo {
	state := browser.StateActive
	if f.Closed() > 0 {
		state = browser.StateClosed
	}
	return browser.SessionInfo{Name: f.name, State: state}
}

func (f *fakeHandle) Close() error {
	f.mu.Lock()
	f.closeCount++
	f.mu.Unlock()
	return f.closeErr
}

// fakeLauncher hands out fakeHandles and records the options it was given.
type fakeLauncher struct {
	mu       sync.Mutex
	err      error
	prepare  func(h *fakeHandle)
	opened   []*fakeHandle
	opts     []browser.Options
	shutdown int
}

func (l *fakeLauncher) Open(name string, opts browser.Options) (browser.Handle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.opts = append(l.opts, opts)
	if l.err != nil {
		return nil, l.err
	}
	h := newFakeHandle(name)
	h.textFn = func(string) (string, error) { return DefaultMarkerText, nil }
	if l.prepare != nil {
		l.prepare(h)
	}
	l.opened = append(l.opened, h)
	return h, nil
}

func (l *fakeLauncher) Shutdown() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.shutdown++
	return nil
}

func (l *fakeLauncher) Opened() []*fakeHandle {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*fakeHandle(nil), l.opened...)
}

// eventRecorder collects events on a buffered channel.
type eventRecorder struct {
	ch chan Event
}

func newEventRecorder() *eventRecorder {
	return &eventRecorder{ch: make(chan Event, 256)}
}

func (r *eventRecorder) Emit(ev Event) {
	select {
	case r.ch <- ev:
	default:
	}
}

// next waits for the next event of type t, discarding others.
func (r *eventRecorder) next(t EventType, timeout time.Duration) (Event, bool) {
	deadline := time.After(timeout)
	for {
		select {
		case ev := <-r.ch:
			if ev.Type == t {
				return ev, true
			}
		case <-deadline:
			return Event{}, false
		}
	}
}

// noSleep returns immediately unless ctx is done.
func noSleep(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}

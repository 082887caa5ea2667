package portal

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/entrhq/portalkeeper/pkg/browser"
	"github.com/entrhq/portalkeeper/pkg/config"
	"github.com/entrhq/portalkeeper/pkg/credentials"
	"github.com/entrhq/portalkeeper/pkg/logging"
)

// DirResolver supplies the download directory when a caller gives none.
type DirResolver func(session string) string

// Deps are the collaborators an Engine is built from.
type Deps struct {
	Launcher    Launcher
	Credentials credentials.Provider

	// Broker resolves second-factor confirmations; required when the
	// configuration asks for confirmation.
	Broker *ConfirmationBroker

	// ResolveDir defaults to the configured download directory
	ResolveDir DirResolver

	Logger  *logging.Logger
	Metrics *Metrics
	Events  EventEmitter
}

// Engine owns the session registry, usage gate, keep-alive scheduler and
// workflows of one process, and exposes the caller-facing operations.
type Engine struct {
	registry   *browser.Registry
	gate       *UsageGate
	keepAlive  *KeepAlive
	login      *LoginWorkflow
	download   *DownloadWorkflow
	launcher   Launcher
	resolveDir DirResolver

	keepAliveEnabled bool

	logger  *logging.Logger
	metrics *Metrics
	emit    EventEmitter

	mu        sync.Mutex
	nameLocks map[string]*sync.Mutex
}

// New builds an Engine from cfg.
func New(cfg *config.Config, deps Deps) *Engine {
	logger := deps.Logger
	if logger == nil {
		logger = logging.Nop()
	}

	registry := browser.NewRegistry()
	gate := NewUsageGate()

	resolveDir := deps.ResolveDir
	if resolveDir == nil {
		dir := cfg.Download.Dir
		resolveDir = func(string) string { return dir }
	}

	return &Engine{
		registry: registry,
		gate:     gate,
		keepAlive: NewKeepAlive(keepAliveConfig(cfg), registry, gate, logger.With("component", "keepalive"),
			WithKeepAliveEvents(deps.Events),
			WithKeepAliveMetrics(deps.Metrics),
		),
		login: NewLoginWorkflow(loginConfig(cfg), deps.Launcher, deps.Credentials, deps.Broker,
			logger.With("component", "login")),
		download: NewDownloadWorkflow(downloadConfig(cfg), catalogFromConfig(cfg), logger.With("component", "download"),
			WithDownloadEvents(deps.Events),
			WithDownloadMetrics(deps.Metrics),
		),
		launcher:         deps.Launcher,
		resolveDir:       resolveDir,
		keepAliveEnabled: cfg.KeepAlive.Enabled,
		logger:           logger,
		metrics:          deps.Metrics,
		emit:             deps.Events,
		nameLocks:        make(map[string]*sync.Mutex),
	}
}

// Registry exposes the session registry.
func (e *Engine) Registry() *browser.Registry {
	return e.registry
}

// Gate exposes the usage gate.
func (e *Engine) Gate() *UsageGate {
	return e.gate
}

// Catalog returns the configured download catalog.
func (e *Engine) Catalog() Catalog {
	return e.download.Catalog()
}

// Sessions lists the registered sessions.
func (e *Engine) Sessions() []browser.SessionInfo {
	return e.registry.List()
}

// lockName serializes start and close for one session name.
func (e *Engine) lockName(name string) func() {
	e.mu.Lock()
	l, ok := e.nameLocks[name]
	if !ok {
		l = &sync.Mutex{}
		e.nameLocks[name] = l
	}
	e.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// StartSession logs name in and registers the handle, replacing and closing
// any session already registered under name, then ensures its keep-alive.
// An empty dir is resolved through the DirResolver.
func (e *Engine) StartSession(ctx context.Context, name string, headless bool, dir string) (browser.Handle, error) {
	unlock := e.lockName(name)
	defer unlock()

	if dir == "" {
		dir = e.resolveDir(name)
	}

	if _, ok := e.registry.Get(name); ok {
		e.logger.Infof("replacing existing session %s", name)
		if err := e.closeLocked(ctx, name); err != nil {
			return nil, err
		}
	}

	h, err := e.login.Login(ctx, name, headless, dir)
	e.metrics.RecordLogin(name, err)
	if err != nil {
		return nil, err
	}

	e.registry.Register(name, h)
	e.metrics.SetActiveSessions(e.registry.Len())
	e.emit.emit(Event{Type: EventSessionStarted, Session: name})

	e.ensureKeepAliveLocked(name)
	return h, nil
}

// EnsureKeepAlive starts the keep-alive task for name if none is running.
// It reports whether a task was started.
func (e *Engine) EnsureKeepAlive(name string) bool {
	unlock := e.lockName(name)
	defer unlock()

	return e.ensureKeepAliveLocked(name)
}

func (e *Engine) ensureKeepAliveLocked(name string) bool {
	if !e.keepAliveEnabled {
		return false
	}
	return e.keepAlive.Ensure(name)
}

// KeepAliveRunning reports whether name has a live keep-alive task.
func (e *Engine) KeepAliveRunning(name string) bool {
	return e.keepAlive.Running(name)
}

// Download runs the download workflow on h. The caller must already hold
// the usage gate; RunDownload is the gated entry point.
func (e *Engine) Download(ctx context.Context, h browser.Handle, dir string) (*DownloadResult, error) {
	if dir == "" {
		dir = e.resolveDir(h.Name())
	}
	return e.download.Run(ctx, h, dir)
}

// RunDownload takes the usage gate, downloads the catalog entries whose
// labels match only (all when empty) with the session registered as name,
// and releases the gate on every exit path.
func (e *Engine) RunDownload(ctx context.Context, name, dir string, only []string) (*DownloadResult, error) {
	const op = "download"

	catalog, err := e.download.Catalog().Filter(only)
	if err != nil {
		return nil, newError(ctx, KindConfig, op, name, "", err)
	}

	release, err := e.gate.Acquire(ctx, "download:"+name)
	if err != nil {
		return nil, newError(ctx, KindCanceled, op, name, "waiting for usage gate", err)
	}
	defer release()

	h, ok := e.registry.Get(name)
	if !ok {
		return nil, newError(ctx, KindConfig, op, name, "", ErrSessionNotFound)
	}

	if dir == "" {
		dir = e.resolveDir(name)
	}
	return e.download.RunCatalog(ctx, h, dir, catalog)
}

// CloseSession stops the keep-alive for name and waits for it to exit,
// unregisters the session and closes its handle. Driver teardown failures
// are only logged. When the keep-alive does not exit before ctx is done the
// session is still unregistered, but its handle is closed only after the
// task has exited, and a KindTeardown error is returned. Closing an unknown
// name is a no-op.
func (e *Engine) CloseSession(ctx context.Context, name string) error {
	unlock := e.lockName(name)
	defer unlock()

	return e.closeLocked(ctx, name)
}

func (e *Engine) closeLocked(ctx context.Context, name string) error {
	var stopErr error
	if err := e.keepAlive.Stop(ctx, name); err != nil {
		stopErr = &Error{Kind: KindTeardown, Op: "close", Session: name, Err: err}
		e.logger.Warnf("%v", stopErr)
	}

	h, ok := e.registry.Get(name)
	if !ok {
		return stopErr
	}
	e.registry.Remove(name)
	e.metrics.SetActiveSessions(e.registry.Len())

	if stopErr != nil {
		if done := e.keepAlive.Done(name); done != nil {
			e.logger.Warnf("session %s unregistered; its handle closes once the keep-alive exits", name)
			go func() {
				<-done
				e.closeHandle(name, h)
			}()
			return stopErr
		}
	}

	e.closeHandle(name, h)
	return stopErr
}

func (e *Engine) closeHandle(name string, h browser.Handle) {
	if err := h.Close(); err != nil {
		e.logger.Warnf("%v", &Error{Kind: KindTeardown, Op: "close", Session: name, Err: err})
	}
	e.emit.emit(Event{Type: EventSessionClosed, Session: name})
	e.logger.Infof("session %s closed", name)
}

// Shutdown closes every session concurrently and stops the launcher if it
// supports it.
func (e *Engine) Shutdown(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, name := range e.registry.Names() {
		g.Go(func() error {
			return e.CloseSession(gctx, name)
		})
	}
	if err := g.Wait(); err != nil {
		e.logger.Warnf("closing sessions: %v", err)
	}

	// Tasks whose session was never registered still need stopping
	if err := e.keepAlive.StopAll(ctx); err != nil {
		e.logger.Warnf("stopping keep-alive tasks: %v", err)
	}

	if s, ok := e.launcher.(interface{ Shutdown() error }); ok {
		if err := s.Shutdown(); err != nil {
			return fmt.Errorf("shutdown launcher: %w", err)
		}
	}
	return nil
}

func keepAliveConfig(cfg *config.Config) KeepAliveConfig {
	return KeepAliveConfig{
		PrimaryURL:       cfg.KeepAlive.PrimaryURL,
		SecondaryURL:     cfg.KeepAlive.SecondaryURL,
		Interval:         cfg.KeepAlive.Interval,
		FallbackInterval: cfg.KeepAlive.FallbackInterval,
		StepDelay:        cfg.KeepAlive.StepDelay,
	}
}

func loginConfig(cfg *config.Config) LoginConfig {
	lc := LoginConfig{
		EntryURL:            cfg.Portal.EntryURL,
		IdentitySelector:    cfg.Login.IdentitySelector,
		SecretSelector:      cfg.Login.SecretSelector,
		MarkerSelector:      cfg.Login.MarkerSelector,
		MarkerText:          cfg.Login.MarkerText,
		ElementTimeout:      cfg.Login.ElementTimeout,
		IdentitySettle:      cfg.Login.IdentitySettle,
		SecretSettle:        cfg.Login.SecretSettle,
		VerifyTimeout:       cfg.Login.VerifyTimeout,
		RequireConfirmation: cfg.Login.RequireConfirmation,
		Browser:             browser.Options{Timeout: cfg.Browser.Timeout},
	}
	if cfg.Browser.ViewportWidth > 0 && cfg.Browser.ViewportHeight > 0 {
		lc.Browser.Viewport = &browser.Viewport{
			Width:  cfg.Browser.ViewportWidth,
			Height: cfg.Browser.ViewportHeight,
		}
	}
	return lc
}

func downloadConfig(cfg *config.Config) DownloadConfig {
	d := cfg.Download
	return DownloadConfig{
		HomeURL:             cfg.Portal.HomeURL,
		Container:           LocatorChain(d.Container),
		Back:                LocatorChain(d.Back),
		LabelSelector:       d.LabelSelector,
		DownloadSelector:    d.DownloadSelector,
		StuckSelector:       d.StuckSelector,
		StuckText:           d.StuckText,
		LocatorTimeout:      d.LocatorTimeout,
		FileTimeout:         d.FileTimeout,
		PollInterval:        d.PollInterval,
		RecoveryDelay:       d.RecoveryDelay,
		MaxAttempts:         d.MaxAttempts,
		RetryDelay:          d.RetryDelay,
		FailFastOnExhausted: d.FailFastOnExhausted,
	}
}

func catalogFromConfig(cfg *config.Config) Catalog {
	catalog := make(Catalog, 0, len(cfg.Download.Catalog))
	for _, e := range cfg.Download.Catalog {
		catalog = append(catalog, Entry{Label: e.Label, FileName: e.FileName})
	}
	return catalog
}

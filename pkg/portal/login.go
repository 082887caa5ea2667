package portal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/entrhq/portalkeeper/pkg/browser"
	"github.com/entrhq/portalkeeper/pkg/credentials"
	"github.com/entrhq/portalkeeper/pkg/logging"
)

// Login defaults
const (
	DefaultElementTimeout = 15 * time.Second
	DefaultIdentitySettle = 4 * time.Second
	DefaultSecretSettle   = 5 * time.Second
	DefaultVerifyTimeout  = 300 * time.Second
	DefaultMarkerText     = "INICIO"
)

// Launcher opens browser sessions.
type Launcher interface {
	Open(name string, opts browser.Options) (browser.Handle, error)
}

// LoginConfig describes the authentication sequence.
type LoginConfig struct {
	EntryURL         string
	IdentitySelector string
	SecretSelector   string
	MarkerSelector   string
	MarkerText       string

	ElementTimeout time.Duration
	IdentitySettle time.Duration
	SecretSettle   time.Duration
	VerifyTimeout  time.Duration

	// RequireConfirmation waits on the broker after the secret is submitted
	RequireConfirmation bool

	// Browser is the base launch configuration; Headless and DownloadDir
	// are set per login.
	Browser browser.Options
}

func (c LoginConfig) withDefaults() LoginConfig {
	if c.MarkerText == "" {
		c.MarkerText = DefaultMarkerText
	}
	if c.ElementTimeout <= 0 {
		c.ElementTimeout = DefaultElementTimeout
	}
	if c.VerifyTimeout <= 0 {
		c.VerifyTimeout = DefaultVerifyTimeout
	}
	if c.IdentitySettle < 0 {
		c.IdentitySettle = 0
	}
	if c.SecretSettle < 0 {
		c.SecretSettle = 0
	}
	return c
}

// LoginWorkflow drives the portal's login sequence and yields a ready handle.
type LoginWorkflow struct {
	cfg      LoginConfig
	launcher Launcher
	creds    credentials.Provider
	broker   *ConfirmationBroker
	logger   *logging.Logger
	sleep    SleepFunc
}

// NewLoginWorkflow creates the workflow. broker may be nil when
// cfg.RequireConfirmation is false.
func NewLoginWorkflow(cfg LoginConfig, launcher Launcher, creds credentials.Provider, broker *ConfirmationBroker, logger *logging.Logger) *LoginWorkflow {
	if logger == nil {
		logger = logging.Nop()
	}
	return &LoginWorkflow{
		cfg:      cfg.withDefaults(),
		launcher: launcher,
		creds:    creds,
		broker:   broker,
		logger:   logger,
		sleep:    sleepContext,
	}
}

// Login opens a new browser for name and logs it in. On success the caller
// owns the returned handle. On any failure after launch the handle is closed
// before returning.
func (w *LoginWorkflow) Login(ctx context.Context, name string, headless bool, downloadDir string) (browser.Handle, error) {
	const op = "login"

	creds, err := w.creds.Get(ctx, name)
	if err != nil {
		if errors.Is(err, credentials.ErrNotFound) {
			return nil, newError(ctx, KindConfig, op, name, "", fmt.Errorf("%w: %w", ErrMissingCredentials, err))
		}
		return nil, newError(ctx, KindConfig, op, name, "credential lookup failed", err)
	}
	if w.cfg.RequireConfirmation && w.broker == nil {
		return nil, newError(ctx, KindConfig, op, name, "second-factor confirmation required but no broker configured", nil)
	}

	opts := w.cfg.Browser
	opts.Headless = headless
	opts.DownloadDir = downloadDir

	h, err := w.launcher.Open(name, opts)
	if err != nil {
		return nil, newError(ctx, KindLaunch, op, name, "", err)
	}

	if err := w.authenticate(ctx, h, name, creds); err != nil {
		if cerr := h.Close(); cerr != nil {
			w.logger.Warnf("closing %s after failed login: %v", name, cerr)
		}
		return nil, err
	}

	w.logger.Infof("session %s logged in", name)
	return h, nil
}

func (w *LoginWorkflow) authenticate(ctx context.Context, h browser.Handle, name string, creds credentials.Credentials) error {
	const op = "login"
	c := w.cfg

	if err := h.Navigate(ctx, c.EntryURL); err != nil {
		return newError(ctx, KindNavigation, op, name, "open entry page", err)
	}

	w.logger.Debugf("%s: submitting identity", name)
	if err := w.submit(ctx, h, c.IdentitySelector, creds.Identity); err != nil {
		return newError(ctx, KindAuth, op, name, "identity step", err)
	}
	if err := w.sleep(ctx, c.IdentitySettle); err != nil {
		return newError(ctx, KindCanceled, op, name, "", err)
	}

	w.logger.Debugf("%s: submitting secret", name)
	if err := w.submit(ctx, h, c.SecretSelector, creds.Secret); err != nil {
		return newError(ctx, KindAuth, op, name, "secret step", err)
	}
	if err := w.sleep(ctx, c.SecretSettle); err != nil {
		return newError(ctx, KindCanceled, op, name, "", err)
	}

	if c.RequireConfirmation {
		w.logger.Infof("%s: waiting for second-factor confirmation", name)
		if err := w.broker.Await(ctx, name); err != nil {
			return newError(ctx, KindAuth, op, name, "second factor", err)
		}
	}

	if err := h.WaitVisible(ctx, c.MarkerSelector, c.VerifyTimeout); err != nil {
		return newError(ctx, KindAuth, op, name, "post-login marker not shown", err)
	}
	text, err := h.Text(ctx, c.MarkerSelector, c.ElementTimeout)
	if err != nil {
		return newError(ctx, KindAuth, op, name, "read post-login marker", err)
	}
	if got := strings.TrimSpace(text); got != c.MarkerText {
		return newError(ctx, KindAuth, op, name, fmt.Sprintf("marker reads %q, want %q", got, c.MarkerText), ErrMarkerMismatch)
	}
	return nil
}

// submit waits for the field, fills it and presses Enter.
func (w *LoginWorkflow) submit(ctx context.Context, h browser.Handle, selector, value string) error {
	if err := h.WaitVisible(ctx, selector, w.cfg.ElementTimeout); err != nil {
		return err
	}
	if err := h.Fill(ctx, selector, value, w.cfg.ElementTimeout); err != nil {
		return err
	}
	return h.Press(ctx, selector, "Enter", w.cfg.ElementTimeout)
}

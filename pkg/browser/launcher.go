package browser

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
)

// Launcher owns the Playwright driver process and opens new sessions on it.
type Launcher struct {
	mu          sync.Mutex
	playwright  *playwright.Playwright
	initialized bool
	install     bool
}

// NewLauncher creates a launcher. When install is true the Playwright driver
// and Chromium are downloaded on first use if they are missing.
func NewLauncher(install bool) *Launcher {
	return &Launcher{install: install}
}

// Initialize starts the Playwright driver.
// It is called lazily by Launch and is safe to call more than once.
func (l *Launcher) Initialize() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.initLocked()
}

func (l *Launcher) initLocked() error {
	if l.initialized {
		return nil
	}

	// Discard driver output so it does not interleave with our own logs
	opts := &playwright.RunOptions{
		Browsers: []string{"chromium"},
		Verbose:  false,
		Stdout:   io.Discard,
		Stderr:   io.Discard,
	}

	if l.install {
		if err := playwright.Install(opts); err != nil {
			return fmt.Errorf("failed to install playwright: %w", err)
		}
	}

	pw, err := playwright.Run(opts)
	if err != nil {
		return fmt.Errorf("failed to start playwright: %w", err)
	}

	l.playwright = pw
	l.initialized = true
	return nil
}

// Launch opens a new Chromium window and returns it as a session named name.
// Partially created resources are released when a later step fails.
func (l *Launcher) Launch(name string, opts Options) (*Session, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.initLocked(); err != nil {
		return nil, err
	}

	// Set defaults
	if opts.Viewport == nil {
		opts.Viewport = &Viewport{
			Width:  DefaultViewportWidth,
			Height: DefaultViewportHeight,
		}
	}
	if opts.Timeout == 0 {
		opts.Timeout = DefaultTimeout
	}

	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
		Args: []string{
			"--disable-gpu",
			"--disable-extensions",
			"--no-first-run",
			"--no-default-browser-check",
		},
	}
	if opts.Headless {
		launchOpts.Args = append(launchOpts.Args, "--no-sandbox", "--disable-dev-shm-usage")
	}
	if opts.DownloadDir != "" {
		launchOpts.DownloadsPath = playwright.String(opts.DownloadDir)
	}

	browser, err := l.playwright.Chromium.Launch(launchOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	context, err := browser.NewContext(playwright.BrowserNewContextOptions{
		AcceptDownloads: playwright.Bool(true),
		Viewport: &playwright.Size{
			Width:  opts.Viewport.Width,
			Height: opts.Viewport.Height,
		},
	})
	if err != nil {
		browser.Close()
		return nil, fmt.Errorf("failed to create context: %w", err)
	}

	page, err := context.NewPage()
	if err != nil {
		context.Close()
		browser.Close()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	page.SetDefaultTimeout(float64(opts.Timeout.Milliseconds()))

	now := time.Now()
	return &Session{
		name:       name,
		headless:   opts.Headless,
		Browser:    browser,
		Context:    context,
		Page:       page,
		state:      StateActive,
		createdAt:  now,
		lastUsedAt: now,
		currentURL: "about:blank",
	}, nil
}

// Open is Launch returning the session as a Handle.
func (l *Launcher) Open(name string, opts Options) (Handle, error) {
	s, err := l.Launch(name, opts)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Shutdown stops the Playwright driver. Sessions must be closed first.
func (l *Launcher) Shutdown() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.initialized || l.playwright == nil {
		return nil
	}
	if err := l.playwright.Stop(); err != nil {
		return fmt.Errorf("failed to stop playwright: %w", err)
	}
	l.initialized = false
	l.playwright = nil
	return nil
}

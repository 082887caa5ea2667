package browser

import (
	"context"
	"time"
)

// Handle is a live, exclusively owned browser-automation connection.
// The portal workflows only ever talk to a session through this interface,
// which keeps them independent of Playwright.
type Handle interface {
	// Name is the registry key the handle was created under.
	Name() string

	// Navigate loads url in the session's page.
	Navigate(ctx context.Context, url string) error

	// WaitVisible waits until selector matches a visible element.
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error

	// Fill replaces the value of the input matched by selector.
	Fill(ctx context.Context, selector, value string, timeout time.Duration) error

	// Press sends a single key (for example "Enter") to the element.
	Press(ctx context.Context, selector, key string, timeout time.Duration) error

	// Click clicks the first element matched by selector.
	Click(ctx context.Context, selector string, timeout time.Duration) error

	// Text returns the rendered text of the first element matched by selector.
	Text(ctx context.Context, selector string, timeout time.Duration) (string, error)

	// Download clicks selector, waits for the browser download it triggers
	// and saves it to dest.
	Download(ctx context.Context, selector, dest string, timeout time.Duration) error

	// Info returns a point-in-time snapshot of the session.
	Info() SessionInfo

	// Close tears down the underlying driver. Safe to call more than once.
	Close() error
}

// State is the lifecycle state of a session.
type State string

const (
	// StateActive means the driver is open and usable.
	StateActive State = "active"

	// StateClosed means Close has been called.
	StateClosed State = "closed"
)

// Options configures a new browser session.
type Options struct {
	// Headless controls whether the browser runs without a visible window
	Headless bool

	// DownloadDir is where the browser stores downloads before they are saved
	DownloadDir string

	// Viewport sets the initial viewport size
	Viewport *Viewport

	// Timeout sets the default timeout for page operations
	Timeout time.Duration
}

// Viewport represents the browser viewport dimensions.
type Viewport struct {
	Width  int
	Height int
}

// SessionInfo contains metadata about a browser session.
type SessionInfo struct {
	Name       string
	CurrentURL string
	Headless   bool
	State      State
	CreatedAt  time.Time
	LastUsedAt time.Time
}

// Default values for sessions
const (
	DefaultTimeout        = 30 * time.Second
	DefaultViewportWidth  = 1280
	DefaultViewportHeight = 720
)

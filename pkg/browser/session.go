package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
)

// ErrSessionClosed is returned by every primitive once Close has run.
var ErrSessionClosed = errors.New("browser session is closed")

// Session is a Playwright-backed Handle.
type Session struct {
	name     string
	headless bool

	// Browser is the Playwright browser instance
	Browser playwright.Browser

	// Context is the browser context (isolated session)
	Context playwright.BrowserContext

	// Page is the current active page
	Page playwright.Page

	mu         sync.RWMutex
	state      State
	createdAt  time.Time
	lastUsedAt time.Time
	currentURL string
	closeOnce  sync.Once
	closeErr   error
}

var _ Handle = (*Session)(nil)

// Name returns the session name.
func (s *Session) Name() string {
	return s.name
}

// Info returns a snapshot of the session metadata.
func (s *Session) Info() SessionInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return SessionInfo{
		Name:       s.name,
		CurrentURL: s.currentURL,
		Headless:   s.headless,
		State:      s.state,
		CreatedAt:  s.createdAt,
		LastUsedAt: s.lastUsedAt,
	}
}

// touch marks the session as used and fails once the session is closed or
// the caller's context is done.
func (s *Session) touch(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateClosed {
		return ErrSessionClosed
	}
	s.lastUsedAt = time.Now()
	return nil
}

func (s *Session) recordURL() {
	url := s.Page.URL()
	s.mu.Lock()
	s.currentURL = url
	s.mu.Unlock()
}

// Navigate navigates the session's page to the specified URL.
func (s *Session) Navigate(ctx context.Context, url string) error {
	if err := s.touch(ctx); err != nil {
		return err
	}

	waitUntil := playwright.WaitUntilStateDomcontentloaded
	if _, err := s.Page.Goto(url, playwright.PageGotoOptions{WaitUntil: waitUntil}); err != nil {
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}

	s.recordURL()
	return nil
}

// WaitVisible waits for an element to become visible.
func (s *Session) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	if err := s.touch(ctx); err != nil {
		return err
	}

	err := s.Page.Locator(selector).First().WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: millis(timeout),
	})
	if err != nil {
		return fmt.Errorf("wait for %q failed: %w", selector, err)
	}
	return nil
}

// Fill fills an input element with the specified value.
func (s *Session) Fill(ctx context.Context, selector, value string, timeout time.Duration) error {
	if err := s.touch(ctx); err != nil {
		return err
	}

	err := s.Page.Locator(selector).First().Fill(value, playwright.LocatorFillOptions{
		Timeout: millis(timeout),
	})
	if err != nil {
		return fmt.Errorf("fill %q failed: %w", selector, err)
	}
	return nil
}

// Press sends a key press to an element.
func (s *Session) Press(ctx context.Context, selector, key string, timeout time.Duration) error {
	if err := s.touch(ctx); err != nil {
		return err
	}

	err := s.Page.Locator(selector).First().Press(key, playwright.LocatorPressOptions{
		Timeout: millis(timeout),
	})
	if err != nil {
		return fmt.Errorf("press %s on %q failed: %w", key, selector, err)
	}

	s.recordURL()
	return nil
}

// Click clicks an element matching the selector.
func (s *Session) Click(ctx context.Context, selector string, timeout time.Duration) error {
	if err := s.touch(ctx); err != nil {
		return err
	}

	err := s.Page.Locator(selector).First().Click(playwright.LocatorClickOptions{
		Timeout: millis(timeout),
	})
	if err != nil {
		return fmt.Errorf("click %q failed: %w", selector, err)
	}

	// Update current URL in case click caused navigation
	s.recordURL()
	return nil
}

// Text reads the rendered text of an element.
func (s *Session) Text(ctx context.Context, selector string, timeout time.Duration) (string, error) {
	if err := s.touch(ctx); err != nil {
		return "", err
	}

	text, err := s.Page.Locator(selector).First().InnerText(playwright.LocatorInnerTextOptions{
		Timeout: millis(timeout),
	})
	if err != nil {
		return "", fmt.Errorf("read text of %q failed: %w", selector, err)
	}
	return text, nil
}

// Download clicks the control matched by selector and saves the download it
// triggers to dest.
func (s *Session) Download(ctx context.Context, selector, dest string, timeout time.Duration) error {
	if err := s.touch(ctx); err != nil {
		return err
	}

	download, err := s.Page.ExpectDownload(func() error {
		return s.Page.Locator(selector).First().Click(playwright.LocatorClickOptions{
			Timeout: millis(timeout),
		})
	}, playwright.PageExpectDownloadOptions{Timeout: millis(timeout)})
	if err != nil {
		return fmt.Errorf("download via %q failed: %w", selector, err)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0750); err != nil {
		return fmt.Errorf("failed to create download directory: %w", err)
	}
	if err := download.SaveAs(dest); err != nil {
		return fmt.Errorf("failed to save download to %s: %w", dest, err)
	}
	return nil
}

// Close closes the page, context and browser. Errors from each step are
// joined; every step runs regardless of earlier failures.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.state = StateClosed
		s.mu.Unlock()

		var errs []error
		if s.Page != nil {
			if err := s.Page.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close page: %w", err))
			}
		}
		if s.Context != nil {
			if err := s.Context.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close context: %w", err))
			}
		}
		if s.Browser != nil {
			if err := s.Browser.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close browser: %w", err))
			}
		}
		s.closeErr = errors.Join(errs...)
	})
	return s.closeErr
}

func millis(d time.Duration) *float64 {
	if d <= 0 {
		return nil
	}
	return playwright.Float(float64(d.Milliseconds()))
}

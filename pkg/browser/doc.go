// Package browser provides the browser-automation sessions used to drive the
// procurement portal through Playwright.
//
// # Architecture
//
// The package is built around three concepts:
//
//  1. Handle: the narrow set of primitives (navigate, wait, fill, press, click,
//     read text, download, close) the portal workflows need
//  2. Session: the Playwright implementation of Handle, owning one browser,
//     one context and one page
//  3. Registry: the process-wide table of live handles keyed by session name
//
// Launcher owns the Playwright driver process and opens sessions on it.
//
// # Session Lifecycle
//
//  1. Launch: Launcher.Launch opens a Chromium window with downloads enabled
//  2. Use: workflows call Handle primitives; each call is bounded by a timeout
//  3. Close: Handle.Close tears down page, context and browser exactly once
//
// Every primitive fails with ErrSessionClosed after Close, so a task that was
// cancelled late can never drive a torn-down browser.
//
// # Example Usage
//
//	launcher := browser.NewLauncher(true)
//	session, err := launcher.Launch("driver", browser.Options{Headless: true})
//	if err != nil {
//	    return err
//	}
//	defer session.Close()
//
//	registry := browser.NewRegistry()
//	registry.Register(session.Name(), session)
package browser

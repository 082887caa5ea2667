// Package portal implements the session lifecycle against the procurement
// portal: login with an optional out-of-band second factor, background
// keep-alive navigation and the catalog download workflow.
//
// # Components
//
//  1. UsageGate: a one-holder lock over the browser; foreground work waits
//     for it, keep-alive ticks skip when it is held
//  2. KeepAlive: one cancellable task per session name
//  3. LoginWorkflow: entry page, identity, secret, second factor, marker check
//  4. DownloadWorkflow: walks the Catalog, skips files already fetched today
//     and retries each entry a bounded number of times
//  5. Engine: owns the registry and the pieces above and exposes
//     StartSession, RunDownload, CloseSession and Shutdown
//
// All failures are *Error values; use KindOf or errors.Is on the sentinels
// to branch on them.
package portal

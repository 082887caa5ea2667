package portal

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/entrhq/portalkeeper/pkg/browser"
	"github.com/entrhq/portalkeeper/pkg/logging"
)

// Download defaults
const (
	DefaultLocatorTimeout = 5 * time.Second
	DefaultFileTimeout    = 60 * time.Second
	DefaultPollInterval   = 500 * time.Millisecond
	DefaultRecoveryDelay  = 2 * time.Second
	DefaultMaxAttempts    = 5
	DefaultRetryDelay     = 3 * time.Second
	DefaultLabelSelector  = "text=%s"

	// LockFileName is created in the target directory for the length of a run
	LockFileName = ".portalkeeper.lock"
)

// DownloadConfig configures the download workflow.
type DownloadConfig struct {
	// HomeURL is loaded after a fallback back control and during recovery
	HomeURL string

	Container LocatorChain
	Back      LocatorChain

	// LabelSelector is a template with one %s for the entry label
	LabelSelector    string
	DownloadSelector string

	// StuckSelector and StuckText identify a dialog dismissed during recovery
	StuckSelector string
	StuckText     string

	LocatorTimeout time.Duration
	FileTimeout    time.Duration
	PollInterval   time.Duration
	RecoveryDelay  time.Duration

	MaxAttempts int
	RetryDelay  time.Duration

	// FailFastOnExhausted aborts the run instead of moving to the next entry
	FailFastOnExhausted bool
}

func (c DownloadConfig) withDefaults() DownloadConfig {
	if c.LabelSelector == "" {
		c.LabelSelector = DefaultLabelSelector
	}
	if c.LocatorTimeout <= 0 {
		c.LocatorTimeout = DefaultLocatorTimeout
	}
	if c.FileTimeout <= 0 {
		c.FileTimeout = DefaultFileTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.RecoveryDelay < 0 {
		c.RecoveryDelay = 0
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.RetryDelay < 0 {
		c.RetryDelay = 0
	}
	return c
}

// EntryStatus is the outcome of one catalog entry.
type EntryStatus string

const (
	StatusDownloaded EntryStatus = "downloaded"
	StatusOmitted    EntryStatus = "omitted"
	StatusFailed     EntryStatus = "failed"
)

// EntryResult records what happened to one entry.
type EntryResult struct {
	Entry    Entry
	Path     string
	Status   EntryStatus
	Attempts int
	Err      error
}

// DownloadResult summarizes a run. Downloaded, Omitted and Failed hold file
// names in catalog order.
type DownloadResult struct {
	RunID      string
	Dir        string
	StartedAt  time.Time
	FinishedAt time.Time
	Downloaded []string
	Omitted    []string
	Failed     []string
	Entries    []EntryResult
}

func (r *DownloadResult) record(er EntryResult) {
	r.Entries = append(r.Entries, er)
	switch er.Status {
	case StatusDownloaded:
		r.Downloaded = append(r.Downloaded, er.Entry.FileName)
	case StatusOmitted:
		r.Omitted = append(r.Omitted, er.Entry.FileName)
	case StatusFailed:
		r.Failed = append(r.Failed, er.Entry.FileName)
	}
}

// recoveryError marks a failure raised by the recovery branch itself.
type recoveryError struct {
	err error
}

func (e *recoveryError) Error() string { return "recovery failed: " + e.err.Error() }

func (e *recoveryError) Unwrap() error { return e.err }

// DownloadWorkflow walks the catalog against a logged-in session and saves
// each entry's export into the target directory.
type DownloadWorkflow struct {
	cfg     DownloadConfig
	catalog Catalog
	logger  *logging.Logger
	metrics *Metrics
	emit    EventEmitter
	now     func() time.Time
	sleep   SleepFunc
}

// DownloadOption customizes a DownloadWorkflow.
type DownloadOption func(*DownloadWorkflow)

// WithClock sets the clock used to capture the run date.
func WithClock(now func() time.Time) DownloadOption {
	return func(w *DownloadWorkflow) {
		w.now = now
	}
}

// WithDownloadEvents sets the event sink.
func WithDownloadEvents(emit EventEmitter) DownloadOption {
	return func(w *DownloadWorkflow) {
		w.emit = emit
	}
}

// WithDownloadMetrics sets the metrics recorder.
func WithDownloadMetrics(m *Metrics) DownloadOption {
	return func(w *DownloadWorkflow) {
		w.metrics = m
	}
}

// NewDownloadWorkflow creates the workflow for catalog.
func NewDownloadWorkflow(cfg DownloadConfig, catalog Catalog, logger *logging.Logger, opts ...DownloadOption) *DownloadWorkflow {
	if logger == nil {
		logger = logging.Nop()
	}
	w := &DownloadWorkflow{
		cfg:     cfg.withDefaults(),
		catalog: catalog,
		logger:  logger,
		now:     time.Now,
		sleep:   sleepContext,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Catalog returns the configured catalog.
func (w *DownloadWorkflow) Catalog() Catalog {
	return w.catalog
}

// Run downloads every entry of the catalog that is not already fresh in dir.
// The caller must hold the usage gate.
//
// Entries that run out of attempts are recorded as failed and the run moves
// on, unless FailFastOnExhausted is set. A failure inside recovery, a
// filesystem error or cancellation aborts the run; the partial result is
// returned alongside the error.
func (w *DownloadWorkflow) Run(ctx context.Context, h browser.Handle, dir string) (*DownloadResult, error) {
	return w.RunCatalog(ctx, h, dir, w.catalog)
}

// RunCatalog is Run over an explicit catalog, typically a filtered one.
func (w *DownloadWorkflow) RunCatalog(ctx context.Context, h browser.Handle, dir string, catalog Catalog) (*DownloadResult, error) {
	const op = "download"

	result := &DownloadResult{
		RunID:     uuid.New().String(),
		Dir:       dir,
		StartedAt: w.now(),
	}
	session := h.Name()

	finish := func(err error) (*DownloadResult, error) {
		result.FinishedAt = w.now()
		w.metrics.RecordRun(result.FinishedAt.Sub(result.StartedAt).Seconds(), err)
		w.emit.emit(Event{Type: EventDownloadRunFinished, Session: session, Err: err})
		if err != nil {
			w.logger.Errorf("download run %s aborted: %v", result.RunID, err)
		} else {
			w.logger.Infof("download run %s finished: %d downloaded, %d omitted, %d failed",
				result.RunID, len(result.Downloaded), len(result.Omitted), len(result.Failed))
		}
		return result, err
	}

	dir, err := targetDir(dir)
	if err != nil {
		return finish(newError(ctx, KindConfig, op, session, "", err))
	}
	result.Dir = dir

	if err := os.MkdirAll(dir, 0o750); err != nil {
		return finish(newError(ctx, KindDownload, op, session, "create target directory", err))
	}

	lock := flock.New(filepath.Join(dir, LockFileName))
	locked, err := lock.TryLock()
	if err != nil {
		return finish(newError(ctx, KindDownload, op, session, "lock target directory", err))
	}
	if !locked {
		return finish(newError(ctx, KindBusy, op, session, fmt.Sprintf("%s is locked by another run", dir), nil))
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			w.logger.Warnf("unlock %s: %v", lock.Path(), err)
		}
	}()

	// The run date is captured once so a run crossing midnight stays consistent
	today := result.StartedAt
	w.logger.Infof("download run %s started: %d entries into %s", result.RunID, len(catalog), dir)

	for _, entry := range catalog {
		if err := ctx.Err(); err != nil {
			return finish(newError(ctx, KindCanceled, op, session, "", err))
		}

		path, err := entryPath(dir, entry.FileName)
		if err != nil {
			return finish(newError(ctx, KindConfig, op, session, "", err))
		}
		fresh, err := Fresh(path, today)
		if err != nil {
			return finish(newError(ctx, KindDownload, op, session, "freshness check", err))
		}
		if fresh {
			w.logger.Infof("%s is up to date, skipping", entry.FileName)
			result.record(EntryResult{Entry: entry, Path: path, Status: StatusOmitted})
			w.metrics.RecordEntry(StatusOmitted)
			w.emit.emit(Event{Type: EventDownloadEntryOmitted, Session: session, Entry: entry.FileName})
			continue
		}

		attempts, err := w.fetch(ctx, h, entry, path)
		if err == nil {
			w.logger.Infof("downloaded %s (%d attempt(s))", entry.FileName, attempts)
			result.record(EntryResult{Entry: entry, Path: path, Status: StatusDownloaded, Attempts: attempts})
			w.metrics.RecordEntry(StatusDownloaded)
			w.emit.emit(Event{Type: EventDownloadEntryDownloaded, Session: session, Entry: entry.FileName, Attempt: attempts})
			continue
		}

		var rerr *recoveryError
		switch {
		case ctx.Err() != nil:
			return finish(newError(ctx, KindCanceled, op, session, "", ctx.Err()))
		case errors.As(err, &rerr):
			return finish(newError(ctx, KindDownload, op, session, entry.FileName, err))
		}

		w.logger.Errorf("giving up on %s after %d attempt(s): %v", entry.FileName, attempts, err)
		result.record(EntryResult{Entry: entry, Path: path, Status: StatusFailed, Attempts: attempts, Err: err})
		w.metrics.RecordEntry(StatusFailed)
		w.emit.emit(Event{Type: EventDownloadEntryFailed, Session: session, Entry: entry.FileName, Attempt: attempts, Err: err})

		if w.cfg.FailFastOnExhausted {
			return finish(newError(ctx, KindDownload, op, session, entry.FileName, fmt.Errorf("%w: %w", ErrAttemptsExhausted, err)))
		}
	}

	return finish(nil)
}

// fetch runs bounded attempts for one entry, recovering between them.
func (w *DownloadWorkflow) fetch(ctx context.Context, h browser.Handle, entry Entry, path string) (int, error) {
	attempts := 0
	operation := func() (struct{}, error) {
		attempts++
		w.metrics.RecordAttempt()

		err := w.attempt(ctx, h, entry, path)
		if err == nil {
			return struct{}{}, nil
		}
		if ctx.Err() != nil {
			return struct{}{}, backoff.Permanent(ctx.Err())
		}

		w.logger.Warnf("attempt %d/%d for %s failed: %v", attempts, w.cfg.MaxAttempts, entry.FileName, err)
		w.emit.emit(Event{Type: EventDownloadEntryRetry, Session: h.Name(), Entry: entry.FileName, Attempt: attempts, Err: err})

		if rerr := w.recover(ctx, h); rerr != nil {
			return struct{}{}, backoff.Permanent(&recoveryError{err: rerr})
		}
		return struct{}{}, err
	}

	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewConstantBackOff(w.cfg.RetryDelay)),
		backoff.WithMaxTries(uint(w.cfg.MaxAttempts)),
		backoff.WithMaxElapsedTime(0),
	)

	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		err = perm.Err
	}
	return attempts, err
}

// attempt is one pass of container, entry, download, file poll and back.
// The export lands under partialPath and replaces path only once it is
// complete.
func (w *DownloadWorkflow) attempt(ctx context.Context, h browser.Handle, entry Entry, path string) error {
	c := w.cfg

	partial := partialPath(path)
	if err := os.Remove(partial); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("clear partial download: %w", err)
	}
	defer func() { _ = os.Remove(partial) }()

	if _, err := c.Container.Click(ctx, h, c.LocatorTimeout); err != nil {
		return fmt.Errorf("open container: %w", err)
	}

	label := fmt.Sprintf(c.LabelSelector, entry.Label)
	if err := h.Click(ctx, label, c.LocatorTimeout); err != nil {
		return fmt.Errorf("select %q: %w", entry.Label, err)
	}

	if err := h.Download(ctx, c.DownloadSelector, partial, c.FileTimeout); err != nil {
		return fmt.Errorf("download %q: %w", entry.Label, err)
	}

	if err := waitForFile(ctx, partial, c.FileTimeout, c.PollInterval); err != nil {
		return err
	}
	if err := os.Rename(partial, path); err != nil {
		return fmt.Errorf("save %s: %w", entry.FileName, err)
	}

	used, backErr := c.Back.Click(ctx, h, c.LocatorTimeout)
	if backErr == nil && used == 0 {
		return nil
	}
	if c.HomeURL == "" {
		if backErr != nil {
			return fmt.Errorf("go back: %w", backErr)
		}
		return nil
	}
	if err := h.Navigate(ctx, c.HomeURL); err != nil {
		return fmt.Errorf("return home after back control: %w", errors.Join(backErr, err))
	}
	if backErr != nil {
		w.logger.Warnf("back control unavailable after %s, returned home: %v", entry.FileName, backErr)
	}
	return nil
}

// recover dismisses a stuck dialog if one is showing and returns home.
func (w *DownloadWorkflow) recover(ctx context.Context, h browser.Handle) error {
	c := w.cfg

	if err := w.sleep(ctx, c.RecoveryDelay); err != nil {
		return err
	}

	if c.StuckSelector != "" {
		text, err := h.Text(ctx, c.StuckSelector, c.LocatorTimeout)
		switch {
		case ctx.Err() != nil:
			return ctx.Err()
		case err != nil:
			w.logger.Debugf("no stuck indicator: %v", err)
		case strings.TrimSpace(text) == c.StuckText:
			w.logger.Infof("dismissing stuck indicator %q", c.StuckText)
			if err := h.Click(ctx, c.StuckSelector, c.LocatorTimeout); err != nil {
				return fmt.Errorf("dismiss stuck indicator: %w", err)
			}
		}
	}

	if c.HomeURL == "" {
		return nil
	}
	if err := h.Navigate(ctx, c.HomeURL); err != nil {
		return fmt.Errorf("navigate home: %w", err)
	}
	return nil
}

// Package console renders engine events on a terminal and turns operator
// input into second-factor confirmations.
//
// Example usage:
//
//	con := console.New()
//	broker := portal.NewConfirmationBroker(0, con.Emit)
//	go con.Confirmations(ctx, broker)
//
//	engine := portal.New(cfg, portal.Deps{Broker: broker, Events: con.Emit, ...})
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/entrhq/portalkeeper/pkg/portal"
)

// Console writes event lines to a writer and reads confirmation answers
// from a reader.
type Console struct {
	writer io.Writer
	reader io.Reader

	// Keep-alive ticks and skips are only shown when verbose
	verbose bool

	mu sync.Mutex
}

// Option configures a Console.
type Option func(*Console)

// WithWriter sets the output writer (default is os.Stdout).
func WithWriter(w io.Writer) Option {
	return func(c *Console) {
		c.writer = w
	}
}

// WithReader sets the input reader (default is os.Stdin).
func WithReader(r io.Reader) Option {
	return func(c *Console) {
		c.reader = r
	}
}

// WithVerbose shows routine keep-alive events.
func WithVerbose(verbose bool) Option {
	return func(c *Console) {
		c.verbose = verbose
	}
}

// New creates a console on stdin and stdout.
func New(opts ...Option) *Console {
	c := &Console{
		writer: os.Stdout,
		reader: os.Stdin,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Printf writes a formatted line.
func (c *Console) Printf(format string, args ...interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.writer, format, args...)
}

// Emit renders ev. It has the portal.EventEmitter signature and never blocks
// on anything but the writer.
func (c *Console) Emit(ev portal.Event) {
	line := c.render(ev)
	if line == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.writer, "%s %s\n", mutedStyle.Render(ev.Time.Format("15:04:05")), line)
}

func (c *Console) render(ev portal.Event) string {
	switch ev.Type {
	case portal.EventSessionStarted:
		return okStyle.Render(fmt.Sprintf("✅ session %s logged in", ev.Session))
	case portal.EventSessionClosed:
		return mutedStyle.Render(fmt.Sprintf("session %s closed", ev.Session))
	case portal.EventSecondFactorRequested:
		return promptStyle.Render(fmt.Sprintf("🔐 %s is waiting for second-factor approval. Approve it on your device, then press Enter (or type \"n\" to reject).", ev.Session))
	case portal.EventSecondFactorConfirmed:
		return okStyle.Render(fmt.Sprintf("second factor confirmed for %s", ev.Session))
	case portal.EventSecondFactorRejected:
		return errorStyle.Render(fmt.Sprintf("second factor rejected for %s", ev.Session))
	case portal.EventSecondFactorTimeout:
		return errorStyle.Render(fmt.Sprintf("❌ second factor for %s timed out", ev.Session))
	case portal.EventKeepAliveTick:
		if c.verbose {
			return mutedStyle.Render(fmt.Sprintf("keep-alive %s", ev.Session))
		}
	case portal.EventKeepAliveSkipped:
		if c.verbose {
			return mutedStyle.Render(fmt.Sprintf("keep-alive %s skipped (%s)", ev.Session, ev.Reason))
		}
	case portal.EventKeepAliveFailed:
		return warnStyle.Render(fmt.Sprintf("keep-alive %s failed: %v", ev.Session, ev.Err))
	case portal.EventDownloadEntryOmitted:
		return mutedStyle.Render(fmt.Sprintf("%s is up to date", ev.Entry))
	case portal.EventDownloadEntryDownloaded:
		return okStyle.Render(fmt.Sprintf("⬇ %s", ev.Entry))
	case portal.EventDownloadEntryRetry:
		return warnStyle.Render(fmt.Sprintf("%s attempt %d failed: %v", ev.Entry, ev.Attempt, ev.Err))
	case portal.EventDownloadEntryFailed:
		return errorStyle.Render(fmt.Sprintf("❌ %s failed after %d attempt(s): %v", ev.Entry, ev.Attempt, ev.Err))
	case portal.EventDownloadRunFinished:
		if ev.Err != nil {
			return errorStyle.Render(fmt.Sprintf("download run aborted: %v", ev.Err))
		}
	}
	return ""
}

// Confirmations answers pending second-factor requests from input lines
// until the reader is exhausted or ctx is done. Each line resolves the
// oldest pending request: "n" or "no" rejects it, anything else confirms.
func (c *Console) Confirmations(ctx context.Context, broker *portal.ConfirmationBroker) error {
	lines := make(chan string)
	readErr := make(chan error, 1)

	go func() {
		reader := bufio.NewReader(c.reader)
		for {
			line, err := reader.ReadString('\n')
			if line != "" || err == nil {
				select {
				case lines <- strings.TrimSpace(line):
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				readErr <- err
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-readErr:
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("failed to read input: %w", err)
		case line := <-lines:
			c.answer(broker, line)
		}
	}
}

func (c *Console) answer(broker *portal.ConfirmationBroker, line string) {
	pending := broker.Pending()
	if len(pending) == 0 {
		c.Printf("%s\n", mutedStyle.Render("no login is waiting for confirmation"))
		return
	}

	oldest := pending[0]
	switch strings.ToLower(line) {
	case "n", "no":
		broker.Reject(oldest.ID)
	default:
		broker.Confirm(oldest.ID)
	}
}

// Summary renders a download result as a bordered block.
func Summary(result *portal.DownloadResult) string {
	if result == nil {
		return ""
	}

	lines := []string{
		headerStyle.Render("Download summary"),
		mutedStyle.Render(fmt.Sprintf("run %s into %s (%s)", result.RunID, result.Dir,
			result.FinishedAt.Sub(result.StartedAt).Round(time.Millisecond))),
		"",
	}
	for _, e := range result.Entries {
		switch e.Status {
		case portal.StatusDownloaded:
			lines = append(lines, okStyle.Render(fmt.Sprintf("✓ %-40s downloaded (%d attempt(s))", e.Entry.FileName, e.Attempts)))
		case portal.StatusOmitted:
			lines = append(lines, mutedStyle.Render(fmt.Sprintf("- %-40s up to date", e.Entry.FileName)))
		case portal.StatusFailed:
			lines = append(lines, errorStyle.Render(fmt.Sprintf("✗ %-40s failed: %v", e.Entry.FileName, e.Err)))
		}
	}
	lines = append(lines, "", fmt.Sprintf("%d downloaded, %d up to date, %d failed",
		len(result.Downloaded), len(result.Omitted), len(result.Failed)))

	return summaryBoxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

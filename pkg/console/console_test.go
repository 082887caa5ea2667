package console

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/portalkeeper/pkg/portal"
)

func TestEmitRendersEvents(t *testing.T) {
	var buf bytes.Buffer
	c := New(WithWriter(&buf))

	c.Emit(portal.Event{Type: portal.EventSessionStarted, Session: "driver", Time: time.Now()})
	c.Emit(portal.Event{Type: portal.EventSecondFactorRequested, Session: "driver", Time: time.Now()})
	c.Emit(portal.Event{Type: portal.EventDownloadEntryFailed, Entry: "b.csv", Attempt: 5, Err: errors.New("timeout"), Time: time.Now()})

	out := buf.String()
	assert.Contains(t, out, "session driver logged in")
	assert.Contains(t, out, "press Enter")
	assert.Contains(t, out, "b.csv failed after 5 attempt(s): timeout")
	assert.Equal(t, 3, strings.Count(out, "\n"))
}

func TestEmitHidesRoutineKeepAlive(t *testing.T) {
	var buf bytes.Buffer
	c := New(WithWriter(&buf))

	c.Emit(portal.Event{Type: portal.EventKeepAliveTick, Session: "driver"})
	c.Emit(portal.Event{Type: portal.EventKeepAliveSkipped, Session: "driver", Reason: "busy"})
	assert.Empty(t, buf.String())

	verbose := New(WithWriter(&buf), WithVerbose(true))
	verbose.Emit(portal.Event{Type: portal.EventKeepAliveSkipped, Session: "driver", Reason: "busy"})
	assert.Contains(t, buf.String(), "keep-alive driver skipped (busy)")
}

// awaitPending starts a confirmation request and waits until it is pending.
func awaitPending(t *testing.T, broker *portal.ConfirmationBroker, requested <-chan struct{}) <-chan error {
	t.Helper()

	result := make(chan error, 1)
	go func() {
		result <- broker.Await(context.Background(), "driver")
	}()

	select {
	case <-requested:
	case <-time.After(2 * time.Second):
		t.Fatal("confirmation was never requested")
	}
	return result
}

func newTestBroker() (*portal.ConfirmationBroker, chan struct{}) {
	requested := make(chan struct{}, 1)
	broker := portal.NewConfirmationBroker(time.Minute, func(ev portal.Event) {
		if ev.Type == portal.EventSecondFactorRequested {
			requested <- struct{}{}
		}
	})
	return broker, requested
}

func TestConfirmationsEnterConfirms(t *testing.T) {
	broker, requested := newTestBroker()
	result := awaitPending(t, broker, requested)

	c := New(WithWriter(&bytes.Buffer{}), WithReader(strings.NewReader("\n")))
	require.NoError(t, c.Confirmations(context.Background(), broker))

	assert.NoError(t, <-result)
	assert.Empty(t, broker.Pending())
}

func TestConfirmationsNoRejects(t *testing.T) {
	broker, requested := newTestBroker()
	result := awaitPending(t, broker, requested)

	c := New(WithWriter(&bytes.Buffer{}), WithReader(strings.NewReader("no\n")))
	require.NoError(t, c.Confirmations(context.Background(), broker))

	assert.ErrorIs(t, <-result, portal.ErrConfirmationRejected)
}

func TestConfirmationsWithNothingPending(t *testing.T) {
	broker, _ := newTestBroker()

	var buf bytes.Buffer
	c := New(WithWriter(&buf), WithReader(strings.NewReader("\n")))
	require.NoError(t, c.Confirmations(context.Background(), broker))
	assert.Contains(t, buf.String(), "no login is waiting")
}

func TestConfirmationsStopsOnCancel(t *testing.T) {
	broker, _ := newTestBroker()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pr := blockingReader{}
	c := New(WithWriter(&bytes.Buffer{}), WithReader(pr))
	assert.ErrorIs(t, c.Confirmations(ctx, broker), context.Canceled)
}

type blockingReader struct{}

func (blockingReader) Read([]byte) (int, error) {
	select {}
}

func TestSummary(t *testing.T) {
	start := time.Date(2024, 3, 9, 8, 0, 0, 0, time.UTC)
	result := &portal.DownloadResult{
		RunID:      "run-1",
		Dir:        "/srv/exports",
		StartedAt:  start,
		FinishedAt: start.Add(90 * time.Second),
		Downloaded: []string{"a.csv"},
		Omitted:    []string{"b.csv"},
		Failed:     []string{"c.csv"},
		Entries: []portal.EntryResult{
			{Entry: portal.Entry{Label: "Alpha", FileName: "a.csv"}, Status: portal.StatusDownloaded, Attempts: 2},
			{Entry: portal.Entry{Label: "Beta", FileName: "b.csv"}, Status: portal.StatusOmitted},
			{Entry: portal.Entry{Label: "Gamma", FileName: "c.csv"}, Status: portal.StatusFailed, Attempts: 5, Err: errors.New("timeout")},
		},
	}

	out := Summary(result)
	assert.Contains(t, out, "Download summary")
	assert.Contains(t, out, "/srv/exports")
	assert.Contains(t, out, "1m30s")
	assert.Contains(t, out, "downloaded (2 attempt(s))")
	assert.Contains(t, out, "up to date")
	assert.Contains(t, out, "failed: timeout")
	assert.Contains(t, out, "1 downloaded, 1 up to date, 1 failed")

	assert.Empty(t, Summary(nil))
}

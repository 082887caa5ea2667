package portal

import "time"

// EventType identifies a lifecycle event.
type EventType string

const (
	EventSessionStarted          EventType = "session_started"           // EventSessionStarted indicates a login succeeded and the handle was registered.
	EventSessionClosed           EventType = "session_closed"            // EventSessionClosed indicates a session was torn down.
	EventSecondFactorRequested   EventType = "second_factor_requested"   // EventSecondFactorRequested indicates a login is waiting for confirmation.
	EventSecondFactorConfirmed   EventType = "second_factor_confirmed"   // EventSecondFactorConfirmed indicates the confirmation arrived.
	EventSecondFactorRejected    EventType = "second_factor_rejected"    // EventSecondFactorRejected indicates the confirmation was refused.
	EventSecondFactorTimeout     EventType = "second_factor_timeout"     // EventSecondFactorTimeout indicates no confirmation arrived in time.
	EventKeepAliveTick           EventType = "keepalive_tick"            // EventKeepAliveTick indicates a keep-alive navigation completed.
	EventKeepAliveSkipped        EventType = "keepalive_skipped"         // EventKeepAliveSkipped indicates a tick was skipped (gate busy or session absent).
	EventKeepAliveFailed         EventType = "keepalive_failed"          // EventKeepAliveFailed indicates a keep-alive navigation failed.
	EventDownloadEntryOmitted    EventType = "download_entry_omitted"    // EventDownloadEntryOmitted indicates a fresh file was kept.
	EventDownloadEntryDownloaded EventType = "download_entry_downloaded" // EventDownloadEntryDownloaded indicates a file was saved.
	EventDownloadEntryRetry      EventType = "download_entry_retry"      // EventDownloadEntryRetry indicates an attempt failed and recovery ran.
	EventDownloadEntryFailed     EventType = "download_entry_failed"     // EventDownloadEntryFailed indicates an entry ran out of attempts.
	EventDownloadRunFinished     EventType = "download_run_finished"     // EventDownloadRunFinished indicates a run returned.
)

// Event is emitted by the engine and its workflows.
type Event struct {
	Type EventType

	// Session is the session name, when the event concerns one
	Session string

	// RequestID identifies a second-factor confirmation request
	RequestID string

	// Entry is the catalog file name for download events
	Entry string

	// Attempt is the 1-based attempt number for download events
	Attempt int

	// Reason explains skips
	Reason string

	Err  error
	Time time.Time
}

// EventEmitter receives events. Implementations must not block.
type EventEmitter func(Event)

func (e EventEmitter) emit(ev Event) {
	if e == nil {
		return
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	e(ev)
}

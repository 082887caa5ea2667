package portal

import (
	"context"
	"errors"
	"strings"
)

// Kind classifies portal failures.
type Kind string

const (
	// KindConfig is a missing or invalid setting, including missing credentials.
	KindConfig Kind = "config"
	// KindLaunch means the browser could not be started.
	KindLaunch Kind = "launch"
	// KindAuth means the login sequence did not end logged in.
	KindAuth Kind = "auth"
	// KindNavigation is a failed page load or element interaction.
	KindNavigation Kind = "navigation"
	// KindDownload is a download run that could not complete.
	KindDownload Kind = "download"
	// KindBusy means another holder owns the session or download directory.
	KindBusy Kind = "busy"
	// KindCanceled means the caller's context ended the operation.
	KindCanceled Kind = "canceled"
	// KindTeardown is a failure while closing a session.
	KindTeardown Kind = "teardown"
)

// Sentinel causes, matched with errors.Is.
var (
	ErrMissingCredentials   = errors.New("no credentials for session")
	ErrMarkerMismatch       = errors.New("post-login marker text mismatch")
	ErrConfirmationRejected = errors.New("second factor rejected")
	ErrConfirmationTimeout  = errors.New("second factor confirmation timed out")
	ErrSessionNotFound      = errors.New("session not registered")
	ErrLocatorExhausted     = errors.New("no locator in chain matched")
	ErrFileTimeout          = errors.New("downloaded file did not appear")
	ErrAttemptsExhausted    = errors.New("download attempts exhausted")
)

// Error is the error type returned by portal operations.
type Error struct {
	Kind    Kind
	Op      string
	Session string
	Msg     string
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("portal ")
	b.WriteString(e.Op)
	if e.Session != "" {
		b.WriteString(" [")
		b.WriteString(e.Session)
		b.WriteString("]")
	}
	b.WriteString(": ")
	b.WriteString(string(e.Kind))
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

// IsKind reports whether err carries kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// newError builds an *Error, promoting kind to KindCanceled when ctx is done.
func newError(ctx context.Context, kind Kind, op, session, msg string, err error) *Error {
	if ctx != nil && ctx.Err() != nil {
		kind = KindCanceled
		if err == nil {
			err = ctx.Err()
		}
	}
	return &Error{Kind: kind, Op: op, Session: session, Msg: msg, Err: err}
}

package portal

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultConfirmTimeout bounds how long a login waits for the second factor.
const DefaultConfirmTimeout = 10 * time.Minute

// ConfirmationRequest describes a login waiting for its second factor.
type ConfirmationRequest struct {
	ID        string
	Session   string
	CreatedAt time.Time
}

// ConfirmationBroker suspends logins until a human confirms the out-of-band
// second factor. A terminal, HTTP handler or test resolves requests through
// Confirm/Reject (by request ID) or ConfirmSession (by session name).
type ConfirmationBroker struct {
	timeout   time.Duration
	pending   map[string]*pendingConfirmation
	mu        sync.Mutex
	emitEvent EventEmitter
}

// pendingConfirmation tracks a request that is waiting for a response
type pendingConfirmation struct {
	request   ConfirmationRequest
	response  chan bool
	closeOnce sync.Once
}

// NewConfirmationBroker creates a broker. A non-positive timeout means
// DefaultConfirmTimeout.
func NewConfirmationBroker(timeout time.Duration, emitEvent EventEmitter) *ConfirmationBroker {
	if timeout <= 0 {
		timeout = DefaultConfirmTimeout
	}
	return &ConfirmationBroker{
		timeout:   timeout,
		pending:   make(map[string]*pendingConfirmation),
		emitEvent: emitEvent,
	}
}

// Await registers a request for session and blocks until it is confirmed,
// rejected, timed out or ctx is done. It returns nil only on confirmation.
func (b *ConfirmationBroker) Await(ctx context.Context, session string) error {
	req := ConfirmationRequest{
		ID:        uuid.New().String(),
		Session:   session,
		CreatedAt: time.Now(),
	}
	responseChannel := make(chan bool, 1)

	b.mu.Lock()
	b.pending[req.ID] = &pendingConfirmation{request: req, response: responseChannel}
	b.mu.Unlock()

	defer b.cleanup(req.ID)

	b.emitEvent.emit(Event{Type: EventSecondFactorRequested, Session: session, RequestID: req.ID})

	timeout := time.NewTimer(b.timeout)
	defer timeout.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()

	case <-timeout.C:
		b.emitEvent.emit(Event{Type: EventSecondFactorTimeout, Session: session, RequestID: req.ID})
		return ErrConfirmationTimeout

	case granted, ok := <-responseChannel:
		if ok && granted {
			b.emitEvent.emit(Event{Type: EventSecondFactorConfirmed, Session: session, RequestID: req.ID})
			return nil
		}
		// Channel closed, treat as rejection
		b.emitEvent.emit(Event{Type: EventSecondFactorRejected, Session: session, RequestID: req.ID})
		return ErrConfirmationRejected
	}
}

// Confirm resolves the request with the given ID. It reports whether a
// pending request matched; late or unknown IDs are ignored.
func (b *ConfirmationBroker) Confirm(id string) bool {
	return b.respond(id, true)
}

// Reject refuses the request with the given ID.
func (b *ConfirmationBroker) Reject(id string) bool {
	return b.respond(id, false)
}

// ConfirmSession confirms every pending request for session.
func (b *ConfirmationBroker) ConfirmSession(session string) bool {
	return b.respondSession(session, true)
}

// RejectSession rejects every pending request for session.
func (b *ConfirmationBroker) RejectSession(session string) bool {
	return b.respondSession(session, false)
}

// Pending lists the open requests, oldest first.
func (b *ConfirmationBroker) Pending() []ConfirmationRequest {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]ConfirmationRequest, 0, len(b.pending))
	for _, p := range b.pending {
		out = append(out, p.request)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (b *ConfirmationBroker) respond(id string, granted bool) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	p, ok := b.pending[id]
	if !ok {
		return false
	}
	return deliver(p, granted)
}

func (b *ConfirmationBroker) respondSession(session string, granted bool) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	matched := false
	for _, p := range b.pending {
		if p.request.Session == session && deliver(p, granted) {
			matched = true
		}
	}
	return matched
}

// deliver sends without blocking; a response already queued wins.
func deliver(p *pendingConfirmation, granted bool) bool {
	select {
	case p.response <- granted:
		return true
	default:
		return false
	}
}

// cleanup removes the request and closes its channel exactly once.
func (b *ConfirmationBroker) cleanup(id string) {
	b.mu.Lock()
	p, ok := b.pending[id]
	if ok {
		delete(b.pending, id)
	}
	b.mu.Unlock()

	if ok {
		p.closeOnce.Do(func() {
			close(p.response)
		})
	}
}

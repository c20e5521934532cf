// Package progress implements the per-job fan-out point for live progress
// updates. One Channel exists per job; it holds zero or more attached
// listener connections and pushes events to them with at-most-once,
// best-effort semantics. Events are never buffered for late listeners and
// never retried — the job record is the authoritative source of outcome.
package progress

import (
	"errors"
	"sync"

	"github.com/jukasdrj/shelfscan/internal/model"
)

// ErrChannelClosed is returned by Attach once the channel reached its
// terminal state.
var ErrChannelClosed = errors.New("progress channel is closed")

// connBuffer is the per-connection event buffer. A listener that falls this
// far behind starts losing events; stale progress has no value once
// superseded, so that is acceptable.
const connBuffer = 16

// Connection is one listener attached to a Channel. It is owned by the
// Channel for the job's lifetime and never shared across jobs.
type Connection struct {
	events chan model.ProgressEvent
}

// Events returns the stream of progress events for this connection. The
// channel is closed when the job reaches a terminal stage or the connection
// is detached.
func (c *Connection) Events() <-chan model.ProgressEvent {
	return c.events
}

// Channel is the per-job stateful fan-out actor. It moves through three
// states: empty (no connections), ready (readiness signaled), and closed
// (terminal; further pushes are no-ops).
type Channel struct {
	jobID string

	mu     sync.Mutex
	conns  map[*Connection]struct{}
	ready  bool
	closed bool
}

// NewChannel creates a progress channel for one job
func NewChannel(jobID string) *Channel {
	return &Channel{
		jobID: jobID,
		conns: make(map[*Connection]struct{}),
	}
}

// JobID returns the job this channel belongs to
func (ch *Channel) JobID() string {
	return ch.jobID
}

// Attach registers a new listener connection. Attaching to a closed channel
// fails; the caller should fall back to polling the job record.
func (ch *Channel) Attach() (*Connection, error) {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	if ch.closed {
		return nil, ErrChannelClosed
	}

	conn := &Connection{
		events: make(chan model.ProgressEvent, connBuffer),
	}
	ch.conns[conn] = struct{}{}

	return conn, nil
}

// Detach removes a connection from the fan-out set, typically when the
// client disconnects. Detaching an already-released connection is a no-op.
func (ch *Channel) Detach(conn *Connection) {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	if _, ok := ch.conns[conn]; !ok {
		return
	}
	delete(ch.conns, conn)
	close(conn.events)
}

// MarkReady idempotently flags that a listener signaled readiness
func (ch *Channel) MarkReady() {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.ready = true
}

// Ready reports whether readiness has been signaled
func (ch *Channel) Ready() bool {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.ready
}

// Push fans an event out to all attached connections. A connection that
// cannot accept the event (slow consumer) is skipped; pushing with zero
// connections or after Close is a silent no-op.
func (ch *Channel) Push(event model.ProgressEvent) {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	if ch.closed {
		return
	}

	ch.deliver(event)
}

// Close pushes a final event carrying the reason, then releases all
// connections and transitions the channel to its terminal state.
func (ch *Channel) Close(reason string) {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	if ch.closed {
		return
	}
	ch.closed = true

	if reason != "" {
		ch.deliver(model.ProgressEvent{
			Progress:      1.0,
			CurrentStatus: reason,
		})
	}

	for conn := range ch.conns {
		close(conn.events)
	}
	ch.conns = make(map[*Connection]struct{})
}

// Closed reports whether the channel reached its terminal state
func (ch *Channel) Closed() bool {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.closed
}

// deliver attempts a non-blocking send to every connection. Must be called
// with ch.mu held.
func (ch *Channel) deliver(event model.ProgressEvent) {
	for conn := range ch.conns {
		select {
		case conn.events <- event:
		default:
			// Listener buffer full; drop the event for this connection
		}
	}
}

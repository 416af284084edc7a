// Package testbus provides an in-process fake J1708 bus for tests,
// grounded on pkg/can/virtual's broker-backed Bus: multiple [Link]
// endpoints attached to one [Bus] see each other's transmissions, the
// way virtual.Bus fans a transmitted frame out to every other connected
// client. Here the fan-out is direct channel delivery instead of a TCP
// broker, since tests run in one process.
package testbus

import (
	"sync"
	"sync/atomic"
	"time"

	j1587 "github.com/haystack/j1587"
)

// Bus fans out every frame sent on one attached Link to every other.
type Bus struct {
	mu   sync.Mutex
	subs []*Link
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// NewLink attaches a new endpoint to the bus.
func (b *Bus) NewLink() *Link {
	l := &Link{bus: b, in: make(chan j1587.Frame, 64)}
	b.mu.Lock()
	b.subs = append(b.subs, l)
	b.mu.Unlock()
	return l
}

// Link is one [j1587.Link] endpoint on a [Bus]. It also records every
// frame it transmits so tests can assert on wire output directly.
type Link struct {
	bus    *Bus
	in     chan j1587.Frame
	closed atomic.Bool

	mu   sync.Mutex
	sent [][]byte
}

// Read implements [j1587.Link].
func (l *Link) Read(timeout time.Duration) (j1587.Frame, error) {
	if l.closed.Load() {
		return nil, j1587.ErrLinkClosed
	}
	select {
	case f := <-l.in:
		return f, nil
	case <-time.After(timeout):
		return nil, nil
	}
}

// Send implements [j1587.Link]: it appends a checksum if needed, records
// the transmitted bytes, and fans the frame out to every other Link
// attached to the same Bus.
func (l *Link) Send(buf []byte, hasChecksum bool) error {
	if l.closed.Load() {
		return j1587.ErrLinkClosed
	}
	msg := buf
	if !hasChecksum {
		msg = j1587.AppendChecksum(buf)
	}

	l.mu.Lock()
	l.sent = append(l.sent, append([]byte(nil), msg...))
	l.mu.Unlock()

	l.bus.mu.Lock()
	defer l.bus.mu.Unlock()
	for _, sub := range l.bus.subs {
		if sub == l {
			continue
		}
		select {
		case sub.in <- j1587.Frame(msg):
		default:
		}
	}
	return nil
}

// Close implements [j1587.Link].
func (l *Link) Close() error {
	l.closed.Store(true)
	return nil
}

// Deliver injects a frame directly into this Link's inbound queue, for
// tests driving one side of a session without instantiating a peer Link.
// It appends a checksum unless the frame already carries a valid one.
func (l *Link) Deliver(frame []byte) {
	msg := frame
	if !j1587.VerifyChecksum(frame) {
		msg = j1587.AppendChecksum(frame)
	}
	select {
	case l.in <- j1587.Frame(msg):
	default:
	}
}

// Sent returns the frames transmitted on this Link so far, each
// including its trailing checksum byte.
func (l *Link) Sent() [][]byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([][]byte, len(l.sent))
	copy(out, l.sent)
	return out
}

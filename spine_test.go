package j1587

import (
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haystack/j1587/internal/testbus"
)

// S3/invariant 2 and 3: a full connection-mode round trip between two
// drivers, CTS-driven, delivers the reassembled message with the sender's
// MID prefixed.
func TestDriverTransportSendAndReceive(t *testing.T) {
	bus := testbus.NewBus()
	driverA := NewDriver(bus.NewLink(), DefaultConfig(0xac))
	defer driverA.Close()
	driverB := NewDriver(bus.NewLink(), DefaultConfig(0x80))
	defer driverB.Close()

	msg := []byte{0x00, 0xc8, 0x07, 0x04, 0x06, 0x00, 0x46, 0x41, 0x41, 0x5a, 0x05, 0x48}

	errCh := make(chan error, 1)
	go func() { errCh <- driverA.TransportSend(0x80, msg) }()

	got := pollMailbox(t, driverB, 3*time.Second)
	assert.Equal(t, append([]byte{0xac}, msg...), got)

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for TransportSend result")
	}
}

// S1: a bare Send with no fragmentation delivers the raw payload to the
// peer's mailbox.
func TestDriverSendRawFrame(t *testing.T) {
	bus := testbus.NewBus()
	driverA := NewDriver(bus.NewLink(), DefaultConfig(0xac))
	defer driverA.Close()
	driverB := NewDriver(bus.NewLink(), DefaultConfig(0x80))
	defer driverB.Close()

	require.NoError(t, driverA.Send([]byte{0xac, 0x00, 0x7b}))

	got := pollMailbox(t, driverB, time.Second)
	assert.Equal(t, []byte{0xac, 0x00, 0x7b}, got)
}

// S6: a third node with ReassembleOthers enabled reassembles a
// connection-mode message addressed to someone else.
func TestDriverReassembleOthers(t *testing.T) {
	bus := testbus.NewBus()
	driverA := NewDriver(bus.NewLink(), DefaultConfig(0xac))
	defer driverA.Close()
	driverB := NewDriver(bus.NewLink(), DefaultConfig(0x80))
	defer driverB.Close()

	cfgC := DefaultConfig(0x90)
	cfgC.ReassembleOthers = true
	driverC := NewDriver(bus.NewLink(), cfgC)
	defer driverC.Close()

	msg := []byte{1, 2, 3, 4, 5}
	go driverA.TransportSend(0x80, msg)

	got := pollMailbox(t, driverC, 3*time.Second)
	assert.Equal(t, append([]byte{0xac}, msg...), got)
}

// When SuppressFragments is disabled, raw PID 197/198 frames are mirrored
// to the mailbox alongside any reassembled delivery.
func TestDriverSuppressFragmentsOff(t *testing.T) {
	bus := testbus.NewBus()
	cfgA := DefaultConfig(0xac)
	driverA := NewDriver(bus.NewLink(), cfgA)
	defer driverA.Close()

	cfgB := DefaultConfig(0x80)
	cfgB.SuppressFragments = false
	driverB := NewDriver(bus.NewLink(), cfgB)
	defer driverB.Close()

	go driverA.TransportSend(0x80, []byte{9, 8, 7})

	// The mirrored RTS frame should show up before the reassembled message.
	raw := pollMailbox(t, driverB, 3*time.Second)
	cf, err := ParseConn(raw)
	require.NoError(t, err)
	assert.Equal(t, ControlRTS, cf.Control)
}

// §4.6: a send session and a receive session to the same peer can run
// concurrently without either one stealing the other's frames, since a
// CTS meant for the send session and an RTS meant for the receive
// session share the same (local, remote) session key.
func TestDriverConcurrentSendAndReceiveSession(t *testing.T) {
	bus := testbus.NewBus()
	driverA := NewDriver(bus.NewLink(), DefaultConfig(0xac))
	defer driverA.Close()
	driverB := NewDriver(bus.NewLink(), DefaultConfig(0x80))
	defer driverB.Close()

	outbound := []byte{0x11, 0x22, 0x33}
	inbound := []byte{0xaa, 0xbb, 0xcc, 0xdd}

	errA := make(chan error, 1)
	errB := make(chan error, 1)
	go func() { errA <- driverA.TransportSend(0x80, outbound) }()
	go func() { errB <- driverB.TransportSend(0xac, inbound) }()

	gotAtB := pollMailbox(t, driverB, 3*time.Second)
	assert.Equal(t, append([]byte{0xac}, outbound...), gotAtB)

	gotAtA := pollMailbox(t, driverA, 3*time.Second)
	assert.Equal(t, append([]byte{0x80}, inbound...), gotAtA)

	for _, ch := range []chan error{errA, errB} {
		select {
		case err := <-ch:
			assert.NoError(t, err)
		case <-time.After(3 * time.Second):
			t.Fatal("timed out waiting for TransportSend result")
		}
	}
}

// Invalid checksums are dropped unless PassInvalidMessages is set.
func TestSpinePassInvalidMessages(t *testing.T) {
	link := newScriptedLink()
	cfg := DefaultConfig(0x80)
	cfg.PassInvalidMessages = true
	cfg.Logger = slog.Default()
	sp := newSpine(cfg, link, cfg.Logger)
	sp.Start()
	defer sp.Stop()

	bad := []byte{0xac, 0x00, 0x7b, 0xff}
	link.push(bad)

	_, err := sp.readMailbox(2 * time.Second)
	require.NoError(t, err)
}

func TestSpineDropsInvalidMessagesByDefault(t *testing.T) {
	link := newScriptedLink()
	cfg := DefaultConfig(0x80)
	cfg.Logger = slog.Default()
	sp := newSpine(cfg, link, cfg.Logger)
	sp.Start()
	defer sp.Stop()

	bad := []byte{0xac, 0x00, 0x7b, 0xff}
	link.push(bad)

	_, err := sp.readMailbox(200 * time.Millisecond)
	assert.Equal(t, ErrEmpty, err)
}

// pollMailbox reads a driver's mailbox until a message arrives or the
// deadline elapses.
func pollMailbox(t *testing.T, d *Driver, within time.Duration) []byte {
	t.Helper()
	deadline := time.Now().Add(within)
	for time.Now().Before(deadline) {
		msg, err := d.Read(true, 100*time.Millisecond)
		if err == nil {
			return msg
		}
	}
	t.Fatal("timed out waiting for mailbox delivery")
	return nil
}

// scriptedLink is a minimal [Link] that replays a fixed queue of frames,
// for exercising spine dispatch paths testbus can't reach (an already
// checksum-broken frame on the wire).
type scriptedLink struct {
	mu     sync.Mutex
	frames []Frame
	closed bool
}

func newScriptedLink() *scriptedLink { return &scriptedLink{} }

func (l *scriptedLink) push(f Frame) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.frames = append(l.frames, f)
}

func (l *scriptedLink) Read(timeout time.Duration) (Frame, error) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil, ErrLinkClosed
	}
	if len(l.frames) > 0 {
		f := l.frames[0]
		l.frames = l.frames[1:]
		l.mu.Unlock()
		return f, nil
	}
	l.mu.Unlock()
	time.Sleep(timeout)
	return nil, nil
}

func (l *scriptedLink) Send(buf []byte, hasChecksum bool) error { return nil }

func (l *scriptedLink) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

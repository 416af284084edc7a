package j1587

import (
	"log/slog"
	"time"
)

// Config holds the driver facade's configuration, grounded on
// J1587Driver.py's constructor keyword arguments.
type Config struct {
	// MyMID is this node's local MID; connection-mode frames addressed to
	// it are reassembled by default.
	MyMID MID

	// SuppressFragments, when false, additionally delivers raw PID
	// 197/198/192 frames to the mailbox alongside reassembly output.
	// Defaults to true.
	SuppressFragments bool
	// PreemptCTS makes send sessions skip the CTS handshake.
	PreemptCTS bool
	// Silent suppresses all outbound transmission, including session
	// replies (CTS/EOM/ABORT).
	Silent bool
	// ReassembleOthers reassembles connection-mode frames not addressed
	// to MyMID.
	ReassembleOthers bool
	// PassInvalidMessages delivers malformed or bad-checksum frames to
	// the mailbox instead of dropping them.
	PassInvalidMessages bool
	// Loopback mirrors every transmitted frame back onto the inbound
	// path, so the local reader observes its own output.
	Loopback bool

	// Logger receives structured diagnostics. Defaults to slog.Default()
	// if nil.
	Logger *slog.Logger
}

// DefaultConfig returns a Config with the spec's documented defaults for
// the given local MID.
func DefaultConfig(myMID MID) Config {
	return Config{
		MyMID:             myMID,
		SuppressFragments: true,
	}
}

// Driver is the facade described in §4.7: it wires a [Link] backend to
// the worker spine and exposes the four blocking operations a caller
// needs (Send, TransportSend, Read, RequestPID) plus Close.
type Driver struct {
	cfg    Config
	link   Link
	logger *slog.Logger
	spine  *spine
}

// NewDriver constructs a Driver over an already-open Link and starts its
// worker spine. Callers own link construction, preferring explicit
// injection over the process-wide [DefaultLinkFactory] per §9's design
// note.
func NewDriver(link Link, cfg Config) *Driver {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	d := &Driver{
		cfg:    cfg,
		link:   link,
		logger: logger,
		spine:  newSpine(cfg, link, logger),
	}
	d.spine.Start()
	return d
}

// Send enqueues a single J1708 frame for transmission: no fragmentation,
// no acknowledgement. buf must not include a checksum; one is computed
// by the link on transmit.
func (d *Driver) Send(buf []byte) error {
	select {
	case <-d.spine.stop:
		return ErrClosed
	default:
	}
	select {
	case d.spine.outbox <- buf:
		return nil
	case <-d.spine.stop:
		return ErrClosed
	}
}

// TransportSend fragments msg into a connection-mode transport message
// addressed to dst, drives the handshake, and blocks until the session
// completes. It returns ErrTimeout if the session did not succeed within
// its deadline.
func (d *Driver) TransportSend(dst MID, msg []byte) error {
	result := make(chan bool, 1)
	sess := newSendSession(d.logger, d.cfg.MyMID, dst, msg, d.cfg.PreemptCTS, d.spine.outbox, result, d.spine.stop)
	d.spine.startSendSession(sess)

	select {
	case ok := <-result:
		if !ok {
			return ErrTimeout
		}
		return nil
	case <-d.spine.stop:
		return ErrClosed
	}
}

// Read pops the next delivered mailbox message. If block is false, it
// polls non-blockingly regardless of timeout. It returns ErrEmpty if no
// message is available within the budget.
func (d *Driver) Read(block bool, timeout time.Duration) ([]byte, error) {
	if !block {
		timeout = 0
	}
	return d.spine.readMailbox(timeout)
}

// requestPIDOuterBudget and requestPIDInnerBudget bound RequestPID's poll
// loop: 80ms total, retrying the mailbox in 20ms slices so a reply
// delivered mid-wait is noticed promptly.
const (
	requestPIDOuterBudget = 80 * time.Millisecond
	requestPIDInnerBudget = 20 * time.Millisecond
)

// RequestPID transmits a request for pid from mid and polls the mailbox
// for the matching response, returning its payload (sans the [mid, pid]
// prefix) or ErrTimeout.
//
// Extended-page PIDs (>=255) are encoded as [my_mid, 0, 255, pid mod
// 256], matching the source's own FIXME-flagged behavior rather than the
// J1587 256+ extension byte; see DESIGN.md's Open Question log.
func (d *Driver) RequestPID(mid MID, pid int) ([]byte, error) {
	var req []byte
	if pid < 255 {
		req = []byte{d.cfg.MyMID, 0, byte(pid)}
	} else {
		req = []byte{d.cfg.MyMID, 0, 255, byte(pid % 256)}
	}
	if err := d.Send(req); err != nil {
		return nil, err
	}

	deadline := time.Now().Add(requestPIDOuterBudget)
	wantPID := byte(pid % 256)
	for time.Now().Before(deadline) {
		msg, err := d.Read(true, requestPIDInnerBudget)
		if err != nil {
			continue
		}
		if len(msg) >= 2 && msg[0] == mid && msg[1] == wantPID {
			return msg[2:], nil
		}
	}
	return nil, ErrTimeout
}

// Close terminates the worker spine and joins its sessions within their
// timeouts. It is safe to call more than once.
func (d *Driver) Close() error {
	d.spine.Stop()
	return d.link.Close()
}

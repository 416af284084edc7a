package j1587

import (
	"log/slog"
	"sync"
	"time"
)

// sessionKey identifies one live connection-mode transport session. For a
// receive session, local is the RTS's dst and remote is its src. For a
// send session, local is myMID and remote is dst. Keying on the pair lets
// a send and a receive session coexist for the same peer, each in its own
// index.
type sessionKey struct {
	local, remote MID
}

// mailboxEntry is one message delivered to the facade's read-side
// mailbox: a reassembled transport message, a multisection delivery, a
// raw pass-through frame, or an opaque non-transport frame.
type mailboxEntry struct {
	msg []byte
}

// spine implements C6: the single worker that demultiplexes inbound
// frames to sessions or the mailbox, and serializes outbound frames onto
// the link, grounded on J1587Driver.py's worker thread loop.
//
// The session maps are guarded by mu rather than touched only from
// dispatchLoop, mirroring BusManager's mutex-guarded subscriber map: a
// send session is registered by whichever goroutine calls TransportSend,
// not by the dispatch loop itself.
type spine struct {
	cfg    Config
	link   Link
	logger *slog.Logger

	inboundCh chan Frame
	outbox    chan []byte
	mailbox   chan mailboxEntry
	done      chan deliverable

	mu          sync.Mutex
	receiveSess map[sessionKey]*receiveSession
	sendSess    map[sessionKey]*sendSession

	multisection *multisectionReassembler

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func newSpine(cfg Config, link Link, logger *slog.Logger) *spine {
	return &spine{
		cfg:          cfg,
		link:         link,
		logger:       logger.With("service", "[SPINE]", "mid", cfg.MyMID),
		inboundCh:    make(chan Frame, 256),
		outbox:       make(chan []byte, 256),
		mailbox:      make(chan mailboxEntry, 256),
		done:         make(chan deliverable, 32),
		receiveSess:  make(map[sessionKey]*receiveSession),
		sendSess:     make(map[sessionKey]*sendSession),
		multisection: newMultisectionReassembler(),
		stop:         make(chan struct{}),
	}
}

// Start launches the link-reader goroutine and the dispatch loop.
func (s *spine) Start() {
	s.wg.Add(2)
	go s.readLoop()
	go s.dispatchLoop()
}

// Stop signals every session and the dispatch loop to exit, then waits
// (bounded) for everyone to drain.
func (s *spine) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		s.logger.Warn("timed out waiting for spine goroutines to exit")
	}
}

// readLoop pumps frames from the link into the dispatch loop. It is the
// only goroutine that calls link.Read, matching the "one link-reader
// task" scheduling model.
func (s *spine) readLoop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.stop:
			return
		default:
		}
		frame, err := s.link.Read(1 * time.Second)
		if err != nil {
			if err != ErrLinkClosed {
				s.logger.Error("link read failed", "err", err)
			}
			return
		}
		if frame == nil {
			continue
		}
		select {
		case s.inboundCh <- frame:
		case <-s.stop:
			return
		}
	}
}

// dispatchLoop is the sole mutator of routing decisions: it serializes
// inbound classification, outbound transmission, and session retirement
// through one goroutine.
func (s *spine) dispatchLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case raw := <-s.inboundCh:
			s.handleInbound(raw)
		case buf := <-s.outbox:
			s.handleOutbound(buf)
		case d := <-s.done:
			s.mu.Lock()
			delete(s.receiveSess, d.key)
			s.mu.Unlock()
			if d.msg != nil {
				s.deliverMailbox(d.msg)
			}
		case <-ticker.C:
		}
	}
}

// handleInbound implements the inbound dispatch rules of §4.6: checksum
// verification, transport routing, multisection reassembly, and raw
// pass-through.
func (s *spine) handleInbound(raw Frame) {
	if len(raw) < 2 || !VerifyChecksum(raw) {
		if s.cfg.PassInvalidMessages {
			s.deliverMailbox(append([]byte(nil), raw...))
		}
		return
	}
	buf := StripChecksum(raw)
	switch Classify(buf) {
	case KindMalformed:
		if s.cfg.PassInvalidMessages {
			s.deliverMailbox(buf)
		}
	case KindConn, KindData:
		s.routeTransport(buf)
	case KindMultisection:
		s.routeMultisection(buf)
	default:
		s.deliverMailbox(buf)
	}
}

// routeTransport handles a classified PID 197/198 frame. A send and a
// receive session to the same peer share the key (myMID, peer), so the
// frame's own kind and control code decide which session it belongs to
// rather than a fixed preference between the two maps: Data and RTS
// belong to the receive side (RTS may spawn a new session), CTS and EOM
// belong to the send side, and ABORT is tried against whichever side has
// a live session since either can originate it.
func (s *spine) routeTransport(buf []byte) {
	src, dst := buf[0], buf[3]

	if !s.cfg.SuppressFragments {
		s.deliverMailbox(buf)
	}
	if dst != s.cfg.MyMID && !s.cfg.ReassembleOthers {
		return
	}

	key := sessionKey{local: dst, remote: src}
	s.mu.Lock()
	rs, okR := s.receiveSess[key]
	ss, okS := s.sendSess[key]
	s.mu.Unlock()

	if Classify(buf) == KindData {
		if okR {
			rs.give(buf)
			return
		}
		s.sendControl(AbortFrame(dst, src))
		return
	}

	cf, err := ParseConn(buf)
	if err != nil {
		s.sendControl(AbortFrame(dst, src))
		return
	}

	switch cf.Control {
	case ControlRTS:
		if okR {
			rs.give(buf)
			return
		}
		s.spawnReceiveSession(cf)
	case ControlCTS, ControlEOM:
		if okS {
			ss.give(buf)
			return
		}
		s.sendControl(AbortFrame(dst, src))
	case ControlAbort:
		if okS {
			ss.give(buf)
		}
		if okR {
			rs.give(buf)
		}
		if !okS && !okR {
			return
		}
	default:
		if okR {
			rs.give(buf)
			return
		}
		s.sendControl(AbortFrame(dst, src))
	}
}

// routeMultisection handles a classified PID 192 frame.
func (s *spine) routeMultisection(buf []byte) {
	mirrored := false
	if !s.cfg.SuppressFragments {
		s.deliverMailbox(buf)
		mirrored = true
	}
	outcome := s.multisection.Feed(buf)
	switch {
	case outcome.Delivered != nil:
		s.deliverMailbox(outcome.Delivered)
	case outcome.PassThrough && !mirrored:
		s.deliverMailbox(buf)
	}
}

// spawnReceiveSession registers and launches a new C3 session for an
// unsolicited RTS.
func (s *spine) spawnReceiveSession(rts ConnFrame) {
	key := sessionKey{local: rts.Dst, remote: rts.Src}
	sess := newReceiveSession(s.logger, rts, s.outbox, s.done, s.stop)
	s.mu.Lock()
	s.receiveSess[key] = sess
	s.mu.Unlock()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		sess.Run()
	}()
}

// startSendSession registers a C4 session so inbound CTS/EOM/ABORT
// frames can be routed to it, then runs it to completion and retires it.
// Called from the facade's TransportSend, not from dispatchLoop, so the
// caller can block on result without stalling routing of other peers.
func (s *spine) startSendSession(sess *sendSession) {
	s.mu.Lock()
	s.sendSess[sess.key()] = sess
	s.mu.Unlock()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		sess.Run()
		s.mu.Lock()
		delete(s.sendSess, sess.key())
		s.mu.Unlock()
	}()
}

// handleOutbound implements outbound dispatch: transmit unless silent,
// mirror onto the inbound path when loopback is enabled.
func (s *spine) handleOutbound(buf []byte) {
	if !s.cfg.Silent {
		if err := s.link.Send(buf, false); err != nil {
			s.logger.Error("link send failed", "err", err)
		}
	}
	if s.cfg.Loopback {
		framed := AppendChecksum(buf)
		select {
		case s.inboundCh <- framed:
		case <-s.stop:
		}
	}
}

func (s *spine) sendControl(cf ConnFrame) {
	select {
	case s.outbox <- cf.Bytes():
	case <-s.stop:
	}
}

// deliverMailbox never blocks the dispatch loop: a full mailbox drops the
// message and logs, matching the bounded-channel choice made for session
// inboxes.
func (s *spine) deliverMailbox(buf []byte) {
	entry := mailboxEntry{msg: append([]byte(nil), buf...)}
	select {
	case s.mailbox <- entry:
	default:
		s.logger.Warn("dropped message, mailbox full")
	}
}

// readMailbox pops the next delivered message, blocking up to timeout.
// timeout <= 0 means a non-blocking poll.
func (s *spine) readMailbox(timeout time.Duration) ([]byte, error) {
	if timeout <= 0 {
		select {
		case m := <-s.mailbox:
			return m.msg, nil
		default:
			return nil, ErrEmpty
		}
	}
	select {
	case m := <-s.mailbox:
		return m.msg, nil
	case <-time.After(timeout):
		return nil, ErrEmpty
	case <-s.stop:
		return nil, ErrClosed
	}
}

package j1587

import (
	"log/slog"
	"time"
)

// receiveSession implements C3: the per-peer state machine that
// reassembles one connection-mode transport message from an inbound RTS,
// grounded on J1587Driver.py's J1587TransportReceiveSession.
type receiveSession struct {
	logger *slog.Logger

	myMID, peerMID MID
	segments       uint8
	length         uint16
	buffer         []DataFrame

	in   chan []byte // checksum-stripped frames routed by the spine
	out  chan<- []byte
	done chan<- deliverable
	stop <-chan struct{}
}

// deliverable is one assembled message or mailbox pass-through, reported
// back to the spine so it can forward to the mailbox and retire the
// session.
type deliverable struct {
	key sessionKey
	msg []byte // nil if the session simply terminated without delivering
}

func newReceiveSession(logger *slog.Logger, rts ConnFrame, out chan<- []byte, done chan<- deliverable, stop <-chan struct{}) *receiveSession {
	return &receiveSession{
		logger:   logger.With("service", "[RXSESS]", "peer", rts.Src, "local", rts.Dst),
		myMID:    rts.Dst,
		peerMID:  rts.Src,
		segments: rts.Segments,
		length:   rts.TotalLength,
		buffer:   make([]DataFrame, rts.Segments),
		in:       make(chan []byte, 32),
		out:      out,
		done:     done,
		stop:     stop,
	}
}

func (s *receiveSession) key() sessionKey { return sessionKey{local: s.myMID, remote: s.peerMID} }

// give enqueues one checksum-stripped frame routed to this session by the
// spine. It never blocks the spine: the channel is generously buffered,
// and a full channel drops the frame (mirroring the original's unbounded
// queue, which is an equally poor outcome under extreme burst — here we
// at least bound memory).
func (s *receiveSession) give(buf []byte) {
	select {
	case s.in <- buf:
	default:
		s.logger.Warn("dropped frame routed to receive session, inbound queue full")
	}
}

// Run drives the state machine to completion and reports the outcome on
// done. It never blocks the spine and observes stop at every suspension
// point.
func (s *receiveSession) Run() {
	cts := CTS(s.myMID, s.peerMID, s.segments, 1)
	if !s.emit(cts.Bytes()) {
		return
	}

	deadline := time.Now().Add(60 * time.Second)
	missing := func() bool {
		for _, d := range s.buffer {
			if d.Payload == nil {
				return true
			}
		}
		return false
	}

	for missing() && time.Now().Before(deadline) {
		select {
		case <-s.stop:
			return
		default:
		}

		select {
		case <-s.stop:
			return
		case raw := <-s.in:
			if !s.handle(raw) {
				s.report(deliverable{key: s.key(), msg: nil})
				return
			}
		case <-time.After(2 * time.Second):
			s.retransmitMissingCTS()
		}
	}

	if missing() {
		s.abort()
		s.report(deliverable{key: s.key(), msg: nil})
		return
	}

	eom := EOMFrame(s.myMID, s.peerMID)
	for i := 0; i < 3; i++ {
		if !s.emit(eom.Bytes()) {
			return
		}
	}

	data := make([]byte, 1, 1+int(s.length))
	data[0] = s.peerMID
	for _, d := range s.buffer {
		data = append(data, d.Payload...)
	}
	s.report(deliverable{key: s.key(), msg: data})
}

// handle processes one routed frame. It returns false if the session
// should stop immediately (abort sent, or parent stop observed).
func (s *receiveSession) handle(raw []byte) bool {
	switch Classify(raw) {
	case KindConn:
		cf, err := ParseConn(raw)
		if err != nil {
			s.abort()
			return false
		}
		switch cf.Control {
		case ControlAbort:
			return false
		case ControlRTS:
			// Redundant RTS, ignore.
			return true
		default:
			s.logger.Warn("unexpected connection frame while collecting", "control", cf.Control)
			s.abort()
			return false
		}
	case KindData:
		df, err := ParseData(raw)
		if err != nil || df.SegmentID == 0 || int(df.SegmentID) > len(s.buffer) {
			return true
		}
		s.buffer[df.SegmentID-1] = df
		return true
	default:
		s.logger.Warn("unexpected frame while collecting", "raw", raw)
		s.abort()
		return false
	}
}

func (s *receiveSession) retransmitMissingCTS() {
	for i, d := range s.buffer {
		if d.Payload != nil {
			continue
		}
		cts := CTS(s.myMID, s.peerMID, 1, uint8(i+1))
		if !s.emit(cts.Bytes()) {
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
}

func (s *receiveSession) abort() {
	abort := AbortFrame(s.myMID, s.peerMID)
	for i := 0; i < 3; i++ {
		if !s.emit(abort.Bytes()) {
			return
		}
	}
}

// emit enqueues a frame for outbound transmission, returning false if the
// session should stop (parent closed). A nil out discards the frame; the
// spine applies silent mode itself when it dispatches outbound frames.
func (s *receiveSession) emit(buf []byte) bool {
	select {
	case <-s.stop:
		return false
	default:
	}
	if s.out == nil {
		return true
	}
	select {
	case s.out <- buf:
		return true
	case <-s.stop:
		return false
	}
}

func (s *receiveSession) report(d deliverable) {
	select {
	case s.done <- d:
	case <-s.stop:
	}
}

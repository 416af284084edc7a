package j1587

import (
	"log/slog"
	"time"
)

// sendSession implements C4: the per-peer state machine that fragments
// and transmits one connection-mode transport message, grounded on
// J1587Driver.py's J1587SendSession.
type sendSession struct {
	logger *slog.Logger

	myMID, dstMID MID
	dataFrames    []DataFrame
	totalLength   int
	preemptCTS    bool

	in      chan []byte
	out     chan<- []byte
	success chan<- bool
	stop    <-chan struct{}
}

func newSendSession(logger *slog.Logger, myMID, dst MID, msg []byte, preemptCTS bool, out chan<- []byte, success chan<- bool, stop <-chan struct{}) *sendSession {
	var frames []DataFrame
	segID := uint8(1)
	for off := 0; off < len(msg); off += MaxSegmentPayload {
		end := off + MaxSegmentPayload
		if end > len(msg) {
			end = len(msg)
		}
		frames = append(frames, NewDataFrame(myMID, dst, segID, msg[off:end]))
		segID++
	}
	return &sendSession{
		logger:      logger.With("service", "[TXSESS]", "peer", dst, "local", myMID),
		myMID:       myMID,
		dstMID:      dst,
		dataFrames:  frames,
		totalLength: len(msg),
		preemptCTS:  preemptCTS,
		in:          make(chan []byte, 32),
		out:         out,
		success:     success,
		stop:        stop,
	}
}

func (s *sendSession) key() sessionKey { return sessionKey{local: s.myMID, remote: s.dstMID} }

func (s *sendSession) give(buf []byte) {
	select {
	case s.in <- buf:
	default:
		s.logger.Warn("dropped frame routed to send session, inbound queue full")
	}
}

// Run drives the state machine to completion and reports success/failure
// on the success channel.
func (s *sendSession) Run() {
	rts := RTS(s.myMID, s.dstMID, uint8(len(s.dataFrames)), uint16(s.totalLength))
	if !s.emit(rts.Bytes()) {
		return
	}

	if s.preemptCTS {
		for _, df := range s.dataFrames {
			if !s.emit(df.Bytes()) {
				return
			}
		}
		s.reportSuccess(true)
		return
	}

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case <-s.stop:
			return
		case raw := <-s.in:
			done, ok, cont := s.handle(raw)
			if !cont {
				return
			}
			if done {
				s.reportSuccess(ok)
				return
			}
		case <-time.After(2 * time.Second):
			// No response yet; keep waiting for the remaining deadline,
			// matching the original's poll loop.
		}
	}
	s.reportSuccess(false)
}

// handle processes one routed conn-management frame. Returns (done,
// success, continue) where continue is false if the session should stop
// immediately.
func (s *sendSession) handle(raw []byte) (done bool, success bool, cont bool) {
	if Classify(raw) != KindConn {
		s.logger.Warn("send session received non-connection frame", "raw", raw)
		return false, false, true
	}
	cf, err := ParseConn(raw)
	if err != nil {
		return false, false, true
	}
	switch cf.Control {
	case ControlEOM:
		return true, true, true
	case ControlAbort:
		return true, false, true
	case ControlCTS:
		base := int(cf.NextSegment) - 1
		for i := 0; i < int(cf.NumSegments); i++ {
			idx := base + i
			if idx < 0 || idx >= len(s.dataFrames) {
				continue
			}
			if !s.emit(s.dataFrames[idx].Bytes()) {
				return false, false, false
			}
		}
		return false, false, true
	default:
		// RTS or RSD: ignored, matching spec's Waiting/RTS|RSD -> Waiting.
		return false, false, true
	}
}

func (s *sendSession) emit(buf []byte) bool {
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

func (s *sendSession) reportSuccess(ok bool) {
	select {
	case s.success <- ok:
	case <-s.stop:
	}
}

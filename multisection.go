package j1587

// multisectionKey identifies one multisection reassembly in progress.
type multisectionKey struct {
	peer MID
	pid  PID
}

// multisectionSession accumulates the sections of one multisection
// parameter message (PID 192). Unlike connection-mode transport, this has
// no timeout and no outbound frames of its own: it's a pure function of
// the inbound frame stream, so the worker spine owns it directly rather
// than handing it to a separate goroutine.
type multisectionSession struct {
	targetLen       uint8
	lastSeenSection uint8
	accumulator     []byte
}

// multisectionReassembler implements C5: a per-(peer,PID) accumulator for
// multisection parameter frames, grounded on
// J1587Driver.py:handle_multisection_message.
type multisectionReassembler struct {
	sessions map[multisectionKey]*multisectionSession
}

func newMultisectionReassembler() *multisectionReassembler {
	return &multisectionReassembler{sessions: make(map[multisectionKey]*multisectionSession)}
}

// multisectionOutcome reports what a multisection reassembler should do
// with the frame it was just fed.
type multisectionOutcome struct {
	// Delivered is non-nil when a complete message was assembled:
	// [src, targetPid, targetLen] ++ accumulator.
	Delivered []byte
	// PassThrough is true when the raw frame (sans checksum) should be
	// delivered to the mailbox unchanged, because reassembly could not
	// proceed (too short, out-of-order, or no matching session).
	PassThrough bool
}

// Feed processes one checksum-stripped PID 192 frame. buf must be at
// least 2 bytes (already guaranteed by Classify returning KindMultisection
// only for non-empty PID-192 frames, but section framing needs 5).
func (r *multisectionReassembler) Feed(buf []byte) multisectionOutcome {
	if len(buf) < 5 {
		return multisectionOutcome{PassThrough: true}
	}
	src := buf[0]
	targetPID := buf[3]
	sectionByte := buf[4]
	sectionFinal := sectionByte >> 4
	sectionThis := sectionByte & 0x0F
	key := multisectionKey{peer: src, pid: targetPID}

	if sectionThis == 0 {
		if len(buf) < 6 {
			delete(r.sessions, key)
			return multisectionOutcome{PassThrough: true}
		}
		r.sessions[key] = &multisectionSession{
			targetLen:       buf[5],
			lastSeenSection: 0,
			accumulator:     append([]byte(nil), buf[6:]...),
		}
	} else {
		session, ok := r.sessions[key]
		if !ok || session.lastSeenSection+1 != sectionThis {
			delete(r.sessions, key)
			return multisectionOutcome{PassThrough: true}
		}
		session.lastSeenSection = sectionThis
		session.accumulator = append(session.accumulator, buf[5:]...)

		if sectionThis == sectionFinal && uint8(len(session.accumulator)) == session.targetLen {
			delete(r.sessions, key)
			delivered := make([]byte, 0, 3+len(session.accumulator))
			delivered = append(delivered, src, targetPID, session.targetLen)
			delivered = append(delivered, session.accumulator...)
			return multisectionOutcome{Delivered: delivered}
		}
	}
	return multisectionOutcome{}
}

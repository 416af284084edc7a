package j1587

import "encoding/binary"

// FrameKind classifies a checksum-stripped J1708 frame for dispatch by
// the worker spine.
type FrameKind uint8

const (
	KindNonTransport FrameKind = iota
	KindConn
	KindData
	KindMultisection
	KindMalformed
)

// Classify inspects a checksum-stripped frame and reports its kind. It
// does not validate control-code-specific lengths beyond what's needed to
// safely dispatch (e.g. a CTS-shaped frame that's too short to carry its
// segment fields is still KindConn; ParseConn rejects it).
func Classify(buf []byte) FrameKind {
	if len(buf) < 2 {
		return KindMalformed
	}
	switch buf[1] {
	case PIDConnMgmt:
		if len(buf) >= 5 {
			return KindConn
		}
		return KindMalformed
	case PIDDataTransfer:
		if len(buf) >= 6 {
			return KindData
		}
		return KindMalformed
	case PIDMultisection:
		return KindMultisection
	default:
		return KindNonTransport
	}
}

// ParseConn parses a checksum-stripped PID 197 frame. Callers must have
// already classified buf as KindConn.
func ParseConn(buf []byte) (ConnFrame, error) {
	if len(buf) < 5 {
		return ConnFrame{}, ErrMalformedFrame
	}
	f := ConnFrame{Src: buf[0], Dst: buf[3], Control: ControlCode(buf[4])}
	switch f.Control {
	case ControlRTS:
		if len(buf) < 8 {
			return ConnFrame{}, ErrMalformedFrame
		}
		f.Segments = buf[5]
		f.TotalLength = binary.LittleEndian.Uint16(buf[6:8])
	case ControlCTS:
		if len(buf) < 7 {
			return ConnFrame{}, ErrMalformedFrame
		}
		f.NumSegments = buf[5]
		f.NextSegment = buf[6]
	case ControlRSD:
		if len(buf) < 7 {
			return ConnFrame{}, ErrMalformedFrame
		}
		f.Request = binary.LittleEndian.Uint16(buf[5:7])
	case ControlEOM, ControlAbort:
		// No further fields.
	default:
		return ConnFrame{}, ErrMalformedFrame
	}
	return f, nil
}

// ParseData parses a checksum-stripped PID 198 frame. Callers must have
// already classified buf as KindData.
func ParseData(buf []byte) (DataFrame, error) {
	if len(buf) < 5 {
		return DataFrame{}, ErrMalformedFrame
	}
	return DataFrame{
		Src:       buf[0],
		Dst:       buf[3],
		SegmentID: buf[4],
		Payload:   buf[5:],
	}, nil
}

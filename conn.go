package j1587

import "encoding/binary"

// ControlCode is the connection-management control code carried by a
// PID 197 frame (RTS/CTS/EOM/RSD/ABORT).
type ControlCode uint8

const (
	ControlRTS   ControlCode = 1
	ControlCTS   ControlCode = 2
	ControlEOM   ControlCode = 3
	ControlRSD   ControlCode = 4
	ControlAbort ControlCode = 255
)

var controlCodeNames = map[ControlCode]string{
	ControlRTS:   "RTS",
	ControlCTS:   "CTS",
	ControlEOM:   "EOM",
	ControlRSD:   "RSD",
	ControlAbort: "ABORT",
}

// String implements fmt.Stringer.
func (c ControlCode) String() string {
	if name, ok := controlCodeNames[c]; ok {
		return name
	}
	return "UNKNOWN"
}

// ConnFrame is a parsed PID 197 connection-management frame.
type ConnFrame struct {
	Src, Dst MID
	Control  ControlCode

	// Set for Control == ControlRTS.
	Segments     uint8
	TotalLength  uint16
	// Set for Control == ControlCTS.
	NumSegments uint8
	NextSegment uint8
	// Set for Control == ControlRSD.
	Request uint16
}

// RTS builds a request-to-send frame.
func RTS(src, dst MID, segments uint8, totalLength uint16) ConnFrame {
	return ConnFrame{Src: src, Dst: dst, Control: ControlRTS, Segments: segments, TotalLength: totalLength}
}

// CTS builds a clear-to-send frame. Segments are 1-indexed, so
// nextSegment is the first segment id the peer should (re)send.
func CTS(src, dst MID, numSegments, nextSegment uint8) ConnFrame {
	return ConnFrame{Src: src, Dst: dst, Control: ControlCTS, NumSegments: numSegments, NextSegment: nextSegment}
}

// EOMFrame builds an end-of-message frame.
func EOMFrame(src, dst MID) ConnFrame {
	return ConnFrame{Src: src, Dst: dst, Control: ControlEOM}
}

// AbortFrame builds an abort frame.
func AbortFrame(src, dst MID) ConnFrame {
	return ConnFrame{Src: src, Dst: dst, Control: ControlAbort}
}

// RSDFrame builds a request-specific-data frame.
func RSDFrame(src, dst MID, request uint16) ConnFrame {
	return ConnFrame{Src: src, Dst: dst, Control: ControlRSD, Request: request}
}

// Bytes serializes the frame, without a checksum.
func (f ConnFrame) Bytes() []byte {
	switch f.Control {
	case ControlRTS:
		buf := []byte{f.Src, PIDConnMgmt, 5, f.Dst, byte(f.Control), f.Segments, 0, 0}
		binary.LittleEndian.PutUint16(buf[6:8], f.TotalLength)
		return buf
	case ControlCTS:
		return []byte{f.Src, PIDConnMgmt, 4, f.Dst, byte(f.Control), f.NumSegments, f.NextSegment}
	case ControlRSD:
		buf := []byte{f.Src, PIDConnMgmt, 4, f.Dst, byte(f.Control), 0, 0}
		binary.LittleEndian.PutUint16(buf[5:7], f.Request)
		return buf
	default: // EOM, ABORT
		return []byte{f.Src, PIDConnMgmt, 2, f.Dst, byte(f.Control)}
	}
}

// DataFrame is a parsed PID 198 connection-mode data-transfer frame.
type DataFrame struct {
	Src, Dst  MID
	SegmentID uint8
	Payload   []byte
}

// NewDataFrame builds a data-transfer frame carrying one segment.
func NewDataFrame(src, dst MID, segmentID uint8, payload []byte) DataFrame {
	return DataFrame{Src: src, Dst: dst, SegmentID: segmentID, Payload: payload}
}

// Bytes serializes the frame, without a checksum.
func (f DataFrame) Bytes() []byte {
	buf := make([]byte, 4, 4+len(f.Payload))
	buf[0] = f.Src
	buf[1] = PIDDataTransfer
	buf[2] = byte(2 + len(f.Payload))
	buf[3] = f.Dst
	buf = append(buf, f.SegmentID)
	buf = append(buf, f.Payload...)
	return buf
}

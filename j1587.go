// Package j1587 implements a transport-layer driver for the SAE J1587
// vehicle-diagnostics protocol running atop an SAE J1708 serial link.
//
// J1587 carries variable-length application messages addressed by MID
// (Message Identifier). J1708 only provides fixed-size frames of up to
// 21 payload bytes plus a checksum byte, so this package transparently
// handles the two fragmentation/reassembly schemes used on top of it:
// connection-mode transport (RTS/CTS/EOM, PID 197/198) and multisection
// parameter transport (PID 192). It also paces transmission on the
// half-duplex bus so this driver plays nicely with other ECUs.
//
// The entry point is [NewDriver], which wires a [Link] backend (UDP or
// RP1210, see the internal/backend packages) to a [Driver] facade
// exposing Send, TransportSend, Read, RequestPID and Close.
package j1587

// MID is an 8-bit peer address on the J1708/J1587 bus.
type MID = uint8

// PID is an 8-bit parameter identifier tagging a data element within a
// J1587 message. PIDs 192, 197 and 198 are reserved for transport.
type PID = uint8

const (
	// PIDMultisection tags a multisection parameter transport frame.
	PIDMultisection PID = 192
	// PIDConnMgmt tags a connection-management frame (RTS/CTS/EOM/RSD/ABORT).
	PIDConnMgmt PID = 197
	// PIDDataTransfer tags a connection-mode data-transfer frame.
	PIDDataTransfer PID = 198
)

// MaxSegmentPayload is the largest payload a single connection-mode
// data-transfer frame may carry. Each data frame spends 5 bytes on
// src/PID/len/dst/segment_id, so a full 15-byte segment makes a 20-byte
// frame, within J1708's 21-byte limit before the checksum.
const MaxSegmentPayload = 15

// MaxSegments is the largest number of segments a connection-mode
// transport message may be split into (segment ids are a single byte,
// 1-indexed).
const MaxSegments = 255

// MaxTransportLength is the largest payload a connection-mode transport
// message may carry end to end.
const MaxTransportLength = MaxSegments * MaxSegmentPayload

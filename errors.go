package j1587

import "errors"

// Sentinel errors surfaced by the driver facade. Protocol-level errors are
// handled internally by the offending session and only ever reach the
// caller as one of these.
var (
	ErrTimeout           = errors.New("j1587: operation timed out")
	ErrEmpty             = errors.New("j1587: no message available")
	ErrMalformedFrame    = errors.New("j1587: malformed frame")
	ErrChecksumFailed    = errors.New("j1587: checksum verification failed")
	ErrProtocolViolation = errors.New("j1587: protocol violation")
	ErrLinkClosed        = errors.New("j1587: link closed")
	ErrIllegalArgument   = errors.New("j1587: illegal argument")
	ErrClosed            = errors.New("j1587: driver closed")
	ErrNotImplemented    = errors.New("j1587: not implemented")
)

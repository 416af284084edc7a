// Package rp1210 implements the RP1210-based J1708 link backend used on
// Windows host adapters, grounded on J1708Driver.py's RP1210J1708Driver.
// RP1210 itself is a Windows-only vendor DLL API; on other platforms
// this package exposes the same surface but every constructor fails with
// [j1587.ErrNotImplemented], matching the CLI's documented exit code 1
// for unsupported platforms.
package rp1210

import (
	"runtime"
	"time"

	j1587 "github.com/haystack/j1587"
)

// Config names the vendor DLL and device id RP1210 needs to open a
// connection, plus which protocol string to request.
type Config struct {
	DLLName  string
	DeviceID int
	// Protocol defaults to "J1708:Baud=9600"; ProtocolFallback is tried
	// if the primary fails, defaulting to "PLC:Baud=9600".
	Protocol         string
	ProtocolFallback string
}

// DefaultConfig fills in the two protocol strings the source tries, in
// order.
func DefaultConfig(dllName string, deviceID int) Config {
	return Config{
		DLLName:          dllName,
		DeviceID:         deviceID,
		Protocol:         "J1708:Baud=9600",
		ProtocolFallback: "PLC:Baud=9600",
	}
}

// Link implements [j1587.Link] over an RP1210 vendor DLL. On this build
// it is a stub: every platform other than Windows lacks the RP1210 COM
// surface the vendor DLLs expose, so Open always fails here. A
// Windows-specific build tagged rp1210_windows.go would implement the
// client calls (ClientConnect/ReadMessage/SendMessage/ClientDisconnect)
// against the same Config.
type Link struct {
	cfg Config
}

// Open constructs a Link for the named DLL and device. On non-Windows
// platforms it always returns [j1587.ErrNotImplemented].
func Open(cfg Config) (*Link, error) {
	if runtime.GOOS != "windows" {
		return nil, j1587.ErrNotImplemented
	}
	return &Link{cfg: cfg}, nil
}

// NewLink adapts Open to [j1587.NewBackendFunc]; channel is the DLL name,
// with device id 1 assumed (matching the source's implicit default).
func NewLink(channel string) (j1587.Link, error) {
	return Open(DefaultConfig(channel, 1))
}

func init() {
	j1587.RegisterBackend("rp1210", NewLink)
}

// Read implements [j1587.Link]. Unreachable on non-Windows builds since
// Open always fails first.
func (l *Link) Read(timeout time.Duration) (j1587.Frame, error) {
	return nil, j1587.ErrNotImplemented
}

// Send implements [j1587.Link]. The real implementation prepends a zero
// priority byte before handing the frame to the DLL, per §6's wire note.
func (l *Link) Send(buf []byte, hasChecksum bool) error {
	return j1587.ErrNotImplemented
}

// Close implements [j1587.Link].
func (l *Link) Close() error {
	return nil
}

// ListDevices enumerates RP1210-registered adapters for --list-rp1210.
// On non-Windows platforms it returns an empty list and a non-nil error
// so the CLI can exit 1, matching §6's documented unsupported-platform
// behavior.
func ListDevices() ([]string, error) {
	if runtime.GOOS != "windows" {
		return nil, j1587.ErrNotImplemented
	}
	return nil, j1587.ErrNotImplemented
}

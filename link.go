package j1587

import (
	"sync"
	"time"
)

// Link is a raw J1708 frame transport: something that can read complete
// frames (trailing checksum included) and send raw bytes, appending a
// checksum unless the caller says it already has one. Implementations
// live under internal/backend; see [LinkFactory].
type Link interface {
	// Read blocks for up to timeout waiting for one complete frame. It
	// returns (nil, nil) on timeout, and a non-nil error only for link
	// failures (see [ErrLinkClosed]).
	Read(timeout time.Duration) (Frame, error)
	// Send transmits buf, observing bus pacing. If hasChecksum is false a
	// checksum byte is computed and appended before transmission.
	Send(buf []byte, hasChecksum bool) error
	// Close releases the underlying transport.
	Close() error
}

// LinkFactory constructs a [Link]. A process-wide default is installed
// with SetDefaultLinkFactory; named backend constructors are registered
// separately, as [NewBackendFunc] values, with RegisterBackend.
type LinkFactory interface {
	Make() (Link, error)
}

// LinkFactoryFunc adapts a plain function to a [LinkFactory].
type LinkFactoryFunc func() (Link, error)

// Make implements [LinkFactory].
func (f LinkFactoryFunc) Make() (Link, error) { return f() }

// NewBackendFunc constructs a [Link] for a named backend given a
// backend-specific channel/address string, mirroring
// pkg/can.NewInterfaceFunc.
type NewBackendFunc func(channel string) (Link, error)

var (
	backendMu       sync.Mutex
	backendRegistry = make(map[string]NewBackendFunc)
)

// RegisterBackend registers a named link backend constructor. Backend
// packages call this from an init() function, mirroring
// pkg/can.RegisterInterface.
func RegisterBackend(name string, newLink NewBackendFunc) {
	backendMu.Lock()
	defer backendMu.Unlock()
	backendRegistry[name] = newLink
}

// AvailableBackends returns the names of all backends registered so far.
func AvailableBackends() []string {
	backendMu.Lock()
	defer backendMu.Unlock()
	names := make([]string, 0, len(backendRegistry))
	for name := range backendRegistry {
		names = append(names, name)
	}
	return names
}

// NewLink constructs a [Link] for the named backend and channel, e.g.
// NewLink("udp", "localhost:6969:6970").
func NewLink(backend, channel string) (Link, error) {
	backendMu.Lock()
	newBackend, ok := backendRegistry[backend]
	backendMu.Unlock()
	if !ok {
		return nil, ErrIllegalArgument
	}
	return newBackend(channel)
}

// process-wide default factory, guarded by a lock the way the original
// source guards its module-level j1708_factory_singleton. Tests may swap
// it out; production code should prefer explicit dependency injection via
// NewDriver's Link argument.
var (
	defaultFactoryMu sync.Mutex
	defaultFactory   LinkFactory
)

// SetDefaultLinkFactory installs the process-wide default [LinkFactory].
// This exists only as CLI/test sugar; library callers should construct a
// Link explicitly and pass it to NewDriver.
func SetDefaultLinkFactory(factory LinkFactory) {
	defaultFactoryMu.Lock()
	defer defaultFactoryMu.Unlock()
	defaultFactory = factory
}

// DefaultLinkFactory returns the process-wide default [LinkFactory], or
// nil if none has been installed.
func DefaultLinkFactory() LinkFactory {
	defaultFactoryMu.Lock()
	defer defaultFactoryMu.Unlock()
	return defaultFactory
}

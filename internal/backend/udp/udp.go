// Package udp implements the UDP-bridged J1708 bus backend used by the
// TruckDuck family of hardware interfaces: one UDP port pair per bus, a
// serve port the driver transmits to and a client port it binds and
// reads from, grounded on J1708Driver.py's J1708Driver class.
package udp

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	j1587 "github.com/haystack/j1587"
)

// ECM and DPA are the default port pairs for the two buses a TruckDuck
// exposes: (servePort, clientPort).
var (
	ECM = [2]int{6969, 6970}
	DPA = [2]int{6971, 6972}
)

// Link implements [j1587.Link] over a pair of UDP sockets.
type Link struct {
	conn    *net.UDPConn
	dstAddr *net.UDPAddr
	pacing  j1587.PacingClock
}

// New binds clientPort on host and targets servePort on host for
// transmission, mirroring J1708Driver.__init__(ports, host).
func New(host string, servePort, clientPort int) (*Link, error) {
	laddr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", host, clientPort))
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, err
	}
	dst, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", host, servePort))
	if err != nil {
		conn.Close()
		return nil, err
	}
	return &Link{conn: conn, dstAddr: dst}, nil
}

// NewLink adapts New to [j1587.NewBackendFunc]'s channel-string
// signature, accepting "host:servePort:clientPort" or the bare bus name
// "ecm"/"dpa" for the documented defaults on localhost.
func NewLink(channel string) (j1587.Link, error) {
	host, serve, client := "localhost", ECM[0], ECM[1]
	switch channel {
	case "", "ecm":
	case "dpa":
		serve, client = DPA[0], DPA[1]
	default:
		var err error
		host, serve, client, err = parseChannel(channel)
		if err != nil {
			return nil, err
		}
	}
	return New(host, serve, client)
}

func parseChannel(channel string) (host string, serve, client int, err error) {
	parts := strings.Split(channel, ":")
	if len(parts) != 3 {
		return "", 0, 0, j1587.ErrIllegalArgument
	}
	s, err := strconv.Atoi(parts[1])
	if err != nil {
		return "", 0, 0, j1587.ErrIllegalArgument
	}
	c, err := strconv.Atoi(parts[2])
	if err != nil {
		return "", 0, 0, j1587.ErrIllegalArgument
	}
	return parts[0], s, c, nil
}

func init() {
	j1587.RegisterBackend("udp", NewLink)
}

// Read implements [j1587.Link]. It returns (nil, nil) on timeout.
func (l *Link) Read(timeout time.Duration) (j1587.Frame, error) {
	if err := l.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, err
	}
	buf := make([]byte, 256)
	n, err := l.conn.Read(buf)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return nil, nil
		}
		return nil, j1587.ErrLinkClosed
	}
	return j1587.Frame(buf[:n]), nil
}

// Send implements [j1587.Link], pacing transmissions per J2497 timing
// the way the source's send_message busy-waits on next_send_ns.
func (l *Link) Send(buf []byte, hasChecksum bool) error {
	msg := buf
	if !hasChecksum {
		msg = j1587.AppendChecksum(buf)
	}
	l.pacing.Wait(len(msg))
	_, err := l.conn.WriteToUDP(msg, l.dstAddr)
	return err
}

// Close implements [j1587.Link].
func (l *Link) Close() error {
	return l.conn.Close()
}

// Package serial implements the raw-UART J1708 link backend for
// hardware that exposes the bus as a plain serial port rather than
// through a TruckDuck's UDP bridge or a Windows RP1210 DLL. J1708 has no
// on-wire framing delimiter, so frame boundaries are inferred the way a
// real UART-based sniffer infers them: a burst of bytes terminated by a
// short silence is one frame. The accumulation buffer is internal/fifo,
// grounded on the teacher's SDO client buffering.
package serial

import (
	"errors"
	"time"

	goserial "github.com/daedaluz/goserial"

	j1587 "github.com/haystack/j1587"
	"github.com/haystack/j1587/internal/fifo"
)

// interByteGap is the silence window used to decide a frame has ended:
// comfortably longer than one J1708 bit time at 9600 baud, short enough
// not to merge two back-to-back frames separated by the spec's inter-frame
// gap.
const interByteGap = 2 * time.Millisecond

// maxFrameLen bounds one accumulated frame; J1708 frames are at most 21
// payload bytes plus one checksum byte.
const maxFrameLen = 22

// Link implements [j1587.Link] over a raw serial port.
type Link struct {
	port   *goserial.Port
	pacing j1587.PacingClock
	buf    *fifo.Fifo
}

// Open configures path at 9600 baud 8N1 raw mode, matching J1708's
// native bit rate.
func Open(path string) (*Link, error) {
	port, err := goserial.Open(path, nil)
	if err != nil {
		return nil, err
	}
	attrs, err := port.GetAttr2()
	if err != nil {
		port.Close()
		return nil, err
	}
	attrs.MakeRaw()
	attrs.SetSpeed(goserial.B9600)
	if err := port.SetAttr2(goserial.TCSANOW, attrs); err != nil {
		port.Close()
		return nil, err
	}
	// Fifo reserves one slot to disambiguate full from empty, so size it
	// one larger than the longest frame it needs to hold.
	return &Link{port: port, buf: fifo.NewFifo(maxFrameLen + 1)}, nil
}

// NewLink adapts Open to [j1587.NewBackendFunc]; channel is the device
// path, e.g. "/dev/ttyUSB0".
func NewLink(channel string) (j1587.Link, error) {
	return Open(channel)
}

func init() {
	j1587.RegisterBackend("serial", NewLink)
}

// Read implements [j1587.Link], accumulating a burst of bytes separated
// from the next by at least interByteGap.
func (l *Link) Read(timeout time.Duration) (j1587.Frame, error) {
	l.buf.Reset()
	one := make([]byte, 1)

	deadline := time.Now().Add(timeout)
	n, err := l.port.ReadTimeout(one, time.Until(deadline))
	if err != nil {
		if errors.Is(err, goserial.ErrClosed) {
			return nil, j1587.ErrLinkClosed
		}
		return nil, nil // timed out before any byte arrived
	}
	if n == 0 {
		return nil, nil
	}
	l.buf.Write(one[:n])

	for l.buf.GetOccupied() < maxFrameLen {
		n, err := l.port.ReadTimeout(one, interByteGap)
		if err != nil || n == 0 {
			break
		}
		l.buf.Write(one[:n])
	}

	frame := make([]byte, l.buf.GetOccupied())
	l.buf.Read(frame)
	return j1587.Frame(frame), nil
}

// Send implements [j1587.Link].
func (l *Link) Send(buf []byte, hasChecksum bool) error {
	msg := buf
	if !hasChecksum {
		msg = j1587.AppendChecksum(buf)
	}
	l.pacing.Wait(len(msg))
	_, err := l.port.Write(msg)
	return err
}

// Close implements [j1587.Link].
func (l *Link) Close() error {
	return l.port.Close()
}

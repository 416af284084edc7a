package j1587

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haystack/j1587/internal/testbus"
)

// RequestPID sends the [mid, 0, pid] poll and returns the matching
// response's payload once the peer answers.
func TestDriverRequestPID(t *testing.T) {
	bus := testbus.NewBus()
	requester := NewDriver(bus.NewLink(), DefaultConfig(0xac))
	defer requester.Close()
	responder := NewDriver(bus.NewLink(), DefaultConfig(0x80))
	defer responder.Close()

	go func() {
		req, err := pollN(responder, 2*time.Second)
		if err != nil {
			return
		}
		if len(req) >= 3 && req[2] == 84 {
			responder.Send([]byte{0x80, 84, 0x2a})
		}
	}()

	got, err := requester.RequestPID(0x80, 84)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x2a}, got)
}

// RequestPID reports ErrTimeout if nobody answers.
func TestDriverRequestPIDTimeout(t *testing.T) {
	bus := testbus.NewBus()
	requester := NewDriver(bus.NewLink(), DefaultConfig(0xac))
	defer requester.Close()

	_, err := requester.RequestPID(0x80, 84)
	assert.Equal(t, ErrTimeout, err)
}

// Extended-page PIDs encode as a 4-byte request with 255 as a marker and
// the PID folded mod 256.
func TestDriverRequestPIDExtendedPage(t *testing.T) {
	bus := testbus.NewBus()
	requester := NewDriver(bus.NewLink(), DefaultConfig(0xac))
	defer requester.Close()
	responder := NewDriver(bus.NewLink(), DefaultConfig(0x80))
	defer responder.Close()

	go func() {
		req, err := pollN(responder, 2*time.Second)
		if err != nil {
			return
		}
		if len(req) >= 4 && req[2] == 255 && req[3] == byte(300%256) {
			responder.Send([]byte{0x80, byte(300 % 256), 0x99})
		}
	}()

	got, err := requester.RequestPID(0x80, 300)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x99}, got)
}

// Close stops accepting new sends.
func TestDriverCloseRejectsFurtherSends(t *testing.T) {
	bus := testbus.NewBus()
	d := NewDriver(bus.NewLink(), DefaultConfig(0xac))
	require.NoError(t, d.Close())

	err := d.Send([]byte{0x80, 0x00})
	assert.Equal(t, ErrClosed, err)
}

func pollN(d *Driver, within time.Duration) ([]byte, error) {
	deadline := time.Now().Add(within)
	for time.Now().Before(deadline) {
		msg, err := d.Read(true, 100*time.Millisecond)
		if err == nil {
			return msg, nil
		}
	}
	return nil, ErrEmpty
}

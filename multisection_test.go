package j1587

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// S7 — three PID-192 sections reassemble to one multisection delivery.
func TestMultisectionReassembly(t *testing.T) {
	r := newMultisectionReassembler()

	payload := make([]byte, 0x21)
	for i := range payload {
		payload[i] = byte(i)
	}

	section0 := append([]byte{0x80, PIDMultisection, 0x06, 243, 0x20, 0x21}, payload[:11]...)
	section1 := append([]byte{0x80, PIDMultisection, 0x06, 243, 0x21}, payload[11:22]...)
	section2 := append([]byte{0x80, PIDMultisection, 0x06, 243, 0x22}, payload[22:]...)

	assert.Equal(t, multisectionOutcome{}, r.Feed(section0))
	assert.Equal(t, multisectionOutcome{}, r.Feed(section1))

	outcome := r.Feed(section2)
	expect := append([]byte{0x80, 243, 0x21}, payload...)
	assert.Equal(t, expect, outcome.Delivered)
}

// A gap in section numbering drops the session and passes the offending
// frame through, per invariant 4.
func TestMultisectionGapDropsSession(t *testing.T) {
	r := newMultisectionReassembler()

	section0 := []byte{0x80, PIDMultisection, 0x06, 243, 0x20, 0x21, 0x00}
	skipTo2 := []byte{0x80, PIDMultisection, 0x06, 243, 0x22, 0xff}

	assert.Equal(t, multisectionOutcome{}, r.Feed(section0))
	outcome := r.Feed(skipTo2)
	assert.Nil(t, outcome.Delivered)
	assert.True(t, outcome.PassThrough)

	_, exists := r.sessions[multisectionKey{peer: 0x80, pid: 243}]
	assert.False(t, exists)
}

func TestMultisectionShortFramePassesThrough(t *testing.T) {
	r := newMultisectionReassembler()
	outcome := r.Feed([]byte{0x80, PIDMultisection, 0x00})
	assert.True(t, outcome.PassThrough)
	assert.Nil(t, outcome.Delivered)
}

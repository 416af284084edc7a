package j1587

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChecksumIdempotence(t *testing.T) {
	cases := [][]byte{
		{},
		{0x00},
		{0xff, 0x00},
		{0xac, 0xc5, 0x04, 0x80, 0x01, 0x01, 0x00, 0x01},
	}
	for _, c := range cases {
		framed := AppendChecksum(c)
		assert.True(t, VerifyChecksum(framed))
	}
}

func TestChecksumDetectsCorruption(t *testing.T) {
	framed := AppendChecksum([]byte{0xac, 0xfe, 0x80, 0xf0, 0x17})
	framed[0] ^= 0xff
	assert.False(t, VerifyChecksum(framed))
}

func TestClassify(t *testing.T) {
	assert.Equal(t, KindMalformed, Classify([]byte{0x01}))
	assert.Equal(t, KindNonTransport, Classify([]byte{0x80, 0x00}))
	assert.Equal(t, KindMalformed, Classify([]byte{0x80, PIDConnMgmt, 0x00}))
	assert.Equal(t, KindConn, Classify([]byte{0x80, PIDConnMgmt, 0x04, 0xac, byte(ControlCTS), 0x01, 0x01}))
	assert.Equal(t, KindMalformed, Classify([]byte{0x80, PIDDataTransfer, 0x00, 0xac}))
	assert.Equal(t, KindData, Classify([]byte{0x80, PIDDataTransfer, 0x03, 0xac, 0x01, 0x41}))
	assert.Equal(t, KindMultisection, Classify([]byte{0x80, PIDMultisection}))
}

func TestParseConnRTS(t *testing.T) {
	rts := RTS(0xac, 0x80, 1, 12)
	cf, err := ParseConn(rts.Bytes())
	assert.NoError(t, err)
	assert.Equal(t, MID(0xac), cf.Src)
	assert.Equal(t, MID(0x80), cf.Dst)
	assert.Equal(t, ControlRTS, cf.Control)
	assert.EqualValues(t, 1, cf.Segments)
	assert.EqualValues(t, 12, cf.TotalLength)
}

func TestParseConnCTS(t *testing.T) {
	cts := CTS(0x80, 0xac, 1, 1)
	cf, err := ParseConn(cts.Bytes())
	assert.NoError(t, err)
	assert.Equal(t, ControlCTS, cf.Control)
	assert.EqualValues(t, 1, cf.NumSegments)
	assert.EqualValues(t, 1, cf.NextSegment)
}

func TestParseDataFrame(t *testing.T) {
	df := NewDataFrame(0xac, 0x80, 1, []byte{0x00, 0xc8, 0x07})
	parsed, err := ParseData(df.Bytes())
	assert.NoError(t, err)
	assert.Equal(t, MID(0xac), parsed.Src)
	assert.Equal(t, MID(0x80), parsed.Dst)
	assert.EqualValues(t, 1, parsed.SegmentID)
	assert.Equal(t, []byte{0x00, 0xc8, 0x07}, parsed.Payload)
}

// S5 from the end-to-end scenario table: RTS + one data frame wire form.
func TestRTSWireForm(t *testing.T) {
	rts := RTS(0xac, 0x80, 1, 12)
	assert.Equal(t, []byte{0xac, 0xc5, 0x05, 0x80, 0x01, 0x01, 0x0c, 0x00}, rts.Bytes())
}

func TestDataFrameWireForm(t *testing.T) {
	df := NewDataFrame(0xac, 0x80, 1, []byte{0x00, 0xc8, 0x07, 0x04, 0x06, 0x00, 0x46, 0x41, 0x41, 0x5a, 0x05, 0x48})
	expect := []byte{0xac, 0xc6, 0x0e, 0x80, 0x01, 0x00, 0xc8, 0x07, 0x04, 0x06, 0x00, 0x46, 0x41, 0x41, 0x5a, 0x05, 0x48}
	assert.Equal(t, expect, df.Bytes())
}

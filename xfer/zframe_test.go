package xfer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// feedAll pushes wire bytes through a parser and collects everything it
// delivers, copying borrowed payloads.
func feedAll(z *zparser, wire []byte) []zscanResult {
	var out []zscanResult
	for _, b := range wire {
		for _, res := range z.feed(b) {
			res.Data = append([]byte(nil), res.Data...)
			out = append(out, res)
		}
	}
	return out
}

func TestHexFrameLayout(t *testing.T) {
	wire := zappendHexFrame(nil, ZRPOS, stohdr(0x01020304))

	// ZPAD ZPAD ZDLE ZHEX, then 14 lowercase hex digits, then CR LF XON.
	require.Equal(t, 21, len(wire))
	assert.Equal(t, []byte{'*', '*', ZDLE, 'B'}, wire[:4])
	assert.Equal(t, []byte("09"), wire[4:6]) // ZRPOS = 9
	// Offset is little-endian in the data bytes.
	assert.Equal(t, []byte("04030201"), wire[6:14])
	assert.Equal(t, []byte{0x0D, 0x0A, XON}, wire[18:])
	for _, b := range wire[4:18] {
		assert.True(t, (b >= '0' && b <= '9') || (b >= 'a' && b <= 'f'), "digit %c", b)
	}
}

func TestHexFrameRoundTrip(t *testing.T) {
	wire := zappendHexFrame(nil, ZRINIT, zflagsHdr(CANFDX|CANOVIO|CANFC32))

	var z zparser
	results := feedAll(&z, wire)
	require.Len(t, results, 1)
	res := results[0]
	assert.Equal(t, zscanFrame, res.Kind)
	assert.Equal(t, byte(ZRINIT), res.FrameType)
	assert.Equal(t, byte(CANFDX|CANOVIO|CANFC32), res.Hdr.zf0())
	assert.True(t, res.Ok)
}

func TestHexFrameBadCRC(t *testing.T) {
	wire := zappendHexFrame(nil, ZACK, stohdr(42))
	wire[7] ^= 0x03 // 'a' -> 'b': still a hex digit, so only the CRC check catches it

	var z zparser
	results := feedAll(&z, wire)
	require.Len(t, results, 1)
	assert.Equal(t, zscanBadFrame, results[0].Kind)
}

func TestHexFrameSurvivesLeadingGarbage(t *testing.T) {
	wire := append([]byte("login: ***noise\r\n"), zappendHexFrame(nil, ZRQINIT, zheader{})...)

	var z zparser
	results := feedAll(&z, wire)
	require.Len(t, results, 1)
	assert.Equal(t, zscanFrame, results[0].Kind)
	assert.Equal(t, byte(ZRQINIT), results[0].FrameType)
}

// appendBinaryFrame builds a 16-bit binary frame the way a peer would.
func appendBinaryFrame(dst []byte, frameType byte, hdr zheader) []byte {
	dst = append(dst, ZPAD, ZDLE, ZBIN)
	crc := updcrc16(frameType, crc16Init)
	dst = zappendEscaped(dst, frameType)
	for i := 0; i < 4; i++ {
		crc = updcrc16(hdr[i], crc)
		dst = zappendEscaped(dst, hdr[i])
	}
	dst = zappendEscaped(dst, byte(crc>>8))
	dst = zappendEscaped(dst, byte(crc))
	return dst
}

func TestBinaryFrameRoundTrip(t *testing.T) {
	wire := appendBinaryFrame(nil, ZDATA, stohdr(2048))

	var z zparser
	results := feedAll(&z, wire)
	require.Len(t, results, 1)
	res := results[0]
	assert.Equal(t, zscanFrame, res.Kind)
	assert.Equal(t, byte(ZDATA), res.FrameType)
	assert.Equal(t, uint32(2048), rclhdr(res.Hdr))
}

func TestSubpacketRoundTrip16(t *testing.T) {
	payload := []byte("hello \x18 world \x00\x7f\xff")
	wire := zappendSubpacket(nil, payload, ZCRCE, false)

	var z zparser
	z.startData(false)
	results := feedAll(&z, wire)
	require.Len(t, results, 1)
	res := results[0]
	assert.Equal(t, zscanData, res.Kind)
	assert.True(t, res.Ok)
	assert.Equal(t, payload, res.Data)
	assert.Equal(t, byte(ZCRCE), res.Term)
}

func TestSubpacketRoundTrip32(t *testing.T) {
	payload := make([]byte, 1024)
	for i := range payload {
		payload[i] = byte(i)
	}
	wire := zappendSubpacket(nil, payload, ZCRCG, true)

	var z zparser
	z.startData(true)
	results := feedAll(&z, wire)
	require.Len(t, results, 1)
	res := results[0]
	assert.True(t, res.Ok)
	assert.Equal(t, payload, res.Data)
	assert.Equal(t, byte(ZCRCG), res.Term)
}

func TestSubpacketBadCRC(t *testing.T) {
	wire := zappendSubpacket(nil, []byte("payload"), ZCRCW, true)
	wire[2] ^= 0x01

	var z zparser
	z.startData(true)
	results := feedAll(&z, wire)
	require.Len(t, results, 1)
	assert.Equal(t, zscanData, results[0].Kind)
	assert.False(t, results[0].Ok)
}

func TestStohdrRclhdrRoundTrip(t *testing.T) {
	for _, pos := range []uint32{0, 1, 0x1234, 0xDEADBEEF, 0xFFFFFFFF} {
		assert.Equal(t, pos, rclhdr(stohdr(pos)))
	}
}

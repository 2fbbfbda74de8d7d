package xfer

// Frame format indicators
const (
	// ZPAD is the padding character that begins frames
	ZPAD = '*'

	// ZDLE is the ZModem escape character (Ctrl-X)
	ZDLE = 0x18

	// ZDLEE is the escaped ZDLE as transmitted. Not ZDLE^0x40 by rule but
	// by historical carve-out; the value happens to coincide.
	ZDLEE = 0x58

	// ZBIN indicates a binary frame with 16-bit CRC
	ZBIN = 'A'

	// ZHEX indicates a hex-encoded frame
	ZHEX = 'B'

	// ZBIN32 indicates a binary frame with 32-bit CRC
	ZBIN32 = 'C'
)

// Frame types
const (
	ZRQINIT    = iota // Request receive init
	ZRINIT            // Receive init
	ZSINIT            // Send init sequence (optional)
	ZACK              // ACK to above
	ZFILE             // File name from sender
	ZSKIP             // To sender: skip this file
	ZNAK              // Last packet was garbled
	ZABORT            // Abort batch transfers
	ZFIN              // Finish session
	ZRPOS             // Resume data trans at this position
	ZDATA             // Data packet(s) follow
	ZEOF              // End of file
	ZFERR             // Fatal Read or Write error Detected
	ZCRC              // Request for file CRC and response
	ZCHALLENGE        // Receiver's Challenge
	ZCOMPL            // Request is complete
	ZCAN              // Other end canned session with CAN*5
	ZFREECNT          // Request for free bytes on filesystem
	ZCOMMAND          // Command from sending program
	ZSTDERR           // Output to standard error, data follows
)

// ZDLE subpacket terminators
const (
	// ZCRCE - CRC next, frame ends, no more data follows
	ZCRCE = 'i'

	// ZCRCG - CRC next, frame continues nonstop
	ZCRCG = 'j'

	// ZCRCQ - CRC next, frame continues, ZACK expected
	ZCRCQ = 'k'

	// ZCRCW - CRC next, ZACK expected, sender waits
	ZCRCW = 'h'
)

// Bit masks for the ZRINIT capability byte
const (
	CANFDX  = 0x01 // Rx can send and receive true FDX
	CANOVIO = 0x02 // Rx can receive data during disk I/O
	CANBRK  = 0x04 // Rx can send a break signal
	CANFC32 = 0x20 // Rx can use 32 bit frame check
	ESCCTL  = 0x40 // Rx expects ctl chars to be escaped
	ESC8    = 0x80 // Rx expects 8th bit to be escaped
)

// recvCaps is the capability byte this engine's receiver advertises.
const recvCaps = CANFDX | CANOVIO | CANFC32

// zmodemCancel is the ZMODEM cancel wire sequence: eight ZDLEs followed by
// ten backspaces to wipe them from the peer's terminal.
var zmodemCancel = []byte{
	ZDLE, ZDLE, ZDLE, ZDLE, ZDLE, ZDLE, ZDLE, ZDLE,
	0x08, 0x08, 0x08, 0x08, 0x08, 0x08, 0x08, 0x08, 0x08, 0x08,
}

// frameTypeNames provides human-readable names for frame types.
var frameTypeNames = []string{
	"ZRQINIT",
	"ZRINIT",
	"ZSINIT",
	"ZACK",
	"ZFILE",
	"ZSKIP",
	"ZNAK",
	"ZABORT",
	"ZFIN",
	"ZRPOS",
	"ZDATA",
	"ZEOF",
	"ZFERR",
	"ZCRC",
	"ZCHALLENGE",
	"ZCOMPL",
	"ZCAN",
	"ZFREECNT",
	"ZCOMMAND",
	"ZSTDERR",
}

// frameTypeName returns the human-readable name for a frame type.
func frameTypeName(frameType byte) string {
	if int(frameType) >= len(frameTypeNames) {
		return "UNKNOWN"
	}
	return frameTypeNames[frameType]
}

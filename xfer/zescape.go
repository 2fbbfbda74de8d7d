package xfer

// zneedsEscape reports whether b must be ZDLE-escaped on the wire: ZDLE
// itself, all control bytes, DEL and 0xFF.
func zneedsEscape(b byte) bool {
	return b == ZDLE || b < 0x20 || b == 0x7F || b == 0xFF
}

// zappendEscaped appends b to dst in wire form.
func zappendEscaped(dst []byte, b byte) []byte {
	if b == ZDLE {
		return append(dst, ZDLE, ZDLEE)
	}
	if zneedsEscape(b) {
		return append(dst, ZDLE, b^0x40)
	}
	return append(dst, b)
}

// zappendEscapedAll appends every byte of p to dst in wire form.
func zappendEscapedAll(dst, p []byte) []byte {
	for _, b := range p {
		dst = zappendEscaped(dst, b)
	}
	return dst
}

// Results of feeding one wire byte to the unescaper.
const (
	zuNone   = iota // byte consumed, nothing produced
	zuByte          // literal byte produced
	zuTerm          // subpacket terminator seen
	zuCancel        // peer cancel burst (five or more CANs)
)

// zunescaper decodes the inbound ZDLE escape layer one byte at a time.
// Raw XON/XOFF are flow-control noise and are dropped. A run of five CAN
// bytes is the peer cancelling.
type zunescaper struct {
	inEscape bool
	canRun   int
}

func (u *zunescaper) reset() {
	u.inEscape = false
	u.canRun = 0
}

// feed consumes one wire byte and reports what it decoded to.
func (u *zunescaper) feed(b byte) (kind int, value byte) {
	if b == CAN {
		u.canRun++
		if u.canRun >= 5 {
			return zuCancel, 0
		}
	} else {
		u.canRun = 0
	}

	if u.inEscape {
		switch b {
		case ZDLE:
			// Second CAN of a cancel run; stay in escape.
			return zuNone, 0
		case ZDLEE:
			u.inEscape = false
			return zuByte, ZDLE
		case ZCRCE, ZCRCG, ZCRCQ, ZCRCW:
			u.inEscape = false
			return zuTerm, b
		case XON, XOFF, XON | 0x80, XOFF | 0x80:
			return zuNone, 0
		default:
			u.inEscape = false
			return zuByte, b ^ 0x40
		}
	}

	switch b {
	case ZDLE:
		u.inEscape = true
		return zuNone, 0
	case XON, XOFF, XON | 0x80, XOFF | 0x80:
		return zuNone, 0
	default:
		return zuByte, b
	}
}

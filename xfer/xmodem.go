package xfer

// xmodemState enumerates the XMODEM machine states.
type xmodemState int

const (
	xsIdle xmodemState = iota
	xsSendWaitInit
	xsSendWaitAck
	xsSendWaitEOTAck
	xsRecvWaitBlock
	xsRecvHeader
	xsRecvData
	xsDone
)

func (s xmodemState) String() string {
	switch s {
	case xsIdle:
		return "idle"
	case xsSendWaitInit:
		return "waiting for receiver"
	case xsSendWaitAck:
		return "sending"
	case xsSendWaitEOTAck:
		return "finishing"
	case xsRecvWaitBlock, xsRecvHeader, xsRecvData:
		return "receiving"
	case xsDone:
		return "done"
	default:
		return "unknown"
	}
}

// blockBufSize fits a 1K block: 3-byte header, payload, CRC-16 trailer.
const blockBufSize = 3 + 1024 + 2

// xmodemMachine implements XMODEM send and receive for the checksum, CRC
// and 1K variants.
type xmodemMachine struct {
	transfer
	state xmodemState

	oneK    bool // 1024-byte payloads
	crcMode bool // CRC-16 trailer instead of additive checksum

	// send side
	data       []byte
	sendOffset int
	blockNum   byte

	// receive side
	blockBuf  [blockBufSize]byte
	blockPos  int
	blockSize int // payload size of the block being assembled
}

func newXModemMachine(proto Protocol, base transfer) *xmodemMachine {
	base.cancelWire = []byte{CAN, CAN, CAN}
	return &xmodemMachine{
		transfer: base,
		state:    xsIdle,
		oneK:     proto == XModem1K,
		crcMode:  proto != XModemChecksum,
	}
}

func (m *xmodemMachine) payloadSize() int {
	if m.oneK {
		return 1024
	}
	return 128
}

func (m *xmodemMachine) checkSize() int {
	if m.crcMode {
		return 2
	}
	return 1
}

func (m *xmodemMachine) startSend(name string, data []byte) error {
	if m.started {
		return NewError(ErrState, "session already started")
	}
	m.started = true
	m.sending = true
	m.data = data
	m.fileName = name
	m.fileSize = uint64(len(data))
	m.blockNum = 1
	m.state = xsSendWaitInit
	m.logger.Info("%s: sending %d bytes, waiting for receiver", m.proto, len(data))
	m.emit(Started{FileName: name, FileSize: m.fileSize})
	return nil
}

func (m *xmodemMachine) startReceive() error {
	if m.started {
		return NewError(ErrState, "session already started")
	}
	m.started = true
	m.blockNum = 1
	m.state = xsRecvWaitBlock
	m.logger.Info("%s: receive started", m.proto)
	if m.crcMode {
		m.sendByte(WANTCRC)
	} else {
		m.sendByte(NAK)
	}
	return nil
}

func (m *xmodemMachine) processData(p []byte) {
	for _, b := range p {
		if !m.started || m.terminal {
			return
		}
		m.processByte(b)
	}
}

func (m *xmodemMachine) processByte(b byte) {
	switch m.state {
	case xsSendWaitInit:
		switch b {
		case NAK:
			m.crcMode = false
			m.beginSending()
		case WANTCRC:
			m.crcMode = true
			m.beginSending()
		case CAN:
			m.cancelNow()
		}

	case xsSendWaitAck:
		switch b {
		case ACK:
			m.retries = 0
			if m.sendOffset >= len(m.data) {
				m.sendByte(EOT)
				m.state = xsSendWaitEOTAck
			} else {
				m.blockNum++
				m.sendBlock()
			}
		case NAK:
			if m.bumpRetries("Too many retries") {
				return
			}
			m.rewindBlock()
			m.sendBlock()
		case CAN:
			m.cancelNow()
		}

	case xsSendWaitEOTAck:
		switch b {
		case ACK:
			m.state = xsDone
			m.complete()
		case NAK:
			if m.bumpRetries("Too many retries") {
				return
			}
			m.sendByte(EOT)
		case CAN:
			m.cancelNow()
		}

	case xsRecvWaitBlock:
		switch b {
		case SOH:
			m.beginBlock(b, 128)
		case STX:
			m.beginBlock(b, 1024)
		case EOT:
			m.sendByte(ACK)
			m.state = xsDone
			m.complete()
		case CAN:
			m.cancelNow()
		}

	case xsRecvHeader:
		m.blockBuf[m.blockPos] = b
		m.blockPos++
		if m.blockPos == 3 {
			if m.blockBuf[1] != ^m.blockBuf[2] {
				m.logger.Debug("%s: bad block number complement %02x/%02x",
					m.proto, m.blockBuf[1], m.blockBuf[2])
				m.recvNAK()
				m.state = xsRecvWaitBlock
			} else {
				m.state = xsRecvData
			}
		}

	case xsRecvData:
		m.blockBuf[m.blockPos] = b
		m.blockPos++
		if m.blockPos == 3+m.blockSize+m.checkSize() {
			m.finishBlock()
			m.state = xsRecvWaitBlock
		}
	}
}

// beginSending answers the receiver's init byte: the first data block, or
// EOT straight away when there is nothing to send.
func (m *xmodemMachine) beginSending() {
	if len(m.data) == 0 {
		m.sendByte(EOT)
		m.state = xsSendWaitEOTAck
		return
	}
	m.state = xsSendWaitAck
	m.sendBlock()
}

// beginBlock starts assembling an inbound block after its SOH/STX lead.
func (m *xmodemMachine) beginBlock(lead byte, size int) {
	m.blockBuf[0] = lead
	m.blockPos = 1
	m.blockSize = size
	m.state = xsRecvHeader
}

// finishBlock validates the assembled block and acknowledges it.
func (m *xmodemMachine) finishBlock() {
	payload := m.blockBuf[3 : 3+m.blockSize]
	if !m.verifyBlock(payload) {
		m.logger.Debug("%s: block %d check failed", m.proto, m.blockBuf[1])
		m.recvNAK()
		return
	}

	switch m.blockBuf[1] {
	case m.blockNum:
		m.recvBuf = append(m.recvBuf, payload...)
		m.filePos += uint64(len(payload))
		m.block = uint32(m.blockNum)
		m.blockNum++
		m.retries = 0
		m.sendByte(ACK)
		m.progress(m.state.String())
	case m.blockNum - 1:
		// Duplicate: our ACK was lost. Acknowledge again, keep nothing.
		m.sendByte(ACK)
	default:
		m.logger.Debug("%s: block %d out of sequence, expected %d",
			m.proto, m.blockBuf[1], m.blockNum)
		m.recvNAK()
	}
}

func (m *xmodemMachine) verifyBlock(payload []byte) bool {
	if m.crcMode {
		want := uint16(m.blockBuf[3+m.blockSize])<<8 | uint16(m.blockBuf[3+m.blockSize+1])
		return CRC16(payload) == want
	}
	return Checksum(payload) == m.blockBuf[3+m.blockSize]
}

// recvNAK counts an error against the retry budget and asks for a resend.
func (m *xmodemMachine) recvNAK() {
	m.errors++
	if m.bumpRetries("Too many errors") {
		return
	}
	m.sendByte(NAK)
}

// bumpRetries increments the retry counter and fails the session once the
// budget is exhausted. Returns true when the session has failed.
func (m *xmodemMachine) bumpRetries(msg string) bool {
	m.retries++
	if m.retries > MaxRetries {
		m.fail(msg)
		return true
	}
	return false
}

// sendBlock emits the block at sendOffset and advances by one payload.
// Short final payloads are padded with SUB.
func (m *xmodemMachine) sendBlock() {
	size := m.payloadSize()
	m.out = m.out[:0]
	m.out = appendBlock(m.out, m.blockNum, m.data, m.sendOffset, size, m.crcMode)
	m.sendOffset += size
	if pos := uint64(m.sendOffset); pos > m.fileSize {
		m.filePos = m.fileSize
	} else {
		m.filePos = pos
	}
	m.block = uint32(m.blockNum)
	m.sendOut()
	m.progress(m.state.String())
}

// rewindBlock steps the send offset back one payload for a retransmit,
// clamped at the start of the data.
func (m *xmodemMachine) rewindBlock() {
	m.sendOffset -= m.payloadSize()
	if m.sendOffset < 0 {
		m.sendOffset = 0
	}
}

// appendBlock appends one framed block: SOH/STX lead, block number and
// complement, SUB-padded payload, checksum or big-endian CRC-16 trailer.
func appendBlock(dst []byte, blockNum byte, data []byte, offset, size int, crcMode bool) []byte {
	lead := byte(SOH)
	if size == 1024 {
		lead = STX
	}
	dst = append(dst, lead, blockNum, ^blockNum)

	start := len(dst)
	for i := 0; i < size; i++ {
		if offset+i < len(data) {
			dst = append(dst, data[offset+i])
		} else {
			dst = append(dst, SUB)
		}
	}
	payload := dst[start:]

	if crcMode {
		crc := CRC16(payload)
		dst = append(dst, byte(crc>>8), byte(crc))
	} else {
		dst = append(dst, Checksum(payload))
	}
	return dst
}

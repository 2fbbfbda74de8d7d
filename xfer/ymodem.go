package xfer

// ymodemState enumerates the YMODEM machine states.
type ymodemState int

const (
	ysIdle ymodemState = iota
	ysSendWaitInit
	ysSendWaitBlock0Ack
	ysSendWaitDataInit
	ysSendWaitAck
	ysSendWaitEOTAck
	ysSendWaitFinalAck
	ysRecvWaitBlock
	ysRecvHeader
	ysRecvData
	ysDone
)

func (s ymodemState) String() string {
	switch s {
	case ysIdle:
		return "idle"
	case ysSendWaitInit, ysSendWaitBlock0Ack, ysSendWaitDataInit:
		return "handshaking"
	case ysSendWaitAck:
		return "sending"
	case ysSendWaitEOTAck, ysSendWaitFinalAck:
		return "finishing"
	case ysRecvWaitBlock, ysRecvHeader, ysRecvData:
		return "receiving"
	case ysDone:
		return "done"
	default:
		return "unknown"
	}
}

// ymodemMachine implements YMODEM batch: XMODEM-1K-CRC data blocks preceded
// by a metadata block 0 and closed by an empty block 0.
type ymodemMachine struct {
	transfer
	state ymodemState

	// send side
	data       []byte
	sendOffset int
	blockNum   byte

	// receive side
	blockBuf       [blockBufSize]byte
	blockPos       int
	blockSize      int
	expectMeta     bool   // next block should be a block 0
	eotSeen        bool   // first EOT of the two-EOT handshake seen
	bytesRemaining uint64 // declared size not yet received
}

func newYModemMachine(base transfer) *ymodemMachine {
	base.cancelWire = []byte{CAN, CAN, CAN}
	return &ymodemMachine{
		transfer: base,
		state:    ysIdle,
	}
}

func (m *ymodemMachine) startSend(name string, data []byte) error {
	if m.started {
		return NewError(ErrState, "session already started")
	}
	if !validFileName(name) {
		return NewError(ErrFileName, "file name too long or not ASCII")
	}
	m.started = true
	m.sending = true
	m.data = data
	m.fileName = name
	m.fileSize = uint64(len(data))
	m.state = ysSendWaitInit
	m.logger.Info("ymodem: sending %q (%d bytes), waiting for receiver", name, len(data))
	m.emit(Started{FileName: name, FileSize: m.fileSize})
	return nil
}

func (m *ymodemMachine) startReceive() error {
	if m.started {
		return NewError(ErrState, "session already started")
	}
	m.started = true
	m.expectMeta = true
	m.state = ysRecvWaitBlock
	m.logger.Info("ymodem: receive started")
	m.sendByte(WANTCRC)
	return nil
}

func (m *ymodemMachine) processData(p []byte) {
	for _, b := range p {
		if !m.started || m.terminal {
			return
		}
		m.processByte(b)
	}
}

func (m *ymodemMachine) processByte(b byte) {
	switch m.state {
	case ysSendWaitInit:
		switch b {
		case WANTCRC:
			m.sendBlock0()
			m.state = ysSendWaitBlock0Ack
		case CAN:
			m.cancelNow()
		}

	case ysSendWaitBlock0Ack:
		switch b {
		case ACK:
			m.retries = 0
			m.state = ysSendWaitDataInit
		case NAK:
			if m.bumpRetries() {
				return
			}
			m.sendBlock0()
		case CAN:
			m.cancelNow()
		}

	case ysSendWaitDataInit:
		switch b {
		case WANTCRC:
			if len(m.data) == 0 {
				m.sendByte(EOT)
				m.state = ysSendWaitEOTAck
				return
			}
			m.blockNum = 1
			m.state = ysSendWaitAck
			m.sendDataBlock()
		case CAN:
			m.cancelNow()
		}

	case ysSendWaitAck:
		switch b {
		case ACK:
			m.retries = 0
			if m.sendOffset >= len(m.data) {
				m.sendByte(EOT)
				m.state = ysSendWaitEOTAck
			} else {
				m.blockNum++
				m.sendDataBlock()
			}
		case NAK:
			if m.bumpRetries() {
				return
			}
			m.sendOffset -= 1024
			if m.sendOffset < 0 {
				m.sendOffset = 0
			}
			m.sendDataBlock()
		case CAN:
			m.cancelNow()
		}

	case ysSendWaitEOTAck:
		// Strict handshake: the receiver NAKs the first EOT and ACKs the
		// second. Either answer is accepted here.
		switch b {
		case NAK:
			if m.bumpRetries() {
				return
			}
			m.sendByte(EOT)
		case ACK:
			m.retries = 0
			m.sendFinalBlock0()
			m.state = ysSendWaitFinalAck
		case CAN:
			m.cancelNow()
		}

	case ysSendWaitFinalAck:
		switch b {
		case ACK:
			m.state = ysDone
			m.complete()
		case NAK:
			if m.bumpRetries() {
				return
			}
			m.sendFinalBlock0()
		case WANTCRC:
			// The receiver's next-file poll; the closing block 0 is
			// already on the wire.
		case CAN:
			m.cancelNow()
		}

	case ysRecvWaitBlock:
		switch b {
		case SOH:
			m.eotSeen = false
			m.beginBlock(b, 128)
		case STX:
			m.eotSeen = false
			m.beginBlock(b, 1024)
		case EOT:
			m.handleEOT()
		case CAN:
			m.cancelNow()
		}

	case ysRecvHeader:
		m.blockBuf[m.blockPos] = b
		m.blockPos++
		if m.blockPos == 3 {
			if m.blockBuf[1] != ^m.blockBuf[2] {
				m.recvNAK()
				m.state = ysRecvWaitBlock
			} else {
				m.state = ysRecvData
			}
		}

	case ysRecvData:
		m.blockBuf[m.blockPos] = b
		m.blockPos++
		if m.blockPos == 3+m.blockSize+2 {
			m.finishBlock()
			if m.state == ysRecvData {
				m.state = ysRecvWaitBlock
			}
		}
	}
}

func (m *ymodemMachine) beginBlock(lead byte, size int) {
	m.blockBuf[0] = lead
	m.blockPos = 1
	m.blockSize = size
	m.state = ysRecvHeader
}

// handleEOT runs the strict two-EOT termination: NAK the first, ACK the
// second and poll for the next file's block 0.
func (m *ymodemMachine) handleEOT() {
	if !m.eotSeen {
		m.eotSeen = true
		m.sendByte(NAK)
		return
	}
	m.eotSeen = false
	m.sendByte(ACK)
	m.sendByte(WANTCRC)
	m.expectMeta = true
	m.blockNum = 0
}

func (m *ymodemMachine) finishBlock() {
	payload := m.blockBuf[3 : 3+m.blockSize]
	want := uint16(m.blockBuf[3+m.blockSize])<<8 | uint16(m.blockBuf[3+m.blockSize+1])
	if CRC16(payload) != want {
		m.logger.Debug("ymodem: block %d CRC failed", m.blockBuf[1])
		m.recvNAK()
		return
	}

	if m.expectMeta && m.blockBuf[1] == 0 {
		m.finishBlock0(payload)
		return
	}

	switch m.blockBuf[1] {
	case m.blockNum:
		m.acceptPayload(payload)
	case m.blockNum - 1:
		m.sendByte(ACK)
	default:
		m.logger.Debug("ymodem: block %d out of sequence, expected %d",
			m.blockBuf[1], m.blockNum)
		m.recvNAK()
	}
}

// finishBlock0 consumes a metadata block: either the next file announcement
// or, with an empty name, the batch terminator.
func (m *ymodemMachine) finishBlock0(payload []byte) {
	name, size := parseFileInfo(payload)
	if name == "" {
		m.sendByte(ACK)
		m.state = ysDone
		m.complete()
		return
	}
	if !validFileName(name) {
		m.fail("File name too long")
		return
	}

	m.fileName = name
	m.fileSize = size
	m.bytesRemaining = size
	m.blockNum = 1
	m.expectMeta = false
	m.retries = 0
	m.logger.Info("ymodem: incoming file %q (%d bytes)", name, size)
	m.sendByte(ACK)
	m.sendByte(WANTCRC)
	m.emit(Started{FileName: name, FileSize: size})
}

// acceptPayload appends a data block, trimmed to the declared file size so
// SUB padding in the final block is stripped.
func (m *ymodemMachine) acceptPayload(payload []byte) {
	n := len(payload)
	if m.fileSize > 0 && uint64(n) > m.bytesRemaining {
		n = int(m.bytesRemaining)
	}
	m.recvBuf = append(m.recvBuf, payload[:n]...)
	if m.fileSize > 0 {
		m.bytesRemaining -= uint64(n)
	}
	m.filePos += uint64(n)
	m.block = uint32(m.blockNum)
	m.blockNum++
	m.retries = 0
	m.sendByte(ACK)
	m.progress(m.state.String())
}

func (m *ymodemMachine) recvNAK() {
	m.errors++
	if m.bumpRetries() {
		return
	}
	m.sendByte(NAK)
}

func (m *ymodemMachine) bumpRetries() bool {
	m.retries++
	if m.retries > MaxRetries {
		m.fail("Too many errors")
		return true
	}
	return false
}

// sendBlock0 emits the metadata block: file name and decimal size in a
// 1024-byte zero-padded data region under block number 0.
func (m *ymodemMachine) sendBlock0() {
	m.out = m.out[:0]
	info := appendFileInfo(nil, m.fileName, m.fileSize)
	m.out = appendBlock(m.out, 0, info, 0, 1024, true)
	// appendBlock pads with SUB; block 0 is zero-padded.
	for i := 3 + len(info); i < 3+1024; i++ {
		m.out[i] = 0
	}
	m.restampCRC(1024)
	m.block = 0
	m.sendOut()
}

// sendFinalBlock0 emits the batch terminator: an empty 128-byte block 0.
func (m *ymodemMachine) sendFinalBlock0() {
	m.out = m.out[:0]
	m.out = appendBlock(m.out, 0, nil, 0, 128, true)
	for i := 3; i < 3+128; i++ {
		m.out[i] = 0
	}
	m.restampCRC(128)
	m.sendOut()
}

// restampCRC recomputes the CRC-16 trailer after the payload bytes in the
// scratch buffer were rewritten.
func (m *ymodemMachine) restampCRC(size int) {
	crc := CRC16(m.out[3 : 3+size])
	m.out[3+size] = byte(crc >> 8)
	m.out[3+size+1] = byte(crc)
}

// sendDataBlock emits the 1K data block at sendOffset.
func (m *ymodemMachine) sendDataBlock() {
	m.out = m.out[:0]
	m.out = appendBlock(m.out, m.blockNum, m.data, m.sendOffset, 1024, true)
	m.sendOffset += 1024
	if pos := uint64(m.sendOffset); pos > m.fileSize {
		m.filePos = m.fileSize
	} else {
		m.filePos = pos
	}
	m.block = uint32(m.blockNum)
	m.sendOut()
	m.progress(m.state.String())
}

package xfer

// zmodemState enumerates the ZMODEM machine states.
type zmodemState int

const (
	zsIdle zmodemState = iota
	zsSendWaitZRInit
	zsSendWaitZRPos
	zsSendWaitZAck
	zsSendEOFSent
	zsSendWaitZFin
	zsRecvWaitFile
	zsRecvFileData
	zsRecvWaitZData
	zsRecvData
	zsDone
)

func (s zmodemState) String() string {
	switch s {
	case zsIdle:
		return "idle"
	case zsSendWaitZRInit, zsSendWaitZRPos:
		return "handshaking"
	case zsSendWaitZAck:
		return "sending"
	case zsSendEOFSent, zsSendWaitZFin:
		return "finishing"
	case zsRecvWaitFile, zsRecvFileData:
		return "waiting for file"
	case zsRecvWaitZData, zsRecvData:
		return "receiving"
	case zsDone:
		return "done"
	default:
		return "unknown"
	}
}

// zChunkSize is the data subpacket payload size used when streaming.
const zChunkSize = 1024

// zmodemMachine implements ZMODEM send and receive.
type zmodemMachine struct {
	transfer
	state  zmodemState
	parser zparser

	crc32Mode bool // negotiated subpacket CRC width
	peerCaps  byte

	// send side
	data       []byte
	sendOffset int

	// receive side
	announced bool // Started emitted for the current file
	fileBase  int  // accumulator length when the current file began
}

func newZModemMachine(base transfer) *zmodemMachine {
	base.cancelWire = zmodemCancel
	return &zmodemMachine{
		transfer: base,
		state:    zsIdle,
	}
}

func (m *zmodemMachine) startSend(name string, data []byte) error {
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
	m.state = zsSendWaitZRInit
	m.logger.Info("zmodem: sending %q (%d bytes)", name, len(data))
	m.emit(Started{FileName: name, FileSize: m.fileSize})
	m.sendHexFrame(ZRQINIT, zheader{})
	return nil
}

func (m *zmodemMachine) startReceive() error {
	if m.started {
		return NewError(ErrState, "session already started")
	}
	m.started = true
	m.crc32Mode = recvCaps&CANFC32 != 0
	m.state = zsRecvWaitFile
	m.logger.Info("zmodem: receive started")
	m.sendHexFrame(ZRINIT, zflagsHdr(recvCaps))
	return nil
}

func (m *zmodemMachine) processData(p []byte) {
	for _, b := range p {
		if !m.started || m.terminal {
			return
		}
		for _, res := range m.parser.feed(b) {
			if m.terminal {
				return
			}
			m.handleResult(res)
		}
	}
}

func (m *zmodemMachine) handleResult(res zscanResult) {
	switch res.Kind {
	case zscanCancel:
		m.logger.Info("zmodem: peer cancelled")
		m.cancelNow()
	case zscanBadFrame:
		m.badFrame()
	case zscanFrame:
		m.handleFrame(res.FrameType, res.Hdr)
	case zscanData:
		m.handleData(res)
	}
}

// badFrame counts a garbled frame against the retry budget. The receiver
// asks for a resend with ZNAK; the sender lets the peer's own timeout and
// ZNAK discipline recover.
func (m *zmodemMachine) badFrame() {
	m.errors++
	m.retries++
	if m.retries > MaxRetries {
		m.fail("Too many errors")
		return
	}
	m.logger.Debug("zmodem: garbled frame (%d errors)", m.errors)
	if !m.sending {
		m.sendHexFrame(ZNAK, zheader{})
	}
}

func (m *zmodemMachine) handleFrame(frameType byte, hdr zheader) {
	m.logger.Debug("zmodem: got %s pos=%d", frameTypeName(frameType), rclhdr(hdr))

	switch frameType {
	case ZABORT, ZCAN, ZFERR:
		m.cancelNow()
		return
	}

	if m.sending {
		m.handleSenderFrame(frameType, hdr)
	} else {
		m.handleReceiverFrame(frameType, hdr)
	}
}

func (m *zmodemMachine) handleSenderFrame(frameType byte, hdr zheader) {
	switch m.state {
	case zsSendWaitZRInit:
		switch frameType {
		case ZRINIT:
			m.peerCaps = hdr.zf0()
			m.crc32Mode = m.peerCaps&CANFC32 != 0
			m.retries = 0
			m.logger.Info("zmodem: peer caps %02x, crc32=%v", m.peerCaps, m.crc32Mode)
			m.sendZFile()
			m.state = zsSendWaitZRPos
		case ZNAK:
			if m.bumpRetries() {
				return
			}
			m.sendHexFrame(ZRQINIT, zheader{})
		}

	case zsSendWaitZRPos:
		switch frameType {
		case ZRPOS:
			m.retries = 0
			m.streamFrom(int(rclhdr(hdr)))
		case ZSKIP:
			m.state = zsDone
			m.complete()
		case ZNAK:
			if m.bumpRetries() {
				return
			}
			m.sendZFile()
		}

	case zsSendWaitZAck:
		switch frameType {
		case ZACK:
			m.retries = 0
			if m.sendOffset >= len(m.data) {
				m.sendHexFrame(ZEOF, stohdr(uint32(len(m.data))))
				m.state = zsSendEOFSent
			} else {
				m.streamFrom(m.sendOffset)
			}
		case ZRPOS:
			// Crash recovery: resume from the receiver's position.
			m.streamFrom(int(rclhdr(hdr)))
		case ZSKIP:
			m.state = zsDone
			m.complete()
		}

	case zsSendEOFSent:
		switch frameType {
		case ZRINIT:
			m.retries = 0
			m.sendHexFrame(ZFIN, zheader{})
			m.state = zsSendWaitZFin
		case ZRPOS:
			m.streamFrom(int(rclhdr(hdr)))
			m.state = zsSendWaitZAck
		case ZNAK:
			if m.bumpRetries() {
				return
			}
			m.sendHexFrame(ZEOF, stohdr(uint32(len(m.data))))
		}

	case zsSendWaitZFin:
		if frameType == ZFIN {
			// Over and out.
			m.out = append(m.out[:0], 'O', 'O')
			m.sendOut()
			m.state = zsDone
			m.complete()
		}
	}
}

func (m *zmodemMachine) handleReceiverFrame(frameType byte, hdr zheader) {
	// ZFIN ends the session from any receive state.
	if frameType == ZFIN {
		m.sendHexFrame(ZFIN, zheader{})
		m.state = zsDone
		m.complete()
		return
	}

	switch m.state {
	case zsRecvWaitFile:
		switch frameType {
		case ZRQINIT:
			m.sendHexFrame(ZRINIT, zflagsHdr(recvCaps))
		case ZFILE:
			m.parser.startData(m.crc32Mode)
			m.state = zsRecvFileData
		}

	case zsRecvWaitZData:
		switch frameType {
		case ZDATA:
			off := int(rclhdr(hdr))
			if off > m.filePosInFile() {
				m.errors++
				m.sendHexFrame(ZRPOS, stohdr(uint32(m.filePosInFile())))
				return
			}
			m.recvBuf = m.recvBuf[:m.fileBase+off]
			m.filePos = uint64(len(m.recvBuf))
			m.parser.startData(m.crc32Mode)
			m.state = zsRecvData
		case ZEOF:
			if int(rclhdr(hdr)) != m.filePosInFile() {
				m.errors++
				m.sendHexFrame(ZRPOS, stohdr(uint32(m.filePosInFile())))
				return
			}
			m.logger.Info("zmodem: file %q complete (%d bytes)", m.fileName, len(m.recvBuf))
			m.announced = false
			m.sendHexFrame(ZRINIT, zflagsHdr(recvCaps))
			m.state = zsRecvWaitFile
		case ZFILE:
			// Our ZRPOS was lost; the sender re-announced the file.
			m.parser.startData(m.crc32Mode)
			m.state = zsRecvFileData
		}
	}
}

// handleData consumes a completed data subpacket.
func (m *zmodemMachine) handleData(res zscanResult) {
	switch m.state {
	case zsRecvFileData:
		if !res.Ok {
			m.errors++
			if m.bumpRetries() {
				return
			}
			m.sendHexFrame(ZNAK, zheader{})
			m.state = zsRecvWaitFile
			return
		}
		m.acceptFileInfo(res.Data)

	case zsRecvData:
		if !res.Ok {
			m.errors++
			if m.bumpRetries() {
				return
			}
			m.logger.Debug("zmodem: bad subpacket, rewinding to %d", m.filePosInFile())
			m.sendHexFrame(ZRPOS, stohdr(uint32(m.filePosInFile())))
			m.state = zsRecvWaitZData
			return
		}
		m.retries = 0
		m.recvBuf = append(m.recvBuf, res.Data...)
		m.filePos = uint64(len(m.recvBuf))
		m.block++
		m.progress(m.state.String())
		if m.terminal {
			return
		}
		switch res.Term {
		case ZCRCG:
			m.parser.startData(m.crc32Mode)
		case ZCRCQ:
			m.sendHexFrame(ZACK, stohdr(uint32(m.filePosInFile())))
			m.parser.startData(m.crc32Mode)
		default: // ZCRCE, ZCRCW
			m.sendHexFrame(ZACK, stohdr(uint32(m.filePosInFile())))
			m.state = zsRecvWaitZData
		}

	default:
		// Stray subpacket; drop it.
	}
}

// acceptFileInfo parses the ZFILE subpacket and asks for data from zero.
func (m *zmodemMachine) acceptFileInfo(p []byte) {
	name, size := parseFileInfo(p)
	if !validFileName(name) {
		m.fail("File name too long")
		return
	}
	m.fileName = name
	m.fileSize = size
	m.retries = 0
	if !m.announced {
		m.announced = true
		m.fileBase = len(m.recvBuf)
		m.logger.Info("zmodem: incoming file %q (%d bytes)", name, size)
		m.emit(Started{FileName: name, FileSize: size})
		if m.terminal {
			return
		}
	}
	m.sendHexFrame(ZRPOS, stohdr(uint32(m.filePosInFile())))
	m.state = zsRecvWaitZData
}

// filePosInFile is the receiver's position within the current file: wire
// offsets are file-relative while the accumulator spans the whole batch.
func (m *zmodemMachine) filePosInFile() int {
	return len(m.recvBuf) - m.fileBase
}

// sendZFile emits the ZFILE frame and its metadata subpacket.
func (m *zmodemMachine) sendZFile() {
	m.out = zappendHexFrame(m.out[:0], ZFILE, zheader{})
	info := appendFileInfo(nil, m.fileName, m.fileSize)
	m.out = zappendSubpacket(m.out, info, ZCRCW, m.crc32Mode)
	m.sendOut()
}

// streamFrom emits a ZDATA frame at the given offset followed by the rest
// of the file as ZCRCG subpackets with a closing ZCRCE, all in one burst.
func (m *zmodemMachine) streamFrom(offset int) {
	if offset > len(m.data) {
		offset = len(m.data)
	}
	m.sendOffset = offset
	m.logger.Debug("zmodem: streaming from offset %d", offset)

	m.out = zappendHexFrame(m.out[:0], ZDATA, stohdr(uint32(offset)))
	for {
		n := len(m.data) - m.sendOffset
		if n > zChunkSize {
			n = zChunkSize
		}
		chunk := m.data[m.sendOffset : m.sendOffset+n]
		term := byte(ZCRCG)
		if m.sendOffset+n >= len(m.data) {
			term = ZCRCE
		}
		m.out = zappendSubpacket(m.out, chunk, term, m.crc32Mode)
		m.sendOffset += n
		m.block++
		if term == ZCRCE {
			break
		}
	}
	m.filePos = uint64(m.sendOffset)
	m.sendOut()
	m.state = zsSendWaitZAck
	m.progress(m.state.String())
}

func (m *zmodemMachine) sendHexFrame(frameType byte, hdr zheader) {
	m.logger.Debug("zmodem: sending %s pos=%d", frameTypeName(frameType), rclhdr(hdr))
	m.out = zappendHexFrame(m.out[:0], frameType, hdr)
	m.sendOut()
}

func (m *zmodemMachine) bumpRetries() bool {
	m.retries++
	if m.retries > MaxRetries {
		m.fail("Too many errors")
		return true
	}
	return false
}

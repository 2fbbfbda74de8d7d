package xfer

// machine is the per-protocol state machine behind a Session.
type machine interface {
	startSend(name string, data []byte) error
	startReceive() error
	processData(p []byte)
	cancel()
	shared() *transfer
}

// transfer holds the state common to every protocol machine: the event sink,
// the receive accumulator, position counters and the retry budget.
type transfer struct {
	sink   EventSink
	logger Logger
	proto  Protocol

	started  bool
	sending  bool
	terminal bool

	recvBuf  []byte
	fileName string
	fileSize uint64
	filePos  uint64
	reported uint64 // high-water mark of BytesTransferred
	block    uint32
	errors   uint32
	retries  int

	// out is the scratch region behind SendData events. Its contents are
	// only valid during the sink callback.
	out []byte

	// cancelWire is the protocol cancel sequence emitted on failure and
	// cancellation.
	cancelWire []byte
}

func (t *transfer) shared() *transfer { return t }

func (t *transfer) emit(ev Event) {
	if t.sink != nil {
		t.sink(ev)
	}
}

// send pushes wire bytes to the host. No-op once the session is terminal, so
// a re-entrant Cancel from inside a sink callback cuts off further output.
func (t *transfer) send(p []byte) {
	if t.terminal || len(p) == 0 {
		return
	}
	t.emit(SendData{Bytes: p})
}

func (t *transfer) sendByte(b byte) {
	t.out = append(t.out[:0], b)
	t.send(t.out)
}

// sendOut emits the scratch buffer built by the caller.
func (t *transfer) sendOut() {
	t.send(t.out)
}

func (t *transfer) progress(state string) {
	if t.filePos > t.reported {
		t.reported = t.filePos
	}
	t.emit(Progress{
		State:            state,
		BytesTransferred: t.reported,
		TotalBytes:       t.fileSize,
		CurrentBlock:     t.block,
		ErrorCount:       t.errors,
		FileName:         t.fileName,
	})
}

func (t *transfer) complete() {
	if t.terminal {
		return
	}
	t.terminal = true
	t.logger.Info("%s: transfer complete (%d bytes)", t.proto, t.filePos)
	t.emit(Completed{})
}

// fail ends the session with the protocol cancel sequence and a Failed event.
func (t *transfer) fail(msg string) {
	if t.terminal {
		return
	}
	t.terminal = true
	t.logger.Error("%s: transfer failed: %s", t.proto, msg)
	t.emit(SendData{Bytes: t.cancelWire})
	t.emit(Failed{Message: msg})
}

// cancelNow ends the session with the protocol cancel sequence and a
// Cancelled event. Idempotent.
func (t *transfer) cancelNow() {
	if t.terminal {
		return
	}
	t.terminal = true
	t.logger.Info("%s: transfer cancelled", t.proto)
	t.emit(SendData{Bytes: t.cancelWire})
	t.emit(Cancelled{})
}

// cancel implements the host-facing Cancel: a no-op from idle, a terminal
// transition from any active state.
func (t *transfer) cancel() {
	if !t.started {
		return
	}
	t.cancelNow()
}

func (t *transfer) active() bool {
	return t.started && !t.terminal
}

// Session is the host-facing handle for one file transfer. A session is
// created idle, started exactly once with StartSend or StartReceive, and
// ends in a terminal state; it cannot be restarted. All session memory is
// released when the handle is garbage collected.
//
// Sessions are not safe for concurrent use. The host must serialize all
// calls on a session.
type Session struct {
	proto Protocol
	m     machine
}

// Option configures a Session.
type Option func(*transfer)

// WithLogger sets a logger for protocol debugging.
func WithLogger(l Logger) Option {
	return func(t *transfer) {
		if l != nil {
			t.logger = l
		}
	}
}

// NewSession creates a session for the given protocol variant. Events are
// delivered to sink; see the Event documentation for the lifetime contract
// on borrowed payloads.
func NewSession(proto Protocol, sink EventSink, opts ...Option) *Session {
	base := transfer{
		sink:   sink,
		logger: NoopLogger{},
		proto:  proto,
	}

	s := &Session{proto: proto}
	switch proto {
	case ZModem:
		m := newZModemMachine(base)
		for _, opt := range opts {
			opt(&m.transfer)
		}
		s.m = m
	case YModem:
		m := newYModemMachine(base)
		for _, opt := range opts {
			opt(&m.transfer)
		}
		s.m = m
	default:
		m := newXModemMachine(proto, base)
		for _, opt := range opts {
			opt(&m.transfer)
		}
		s.m = m
	}
	return s
}

// Protocol returns the session's protocol variant.
func (s *Session) Protocol() Protocol { return s.proto }

// StartSend begins sending data under the given file name. The name is only
// carried by protocols with metadata (YMODEM, ZMODEM); it may be empty for
// the XMODEM variants. Emits Started.
func (s *Session) StartSend(fileName string, data []byte) error {
	return s.m.startSend(fileName, data)
}

// StartReceive begins receiving. The initial handshake bytes are emitted
// through the sink before StartReceive returns.
func (s *Session) StartReceive() error {
	return s.m.startReceive()
}

// ProcessData drives the machine with received bytes. Any number of bytes,
// including zero, is valid; every byte is consumed before ProcessData
// returns. Once the session is terminal this is a no-op.
func (s *Session) ProcessData(p []byte) {
	s.m.processData(p)
}

// Cancel aborts the session. From an active state it emits the protocol
// cancel sequence and a Cancelled event; from an idle or terminal state it
// is a no-op. Idempotent, and safe to call from inside the event sink.
func (s *Session) Cancel() {
	s.m.cancel()
}

// IsActive reports whether the session has started and not yet reached a
// terminal state.
func (s *Session) IsActive() bool {
	return s.m.shared().active()
}

// ReceivedData returns the accumulated receive payload, an empty non-nil
// slice when nothing was received. The slice is owned by the session;
// callers must copy it if they outlive the session.
func (s *Session) ReceivedData() []byte {
	if buf := s.m.shared().recvBuf; buf != nil {
		return buf
	}
	return []byte{}
}

// FileName returns the current transfer file name, or "" when the protocol
// has not carried one.
func (s *Session) FileName() string {
	return s.m.shared().fileName
}

// FileSize returns the declared file size, 0 when unknown.
func (s *Session) FileSize() uint64 {
	return s.m.shared().fileSize
}

package xfer

import (
	"context"
	"io"
	"sync"
)

// TerminalIO wraps a remote byte stream and automatically handles ZMODEM
// downloads. It acts as middleware: remote output passes through to the
// terminal writer until a ZMODEM auto-start signature is seen, at which
// point a receive session is created, the triggering bytes are replayed
// into it, and the stream drives the session until it terminates.
type TerminalIO struct {
	remote   io.ReadWriter
	terminal io.Writer

	logger Logger

	// OnReceive is called with each completed download. Optional.
	OnReceive func(fileName string, data []byte)

	// OnEvent observes the active session's events. Optional.
	OnEvent EventSink

	mu      sync.Mutex
	session *Session
	scan    []byte
}

// scanWindow is how many trailing bytes are kept for signature detection.
const scanWindow = 64

// NewTerminalIO creates the middleware. Remote traffic is read from and
// written to remote; passthrough output goes to terminal.
func NewTerminalIO(remote io.ReadWriter, terminal io.Writer, opts ...TerminalOption) *TerminalIO {
	t := &TerminalIO{
		remote:   remote,
		terminal: terminal,
		logger:   NoopLogger{},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// TerminalOption configures a TerminalIO.
type TerminalOption func(*TerminalIO)

// WithTerminalLogger sets a logger for the middleware and its sessions.
func WithTerminalLogger(l Logger) TerminalOption {
	return func(t *TerminalIO) {
		if l != nil {
			t.logger = l
		}
	}
}

// Write forwards keyboard input to the remote. Input typed during an active
// transfer is dropped, matching what a terminal user expects.
func (t *TerminalIO) Write(p []byte) (int, error) {
	t.mu.Lock()
	inTransfer := t.session != nil
	t.mu.Unlock()
	if inTransfer {
		return len(p), nil
	}
	return t.remote.Write(p)
}

// Run reads the remote stream until it closes or ctx is done, passing
// bytes through and running ZMODEM receives in-line.
func (t *TerminalIO) Run(ctx context.Context) error {
	buf := make([]byte, 4096)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := t.remote.Read(buf)
		if n > 0 {
			t.consume(buf[:n])
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
}

// consume routes one chunk of remote output.
func (t *TerminalIO) consume(p []byte) {
	t.mu.Lock()
	session := t.session
	t.mu.Unlock()

	if session != nil {
		session.ProcessData(p)
		t.reapSession()
		return
	}

	t.scan = append(t.scan, p...)
	if DetectZModemAutostart(t.scan) {
		t.logger.Info("terminal: ZMODEM auto-start detected")
		t.startReceive()
		return
	}
	if len(t.scan) > scanWindow {
		t.scan = t.scan[len(t.scan)-scanWindow:]
	}
	if t.terminal != nil {
		t.terminal.Write(p)
	}
}

// startReceive spins up a receive session and replays the trigger bytes.
func (t *TerminalIO) startReceive() {
	sink := func(ev Event) {
		if sd, ok := ev.(SendData); ok {
			t.remote.Write(sd.Bytes)
		}
		if t.OnEvent != nil {
			t.OnEvent(ev)
		}
	}

	session := NewSession(ZModem, sink, WithLogger(t.logger))
	t.mu.Lock()
	t.session = session
	trigger := t.scan
	t.scan = nil
	t.mu.Unlock()

	session.StartReceive()
	session.ProcessData(trigger)
	t.reapSession()
}

// reapSession tears down a session that reached a terminal state and
// resumes passthrough.
func (t *TerminalIO) reapSession() {
	t.mu.Lock()
	session := t.session
	t.mu.Unlock()
	if session == nil || session.IsActive() {
		return
	}

	t.mu.Lock()
	t.session = nil
	t.mu.Unlock()

	if t.OnReceive != nil && len(session.ReceivedData()) > 0 {
		t.OnReceive(session.FileName(), session.ReceivedData())
	}
	t.logger.Info("terminal: transfer finished, back to passthrough")
}

// Cancel aborts an in-flight transfer, if any.
func (t *TerminalIO) Cancel() {
	t.mu.Lock()
	session := t.session
	t.mu.Unlock()
	if session != nil {
		session.Cancel()
	}
}

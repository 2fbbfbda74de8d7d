package xfer

import (
	"context"
	"io"
	"time"
)

// DefaultStallTimeout is how long a Pump waits for line activity before
// cancelling a session. The classic per-block guidance is 10 seconds.
const DefaultStallTimeout = 10 * time.Second

// Pump drives a session over a blocking transport. The engine itself is
// timer-less and push-driven; the pump supplies the read loop, forwards
// SendData bytes to the transport, and cancels the session when the line
// goes quiet for longer than the stall timeout.
type Pump struct {
	rw      io.ReadWriter
	proto   Protocol
	stall   time.Duration
	logger  Logger
	events  EventSink
	session *Session

	failMsg   string
	cancelled bool
	writeErr  error
}

// PumpOption configures a Pump.
type PumpOption func(*Pump)

// WithStallTimeout overrides the stall timeout.
func WithStallTimeout(d time.Duration) PumpOption {
	return func(p *Pump) {
		if d > 0 {
			p.stall = d
		}
	}
}

// WithPumpLogger sets a logger for the pump and its session.
func WithPumpLogger(l Logger) PumpOption {
	return func(p *Pump) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithEvents forwards session events (including SendData, after the pump
// has written it) to an observer sink.
func WithEvents(sink EventSink) PumpOption {
	return func(p *Pump) {
		p.events = sink
	}
}

// NewPump creates a pump for one transfer over rw.
func NewPump(rw io.ReadWriter, proto Protocol, opts ...PumpOption) *Pump {
	p := &Pump{
		rw:     rw,
		proto:  proto,
		stall:  DefaultStallTimeout,
		logger: NoopLogger{},
	}
	for _, opt := range opts {
		opt(p)
	}
	p.session = NewSession(proto, p.sink, WithLogger(p.logger))
	return p
}

// Session exposes the pump's underlying session.
func (p *Pump) Session() *Session { return p.session }

// sink handles engine events: wire bytes go to the transport, terminal
// outcomes are recorded, everything is forwarded to the observer.
func (p *Pump) sink(ev Event) {
	switch e := ev.(type) {
	case SendData:
		if p.writeErr == nil {
			_, p.writeErr = p.rw.Write(e.Bytes)
		}
	case Failed:
		p.failMsg = e.Message
	case Cancelled:
		p.cancelled = true
	}
	if p.events != nil {
		p.events(ev)
	}
}

// Send transfers data under the given file name and blocks until the
// session terminates or ctx is done.
func (p *Pump) Send(ctx context.Context, fileName string, data []byte) error {
	return p.run(ctx, func() error {
		return p.session.StartSend(fileName, data)
	})
}

// Receive blocks until a transfer completes and returns the received
// payload and file name.
func (p *Pump) Receive(ctx context.Context) ([]byte, string, error) {
	err := p.run(ctx, p.session.StartReceive)
	if err != nil {
		return nil, "", err
	}
	return p.session.ReceivedData(), p.session.FileName(), nil
}

type readChunk struct {
	data []byte
	err  error
}

// run is the drive loop: transport bytes in, session events out. The
// session is started only once the reader is up, so the opening handshake
// write cannot block an unattended transport.
func (p *Pump) run(ctx context.Context, start func() error) error {
	reads := make(chan readChunk)
	done := make(chan struct{})
	defer close(done)

	go func() {
		for {
			buf := make([]byte, 4096)
			n, err := p.rw.Read(buf)
			select {
			case reads <- readChunk{data: buf[:n], err: err}:
			case <-done:
				return
			}
			if err != nil {
				return
			}
		}
	}()

	if err := start(); err != nil {
		return err
	}

	timer := time.NewTimer(p.stall)
	defer timer.Stop()

	for p.session.IsActive() {
		select {
		case <-ctx.Done():
			p.session.Cancel()
			return NewError(ErrCancelled, "context cancelled")
		case <-timer.C:
			p.logger.Error("%s: no line activity for %v, cancelling", p.proto, p.stall)
			p.session.Cancel()
			return NewError(ErrCancelled, "transfer stalled")
		case chunk := <-reads:
			if len(chunk.data) > 0 {
				p.session.ProcessData(chunk.data)
			}
			if chunk.err != nil {
				if p.session.IsActive() {
					p.session.Cancel()
					return NewError(ErrProtocol, "transport closed: "+chunk.err.Error())
				}
				break
			}
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(p.stall)
		}
	}

	if p.writeErr != nil {
		return NewError(ErrProtocol, "transport write: "+p.writeErr.Error())
	}
	if p.failMsg != "" {
		return NewError(ErrProtocol, p.failMsg)
	}
	if p.cancelled {
		return NewError(ErrCancelled, "transfer cancelled")
	}
	return nil
}

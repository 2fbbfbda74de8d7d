package serial

import (
	"fmt"
	"io"
	"time"

	bserial "go.bug.st/serial"
)

// ModemStatus reports the modem control and status lines. DTR and RTS are
// the locally driven outputs; the rest are read from the port.
type ModemStatus struct {
	DTR bool
	RTS bool
	CTS bool
	DSR bool
	DCD bool
	RI  bool
}

// Port is an open serial port.
type Port struct {
	p    bserial.Port
	name string
	cfg  Config

	dtr bool
	rts bool

	// pending holds bytes pulled off the line by WaitForData before the
	// caller reads them.
	pending []byte
}

// Open opens and configures a serial port.
func Open(name string, cfg Config) (*Port, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	mode := &bserial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: cfg.DataBits,
		Parity:   mapParity(cfg.Parity),
		StopBits: mapStopBits(cfg.StopBits),
	}
	p, err := bserial.Open(name, mode)
	if err != nil {
		return nil, fmt.Errorf("serial: open %s: %w", name, err)
	}

	return &Port{
		p:    p,
		name: name,
		cfg:  cfg,
		dtr:  true,
		rts:  true,
	}, nil
}

func mapParity(p Parity) bserial.Parity {
	switch p {
	case ParityOdd:
		return bserial.OddParity
	case ParityEven:
		return bserial.EvenParity
	default:
		return bserial.NoParity
	}
}

func mapStopBits(n int) bserial.StopBits {
	if n == 2 {
		return bserial.TwoStopBits
	}
	return bserial.OneStopBit
}

// Name returns the device path the port was opened with.
func (p *Port) Name() string { return p.name }

// Config returns the port configuration.
func (p *Port) Config() Config { return p.cfg }

// Close closes the port.
func (p *Port) Close() error {
	return p.p.Close()
}

// Read reads available bytes, serving anything buffered by WaitForData
// first.
func (p *Port) Read(buf []byte) (int, error) {
	if len(p.pending) > 0 {
		n := copy(buf, p.pending)
		p.pending = p.pending[n:]
		return n, nil
	}
	return p.p.Read(buf)
}

// Write writes data to the port.
func (p *Port) Write(data []byte) (int, error) {
	return p.p.Write(data)
}

// WriteAll writes the whole of data, looping over short writes.
func (p *Port) WriteAll(data []byte) error {
	for len(data) > 0 {
		n, err := p.p.Write(data)
		if err != nil {
			return err
		}
		data = data[n:]
	}
	return nil
}

// SendBreak asserts a break condition on the line.
func (p *Port) SendBreak(d time.Duration) error {
	if d <= 0 {
		d = 250 * time.Millisecond
	}
	return p.p.Break(d)
}

// SetDTR drives the DTR output line.
func (p *Port) SetDTR(level bool) error {
	if err := p.p.SetDTR(level); err != nil {
		return err
	}
	p.dtr = level
	return nil
}

// SetRTS drives the RTS output line.
func (p *Port) SetRTS(level bool) error {
	if err := p.p.SetRTS(level); err != nil {
		return err
	}
	p.rts = level
	return nil
}

// ModemStatus reads the current modem line state.
func (p *Port) ModemStatus() (ModemStatus, error) {
	bits, err := p.p.GetModemStatusBits()
	if err != nil {
		return ModemStatus{}, err
	}
	return ModemStatus{
		DTR: p.dtr,
		RTS: p.rts,
		CTS: bits.CTS,
		DSR: bits.DSR,
		DCD: bits.DCD,
		RI:  bits.RI,
	}, nil
}

// FlushInput discards unread input, including the WaitForData buffer.
func (p *Port) FlushInput() error {
	p.pending = nil
	return p.p.ResetInputBuffer()
}

// FlushOutput discards unwritten output.
func (p *Port) FlushOutput() error {
	return p.p.ResetOutputBuffer()
}

// Flush discards both directions.
func (p *Port) Flush() error {
	if err := p.FlushInput(); err != nil {
		return err
	}
	return p.FlushOutput()
}

// BytesAvailable returns how many bytes WaitForData has already pulled off
// the line.
func (p *Port) BytesAvailable() int {
	return len(p.pending)
}

// WaitForData blocks until at least one byte is readable or the timeout
// elapses. The byte is buffered and served by the next Read.
func (p *Port) WaitForData(timeout time.Duration) (bool, error) {
	if len(p.pending) > 0 {
		return true, nil
	}
	if err := p.p.SetReadTimeout(timeout); err != nil {
		return false, err
	}
	defer p.p.SetReadTimeout(bserial.NoTimeout)

	var one [64]byte
	n, err := p.p.Read(one[:])
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil // timeout
	}
	p.pending = append(p.pending, one[:n]...)
	return true, nil
}

var _ io.ReadWriter = (*Port)(nil)

// Ports lists the serial ports present on the system.
func Ports() ([]string, error) {
	return bserial.GetPortsList()
}

// EnumeratePorts invokes fn for every serial port on the system.
func EnumeratePorts(fn func(name string)) error {
	names, err := bserial.GetPortsList()
	if err != nil {
		return err
	}
	for _, n := range names {
		fn(n)
	}
	return nil
}

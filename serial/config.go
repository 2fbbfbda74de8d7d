// Package serial provides the serial-port layer the transfer engine is
// hosted on: port configuration, open/read/write, modem-line control and
// port enumeration, on top of go.bug.st/serial.
package serial

import "fmt"

// Parity selects the parity bit mode.
type Parity int

const (
	ParityNone Parity = iota
	ParityOdd
	ParityEven
)

func (p Parity) String() string {
	switch p {
	case ParityNone:
		return "none"
	case ParityOdd:
		return "odd"
	case ParityEven:
		return "even"
	default:
		return "unknown"
	}
}

// FlowControl selects the line flow-control discipline. Hardware and
// software modes are recorded in the Config for the host's use only; Open
// does not pass them to the underlying driver.
type FlowControl int

const (
	FlowNone FlowControl = iota
	FlowHardware            // RTS/CTS
	FlowSoftware            // XON/XOFF
)

func (f FlowControl) String() string {
	switch f {
	case FlowNone:
		return "none"
	case FlowHardware:
		return "rtscts"
	case FlowSoftware:
		return "xonxoff"
	default:
		return "unknown"
	}
}

// LineEnding selects what a host sends for end-of-line in terminal mode.
type LineEnding int

const (
	LineEndingCR LineEnding = iota
	LineEndingLF
	LineEndingCRLF
)

// Bytes returns the wire form of the line ending.
func (le LineEnding) Bytes() []byte {
	switch le {
	case LineEndingLF:
		return []byte{'\n'}
	case LineEndingCRLF:
		return []byte{'\r', '\n'}
	default:
		return []byte{'\r'}
	}
}

// Config describes a serial port setup.
type Config struct {
	BaudRate    int
	DataBits    int // 5, 6, 7 or 8
	Parity      Parity
	StopBits    int // 1 or 2
	FlowControl FlowControl
	LocalEcho   bool
	LineEnding  LineEnding
}

// DefaultConfig returns the common 115200 8N1 setup.
func DefaultConfig() Config {
	return Config{
		BaudRate:   115200,
		DataBits:   8,
		Parity:     ParityNone,
		StopBits:   1,
		LineEnding: LineEndingCR,
	}
}

// supportedBauds are the standard rates accepted by Validate.
var supportedBauds = []int{
	300, 1200, 2400, 4800, 9600, 19200, 38400,
	57600, 115200, 230400, 460800, 921600,
}

// Validate checks the configuration against the supported parameter sets.
func (c Config) Validate() error {
	ok := false
	for _, b := range supportedBauds {
		if c.BaudRate == b {
			ok = true
			break
		}
	}
	if !ok {
		return fmt.Errorf("serial: unsupported baud rate %d", c.BaudRate)
	}
	if c.DataBits < 5 || c.DataBits > 8 {
		return fmt.Errorf("serial: unsupported data bits %d", c.DataBits)
	}
	if c.StopBits != 1 && c.StopBits != 2 {
		return fmt.Errorf("serial: unsupported stop bits %d", c.StopBits)
	}
	return nil
}

func (c Config) String() string {
	parity := "N"
	switch c.Parity {
	case ParityOdd:
		parity = "O"
	case ParityEven:
		parity = "E"
	}
	return fmt.Sprintf("%d %d%s%d %s", c.BaudRate, c.DataBits, parity, c.StopBits, c.FlowControl)
}

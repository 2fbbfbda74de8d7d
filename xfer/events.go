package xfer

// Event is a notification pushed to the host while a session runs. The
// concrete type is one of Started, Progress, SendData, Completed, Failed or
// Cancelled.
//
// Events are delivered synchronously, in wire order, from inside engine
// calls. A single inbound byte may produce zero, one or several events.
type Event interface {
	event()
}

// EventSink receives session events. It is invoked synchronously from inside
// ProcessData, StartSend, StartReceive and Cancel. The sink may call Cancel
// on the owning session re-entrantly; the engine treats that as a normal
// terminal transition.
type EventSink func(Event)

// Started is emitted once when a transfer begins: on StartSend, and on the
// receive side as soon as the peer has announced a file (YMODEM block 0,
// ZMODEM ZFILE). FileName is empty when the protocol carries no metadata.
type Started struct {
	FileName string
	FileSize uint64
}

// Progress is emitted after every accepted block or subpacket.
// BytesTransferred is non-decreasing for the lifetime of the session, even
// across retransmits and ZMODEM rewinds.
type Progress struct {
	State            string
	BytesTransferred uint64
	TotalBytes       uint64
	CurrentBlock     uint32
	ErrorCount       uint32
	FileName         string
}

// SendData carries outbound wire bytes for the host to write to the line.
//
// Bytes is borrowed from the session's internal scratch buffer and is only
// valid for the duration of the callback. The host must write or copy it
// before returning.
type SendData struct {
	Bytes []byte
}

// Completed is emitted exactly once when a session ends successfully.
type Completed struct{}

// Failed is emitted exactly once when a session ends in error. The protocol
// cancel sequence has already been emitted through SendData by the time the
// sink sees this event.
type Failed struct {
	Message string
}

// Cancelled is emitted exactly once when a session is cancelled, either by
// the host calling Cancel or by the peer's cancel sequence.
type Cancelled struct{}

func (Started) event()   {}
func (Progress) event()  {}
func (SendData) event()  {}
func (Completed) event() {}
func (Failed) event()    {}
func (Cancelled) event() {}

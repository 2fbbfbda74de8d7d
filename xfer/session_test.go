package xfer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionLifecycle(t *testing.T) {
	rec := &recorder{}
	s := NewSession(XModemCRC, rec.sink)

	assert.False(t, s.IsActive(), "idle before start")
	assert.Equal(t, XModemCRC, s.Protocol())

	// Idle sessions ignore input and cancellation.
	s.ProcessData([]byte{WANTCRC, ACK})
	s.Cancel()
	assert.Empty(t, rec.events)

	require.NoError(t, s.StartReceive())
	assert.True(t, s.IsActive())

	// A session cannot be started twice.
	assert.Error(t, s.StartSend("", nil))
	assert.Error(t, s.StartReceive())
}

func TestSessionProcessDataEmpty(t *testing.T) {
	rec := &recorder{}
	s := NewSession(ZModem, rec.sink)
	require.NoError(t, s.StartReceive())

	before := len(rec.events)
	s.ProcessData(nil)
	s.ProcessData([]byte{})
	assert.Equal(t, before, len(rec.events))
	assert.True(t, s.IsActive())
}

func TestSessionTerminalAbsorbsInput(t *testing.T) {
	rec := &recorder{}
	s := NewSession(XModemCRC, rec.sink)
	require.NoError(t, s.StartReceive())
	s.Cancel()
	assert.False(t, s.IsActive())

	events := len(rec.events)
	s.ProcessData([]byte{SOH, 0x01, 0xFE})
	s.Cancel()
	assert.Equal(t, events, len(rec.events))
}

func TestSessionReentrantCancelFromSink(t *testing.T) {
	var s *Session
	var cancelled int
	sink := func(ev Event) {
		switch ev.(type) {
		case Progress:
			// The host pulls the plug from inside a callback.
			s.Cancel()
		case Cancelled:
			cancelled++
		}
	}

	s = NewSession(XModemCRC, sink)
	require.NoError(t, s.StartReceive())

	block := appendBlock(nil, 1, patternData(10), 0, 128, true)
	s.ProcessData(block)

	assert.Equal(t, 1, cancelled)
	assert.False(t, s.IsActive())
}

func TestSessionEventOrderOnFailure(t *testing.T) {
	// The cancel sequence must hit the wire before the Failed event, and
	// nothing may follow a terminal event.
	var order []string
	sink := func(ev Event) {
		switch ev.(type) {
		case SendData:
			order = append(order, "send")
		case Failed:
			order = append(order, "failed")
		case Completed:
			order = append(order, "completed")
		case Started:
			order = append(order, "started")
		}
	}

	s := NewSession(XModemCRC, sink)
	require.NoError(t, s.StartSend("", patternData(4)))
	s.ProcessData([]byte{WANTCRC})
	for i := 0; i <= MaxRetries; i++ {
		s.ProcessData([]byte{NAK})
	}

	require.NotEmpty(t, order)
	assert.Equal(t, "failed", order[len(order)-1])
	assert.Equal(t, "send", order[len(order)-2])
}

func TestSessionReceivedDataAccumulates(t *testing.T) {
	rec := &recorder{}
	s := NewSession(XModemCRC, rec.sink)
	require.NoError(t, s.StartReceive())

	data := patternData(300)
	s.ProcessData(appendBlock(nil, 1, data, 0, 128, true))
	assert.Len(t, s.ReceivedData(), 128)
	s.ProcessData(appendBlock(nil, 2, data, 128, 128, true))
	assert.Len(t, s.ReceivedData(), 256)
}

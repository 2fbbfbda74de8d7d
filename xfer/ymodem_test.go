package xfer

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ymodemBlock0 builds a metadata block the way a peer sender would.
func ymodemBlock0(name string, size uint64, blockSize int) []byte {
	info := appendFileInfo(nil, name, size)
	block := appendBlock(nil, 0, info, 0, blockSize, true)
	for i := 3 + len(info); i < 3+blockSize; i++ {
		block[i] = 0
	}
	crc := CRC16(block[3 : 3+blockSize])
	block[3+blockSize] = byte(crc >> 8)
	block[3+blockSize+1] = byte(crc)
	return block
}

// TestYModemBatchReceive walks the receiver through a complete batch:
// block 0, one data block, strict double EOT, closing block 0.
func TestYModemBatchReceive(t *testing.T) {
	rcv := &recorder{}
	receiver := NewSession(YModem, rcv.sink)
	require.NoError(t, receiver.StartReceive())
	assert.Equal(t, []byte{WANTCRC}, rcv.flat())

	// Block 0 announces "a.bin", 3 bytes.
	receiver.ProcessData(ymodemBlock0("a.bin", 3, 1024))
	assert.Equal(t, []byte{ACK, WANTCRC}, rcv.flat())

	started, ok := rcv.started()
	require.True(t, ok)
	assert.Equal(t, "a.bin", started.FileName)
	assert.Equal(t, uint64(3), started.FileSize)
	assert.Equal(t, "a.bin", receiver.FileName())

	// Data block 1: "ABC" plus SUB padding.
	payload := append([]byte("ABC"), bytes.Repeat([]byte{SUB}, 1021)...)
	receiver.ProcessData(appendBlock(nil, 1, payload, 0, 1024, true))
	assert.Equal(t, []byte{ACK}, rcv.flat())

	// Strict termination: NAK the first EOT, ACK the second, poll again.
	receiver.ProcessData([]byte{EOT})
	assert.Equal(t, []byte{NAK}, rcv.flat())
	receiver.ProcessData([]byte{EOT})
	assert.Equal(t, []byte{ACK, WANTCRC}, rcv.flat())

	// Empty block 0 terminates the batch.
	receiver.ProcessData(ymodemBlock0("", 0, 128))
	assert.Equal(t, []byte{ACK}, rcv.flat())
	assert.Equal(t, 1, rcv.count(Completed{}))
	assert.False(t, receiver.IsActive())

	// The declared size strips the padding.
	assert.Equal(t, []byte("ABC"), receiver.ReceivedData())
}

func TestYModemSenderHandshake(t *testing.T) {
	data := []byte("ABC")
	snd := &recorder{}
	sender := NewSession(YModem, snd.sink)
	require.NoError(t, sender.StartSend("a.bin", data))
	assert.Empty(t, snd.wire)

	// First C: block 0.
	sender.ProcessData([]byte{WANTCRC})
	block0 := snd.flat()
	require.Len(t, block0, 3+1024+2)
	assert.Equal(t, byte(STX), block0[0])
	assert.Equal(t, byte(0), block0[1])
	assert.Equal(t, byte(0xFF), block0[2])
	name, size := parseFileInfo(block0[3 : 3+1024])
	assert.Equal(t, "a.bin", name)
	assert.Equal(t, uint64(3), size)

	// ACK then second C: data block 1.
	sender.ProcessData([]byte{ACK})
	assert.Empty(t, snd.wire)
	sender.ProcessData([]byte{WANTCRC})
	block1 := snd.flat()
	require.Len(t, block1, 3+1024+2)
	assert.Equal(t, byte(0x01), block1[1])
	assert.Equal(t, []byte("ABC"), block1[3:6])
	assert.Equal(t, byte(SUB), block1[6])

	// ACK: all data sent, EOT follows.
	sender.ProcessData([]byte{ACK})
	assert.Equal(t, []byte{EOT}, snd.flat())

	// The receiver NAKs the first EOT.
	sender.ProcessData([]byte{NAK})
	assert.Equal(t, []byte{EOT}, snd.flat())

	// ACK: the closing empty block 0.
	sender.ProcessData([]byte{ACK})
	final := snd.flat()
	require.Len(t, final, 3+128+2)
	assert.Equal(t, byte(SOH), final[0])
	assert.Equal(t, byte(0), final[1])
	assert.Equal(t, bytes.Repeat([]byte{0}, 128), final[3:131])

	// The receiver's next-file poll may arrive before its ACK.
	sender.ProcessData([]byte{WANTCRC})
	sender.ProcessData([]byte{ACK})
	assert.Equal(t, 1, snd.count(Completed{}))
}

func TestYModemLoopback(t *testing.T) {
	for _, size := range []int{0, 3, 1024, 5000} {
		data := patternData(size)

		snd := &recorder{}
		sender := NewSession(YModem, snd.sink)
		require.NoError(t, sender.StartSend("test.dat", data))

		rcv := &recorder{}
		receiver := NewSession(YModem, rcv.sink)
		require.NoError(t, receiver.StartReceive())

		drive(t, sender, receiver, snd, rcv)

		assert.Equal(t, 1, snd.count(Completed{}), "size %d", size)
		assert.Equal(t, 1, rcv.count(Completed{}), "size %d", size)
		assert.Equal(t, data, receiver.ReceivedData(), "size %d", size)
		assert.Equal(t, "test.dat", receiver.FileName())
		progressMonotonic(t, rcv.events)
	}
}

func TestYModemRejectsOverlongFileName(t *testing.T) {
	snd := &recorder{}
	sender := NewSession(YModem, snd.sink)
	err := sender.StartSend(strings.Repeat("n", MaxFileName+1), []byte("x"))
	require.Error(t, err)
	assert.False(t, sender.IsActive())
}

func TestYModemDuplicateBlock0(t *testing.T) {
	rcv := &recorder{}
	receiver := NewSession(YModem, rcv.sink)
	require.NoError(t, receiver.StartReceive())
	rcv.flat()

	block0 := ymodemBlock0("dup.bin", 10, 1024)
	receiver.ProcessData(block0)
	assert.Equal(t, []byte{ACK, WANTCRC}, rcv.flat())

	// Retransmitted block 0 is acknowledged without a second Started.
	receiver.ProcessData(block0)
	assert.Equal(t, []byte{ACK}, rcv.flat())

	n := 0
	for _, e := range rcv.events {
		if _, ok := e.(Started); ok {
			n++
		}
	}
	assert.Equal(t, 1, n)
}

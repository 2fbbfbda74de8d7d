package xfer

import (
	"bytes"
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// syncBuffer is a goroutine-safe terminal sink for tests.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

// TestTerminalIOAutoStart runs the middleware against a remote that prints
// some shell output and then starts a ZMODEM send.
func TestTerminalIOAutoStart(t *testing.T) {
	local, remote := net.Pipe()
	defer local.Close()
	defer remote.Close()

	term := &syncBuffer{}
	var received struct {
		mu   sync.Mutex
		name string
		data []byte
	}

	tio := NewTerminalIO(local, term)
	tio.OnReceive = func(name string, data []byte) {
		received.mu.Lock()
		defer received.mu.Unlock()
		received.name = name
		received.data = append([]byte(nil), data...)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	runDone := make(chan error, 1)
	go func() {
		runDone <- tio.Run(ctx)
	}()

	// Ordinary terminal traffic passes through.
	_, err := remote.Write([]byte("login: ok\r\n$ sz file.bin\r\n"))
	require.NoError(t, err)

	// The remote sender takes over the line.
	payload := patternData(2500)
	sendErr := NewPump(remote, ZModem).Send(ctx, "file.bin", payload)
	require.NoError(t, sendErr)

	remote.Close()
	require.NoError(t, <-runDone)

	received.mu.Lock()
	defer received.mu.Unlock()
	assert.Equal(t, "file.bin", received.name)
	assert.Equal(t, payload, received.data)
	assert.Contains(t, term.String(), "login: ok")
	assert.NotContains(t, term.String(), string([]byte{ZPAD, ZPAD, ZDLE, ZHEX}))
}

func TestTerminalIOPassthroughOnly(t *testing.T) {
	local, remote := net.Pipe()
	defer local.Close()

	term := &syncBuffer{}
	tio := NewTerminalIO(local, term)

	runDone := make(chan error, 1)
	go func() {
		runDone <- tio.Run(context.Background())
	}()

	remote.Write([]byte("plain output, no transfers here\r\n"))
	remote.Close()
	require.NoError(t, <-runDone)

	assert.Contains(t, term.String(), "plain output")
}

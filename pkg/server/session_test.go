package server

import (
	"bytes"
	"net"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadLineStripsLineEnding(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	sess := NewSession(1, server, 1024)

	go client.Write([]byte("join general\r\n"))
	line, err := sess.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "join general", line)

	go client.Write([]byte("hello\n"))
	line, err = sess.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "hello", line)
}

func TestReadLineRejectsOversizedLine(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	sess := NewSession(1, server, 16)

	go client.Write([]byte("this line is far longer than sixteen bytes\n"))
	_, err := sess.ReadLine()
	assert.ErrorIs(t, err, ErrLineTooLong)
}

func TestReadLineBoundsConsumption(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	sess := NewSession(1, server, 16)

	// A hostile client streams an endless unterminated line. The reader
	// must reject it after one buffer, not keep draining the socket.
	var written atomic.Int64
	go func() {
		chunk := bytes.Repeat([]byte("x"), 16)
		for i := 0; i < 65536; i++ {
			n, err := client.Write(chunk)
			written.Add(int64(n))
			if err != nil {
				return
			}
		}
	}()

	_, err := sess.ReadLine()
	assert.ErrorIs(t, err, ErrLineTooLong)
	assert.LessOrEqual(t, written.Load(), int64(64),
		"reader consumed far more than its buffer from an unterminated line")
}

func TestClearSalonIf(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	sess := NewSession(1, server, 1024)
	sess.SetSalon("general")

	assert.False(t, sess.ClearSalonIf("tech"))
	assert.Equal(t, "general", sess.CurrentSalon())

	assert.True(t, sess.ClearSalonIf("general"))
	assert.Equal(t, "", sess.CurrentSalon())
	assert.False(t, sess.ClearSalonIf("general"))
}

func TestAuthenticationState(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	sess := NewSession(1, server, 1024)
	assert.False(t, sess.Authenticated())
	assert.Equal(t, "", sess.Username())

	sess.SetAuthenticated("alice", false)
	assert.True(t, sess.Authenticated())
	assert.Equal(t, "alice", sess.Username())
	assert.False(t, sess.IsAdmin())
}

package protocol

import (
	"bytes"
	"encoding/binary"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pipeConns(t *testing.T) (*Conn, *Conn) {
	t.Helper()
	a, b := net.Pipe()
	ca, cb := NewConn(a), NewConn(b)
	t.Cleanup(func() {
		_ = ca.Close()
		_ = cb.Close()
	})
	return ca, cb
}

func TestConn_RoundTrip(t *testing.T) {
	client, server := pipeConns(t)

	go func() {
		_ = client.WriteMessage(Heartbeat{FromID: 3, Timestamp: 1700000000, Load: 42.0})
	}()

	msg, err := server.ReadMessage()
	require.NoError(t, err)

	hb, ok := msg.(Heartbeat)
	require.True(t, ok)
	assert.Equal(t, uint32(3), hb.FromID)
	assert.Equal(t, 42.0, hb.Load)
}

func TestConn_CleanCloseIsEOF(t *testing.T) {
	client, server := pipeConns(t)

	go func() { _ = client.Close() }()

	_, err := server.ReadMessage()
	assert.ErrorIs(t, err, io.EOF)
}

func TestConn_CloseMidFrameIsError(t *testing.T) {
	a, b := net.Pipe()
	server := NewConn(b)
	defer server.Close()

	go func() {
		var header [4]byte
		binary.BigEndian.PutUint32(header[:], 100)
		_, _ = a.Write(header[:])
		_, _ = a.Write([]byte("partial"))
		_ = a.Close()
	}()

	_, err := server.ReadMessage()
	require.Error(t, err)
	assert.NotErrorIs(t, err, io.EOF)
}

func TestConn_OversizeFrameRejected(t *testing.T) {
	a, b := net.Pipe()
	server := NewConn(b)
	defer server.Close()

	go func() {
		var header [4]byte
		binary.BigEndian.PutUint32(header[:], MaxFrameSize+1)
		_, _ = a.Write(header[:])
	}()

	_, err := server.ReadMessage()
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

// bufferConn adapts a reader into a net.Conn so boundary frames can be fed
// without pushing 50MB through a pipe.
type bufferConn struct {
	net.Conn
	r io.Reader
}

func (c bufferConn) Read(p []byte) (int, error) { return c.r.Read(p) }

func (c bufferConn) SetReadDeadline(time.Time) error { return nil }

func TestConn_FrameAtLimitAccepted(t *testing.T) {
	payload, err := Encode(Alive{FromID: 1})
	require.NoError(t, err)

	// Pad with trailing whitespace to land exactly on the limit; JSON decoding
	// tolerates it.
	padded := make([]byte, MaxFrameSize)
	copy(padded, payload)
	for i := len(payload); i < len(padded); i++ {
		padded[i] = ' '
	}

	var frame bytes.Buffer
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(padded)))
	frame.Write(header[:])
	frame.Write(padded)

	conn := NewConn(bufferConn{r: &frame})
	msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, Alive{FromID: 1}, msg)
}

func TestConn_ConcurrentWritesDoNotInterleave(t *testing.T) {
	client, server := pipeConns(t)

	const writers = 8
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(id uint32) {
			defer wg.Done()
			_ = client.WriteMessage(Alive{FromID: id})
		}(uint32(i + 1))
	}

	seen := make(map[uint32]bool)
	for i := 0; i < writers; i++ {
		msg, err := server.ReadMessage()
		require.NoError(t, err)
		alive, ok := msg.(Alive)
		require.True(t, ok, "frame interleaving produced %T", msg)
		seen[alive.FromID] = true
	}
	wg.Wait()
	assert.Len(t, seen, writers)
}

func TestConn_ReadMessageDeadline(t *testing.T) {
	_, server := pipeConns(t)

	start := time.Now()
	_, err := server.ReadMessageDeadline(time.Now().Add(50 * time.Millisecond))
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)

	var netErr net.Error
	if assert.ErrorAs(t, err, &netErr) {
		assert.True(t, netErr.Timeout())
	}
}

package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MaxFrameSize is the largest payload a node will accept on a connection.
// Anything larger is a protocol violation and the connection is closed.
const MaxFrameSize = 50_000_000

// Conn is a message-oriented wrapper around a stream connection. Each message
// travels as a 4-byte big-endian length followed by that many payload bytes.
//
// A Conn supports one concurrent reader; writers are serialized internally, so
// frames never interleave on the wire.
type Conn struct {
	id      string
	raw     net.Conn
	writeMu sync.Mutex

	closeOnce sync.Once
	closeErr  error
}

// NewConn wraps an established stream connection.
func NewConn(raw net.Conn) *Conn {
	return &Conn{
		id:  uuid.NewString(),
		raw: raw,
	}
}

// Dial opens a framed connection to addr within the given timeout.
func Dial(addr string, timeout time.Duration) (*Conn, error) {
	raw, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, err
	}
	return NewConn(raw), nil
}

// ID returns the connection's correlation id for logging.
func (c *Conn) ID() string { return c.id }

// RemoteAddr returns the remote endpoint.
func (c *Conn) RemoteAddr() net.Addr { return c.raw.RemoteAddr() }

// ReadMessage reads and decodes the next message. A clean close at a frame
// boundary returns io.EOF; a close mid-frame is an error. An oversize length
// prefix returns ErrFrameTooLarge and the caller is expected to close.
func (c *Conn) ReadMessage() (Message, error) {
	var lengthBuf [4]byte
	if _, err := io.ReadFull(c.raw, lengthBuf[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("read frame length: %w", err)
	}

	length := binary.BigEndian.Uint32(lengthBuf[:])
	if length > MaxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrFrameTooLarge, length, MaxFrameSize)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(c.raw, payload); err != nil {
		return nil, fmt.Errorf("read frame payload: %w", err)
	}

	return Decode(payload)
}

// ReadMessageDeadline reads the next message, failing once the deadline
// passes. A zero deadline blocks indefinitely.
func (c *Conn) ReadMessageDeadline(deadline time.Time) (Message, error) {
	if err := c.raw.SetReadDeadline(deadline); err != nil {
		return nil, err
	}
	defer c.raw.SetReadDeadline(time.Time{})
	return c.ReadMessage()
}

// WriteMessage encodes and writes one message. Safe for concurrent callers.
func (c *Conn) WriteMessage(msg Message) error {
	payload, err := Encode(msg)
	if err != nil {
		return err
	}
	if len(payload) > MaxFrameSize {
		return fmt.Errorf("%w: %d bytes (max %d)", ErrFrameTooLarge, len(payload), MaxFrameSize)
	}

	frame := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(frame[:4], uint32(len(payload)))
	copy(frame[4:], payload)

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.raw.Write(frame); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// Close shuts the connection down. Repeat calls are no-ops.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.raw.Close()
	})
	return c.closeErr
}

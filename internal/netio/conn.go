package netio

import (
	"bufio"
	"bytes"
	"io"
	"net"
	"sync"

	"github.com/teranos/protohackd/internal/xerrors"
)

// Conn wraps a net.Conn with the bounded read interface names:
// readExact(n), readUntil(delim), readLine. Writes are serialized behind a
// mutex so a heartbeat/broadcast goroutine and the connection's own reply
// path never interleave a write's bytes.
type Conn struct {
	ID  string
	nc  net.Conn
	r   *bufio.Reader
	mu  sync.Mutex
	w   *bufio.Writer
}

func newConn(nc net.Conn, id string) *Conn {
	return &Conn{
		ID: id,
		nc: nc,
		r:  bufio.NewReader(nc),
		w:  bufio.NewWriter(nc),
	}
}

// ReadExact reads exactly n bytes, or a wrapped ErrMalformedFrame on EOF.
func (c *Conn) ReadExact(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(c.r, buf); err != nil {
		return nil, xerrors.Wrap(xerrors.ErrMalformedFrame, "short read")
	}
	return buf, nil
}

// ReadUntil reads up to and including delim, returning the bytes without
// the delimiter.
func (c *Conn) ReadUntil(delim byte) ([]byte, error) {
	line, err := c.r.ReadBytes(delim)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.ErrMalformedFrame, "short read until delimiter")
	}
	return bytes.TrimSuffix(line, []byte{delim}), nil
}

// ReadLine reads a '\n'-terminated line, trimming a trailing '\r' too.
func (c *Conn) ReadLine() ([]byte, error) {
	line, err := c.ReadUntil('\n')
	if err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(line, []byte{'\r'}), nil
}

// ReadByte reads a single byte — exposed so codecs can peek a message tag.
func (c *Conn) ReadByte() (byte, error) {
	b, err := c.r.ReadByte()
	if err != nil {
		return 0, xerrors.Wrap(xerrors.ErrMalformedFrame, "short read: tag byte")
	}
	return b, nil
}

// Reader exposes the buffered reader directly for codec functions that
// take an io.Reader.
func (c *Conn) Reader() io.Reader { return c.r }

// Write sends b, serialized against concurrent writers (e.g. a heartbeat
// timer writing alongside the connection's own reply path). Satisfies
// io.Writer so callers can wrap a Conn in a bufio.Writer of their own.
func (c *Conn) Write(b []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, err := c.w.Write(b)
	if err != nil {
		return n, err
	}
	return n, c.w.Flush()
}

// RemoteAddr returns the peer address.
func (c *Conn) RemoteAddr() net.Addr { return c.nc.RemoteAddr() }

// Close closes the underlying connection.
func (c *Conn) Close() error { return c.nc.Close() }

// Package speed implements the Speed Daemon protocol:
// camera ingest, windowed ticket generation, dispatcher routing, and a
// per-client heartbeat timer.
package speed

import (
	"bufio"
	"bytes"
	"io"

	"github.com/teranos/protohackd/internal/codec"
	"github.com/teranos/protohackd/internal/xerrors"
)

// Message codes
const (
	codeError          = 0x10
	codePlate          = 0x20
	codeTicket         = 0x21
	codeWantHeartbeat  = 0x40
	codeHeartbeat      = 0x41
	codeIAmCamera      = 0x80
	codeIAmDispatcher  = 0x81
)

// ClientMessage is the decoded result of reading one inbound frame.
type ClientMessage struct {
	Code          byte
	Plate         string
	Timestamp     uint32
	Interval      uint32
	Road          uint16
	Mile          uint16
	LimitMPH      uint16
	Roads         []uint16
}

// ReadMessage decodes one client->server frame. The tag byte alone
// determines the body layout; an unrecognized tag is a ProtocolViolation
// ("a client that sends... MUST be terminated").
func ReadMessage(r io.Reader) (*ClientMessage, error) {
	tag, err := codec.ReadUint8(r)
	if err != nil {
		return nil, err
	}
	msg := &ClientMessage{Code: tag}
	switch tag {
	case codePlate:
		plate, err := codec.ReadLPString(r)
		if err != nil {
			return nil, err
		}
		ts, err := codec.ReadUint32(r)
		if err != nil {
			return nil, err
		}
		msg.Plate, msg.Timestamp = plate, ts
	case codeWantHeartbeat:
		interval, err := codec.ReadUint32(r)
		if err != nil {
			return nil, err
		}
		msg.Interval = interval
	case codeIAmCamera:
		road, err := codec.ReadUint16(r)
		if err != nil {
			return nil, err
		}
		mile, err := codec.ReadUint16(r)
		if err != nil {
			return nil, err
		}
		limit, err := codec.ReadUint16(r)
		if err != nil {
			return nil, err
		}
		msg.Road, msg.Mile, msg.LimitMPH = road, mile, limit
	case codeIAmDispatcher:
		roads, err := codec.ReadLPArray(r, codec.ReadUint16)
		if err != nil {
			return nil, err
		}
		msg.Roads = roads
	default:
		return nil, xerrors.Wrapf(xerrors.ErrProtocolViolation, "unknown message code 0x%02x", tag)
	}
	return msg, nil
}

// frameBuilder buffers one message's wire bytes in memory so the caller can
// hand them to w in a single Write call. Multiple session goroutines (the
// main read loop, the heartbeat ticker, pumpTickets) all write to the same
// netio.Conn; Conn.Write serializes a whole call but not several small
// writes a bufio.Writer sitting in front of it would make, so every message
// must be fully encoded before it ever touches the connection.
type frameBuilder struct {
	buf bytes.Buffer
	bw  *bufio.Writer
}

func newFrameBuilder() *frameBuilder {
	fb := &frameBuilder{}
	fb.bw = bufio.NewWriter(&fb.buf)
	return fb
}

func (fb *frameBuilder) bytes() ([]byte, error) {
	if err := fb.bw.Flush(); err != nil {
		return nil, err
	}
	return fb.buf.Bytes(), nil
}

// WriteError sends an Error(0x10) frame as one atomic write.
func WriteError(w io.Writer, msg string) error {
	fb := newFrameBuilder()
	if err := codec.WriteUint8(fb.bw, codeError); err != nil {
		return err
	}
	if err := codec.WriteLPString(fb.bw, msg); err != nil {
		return err
	}
	b, err := fb.bytes()
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

// WriteHeartbeat sends the empty Heartbeat(0x41) frame as one atomic write.
func WriteHeartbeat(w io.Writer) error {
	fb := newFrameBuilder()
	if err := codec.WriteUint8(fb.bw, codeHeartbeat); err != nil {
		return err
	}
	b, err := fb.bytes()
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

// WriteTicket sends a Ticket(0x21) frame as one atomic write, so a heartbeat
// or another ticket can never interleave with it on the wire.
func WriteTicket(w io.Writer, t Ticket) error {
	fb := newFrameBuilder()
	if err := codec.WriteUint8(fb.bw, codeTicket); err != nil {
		return err
	}
	if err := codec.WriteLPString(fb.bw, t.Plate); err != nil {
		return err
	}
	if err := codec.WriteUint16(fb.bw, t.Road); err != nil {
		return err
	}
	if err := codec.WriteUint16(fb.bw, t.Mile1); err != nil {
		return err
	}
	if err := codec.WriteUint32(fb.bw, t.T1); err != nil {
		return err
	}
	if err := codec.WriteUint16(fb.bw, t.Mile2); err != nil {
		return err
	}
	if err := codec.WriteUint32(fb.bw, t.T2); err != nil {
		return err
	}
	if err := codec.WriteUint16(fb.bw, t.SpeedCentiMPH); err != nil {
		return err
	}
	b, err := fb.bytes()
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

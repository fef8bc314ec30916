// Package lrcp implements the Line Reversal Control Protocol: a reliable, ordered, session-oriented transport layered
// over UDP, plus the reversal application on top of it.
package lrcp

import (
	"fmt"
	"strconv"

	"github.com/teranos/protohackd/internal/xerrors"
)

const maxSessionID = (1 << 31) - 1

type msgType int

const (
	msgConnect msgType = iota
	msgData
	msgAck
	msgClose
)

// message is a decoded LRCP frame.
type message struct {
	kind    msgType
	session int64
	pos     int64
	length  int64
	data    []byte
}

// splitFields un-escapes and splits a frame's body (the bytes between the
// leading and trailing '/') on unescaped '/' characters. A field may
// itself contain escaped '/' or '\\', so escapes are resolved in the same
// scan that splits (an escaped '/' never acts as a separator); the caller
// checks the resulting count against what the message type requires.
func splitFields(raw []byte) ([]string, error) {
	if len(raw) < 2 || raw[0] != '/' || raw[len(raw)-1] != '/' {
		return nil, xerrors.Wrap(xerrors.ErrMalformedFrame, "frame not slash-delimited")
	}
	body := raw[1 : len(raw)-1]

	var fields []string
	var cur []byte
	for i := 0; i < len(body); {
		switch c := body[i]; c {
		case '\\':
			if i+1 >= len(body) {
				return nil, xerrors.Wrap(xerrors.ErrMalformedFrame, "trailing backslash")
			}
			next := body[i+1]
			if next != '/' && next != '\\' {
				return nil, xerrors.Wrap(xerrors.ErrMalformedFrame, "invalid escape sequence")
			}
			cur = append(cur, next)
			i += 2
		case '/':
			fields = append(fields, string(cur))
			cur = nil
			i++
		default:
			cur = append(cur, c)
			i++
		}
	}
	fields = append(fields, string(cur))
	return fields, nil
}

func parseSession(s string) (int64, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil || v < 0 || v > maxSessionID {
		return 0, xerrors.Wrap(xerrors.ErrMalformedFrame, "session must be a 31-bit non-negative integer")
	}
	return v, nil
}

func parseNonNegative(s string) (int64, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil || v < 0 {
		return 0, xerrors.Wrap(xerrors.ErrMalformedFrame, "expected a non-negative integer field")
	}
	return v, nil
}

// parseMessage decodes one inbound frame, enforcing the field count each
// type requires.
func parseMessage(raw []byte) (*message, error) {
	fields, err := splitFields(raw)
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, xerrors.Wrap(xerrors.ErrMalformedFrame, "empty frame")
	}

	switch fields[0] {
	case "connect":
		if len(fields) != 2 {
			return nil, xerrors.Wrap(xerrors.ErrProtocolViolation, "connect must have exactly one field")
		}
		session, err := parseSession(fields[1])
		if err != nil {
			return nil, err
		}
		return &message{kind: msgConnect, session: session}, nil

	case "close":
		if len(fields) != 2 {
			return nil, xerrors.Wrap(xerrors.ErrProtocolViolation, "close must have exactly one field")
		}
		session, err := parseSession(fields[1])
		if err != nil {
			return nil, err
		}
		return &message{kind: msgClose, session: session}, nil

	case "ack":
		if len(fields) != 3 {
			return nil, xerrors.Wrap(xerrors.ErrProtocolViolation, "ack must have exactly two fields")
		}
		session, err := parseSession(fields[1])
		if err != nil {
			return nil, err
		}
		length, err := parseNonNegative(fields[2])
		if err != nil {
			return nil, err
		}
		return &message{kind: msgAck, session: session, length: length}, nil

	case "data":
		if len(fields) != 4 {
			return nil, xerrors.Wrap(xerrors.ErrProtocolViolation, "data must have exactly three fields")
		}
		session, err := parseSession(fields[1])
		if err != nil {
			return nil, err
		}
		pos, err := parseNonNegative(fields[2])
		if err != nil {
			return nil, err
		}
		return &message{kind: msgData, session: session, pos: pos, data: []byte(fields[3])}, nil

	default:
		return nil, xerrors.Wrapf(xerrors.ErrProtocolViolation, "unknown message type %q", fields[0])
	}
}

func encodeConnect(session int64) []byte {
	return []byte(fmt.Sprintf("/connect/%d/", session))
}

func encodeClose(session int64) []byte {
	return []byte(fmt.Sprintf("/close/%d/", session))
}

func encodeAck(session, length int64) []byte {
	return []byte(fmt.Sprintf("/ack/%d/%d/", session, length))
}

// escapePayload doubles '/' and '\\' with a preceding backslash.
func escapePayload(b []byte) []byte {
	out := make([]byte, 0, len(b))
	for _, c := range b {
		if c == '/' || c == '\\' {
			out = append(out, '\\')
		}
		out = append(out, c)
	}
	return out
}

func encodeData(session, pos int64, payload []byte) []byte {
	prefix := fmt.Sprintf("/data/%d/%d/", session, pos)
	frame := make([]byte, 0, len(prefix)+len(payload)+1)
	frame = append(frame, prefix...)
	frame = append(frame, escapePayload(payload)...)
	frame = append(frame, '/')
	return frame
}

// chunkData splits payload into one or more /data/ frames, each no longer
// than maxLen bytes once escaped and framed. pos advances
// by the number of RAW (unescaped) bytes each chunk consumes.
func chunkData(session, startPos int64, payload []byte, maxLen int) [][]byte {
	var frames [][]byte
	pos := startPos
	i := 0
	for i < len(payload) {
		prefix := fmt.Sprintf("/data/%d/%d/", session, pos)
		budget := maxLen - len(prefix) - 1 // trailing slash
		if budget < 1 {
			budget = 1
		}

		var body []byte
		consumed := 0
		for i+consumed < len(payload) {
			b := payload[i+consumed]
			cost := 1
			if b == '/' || b == '\\' {
				cost = 2
			}
			if len(body)+cost > budget {
				break
			}
			if cost == 2 {
				body = append(body, '\\', b)
			} else {
				body = append(body, b)
			}
			consumed++
		}
		if consumed == 0 {
			// Budget too small even for one escaped byte; force progress
			// rather than spin forever (shouldn't occur at maxLen=1000).
			b := payload[i]
			if b == '/' || b == '\\' {
				body = []byte{'\\', b}
			} else {
				body = []byte{b}
			}
			consumed = 1
		}

		frame := make([]byte, 0, len(prefix)+len(body)+1)
		frame = append(frame, prefix...)
		frame = append(frame, body...)
		frame = append(frame, '/')
		frames = append(frames, frame)

		i += consumed
		pos += int64(consumed)
	}
	return frames
}

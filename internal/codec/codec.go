// Package codec provides the big-endian integer and length-prefixed
// string/array primitives shared by every wire format in this repository.
// All decoders fail with a wrapped xerrors.ErrMalformedFrame on short
// reads, invalid UTF-8/ASCII, or count mismatches — never a panic.
package codec

import (
	"bufio"
	"encoding/binary"
	"io"
	"unicode/utf8"

	"github.com/teranos/protohackd/internal/xerrors"
)

// ReadUint8 reads a single big-endian byte.
func ReadUint8(r io.Reader) (uint8, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, xerrors.Wrap(xerrors.ErrMalformedFrame, "short read: u8")
	}
	return b[0], nil
}

// ReadUint16 reads a big-endian u16.
func ReadUint16(r io.Reader) (uint16, error) {
	var b [2]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, xerrors.Wrap(xerrors.ErrMalformedFrame, "short read: u16")
	}
	return binary.BigEndian.Uint16(b[:]), nil
}

// ReadUint32 reads a big-endian u32.
func ReadUint32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, xerrors.Wrap(xerrors.ErrMalformedFrame, "short read: u32")
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

// WriteUint8 appends a big-endian byte.
func WriteUint8(w *bufio.Writer, v uint8) error { return w.WriteByte(v) }

// WriteUint16 appends a big-endian u16.
func WriteUint16(w *bufio.Writer, v uint16) error {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	_, err := w.Write(b[:])
	return err
}

// WriteUint32 appends a big-endian u32.
func WriteUint32(w *bufio.Writer, v uint32) error {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	_, err := w.Write(b[:])
	return err
}

// ReadLPString reads a <u8 len><len bytes> string and validates it is
// legal ASCII ("bad UTF-8, where ASCII is required").
func ReadLPString(r io.Reader) (string, error) {
	n, err := ReadUint8(r)
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", xerrors.Wrap(xerrors.ErrMalformedFrame, "short read: lp-string body")
	}
	if !isASCII(buf) {
		return "", xerrors.Wrap(xerrors.ErrMalformedFrame, "non-ASCII lp-string")
	}
	return string(buf), nil
}

// WriteLPString appends a <u8 len><len bytes> string. A string longer than
// 255 bytes is rejected with an error rather than silently truncated.
func WriteLPString(w *bufio.Writer, s string) error {
	if len(s) > 255 {
		return xerrors.Newf("lp-string too long: %d bytes", len(s))
	}
	if err := WriteUint8(w, uint8(len(s))); err != nil {
		return err
	}
	_, err := w.WriteString(s)
	return err
}

// ReadLPArray reads a <u8 count><count elements> array using elem to decode
// each element.
func ReadLPArray[T any](r io.Reader, elem func(io.Reader) (T, error)) ([]T, error) {
	n, err := ReadUint8(r)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, n)
	for i := uint8(0); i < n; i++ {
		v, err := elem(r)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// ReadLPString32 reads a <u32 len><len bytes> string, the variant Pest
// Control's checksummed frames use in place of Speed Daemon's u8-prefixed
// strings.
func ReadLPString32(r io.Reader) (string, error) {
	n, err := ReadUint32(r)
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", xerrors.Wrap(xerrors.ErrMalformedFrame, "short read: lp32-string body")
	}
	if !isASCII(buf) {
		return "", xerrors.Wrap(xerrors.ErrMalformedFrame, "non-ASCII lp32-string")
	}
	return string(buf), nil
}

// WriteLPString32 appends a <u32 len><len bytes> string.
func WriteLPString32(w *bufio.Writer, s string) error {
	if err := WriteUint32(w, uint32(len(s))); err != nil {
		return err
	}
	_, err := w.WriteString(s)
	return err
}

// ReadLPArray32 reads a <u32 count><count elements> array.
func ReadLPArray32[T any](r io.Reader, elem func(io.Reader) (T, error)) ([]T, error) {
	n, err := ReadUint32(r)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, n)
	for i := uint32(0); i < n; i++ {
		v, err := elem(r)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func isASCII(b []byte) bool {
	for _, c := range b {
		if c > 127 {
			return false
		}
	}
	return utf8.Valid(b)
}

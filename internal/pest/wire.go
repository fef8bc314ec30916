// Package pest implements the Pest Control protocol:
// a checksummed binary frame format, a client-facing SiteVisit handler,
// and lazily-connected upstream authority sessions that reconcile target
// populations into create/delete policy calls.
package pest

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"io"

	"github.com/teranos/protohackd/internal/codec"
	"github.com/teranos/protohackd/internal/xerrors"
)

// Message codes
const (
	codeHello              = 0x50
	codeError              = 0x51
	codeOK                 = 0x52
	codeDialAuthority      = 0x53
	codeTargetPopulations  = 0x54
	codeCreatePolicy       = 0x55
	codeDeletePolicy       = 0x56
	codePolicyResult       = 0x57
	codeSiteVisit          = 0x58
)

const (
	actionCull     = 0x90
	actionConserve = 0xA0
)

const protocolName = "pestcontrol"
const protocolVersion = 1

// frameOverhead is <u8 code><u32 length><u8 checksum>.
const frameOverhead = 1 + 4 + 1

// readFrame reads one checksummed frame and returns its code and payload.
// Any checksum or length mismatch is fatal — a malformed upstream message
// closes the connection rather than attempting to resync.
func readFrame(r io.Reader) (byte, []byte, error) {
	code, err := codec.ReadUint8(r)
	if err != nil {
		return 0, nil, err
	}
	length, err := codec.ReadUint32(r)
	if err != nil {
		return 0, nil, err
	}
	if length < frameOverhead {
		return 0, nil, xerrors.Wrap(xerrors.ErrMalformedFrame, "frame length smaller than header+checksum")
	}
	payloadLen := int(length) - frameOverhead
	payload := make([]byte, payloadLen)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, nil, xerrors.Wrap(xerrors.ErrMalformedFrame, "short read: frame payload")
	}
	checksum, err := codec.ReadUint8(r)
	if err != nil {
		return 0, nil, err
	}

	sum := code
	var lenBytes [4]byte
	binary.BigEndian.PutUint32(lenBytes[:], length)
	for _, b := range lenBytes {
		sum += b
	}
	for _, b := range payload {
		sum += b
	}
	sum += checksum
	if sum != 0 {
		return 0, nil, xerrors.Wrap(xerrors.ErrMalformedFrame, "checksum mismatch")
	}
	return code, payload, nil
}

// writeFrame writes one checksummed frame, choosing the checksum byte so
// the sum of every byte in the frame is 0 mod 256.
func writeFrame(w *bufio.Writer, code byte, payload []byte) error {
	length := uint32(frameOverhead + len(payload))

	var header bytes.Buffer
	header.WriteByte(code)
	var lenBytes [4]byte
	binary.BigEndian.PutUint32(lenBytes[:], length)
	header.Write(lenBytes[:])

	sum := code
	for _, b := range lenBytes {
		sum += b
	}
	for _, b := range payload {
		sum += b
	}
	checksum := byte(256 - int(sum))

	if _, err := w.Write(header.Bytes()); err != nil {
		return err
	}
	if _, err := w.Write(payload); err != nil {
		return err
	}
	if err := w.WriteByte(checksum); err != nil {
		return err
	}
	return w.Flush()
}

// target is one species' acceptable population range.
type target struct {
	species  string
	min, max uint32
}

// populationCount is one observed species count, carried in SiteVisit.
type populationCount struct {
	species string
	count   uint32
}

func encodeHello() []byte {
	var b bytes.Buffer
	w := bufio.NewWriter(&b)
	_ = codec.WriteLPString32(w, protocolName)
	_ = codec.WriteUint32(w, protocolVersion)
	_ = w.Flush()
	return b.Bytes()
}

func decodeHello(payload []byte) error {
	r := bytes.NewReader(payload)
	proto, err := codec.ReadLPString32(r)
	if err != nil {
		return err
	}
	version, err := codec.ReadUint32(r)
	if err != nil {
		return err
	}
	if proto != protocolName || version != protocolVersion {
		return xerrors.Wrap(xerrors.ErrProtocolViolation, "unexpected hello protocol/version")
	}
	return nil
}

func decodeError(payload []byte) (string, error) {
	return codec.ReadLPString32(bytes.NewReader(payload))
}

func encodeError(msg string) []byte {
	var b bytes.Buffer
	w := bufio.NewWriter(&b)
	_ = codec.WriteLPString32(w, msg)
	_ = w.Flush()
	return b.Bytes()
}

func encodeDialAuthority(site uint32) []byte {
	var b bytes.Buffer
	w := bufio.NewWriter(&b)
	_ = codec.WriteUint32(w, site)
	_ = w.Flush()
	return b.Bytes()
}

func decodeTargetPopulations(payload []byte) (uint32, []target, error) {
	r := bytes.NewReader(payload)
	site, err := codec.ReadUint32(r)
	if err != nil {
		return 0, nil, err
	}
	targets, err := codec.ReadLPArray32(r, func(r io.Reader) (target, error) {
		species, err := codec.ReadLPString32(r)
		if err != nil {
			return target{}, err
		}
		min, err := codec.ReadUint32(r)
		if err != nil {
			return target{}, err
		}
		max, err := codec.ReadUint32(r)
		if err != nil {
			return target{}, err
		}
		return target{species: species, min: min, max: max}, nil
	})
	if err != nil {
		return 0, nil, err
	}
	return site, targets, nil
}

func decodeSiteVisit(payload []byte) (uint32, []populationCount, error) {
	r := bytes.NewReader(payload)
	site, err := codec.ReadUint32(r)
	if err != nil {
		return 0, nil, err
	}
	counts, err := codec.ReadLPArray32(r, func(r io.Reader) (populationCount, error) {
		species, err := codec.ReadLPString32(r)
		if err != nil {
			return populationCount{}, err
		}
		count, err := codec.ReadUint32(r)
		if err != nil {
			return populationCount{}, err
		}
		return populationCount{species: species, count: count}, nil
	})
	if err != nil {
		return 0, nil, err
	}
	return site, counts, nil
}

func encodeCreatePolicy(species string, action byte) []byte {
	var b bytes.Buffer
	w := bufio.NewWriter(&b)
	_ = codec.WriteLPString32(w, species)
	_ = w.WriteByte(action)
	_ = w.Flush()
	return b.Bytes()
}

func decodePolicyResult(payload []byte) (uint32, error) {
	return codec.ReadUint32(bytes.NewReader(payload))
}

func encodeDeletePolicy(policy uint32) []byte {
	var b bytes.Buffer
	w := bufio.NewWriter(&b)
	_ = codec.WriteUint32(w, policy)
	_ = w.Flush()
	return b.Bytes()
}

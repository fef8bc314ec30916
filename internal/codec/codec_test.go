package codec

import (
	"bufio"
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/protohackd/internal/xerrors"
)

func TestUintRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	require.NoError(t, WriteUint8(w, 0x42))
	require.NoError(t, WriteUint16(w, 0x1234))
	require.NoError(t, WriteUint32(w, 0xDEADBEEF))
	require.NoError(t, w.Flush())

	r := bytes.NewReader(buf.Bytes())
	u8, err := ReadUint8(r)
	require.NoError(t, err)
	assert.Equal(t, uint8(0x42), u8)

	u16, err := ReadUint16(r)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x1234), u16)

	u32, err := ReadUint32(r)
	require.NoError(t, err)
	assert.Equal(t, uint32(0xDEADBEEF), u32)
}

func TestReadUint8ShortRead(t *testing.T) {
	_, err := ReadUint8(bytes.NewReader(nil))
	require.Error(t, err)
	assert.True(t, xerrors.Is(err, xerrors.ErrMalformedFrame))
}

func TestLPStringRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	require.NoError(t, WriteLPString(w, "UN1X"))
	require.NoError(t, w.Flush())

	s, err := ReadLPString(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, "UN1X", s)
}

func TestLPStringRejectsNonASCII(t *testing.T) {
	raw := []byte{3, 0xE2, 0x98, 0x83} // len=3, snowman-ish non-ASCII bytes
	_, err := ReadLPString(bytes.NewReader(raw))
	require.Error(t, err)
	assert.True(t, xerrors.Is(err, xerrors.ErrMalformedFrame))
}

func TestLPStringShortBody(t *testing.T) {
	raw := []byte{5, 'a', 'b'} // claims 5 bytes, only 2 present
	_, err := ReadLPString(bytes.NewReader(raw))
	require.Error(t, err)
	assert.True(t, xerrors.Is(err, xerrors.ErrMalformedFrame))
}

func TestLPArray(t *testing.T) {
	raw := []byte{3, 0, 1, 0, 2, 0, 3}
	r := bytes.NewReader(raw)
	vals, err := ReadLPArray(r, ReadUint16)
	require.NoError(t, err)
	assert.Equal(t, []uint16{1, 2, 3}, vals)
}

func TestLPString32RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	require.NoError(t, WriteLPString32(w, "pestcontrol"))
	require.NoError(t, w.Flush())

	s, err := ReadLPString32(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, "pestcontrol", s)
}

func TestLPArray32(t *testing.T) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	require.NoError(t, WriteUint32(w, 2))
	require.NoError(t, WriteUint32(w, 10))
	require.NoError(t, WriteUint32(w, 20))
	require.NoError(t, w.Flush())

	vals, err := ReadLPArray32(bytes.NewReader(buf.Bytes()), ReadUint32)
	require.NoError(t, err)
	assert.Equal(t, []uint32{10, 20}, vals)
}

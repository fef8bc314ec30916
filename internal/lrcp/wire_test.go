package lrcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConnect(t *testing.T) {
	msg, err := parseMessage([]byte("/connect/12345/"))
	require.NoError(t, err)
	assert.Equal(t, msgConnect, msg.kind)
	assert.EqualValues(t, 12345, msg.session)
}

func TestParseDataUnescapes(t *testing.T) {
	msg, err := parseMessage([]byte(`/data/1/0/foo\/bar\\baz/`))
	require.NoError(t, err)
	assert.Equal(t, msgData, msg.kind)
	assert.Equal(t, `foo/bar\baz`, string(msg.data))
}

func TestParseRejectsWrongFieldCount(t *testing.T) {
	_, err := parseMessage([]byte("/ack/1/"))
	assert.Error(t, err)
}

func TestParseRejectsTrailingBackslash(t *testing.T) {
	_, err := parseMessage([]byte(`/data/1/0/foo\/`))
	assert.Error(t, err)
}

func TestParseRejectsOversizedSession(t *testing.T) {
	_, err := parseMessage([]byte("/connect/99999999999/"))
	assert.Error(t, err)
}

func TestEncodeDataEscapesSlashesAndBackslashes(t *testing.T) {
	frame := encodeData(7, 3, []byte(`a/b\c`))
	assert.Equal(t, `/data/7/3/a\/b\\c/`, string(frame))
}

func TestChunkDataRespectsMaxLen(t *testing.T) {
	payload := make([]byte, 50)
	for i := range payload {
		payload[i] = 'x'
	}
	frames := chunkData(1, 0, payload, 40)
	require.Greater(t, len(frames), 1)
	for _, f := range frames {
		assert.LessOrEqual(t, len(f), 40)
	}
	// Positions must advance by raw byte count and cover the whole payload.
	total := 0
	for _, f := range frames {
		msg, err := parseMessage(f)
		require.NoError(t, err)
		assert.EqualValues(t, total, msg.pos)
		total += len(msg.data)
	}
	assert.Equal(t, len(payload), total)
}

func TestChunkDataEscapingCountsTowardBudget(t *testing.T) {
	payload := []byte("//////////") // every byte doubles when escaped
	frames := chunkData(2, 0, payload, 20)
	for _, f := range frames {
		assert.LessOrEqual(t, len(f), 20)
	}
}

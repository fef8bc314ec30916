package lrcp

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePacketConn records every WriteTo call instead of touching the network.
type fakePacketConn struct {
	net.PacketConn
	mu    sync.Mutex
	sent  [][]byte
}

func (f *fakePacketConn) WriteTo(b []byte, addr net.Addr) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]byte, len(b))
	copy(cp, b)
	f.sent = append(f.sent, cp)
	return len(b), nil
}

func (f *fakePacketConn) frames() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.sent))
	copy(out, f.sent)
	return out
}

type fakeAddr struct{}

func (fakeAddr) Network() string { return "udp" }
func (fakeAddr) String() string  { return "test:1" }

func newTestSession() (*session, *fakePacketConn) {
	pc := &fakePacketConn{}
	s := newSession(1, fakeAddr{}, pc)
	return s, pc
}

func TestHandleDataInOrderAcksAndReverses(t *testing.T) {
	s, pc := newTestSession()
	s.handleData(0, []byte("hello\n"))

	frames := pc.frames()
	require.Len(t, frames, 2) // ack + reversed data
	assert.Equal(t, "/ack/1/6/", string(frames[0]))
	assert.Equal(t, "/data/1/0/olleh\n/", string(frames[1]))
}

func TestHandleDataOutOfOrderOnlyAcksHighWater(t *testing.T) {
	s, pc := newTestSession()
	s.handleData(10, []byte("late"))
	frames := pc.frames()
	require.Len(t, frames, 1)
	assert.Equal(t, "/ack/1/0/", string(frames[0]))
}

func TestHandleDataOverlapExtendsRecvBuf(t *testing.T) {
	s, _ := newTestSession()
	s.handleData(0, []byte("ab"))
	s.handleData(0, []byte("abcd\n")) // overlapping retransmit that extends further
	assert.Equal(t, "abcd\n", string(s.recvBuf))
}

func TestHandleAckRetransmitsUnackedTail(t *testing.T) {
	s, pc := newTestSession()
	s.handleData(0, []byte("ab\n")) // produces one reversed data frame: "ba\n"
	alive := s.handleAck(0)         // peer claims it has nothing; should retransmit
	assert.True(t, alive)

	frames := pc.frames()
	last := frames[len(frames)-1]
	assert.Equal(t, "/data/1/0/ba\n/", string(last))
}

func TestHandleAckBeyondHighWaterClosesSession(t *testing.T) {
	s, pc := newTestSession()
	alive := s.handleAck(999)
	assert.False(t, alive)
	frames := pc.frames()
	assert.Equal(t, "/close/1/", string(frames[len(frames)-1]))
}

func TestHandleCloseSendsCloseAndStopsLoop(t *testing.T) {
	s, pc := newTestSession()
	s.handleClose()
	frames := pc.frames()
	assert.Equal(t, "/close/1/", string(frames[0]))

	select {
	case <-s.stop:
	case <-time.After(time.Second):
		t.Fatal("expected stop channel to be closed")
	}
}

func TestFeedApplicationBuffersPartialLine(t *testing.T) {
	s, pc := newTestSession()
	s.handleData(0, []byte("abc"))
	assert.Empty(t, pc.frames()[1:]) // only the ack, no reversed line yet
	assert.Equal(t, "abc", string(s.lineTail))

	s.handleData(3, []byte("de\n"))
	frames := pc.frames()
	assert.Equal(t, "/data/1/0/edcba\n/", string(frames[len(frames)-1]))
}

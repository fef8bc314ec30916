package lrcp

import (
	"bytes"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/protohackd/internal/logger"
)

const (
	maxDatagramLen      = 1000
	retransmitInterval  = 3 * time.Second
	sessionIdleTimeout  = 60 * time.Second
)

// session holds the per-session protocol state: a received prefix, a
// produced/acknowledged send buffer, and the line reversal application
// sitting on top of the byte stream.
type session struct {
	id   int64
	addr net.Addr
	pc   net.PacketConn
	log  *zap.SugaredLogger

	mu           sync.Mutex
	recvBuf      []byte // recv_buf[0:len(recvBuf)] == recv_buf[0:recv_high_water]
	sendBuf      []byte // everything the application has ever produced
	lastPeerAck  int64  // highest L peer has acked
	lineTail     []byte // bytes after the last '\n' seen so far
	closed       bool
	lastActivity time.Time

	stop chan struct{}
}

func newSession(id int64, addr net.Addr, pc net.PacketConn) *session {
	return &session{
		id:           id,
		addr:         addr,
		pc:           pc,
		log:          logger.Named("lrcp").With("session", id),
		lastActivity: time.Now(),
		stop:         make(chan struct{}),
	}
}

func (s *session) send(frame []byte) {
	_, _ = s.pc.WriteTo(frame, s.addr)
}

func (s *session) touch() { s.lastActivity = time.Now() }

// sendAckLocked replies with the current receive high-water mark. Caller
// holds s.mu.
func (s *session) sendAckLocked() {
	s.send(encodeAck(s.id, int64(len(s.recvBuf))))
}

// handleConnect re-sends the ack for an already-open session — connect is
// idempotent since a peer may retransmit it before seeing our first ack.
func (s *session) handleConnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	s.sendAckLocked()
}

// handleData implements the "prefix-overwrite, suffix-extend" rule: a
// P <= high-water data frame overwrites/extends recv_buf, the new
// high-water is acked, and the newly-contiguous suffix is fed to the
// application; P > high-water is simply re-acked so the peer's retransmit
// loop closes the gap.
func (s *session) handleData(pos int64, payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	hw := int64(len(s.recvBuf))
	if pos > hw {
		s.sendAckLocked()
		return
	}

	newEnd := pos + int64(len(payload))
	if newEnd > hw {
		copy(s.recvBuf[pos:], payload[:hw-pos])
		fresh := payload[hw-pos:]
		s.recvBuf = append(s.recvBuf, fresh...)
		s.sendAckLocked()
		s.feedApplicationLocked(fresh)
		return
	}
	s.sendAckLocked()
}

// feedApplicationLocked runs the reversal logic over newly-contiguous bytes: split on '\n', reverse each
// complete line and queue it for output, buffer the remainder.
func (s *session) feedApplicationLocked(fresh []byte) {
	s.lineTail = append(s.lineTail, fresh...)
	for {
		idx := bytes.IndexByte(s.lineTail, '\n')
		if idx < 0 {
			break
		}
		line := s.lineTail[:idx]
		reversed := reverseBytes(line)
		s.lineTail = s.lineTail[idx+1:]
		s.queueOutputLocked(append(reversed, '\n'))
	}
}

func reverseBytes(b []byte) []byte {
	out := make([]byte, len(b))
	for i, c := range b {
		out[len(b)-1-i] = c
	}
	return out
}

// queueOutputLocked appends app-produced bytes to send_buf and transmits
// any not-yet-sent chunks immediately; the retransmit loop covers loss.
func (s *session) queueOutputLocked(b []byte) {
	start := int64(len(s.sendBuf))
	s.sendBuf = append(s.sendBuf, b...)
	for _, frame := range chunkData(s.id, start, b, maxDatagramLen) {
		s.send(frame)
	}
}

// handleAck implements the three ack outcomes from table.
func (s *session) handleAck(length int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	sendHW := int64(len(s.sendBuf))
	if length > sendHW {
		s.send(encodeClose(s.id))
		if !s.closed {
			s.closed = true
			close(s.stop)
		}
		return false
	}
	if length > s.lastPeerAck {
		s.lastPeerAck = length
	}
	if length < sendHW {
		for _, frame := range chunkData(s.id, length, s.sendBuf[length:], maxDatagramLen) {
			s.send(frame)
		}
	}
	return true
}

func (s *session) handleClose() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.send(encodeClose(s.id))
	close(s.stop)
}

// retransmitLoop resends the unacked tail of send_buf every 3s and closes
// the session after 60s of inactivity.
func (s *session) retransmitLoop(onExpire func(id int64)) {
	ticker := time.NewTicker(retransmitInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.mu.Lock()
			idle := time.Since(s.lastActivity)
			if idle > sessionIdleTimeout {
				s.closed = true
				s.mu.Unlock()
				onExpire(s.id)
				return
			}
			sendHW := int64(len(s.sendBuf))
			if s.lastPeerAck < sendHW {
				for _, frame := range chunkData(s.id, s.lastPeerAck, s.sendBuf[s.lastPeerAck:], maxDatagramLen) {
					s.send(frame)
				}
			}
			s.mu.Unlock()
		}
	}
}

package lrcp

import (
	"context"
	"net"
	"sync"

	"go.uber.org/zap"

	"github.com/teranos/protohackd/internal/logger"
	"github.com/teranos/protohackd/internal/netio"
)

// registry is the process-wide session table, dispatched by session id.
type registry struct {
	mu       sync.Mutex
	sessions map[int64]*session
	log      *zap.SugaredLogger
}

func newRegistry() *registry {
	return &registry{
		sessions: make(map[int64]*session),
		log:      logger.Named("lrcp"),
	}
}

func (r *registry) get(id int64) (*session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

func (r *registry) getOrCreate(id int64, addr net.Addr, pc net.PacketConn) (*session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok {
		return s, false
	}
	s := newSession(id, addr, pc)
	r.sessions[id] = s
	return s, true
}

func (r *registry) remove(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// Handler returns a netio.DatagramHandler implementing the LRCP session
// state machine. Each accepted session runs its retransmit/reaper loop on
// its own goroutine, started at connect and stopped when the session
// closes or expires.
func Handler(ctx context.Context) netio.DatagramHandler {
	reg := newRegistry()

	go func() {
		<-ctx.Done()
		reg.mu.Lock()
		defer reg.mu.Unlock()
		for id, s := range reg.sessions {
			s.mu.Lock()
			if !s.closed {
				s.closed = true
				close(s.stop)
			}
			s.mu.Unlock()
			delete(reg.sessions, id)
		}
	}()

	return func(pc net.PacketConn, from net.Addr, payload []byte) {
		msg, err := parseMessage(payload)
		if err != nil {
			reg.log.Debugw("dropping malformed datagram", logger.FieldAddress, from, logger.FieldError, err)
			return
		}

		switch msg.kind {
		case msgConnect:
			s, created := reg.getOrCreate(msg.session, from, pc)
			if created {
				s.log.Infow("session opened", logger.FieldAddress, from)
				go s.retransmitLoop(func(id int64) {
					reg.remove(id)
					reg.log.Infow("session expired", "session", id)
				})
			}
			s.handleConnect()

		case msgData:
			s, ok := reg.get(msg.session)
			if !ok {
				_, _ = pc.WriteTo(encodeClose(msg.session), from)
				return
			}
			s.handleData(msg.pos, msg.data)

		case msgAck:
			s, ok := reg.get(msg.session)
			if !ok {
				_, _ = pc.WriteTo(encodeClose(msg.session), from)
				return
			}
			if !s.handleAck(msg.length) {
				reg.remove(msg.session)
			}

		case msgClose:
			s, ok := reg.get(msg.session)
			if !ok {
				_, _ = pc.WriteTo(encodeClose(msg.session), from)
				return
			}
			reg.remove(msg.session)
			s.handleClose()
		}
	}
}

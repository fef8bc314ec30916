package speed

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/teranos/protohackd/internal/logger"
	"github.com/teranos/protohackd/internal/netio"
	"github.com/teranos/protohackd/internal/xerrors"
)

type role int

const (
	roleUnknown role = iota
	roleCamera
	roleDispatcher
)

// plateRateLimiter bounds how fast a single camera's Plate messages are
// accepted, ambient hardening against a misbehaving client flooding the
// shared Store.
func plateRateLimiter() *rate.Limiter { return rate.NewLimiter(200, 32) }

// Handler returns a netio.ConnHandler bound to store, implementing the
// UNKNOWN -> CAMERA|DISPATCHER role state machine.
func Handler(store *Store) netio.ConnHandler {
	return func(ctx context.Context, conn *netio.Conn) {
		log := logger.Named("speed").With(logger.FieldClient, conn.ID)
		s := &session{ctx: ctx, conn: conn, store: store, log: log, limiter: plateRateLimiter()}
		s.run()
	}
}

type session struct {
	ctx     context.Context
	conn    *netio.Conn
	store   *Store
	log     *zap.SugaredLogger
	limiter *rate.Limiter

	role role
	// camera fields
	road, mile, limit uint16
	// dispatcher fields
	dispatchSink *dispatcherSink
	// heartbeat
	heartbeatSet  bool
	heartbeatStop chan struct{}
}

func (s *session) run() {
	defer s.cleanup()
	for {
		msg, err := ReadMessage(s.conn.Reader())
		if err != nil {
			if xerrors.Is(err, xerrors.ErrProtocolViolation) || xerrors.Is(err, xerrors.ErrMalformedFrame) {
				WriteError(s.conn, "bad message")
			}
			return
		}
		if err := s.handle(msg); err != nil {
			WriteError(s.conn, err.Error())
			return
		}
	}
}

func (s *session) handle(msg *ClientMessage) error {
	switch msg.Code {
	case codeIAmCamera:
		if s.role != roleUnknown {
			return xerrors.Wrap(xerrors.ErrProtocolViolation, "already declared")
		}
		s.role = roleCamera
		s.road, s.mile, s.limit = msg.Road, msg.Mile, msg.LimitMPH
		s.log.Infow("camera declared", logger.FieldRoad, s.road)
		return nil

	case codeIAmDispatcher:
		if s.role != roleUnknown {
			return xerrors.Wrap(xerrors.ErrProtocolViolation, "already declared")
		}
		s.role = roleDispatcher
		s.dispatchSink = s.store.RegisterDispatcher(msg.Roads)
		s.log.Infow("dispatcher declared", "roads", msg.Roads)
		go s.pumpTickets()
		return nil

	case codePlate:
		if s.role != roleCamera {
			return xerrors.Wrap(xerrors.ErrProtocolViolation, "plate before camera declaration")
		}
		if !s.limiter.Allow() {
			return nil // drop silently under burst, not a protocol error
		}
		s.store.RecordPlate(s.road, msg.Plate, s.mile, msg.Timestamp, s.limit)
		return nil

	case codeWantHeartbeat:
		if s.heartbeatSet {
			return xerrors.Wrap(xerrors.ErrProtocolViolation, "heartbeat already requested")
		}
		s.heartbeatSet = true
		if msg.Interval > 0 {
			s.startHeartbeat(time.Duration(msg.Interval) * 100 * time.Millisecond)
		}
		return nil

	default:
		return xerrors.Wrap(xerrors.ErrProtocolViolation, "unexpected message for role")
	}
}

// startHeartbeat runs a ticker goroutine that writes Heartbeat(0x41) every
// interval until the connection closes.
func (s *session) startHeartbeat(interval time.Duration) {
	s.heartbeatStop = make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.ctx.Done():
				return
			case <-s.heartbeatStop:
				return
			case <-ticker.C:
				if err := WriteHeartbeat(s.conn); err != nil {
					return
				}
			}
		}
	}()
}

// pumpTickets delivers tickets routed to this dispatcher over the wire
// until the connection or sink closes.
func (s *session) pumpTickets() {
	for t := range s.dispatchSink.ch {
		if err := WriteTicket(s.conn, t); err != nil {
			return
		}
	}
}

func (s *session) cleanup() {
	if s.heartbeatStop != nil {
		close(s.heartbeatStop)
	}
	if s.dispatchSink != nil {
		s.store.Unregister(s.dispatchSink)
	}
}

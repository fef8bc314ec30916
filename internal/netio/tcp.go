// Package netio is the shared session runtime: a TCP acceptor spawning one
// goroutine per connection, a UDP read loop handing each datagram to a
// handler (which does its own routing by session id), and a bounded read
// interface with serialized writes. Cross-connection state is held by each
// protocol package, not here. Listener start, accept and connection close
// are logged.
package netio

import (
	"context"
	"net"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teranos/protohackd/internal/logger"
	"github.com/teranos/protohackd/internal/xerrors"
)

// ConnHandler is invoked once per accepted connection, in its own
// goroutine. It owns conn for the lifetime of the connection and must
// return when the connection should close.
type ConnHandler func(ctx context.Context, conn *Conn)

// ServeTCP accepts connections on addr until ctx is cancelled, running
// handler in its own goroutine per connection — "one cooperatively
// scheduled task per accepted connection".
func ServeTCP(ctx context.Context, addr string, log *zap.SugaredLogger, handler ConnHandler) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return xerrors.Wrap(err, "listening on "+addr)
	}
	log.Infow("listening", logger.FieldAddress, addr)

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		nc, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				log.Warnw("accept error", logger.FieldError, err)
				continue
			}
		}
		id := shortID()
		log.Infow("connection accepted", logger.FieldClient, id, logger.FieldAddress, nc.RemoteAddr().String())
		conn := newConn(nc, id)
		go func() {
			defer func() {
				conn.Close()
				log.Infow("connection closed", logger.FieldClient, id)
			}()
			handler(ctx, conn)
		}()
	}
}

func shortID() string {
	return uuid.NewString()[:8]
}

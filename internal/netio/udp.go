package netio

import (
	"context"
	"net"

	"go.uber.org/zap"

	"github.com/teranos/protohackd/internal/logger"
	"github.com/teranos/protohackd/internal/xerrors"
)

// DatagramHandler processes one inbound datagram. Implementations are
// responsible for routing by whatever session identifier their wire
// format embeds.
type DatagramHandler func(pc net.PacketConn, from net.Addr, payload []byte)

// ServeUDP reads datagrams on addr until ctx is cancelled, invoking handler
// synchronously per datagram on the accept goroutine, keeping packet
// ordering intact for a single socket read loop. Routing by session id is
// left to the handler (LRCP keeps its own session table and handles each
// datagram inline under that session's mutex).
func ServeUDP(ctx context.Context, addr string, log *zap.SugaredLogger, maxDatagram int, handler DatagramHandler) error {
	lc := net.ListenConfig{}
	pc, err := lc.ListenPacket(ctx, "udp", addr)
	if err != nil {
		return xerrors.Wrap(err, "listening on "+addr)
	}
	log.Infow("listening", logger.FieldAddress, addr)

	go func() {
		<-ctx.Done()
		pc.Close()
	}()

	buf := make([]byte, maxDatagram)
	for {
		n, from, err := pc.ReadFrom(buf)
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				log.Warnw("read error", logger.FieldError, err)
				continue
			}
		}
		payload := make([]byte, n)
		copy(payload, buf[:n])
		handler(pc, from, payload)
	}
}

package pest

import (
	"bufio"
	"context"

	"go.uber.org/zap"

	"github.com/teranos/protohackd/internal/logger"
	"github.com/teranos/protohackd/internal/netio"
	"github.com/teranos/protohackd/internal/xerrors"
)

// Handler returns a netio.ConnHandler implementing the client-facing half
// of the protocol: a Hello handshake, then a loop of SiteVisit messages
// reconciled against reg.
func Handler(reg *Registry) netio.ConnHandler {
	return func(ctx context.Context, conn *netio.Conn) {
		log := logger.Named("pest").With(logger.FieldClient, conn.ID)
		w := bufio.NewWriter(conn)

		if err := clientHandshake(w, conn); err != nil {
			log.Warnw("handshake failed", logger.FieldError, err)
			return
		}

		for {
			code, payload, err := readFrame(conn.Reader())
			if err != nil {
				log.Debugw("connection ending", logger.FieldError, err)
				return
			}
			if code != codeSiteVisit {
				writeFrame(w, codeError, encodeError("expected SiteVisit"))
				return
			}
			if err := handleSiteVisit(ctx, reg, w, payload, log); err != nil {
				writeFrame(w, codeError, encodeError(err.Error()))
				return
			}
		}
	}
}

// clientHandshake performs the same bidirectional Hello exchange required
// of upstream authority connections.
func clientHandshake(w *bufio.Writer, conn *netio.Conn) error {
	code, payload, err := readFrame(conn.Reader())
	if err != nil {
		return err
	}
	if code != codeHello {
		writeFrame(w, codeError, encodeError("expected Hello"))
		return xerrors.Wrap(xerrors.ErrProtocolViolation, "first message was not Hello")
	}
	if err := decodeHello(payload); err != nil {
		writeFrame(w, codeError, encodeError("bad hello"))
		return err
	}
	return writeFrame(w, codeHello, encodeHello())
}

func handleSiteVisit(ctx context.Context, reg *Registry, w *bufio.Writer, payload []byte, log *zap.SugaredLogger) error {
	site, counts, err := decodeSiteVisit(payload)
	if err != nil {
		return err
	}
	log.Debugw("site visit", logger.FieldSite, site, "species", len(counts))
	return reg.HandleSiteVisit(ctx, site, counts)
}

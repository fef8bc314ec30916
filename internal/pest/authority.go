package pest

import (
	"bufio"
	"context"
	"net"
	"sync"

	"go.uber.org/zap"

	"github.com/teranos/protohackd/internal/logger"
	"github.com/teranos/protohackd/internal/xerrors"
)

// authoritySession is the single cached upstream connection for one site.
// Every CreatePolicy/DeletePolicy round-trip for that site serializes over
// session.mu since the wire protocol is strictly request/response.
type authoritySession struct {
	site uint32
	conn net.Conn
	r    *bufio.Reader
	w    *bufio.Writer
	mu   sync.Mutex
	log  *zap.SugaredLogger

	targets map[string]target // species -> (min, max)
}

// dialAuthority opens a fresh upstream connection, performs the Hello
// handshake, requests DialAuthority for site, and caches the returned
// TargetPopulations.
func dialAuthority(ctx context.Context, addr string, site uint32) (*authoritySession, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, xerrors.Wrap(err, "dialing upstream authority")
	}

	s := &authoritySession{
		site: site,
		conn: conn,
		r:    bufio.NewReader(conn),
		w:    bufio.NewWriter(conn),
		log:  logger.Named("pest").With(logger.FieldSite, site),
	}

	if err := s.handshake(); err != nil {
		conn.Close()
		return nil, err
	}

	if err := writeFrame(s.w, codeDialAuthority, encodeDialAuthority(site)); err != nil {
		conn.Close()
		return nil, err
	}
	code, payload, err := readFrame(s.r)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if code != codeTargetPopulations {
		conn.Close()
		return nil, s.fatalUnexpected(code, payload)
	}
	_, targets, err := decodeTargetPopulations(payload)
	if err != nil {
		conn.Close()
		return nil, err
	}

	s.targets = make(map[string]target, len(targets))
	for _, t := range targets {
		s.targets[t.species] = t
	}
	return s, nil
}

// handshake performs the bidirectional Hello exchange both peers must
// complete before any other message.
func (s *authoritySession) handshake() error {
	if err := writeFrame(s.w, codeHello, encodeHello()); err != nil {
		return err
	}
	code, payload, err := readFrame(s.r)
	if err != nil {
		return err
	}
	if code != codeHello {
		return s.fatalUnexpected(code, payload)
	}
	return decodeHello(payload)
}

func (s *authoritySession) fatalUnexpected(code byte, payload []byte) error {
	if code == codeError {
		msg, _ := decodeError(payload)
		return xerrors.Wrapf(xerrors.ErrFatal, "upstream authority error: %s", msg)
	}
	return xerrors.Wrapf(xerrors.ErrFatal, "unexpected upstream message code 0x%02x", code)
}

// createPolicy issues CreatePolicy and blocks for the PolicyResult
// response, which yields the new policy's id.
func (s *authoritySession) createPolicy(species string, action byte) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := writeFrame(s.w, codeCreatePolicy, encodeCreatePolicy(species, action)); err != nil {
		return 0, err
	}
	code, payload, err := readFrame(s.r)
	if err != nil {
		return 0, err
	}
	if code != codePolicyResult {
		return 0, s.fatalUnexpected(code, payload)
	}
	return decodePolicyResult(payload)
}

// deletePolicy issues DeletePolicy and blocks for the OK acknowledgement.
func (s *authoritySession) deletePolicy(policy uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := writeFrame(s.w, codeDeletePolicy, encodeDeletePolicy(policy)); err != nil {
		return err
	}
	code, payload, err := readFrame(s.r)
	if err != nil {
		return err
	}
	if code != codeOK {
		return s.fatalUnexpected(code, payload)
	}
	return nil
}

func (s *authoritySession) close() { s.conn.Close() }

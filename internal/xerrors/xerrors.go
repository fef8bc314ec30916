// Package xerrors re-exports github.com/cockroachdb/errors so every
// subsystem gets stack traces, hints, and wrapping without each package
// importing the third-party module directly.
//
// For full documentation see: https://pkg.go.dev/github.com/cockroachdb/errors
package xerrors

import (
	crdb "github.com/cockroachdb/errors"
)

var (
	New         = crdb.New
	Newf        = crdb.Newf
	Wrap        = crdb.Wrap
	Wrapf       = crdb.Wrapf
	WithStack   = crdb.WithStack
	WithMessage = crdb.WithMessage
	WithHint    = crdb.WithHint
	WithDetail  = crdb.WithDetail
)

var (
	Is     = crdb.Is
	As     = crdb.As
	Unwrap = crdb.Unwrap
)

// The five error categories shared across every protocol server. Each
// subsystem wraps one of these with Wrap/Wrapf so call sites can both log a
// stack trace and errors.Is-check the category.
var (
	// ErrMalformedFrame — wire parse failure: short read, bad UTF-8, bad
	// checksum, unescape mismatch.
	ErrMalformedFrame = crdb.New("malformed frame")
	// ErrProtocolViolation — semantically invalid sequence: second Hello,
	// PLATE before IAmCamera, ack beyond sent high-water, abort of an
	// unheld job.
	ErrProtocolViolation = crdb.New("protocol violation")
	// ErrNotFound — job id absent/deleted, LRCP data for unknown session.
	ErrNotFound = crdb.New("not found")
	// ErrTransient — upstream peer reset or datagram loss; absorbed by
	// retry/redial logic, never surfaced to the offending connection.
	ErrTransient = crdb.New("transient failure")
	// ErrFatal — resource exhaustion, unrecoverable upstream failure.
	ErrFatal = crdb.New("fatal")
)

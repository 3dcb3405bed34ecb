package session

import "errors"

var (
	// ErrInvalidSession is returned when register input is structurally invalid.
	ErrInvalidSession = errors.New("invalid session input")

	// ErrNilConn is returned when a session is registered without a transport handle.
	ErrNilConn = errors.New("nil connection descriptor")
)

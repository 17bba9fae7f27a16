package tickwire

import (
	"errors"
	"fmt"
)

var (
	// ErrNetworkAlreadyActive is returned when starting a Builder whose
	// session is still running.
	ErrNetworkAlreadyActive = errors.New("network already active")

	// ErrNetworkStopped is returned when sending after the session stopped.
	ErrNetworkStopped = errors.New("network stopped")

	// ErrNoServerConnection is returned by SendToServer when connection 0
	// does not exist.
	ErrNoServerConnection = errors.New("no server connection")

	// ErrProcess wraps failures and panics of a kind's process function.
	ErrProcess = errors.New("process packet")
)

// NetError is returned when binding or closing a session's socket fails.
type NetError struct {
	Op   string // "bind" or "close"
	Addr string // local address, empty when unknown
	Err  error
}

func (e *NetError) Error() string {
	if e.Addr != "" {
		return fmt.Sprintf("tickwire %s %s: %v", e.Op, e.Addr, e.Err)
	}
	return fmt.Sprintf("tickwire %s: %v", e.Op, e.Err)
}

func (e *NetError) Unwrap() error {
	return e.Err
}

func newNetError(op, addr string, err error) *NetError {
	return &NetError{
		Op:   op,
		Addr: addr,
		Err:  err,
	}
}

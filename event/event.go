// Package event defines the events a socket hands to its receiver.
//
// Event is a closed sum type: Connected, TimedOut, Disconnected, Packet and
// Stop are its only members. Consumers dispatch with a type switch:
//
//	switch ev := e.(type) {
//	case event.Connected:
//	    ...
//	case event.Packet:
//	    ...
//	}
package event

import (
	"fmt"
	"net"

	"github.com/opd-ai/tickwire/packet"
)

// Event is one inbound occurrence drained by the receiver.
type Event interface {
	// Addr returns the remote address the event concerns, or nil for Stop.
	Addr() net.Addr

	String() string

	isEvent()
}

// Connected reports the first datagram from a new remote address.
type Connected struct {
	Remote net.Addr
}

// TimedOut reports a remote that stayed silent past the idle timeout.
type TimedOut struct {
	Remote net.Addr
}

// Disconnected reports a remote that closed its side of the connection.
type Disconnected struct {
	Remote net.Addr
}

// Packet carries a received payload with the guarantee it was sent with.
type Packet struct {
	Remote    net.Addr
	Guarantee packet.Guarantee
	Payload   packet.Payload
}

// Stop is the last event a socket produces before its workers exit.
type Stop struct{}

func (e Connected) Addr() net.Addr    { return e.Remote }
func (e TimedOut) Addr() net.Addr     { return e.Remote }
func (e Disconnected) Addr() net.Addr { return e.Remote }
func (e Packet) Addr() net.Addr       { return e.Remote }
func (Stop) Addr() net.Addr           { return nil }

func (Connected) isEvent()    {}
func (TimedOut) isEvent()     {}
func (Disconnected) isEvent() {}
func (Packet) isEvent()       {}
func (Stop) isEvent()         {}

func (e Connected) String() string    { return fmt.Sprintf("connected(%s)", addrString(e.Remote)) }
func (e TimedOut) String() string     { return fmt.Sprintf("timed_out(%s)", addrString(e.Remote)) }
func (e Disconnected) String() string { return fmt.Sprintf("disconnected(%s)", addrString(e.Remote)) }
func (Stop) String() string           { return "stop" }

func (e Packet) String() string {
	return fmt.Sprintf("packet(%s, %s, %s, %d bytes)", addrString(e.Remote), e.Payload.KindID, e.Guarantee, e.Payload.Len())
}

func addrString(addr net.Addr) string {
	if addr == nil {
		return "<nil>"
	}
	return addr.String()
}

// Reason tells disconnect processors why a connection ended.
type Reason uint8

const (
	// ReasonDisconnected means the remote closed the connection.
	ReasonDisconnected Reason = iota
	// ReasonTimedOut means the remote stayed silent past the idle timeout.
	ReasonTimedOut
)

// String returns the name of the reason.
func (r Reason) String() string {
	switch r {
	case ReasonDisconnected:
		return "disconnected"
	case ReasonTimedOut:
		return "timed_out"
	default:
		return fmt.Sprintf("reason(%d)", uint8(r))
	}
}

// Package packet defines the values that travel through tickwire: delivery
// and order guarantees, the (kind id, bytes) payload envelope, and immutable
// packets built with a Builder.
//
// Example:
//
//	payload, err := packet.PayloadFrom(Echo{Data: []byte{1, 2, 3}})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	builder := packet.NewBuilder(packet.ReliableOrdered, payload)
//	pkt, err := builder.WithAddr(remote).Build()
package packet

import (
	"errors"
	"fmt"
	"net"
)

// ErrMissingAddress is returned when a packet is built without an address.
var ErrMissingAddress = errors.New("packet address not set")

// Packet is an addressed payload with its guarantee. It cannot be changed
// once built.
type Packet struct {
	addr      net.Addr
	guarantee Guarantee
	payload   Payload
}

// Addr returns the remote address of the packet.
func (p Packet) Addr() net.Addr {
	return p.addr
}

// Guarantee returns the delivery and order guarantee of the packet.
func (p Packet) Guarantee() Guarantee {
	return p.guarantee
}

// Payload returns the payload envelope of the packet.
func (p Packet) Payload() Payload {
	return p.payload
}

// String returns a short description for logs.
func (p Packet) String() string {
	addr := "<nil>"
	if p.addr != nil {
		addr = p.addr.String()
	}
	return fmt.Sprintf("packet(%s -> %s, %s, %d bytes)", p.payload.KindID, addr, p.guarantee, p.payload.Len())
}

// Builder accumulates a guarantee and a payload and is completed with an
// address. Builders are values: copying one is cheap and shares the payload
// bytes, which is what broadcast relies on.
type Builder struct {
	guarantee Guarantee
	payload   Payload
	addr      net.Addr
}

// NewBuilder creates a builder for payload with guarantee g.
func NewBuilder(g Guarantee, payload Payload) Builder {
	return Builder{guarantee: g, payload: payload}
}

// WithAddr returns a copy of the builder addressed to addr.
func (b Builder) WithAddr(addr net.Addr) Builder {
	b.addr = addr
	return b
}

// Guarantee returns the guarantee the built packet will carry.
func (b Builder) Guarantee() Guarantee {
	return b.guarantee
}

// Payload returns the payload the built packet will carry.
func (b Builder) Payload() Payload {
	return b.payload
}

// Build freezes the builder into a packet.
// Returns ErrMissingAddress if no address was supplied.
func (b Builder) Build() (Packet, error) {
	if b.addr == nil {
		return Packet{}, ErrMissingAddress
	}

	return Packet{
		addr:      b.addr,
		guarantee: b.guarantee,
		payload:   b.payload,
	}, nil
}

// New builds a packet in one step.
func New(addr net.Addr, g Guarantee, payload Payload) (Packet, error) {
	return NewBuilder(g, payload).WithAddr(addr).Build()
}

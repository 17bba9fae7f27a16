package socket

import (
	"github.com/opd-ai/tickwire/interfaces"
	"github.com/opd-ai/tickwire/packet"
)

// ToReliability maps a guarantee onto the transport reliability and stream it
// travels with. Every guarantee has exactly one mapping. Unreliable delivery
// cannot restore order, so Unreliable with Ordered becomes
// UnreliableSequenced on the same stream. Unordered guarantees use stream 0.
func ToReliability(g packet.Guarantee) (interfaces.Reliability, uint8) {
	if g.Order.Kind == packet.OrderUnordered {
		if g.IsReliable() {
			return interfaces.ReliableUnordered, 0
		}
		return interfaces.Unreliable, 0
	}

	stream := g.Order.Stream
	switch {
	case !g.IsReliable():
		return interfaces.UnreliableSequenced, stream
	case g.Order.Kind == packet.OrderSequenced:
		return interfaces.ReliableSequenced, stream
	default:
		return interfaces.ReliableOrdered, stream
	}
}

// FromReliability is the inverse of ToReliability for the guarantees a
// receiver can observe.
func FromReliability(r interfaces.Reliability, stream uint8) packet.Guarantee {
	switch r {
	case interfaces.UnreliableSequenced:
		return packet.NewGuarantee(packet.Unreliable, packet.Sequenced(stream))
	case interfaces.ReliableUnordered:
		return packet.ReliableUnordered
	case interfaces.ReliableSequenced:
		return packet.NewGuarantee(packet.Reliable, packet.Sequenced(stream))
	case interfaces.ReliableOrdered:
		return packet.NewGuarantee(packet.Reliable, packet.Ordered(stream))
	default:
		return packet.UnreliableUnordered
	}
}

package packet

import "fmt"

// DeliveryGuarantee chooses whether loss of a packet is tolerated.
type DeliveryGuarantee uint8

const (
	// Unreliable packets may be lost on the wire.
	Unreliable DeliveryGuarantee = iota
	// Reliable packets are retransmitted until acknowledged.
	Reliable
)

// String returns the name of the delivery guarantee.
func (d DeliveryGuarantee) String() string {
	switch d {
	case Unreliable:
		return "unreliable"
	case Reliable:
		return "reliable"
	default:
		return fmt.Sprintf("delivery(%d)", uint8(d))
	}
}

// OrderKind chooses whether packets of one stream may arrive out of send order.
type OrderKind uint8

const (
	// OrderUnordered delivers packets as they arrive.
	OrderUnordered OrderKind = iota
	// OrderSequenced delivers only packets newer than the newest one seen on
	// the stream; older arrivals are discarded.
	OrderSequenced
	// OrderOrdered delivers packets of the stream in send order.
	OrderOrdered
)

// String returns the name of the order kind.
func (o OrderKind) String() string {
	switch o {
	case OrderUnordered:
		return "unordered"
	case OrderSequenced:
		return "sequenced"
	case OrderOrdered:
		return "ordered"
	default:
		return fmt.Sprintf("order(%d)", uint8(o))
	}
}

// DefaultStream is the stream used when no explicit stream is chosen.
const DefaultStream uint8 = 255

// OrderGuarantee is an order kind bound to a stream. Streams are independent:
// ordering on one stream never holds back packets of another.
type OrderGuarantee struct {
	Kind   OrderKind
	Stream uint8
}

// Unordered returns the order guarantee without ordering.
func Unordered() OrderGuarantee {
	return OrderGuarantee{Kind: OrderUnordered}
}

// Sequenced returns a sequenced order guarantee on stream.
func Sequenced(stream uint8) OrderGuarantee {
	return OrderGuarantee{Kind: OrderSequenced, Stream: stream}
}

// Ordered returns an ordered order guarantee on stream.
func Ordered(stream uint8) OrderGuarantee {
	return OrderGuarantee{Kind: OrderOrdered, Stream: stream}
}

// String returns a readable representation such as "ordered(3)".
func (o OrderGuarantee) String() string {
	if o.Kind == OrderUnordered {
		return o.Kind.String()
	}
	return fmt.Sprintf("%s(%d)", o.Kind, o.Stream)
}

// Guarantee is the combined delivery and order contract of one packet.
// It is a plain value; two guarantees are equal when == says so.
type Guarantee struct {
	Delivery DeliveryGuarantee
	Order    OrderGuarantee
}

// NewGuarantee combines a delivery and an order guarantee.
func NewGuarantee(delivery DeliveryGuarantee, order OrderGuarantee) Guarantee {
	return Guarantee{Delivery: delivery, Order: order}
}

// Common guarantees on the default stream.
var (
	UnreliableUnordered = NewGuarantee(Unreliable, Unordered())
	UnreliableSequenced = NewGuarantee(Unreliable, Sequenced(DefaultStream))
	ReliableUnordered   = NewGuarantee(Reliable, Unordered())
	ReliableSequenced   = NewGuarantee(Reliable, Sequenced(DefaultStream))
	ReliableOrdered     = NewGuarantee(Reliable, Ordered(DefaultStream))
)

// IsReliable reports whether the packet must survive loss.
func (g Guarantee) IsReliable() bool {
	return g.Delivery == Reliable
}

// String returns a readable representation such as "reliable/ordered(255)".
func (g Guarantee) String() string {
	return g.Delivery.String() + "/" + g.Order.String()
}

package transport

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/opd-ai/tickwire/interfaces"
	"github.com/opd-ai/tickwire/limits"
)

var (
	errShortDatagram      = errors.New("datagram shorter than header")
	errUnknownPacketType  = errors.New("unknown packet type")
	errUnknownReliability = errors.New("unknown reliability")
	errMissingAddress     = errors.New("datagram has no address")
)

// packetType is the second field of every header.
type packetType uint8

const (
	packetData packetType = iota
	packetAck
	packetHeartbeat
	packetDisconnect
)

// String returns the name of the packet type.
func (p packetType) String() string {
	switch p {
	case packetData:
		return "data"
	case packetAck:
		return "ack"
	case packetHeartbeat:
		return "heartbeat"
	case packetDisconnect:
		return "disconnect"
	default:
		return fmt.Sprintf("packet_type(%d)", uint8(p))
	}
}

// flagAckValid marks ackSequence and ackBits as meaningful.
const flagAckValid uint8 = 1 << 0

// header is the fixed prefix of every datagram on the wire.
//
//	offset size field
//	0      2    protocol id
//	2      1    packet type
//	3      1    flags
//	4      1    reliability
//	5      1    stream
//	6      2    sequence (reliable only)
//	8      2    order index (sequenced, ordered and reliable unordered)
//	10     2    ack sequence
//	12     4    ack bitfield
type header struct {
	protocolID  uint16
	kind        packetType
	flags       uint8
	reliability interfaces.Reliability
	stream      uint8
	sequence    uint16
	orderIndex  uint16
	ackSequence uint16
	ackBits     uint32
}

// hasAcks reports whether the header carries acknowledgements.
func (h header) hasAcks() bool {
	return h.flags&flagAckValid != 0
}

// marshalTo writes h into the first limits.HeaderSize bytes of b.
func (h header) marshalTo(b []byte) {
	_ = b[limits.HeaderSize-1]

	binary.BigEndian.PutUint16(b[0:2], h.protocolID)
	b[2] = byte(h.kind)
	b[3] = h.flags
	b[4] = byte(h.reliability)
	b[5] = h.stream
	binary.BigEndian.PutUint16(b[6:8], h.sequence)
	binary.BigEndian.PutUint16(b[8:10], h.orderIndex)
	binary.BigEndian.PutUint16(b[10:12], h.ackSequence)
	binary.BigEndian.PutUint32(b[12:16], h.ackBits)
}

// parseHeader decodes the header at the start of b.
func parseHeader(b []byte) (header, error) {
	if len(b) < limits.HeaderSize {
		return header{}, fmt.Errorf("%w: %d bytes", errShortDatagram, len(b))
	}

	h := header{
		protocolID:  binary.BigEndian.Uint16(b[0:2]),
		kind:        packetType(b[2]),
		flags:       b[3],
		reliability: interfaces.Reliability(b[4]),
		stream:      b[5],
		sequence:    binary.BigEndian.Uint16(b[6:8]),
		orderIndex:  binary.BigEndian.Uint16(b[8:10]),
		ackSequence: binary.BigEndian.Uint16(b[10:12]),
		ackBits:     binary.BigEndian.Uint32(b[12:16]),
	}

	if h.kind > packetDisconnect {
		return header{}, fmt.Errorf("%w: %d", errUnknownPacketType, b[2])
	}
	if !h.reliability.Valid() {
		return header{}, fmt.Errorf("%w: %d", errUnknownReliability, b[4])
	}

	return h, nil
}

// sequenceGreaterThan compares 16-bit sequence numbers across wrap-around.
func sequenceGreaterThan(a, b uint16) bool {
	return (a > b && a-b <= 1<<15) || (a < b && b-a > 1<<15)
}

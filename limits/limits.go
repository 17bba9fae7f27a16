// Package limits provides centralized size limits for tickwire datagrams.
// This ensures consistent validation across the socket, the kind registry
// and the transport backends.
package limits

import (
	"errors"
	"fmt"
)

const (
	// MaxDatagramSize is the largest datagram a transport puts on the wire.
	// 1450 bytes stays below a 1500 byte Ethernet MTU after IP and UDP headers.
	MaxDatagramSize = 1450

	// HeaderSize is the size of the UDP transport's per-datagram header.
	HeaderSize = 16

	// MaxDatagramPayload is the room left for an encoded payload envelope.
	MaxDatagramPayload = MaxDatagramSize - HeaderSize

	// MaxKindIDLength bounds the length of a kind identifier in bytes.
	MaxKindIDLength = 64

	// MaxReadBuffer is the size of the buffer used to read one datagram.
	// Anything larger than a UDP datagram can ever be is impossible on the wire.
	MaxReadBuffer = 64 * 1024
)

var (
	// ErrMessageEmpty indicates an empty message was provided
	ErrMessageEmpty = errors.New("empty message")

	// ErrMessageTooLarge indicates message exceeds maximum size
	ErrMessageTooLarge = errors.New("message too large")

	// ErrKindIDEmpty indicates a kind was registered or sent without an identifier
	ErrKindIDEmpty = errors.New("empty kind id")

	// ErrKindIDTooLong indicates a kind identifier exceeds MaxKindIDLength
	ErrKindIDTooLong = errors.New("kind id too long")
)

// ValidateMessageSize validates a message against the specified maximum size.
// Returns an error with context including the actual and maximum sizes.
func ValidateMessageSize(message []byte, maxSize int) error {
	if len(message) == 0 {
		return ErrMessageEmpty
	}
	if len(message) > maxSize {
		return fmt.Errorf("%w: size %d exceeds limit %d", ErrMessageTooLarge, len(message), maxSize)
	}
	return nil
}

// ValidateEnvelope validates an encoded payload envelope against MaxDatagramPayload.
func ValidateEnvelope(envelope []byte) error {
	return ValidateMessageSize(envelope, MaxDatagramPayload)
}

// ValidateDatagram validates a complete datagram (header included) against MaxDatagramSize.
func ValidateDatagram(datagram []byte) error {
	return ValidateMessageSize(datagram, MaxDatagramSize)
}

// ValidateKindID validates a kind identifier.
func ValidateKindID(kindID string) error {
	if kindID == "" {
		return ErrKindIDEmpty
	}
	if len(kindID) > MaxKindIDLength {
		return fmt.Errorf("%w: %d bytes exceeds limit %d", ErrKindIDTooLong, len(kindID), MaxKindIDLength)
	}
	return nil
}

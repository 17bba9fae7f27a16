// Package limits provides centralized size constants and validation functions
// for tickwire. The socket, the kind registry and every transport backend
// validate against the same numbers.
//
// # Size Hierarchy
//
//   - MaxDatagramSize (1450 bytes): the largest datagram written to the wire.
//     It leaves room for IP and UDP headers inside a 1500 byte MTU, so a
//     datagram is never fragmented by the IP layer.
//
//   - HeaderSize (16 bytes): the UDP transport header carrying protocol id,
//     reliability, stream, sequence and ack information.
//
//   - MaxDatagramPayload (1434 bytes): what is left for the CBOR payload
//     envelope ({kind_id, data}).
//
//   - MaxKindIDLength (64 bytes): kind identifiers are registry keys and travel
//     in every envelope, so they are kept short.
//
// # Validation Functions
//
//	if err := limits.ValidateEnvelope(encoded); err != nil {
//	    // ErrMessageEmpty or ErrMessageTooLarge
//	}
//
//	if err := limits.ValidateKindID("echo"); err != nil {
//	    // ErrKindIDEmpty or ErrKindIDTooLong
//	}
//
// For custom size limits, use the generic ValidateMessageSize function:
//
//	err := limits.ValidateMessageSize(data, 512)
package limits

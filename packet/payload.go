package packet

import (
	"errors"
	"fmt"

	cbor "github.com/fxamacker/cbor/v2"
)

var (
	// ErrInvalidEnvelope is returned when bytes do not hold a payload envelope.
	ErrInvalidEnvelope = errors.New("invalid payload envelope")

	// ErrNilKind is returned when a nil kind value is turned into a payload.
	ErrNilKind = errors.New("nil kind value")
)

// Kind is implemented by every application packet type. The identifier must
// be unique within a registry and must not depend on the receiver's value,
// so implement it on the value type:
//
//	type Echo struct{ Data []byte }
//
//	func (Echo) KindID() string { return "echo" }
type Kind interface {
	KindID() string
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	// canonical encoding keeps the envelope deterministic across nodes
	encMode, err = cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("cbor encode mode: %v", err))
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("cbor decode mode: %v", err))
	}
}

// Marshal encodes a kind value with the codec used for payload data.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes payload data produced by Marshal into v.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// Payload is the (kind id, bytes) envelope exchanged independent of the
// concrete type. Data is shared between copies and must not be modified.
type Payload struct {
	KindID string
	Data   []byte
}

// envelope is the wire shape of a Payload: a CBOR map with integer keys.
type envelope struct {
	KindID string `cbor:"1,keyasint"`
	Data   []byte `cbor:"2,keyasint"`
}

// NewPayload tags already encoded data with a kind id.
func NewPayload(kindID string, data []byte) Payload {
	return Payload{KindID: kindID, Data: data}
}

// PayloadFrom encodes v and tags it with v's kind id.
func PayloadFrom(v Kind) (Payload, error) {
	if v == nil {
		return Payload{}, ErrNilKind
	}

	data, err := Marshal(v)
	if err != nil {
		return Payload{}, fmt.Errorf("encode kind %q: %w", v.KindID(), err)
	}

	return Payload{KindID: v.KindID(), Data: data}, nil
}

// Len returns the size of the payload data in bytes.
func (p Payload) Len() int {
	return len(p.Data)
}

// MarshalBinary encodes the payload envelope.
func (p Payload) MarshalBinary() ([]byte, error) {
	return encMode.Marshal(envelope{KindID: p.KindID, Data: p.Data})
}

// UnmarshalPayload decodes a payload envelope produced by MarshalBinary.
func UnmarshalPayload(b []byte) (Payload, error) {
	var env envelope
	if err := decMode.Unmarshal(b, &env); err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	if env.KindID == "" {
		return Payload{}, fmt.Errorf("%w: missing kind id", ErrInvalidEnvelope)
	}

	return Payload{KindID: env.KindID, Data: env.Data}, nil
}

// Package kind maps kind identifiers to the behaviour that decodes and
// processes packets of that kind.
//
// A Registry is filled before a network session starts and frozen when the
// session's workers begin reading it. Registration is the only place where a
// concrete packet type meets the type-erased rest of the system: everything
// after it handles payloads keyed by kind id.
//
// Duplicate registrations are rejected with ErrDuplicateKind and logged; the
// first registration for a kind id stays active.
//
// Example:
//
//	type Echo struct{ Data []byte }
//
//	func (Echo) KindID() string { return "echo" }
//
//	registry := kind.NewRegistry()
//	err := kind.RegisterKind(registry, func(e Echo, from net.Addr, g packet.Guarantee) error {
//	    fmt.Printf("echo from %s: %v\n", from, e.Data)
//	    return nil
//	})
package kind

import (
	"errors"
	"fmt"
	"net"
	"sort"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/tickwire/limits"
	"github.com/opd-ai/tickwire/packet"
)

var (
	// ErrDuplicateKind is returned when a kind id is registered twice.
	ErrDuplicateKind = errors.New("kind already registered")

	// ErrUnregisteredKind is returned when a payload names an unknown kind id.
	ErrUnregisteredKind = errors.New("unregistered kind")

	// ErrRegistryFrozen is returned when registering after Freeze.
	ErrRegistryFrozen = errors.New("registry is frozen")

	// ErrInvalidRegistration is returned when a registration lacks a function.
	ErrInvalidRegistration = errors.New("invalid registration")

	// ErrDecode wraps failures to decode a payload into its kind.
	ErrDecode = errors.New("decode payload")
)

// DecodeFunc turns payload bytes into a value of the registered kind.
type DecodeFunc func(data []byte) (any, error)

// ProcessFunc handles a decoded value received from source with guarantee g.
type ProcessFunc func(value any, source net.Addr, g packet.Guarantee) error

// Registration is the decode and process behaviour bound to one kind id.
type Registration struct {
	Decode  DecodeFunc
	Process ProcessFunc
}

// Registry is an append-only map from kind id to Registration.
// It is safe for concurrent use.
type Registry struct {
	entries *xsync.MapOf[string, Registration]
	frozen  atomic.Bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: xsync.NewMapOf[string, Registration](),
	}
}

// Register binds reg to kindID.
// Returns ErrDuplicateKind if kindID is already registered; the existing
// registration is kept.
func (r *Registry) Register(kindID string, reg Registration) error {
	if err := limits.ValidateKindID(kindID); err != nil {
		return fmt.Errorf("register kind: %w", err)
	}
	if reg.Decode == nil || reg.Process == nil {
		return fmt.Errorf("%w: kind %q needs both decode and process", ErrInvalidRegistration, kindID)
	}
	if r.frozen.Load() {
		logrus.WithFields(logrus.Fields{
			"function": "Registry.Register",
			"kind_id":  kindID,
		}).Warn("Rejected registration on frozen registry")
		return fmt.Errorf("%w: cannot register %q", ErrRegistryFrozen, kindID)
	}

	if _, loaded := r.entries.LoadOrStore(kindID, reg); loaded {
		logrus.WithFields(logrus.Fields{
			"function": "Registry.Register",
			"kind_id":  kindID,
		}).Warn("Duplicate kind registration rejected, keeping first registration")
		return fmt.Errorf("%w: %q", ErrDuplicateKind, kindID)
	}

	logrus.WithFields(logrus.Fields{
		"function": "Registry.Register",
		"kind_id":  kindID,
	}).Debug("Registered kind")

	return nil
}

// RegisterKind registers the kind T with a typed process function. Payload
// data is decoded into a T with the packet codec, so process never sees a
// value of another type. T must implement KindID on its value receiver.
func RegisterKind[T packet.Kind](r *Registry, process func(value T, source net.Addr, g packet.Guarantee) error) error {
	var zero T
	kindID := zero.KindID()

	if process == nil {
		return fmt.Errorf("%w: kind %q needs a process function", ErrInvalidRegistration, kindID)
	}

	return r.Register(kindID, Registration{
		Decode: func(data []byte) (any, error) {
			var v T
			if err := packet.Unmarshal(data, &v); err != nil {
				return nil, err
			}
			return v, nil
		},
		Process: func(value any, source net.Addr, g packet.Guarantee) error {
			v, ok := value.(T)
			if !ok {
				return fmt.Errorf("kind %q decoded to %T", kindID, value)
			}
			return process(v, source, g)
		},
	})
}

// Resolve returns the registration for kindID.
func (r *Registry) Resolve(kindID string) (Registration, bool) {
	return r.entries.Load(kindID)
}

// Decode resolves the payload's kind and decodes its data.
// Returns an error wrapping ErrUnregisteredKind or ErrDecode.
func (r *Registry) Decode(payload packet.Payload) (any, error) {
	reg, ok := r.Resolve(payload.KindID)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnregisteredKind, payload.KindID)
	}

	value, err := reg.Decode(payload.Data)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrDecode, payload.KindID, err)
	}

	return value, nil
}

// Freeze rejects all further registrations.
func (r *Registry) Freeze() {
	r.frozen.Store(true)
}

// Frozen reports whether Freeze has been called.
func (r *Registry) Frozen() bool {
	return r.frozen.Load()
}

// Len returns the number of registered kinds.
func (r *Registry) Len() int {
	return r.entries.Size()
}

// KindIDs returns the registered kind ids in sorted order.
func (r *Registry) KindIDs() []string {
	ids := make([]string, 0, r.entries.Size())
	r.entries.Range(func(kindID string, _ Registration) bool {
		ids = append(ids, kindID)
		return true
	})
	sort.Strings(ids)
	return ids
}

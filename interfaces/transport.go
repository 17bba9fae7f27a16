package interfaces

import (
	"errors"
	"fmt"
	"net"
	"time"
)

var (
	// ErrQueueFull is a transient TrySend result: the transport's send queue
	// has no room right now. The caller keeps the datagram and retries.
	ErrQueueFull = errors.New("transport send queue full")

	// ErrQueueEmpty is returned by TryRecv when no event is ready.
	ErrQueueEmpty = errors.New("transport event queue empty")

	// ErrChannelClosed is permanent: the transport was closed and will
	// neither accept datagrams nor produce further events.
	ErrChannelClosed = errors.New("transport channel closed")

	// ErrPacketTooLarge is returned when a datagram cannot fit on the wire.
	ErrPacketTooLarge = errors.New("datagram too large")

	// ErrInvalidConfig is returned by Config.Validate.
	ErrInvalidConfig = errors.New("invalid transport config")
)

// Reliability is the transport-level encoding of a delivery and order
// guarantee. Every guarantee combination maps onto exactly one value.
type Reliability uint8

const (
	// Unreliable datagrams may be lost, duplicated or reordered.
	Unreliable Reliability = iota
	// UnreliableSequenced datagrams may be lost; stale ones are discarded.
	UnreliableSequenced
	// ReliableUnordered datagrams arrive exactly once, in any order.
	ReliableUnordered
	// ReliableSequenced datagrams are retransmitted; stale ones are discarded.
	ReliableSequenced
	// ReliableOrdered datagrams arrive exactly once, in send order per stream.
	ReliableOrdered
)

// String returns the name of the reliability.
func (r Reliability) String() string {
	switch r {
	case Unreliable:
		return "unreliable"
	case UnreliableSequenced:
		return "unreliable_sequenced"
	case ReliableUnordered:
		return "reliable_unordered"
	case ReliableSequenced:
		return "reliable_sequenced"
	case ReliableOrdered:
		return "reliable_ordered"
	default:
		return fmt.Sprintf("reliability(%d)", uint8(r))
	}
}

// Valid reports whether r is a known reliability.
func (r Reliability) Valid() bool {
	return r <= ReliableOrdered
}

// IsReliable reports whether datagrams are retransmitted until acknowledged.
func (r Reliability) IsReliable() bool {
	return r == ReliableUnordered || r == ReliableSequenced || r == ReliableOrdered
}

// IsSequenced reports whether stale datagrams of a stream are discarded.
func (r Reliability) IsSequenced() bool {
	return r == UnreliableSequenced || r == ReliableSequenced
}

// IsOrdered reports whether datagrams of a stream are delivered in send order.
func (r Reliability) IsOrdered() bool {
	return r == ReliableOrdered
}

// Datagram is what a transport sends and receives: an opaque payload with
// the remote address and the reliability it travels with.
type Datagram struct {
	Addr        net.Addr
	Payload     []byte
	Reliability Reliability
	Stream      uint8
}

// EventKind identifies the kind of a TransportEvent.
type EventKind uint8

const (
	// EventConnect is raised on the first datagram from a new address.
	EventConnect EventKind = iota
	// EventTimeout is raised when a connected peer stays silent too long.
	EventTimeout
	// EventDisconnect is raised when a peer announces it is going away.
	EventDisconnect
	// EventPacket carries a received datagram.
	EventPacket
)

// String returns the name of the event kind.
func (k EventKind) String() string {
	switch k {
	case EventConnect:
		return "connect"
	case EventTimeout:
		return "timeout"
	case EventDisconnect:
		return "disconnect"
	case EventPacket:
		return "packet"
	default:
		return fmt.Sprintf("event(%d)", uint8(k))
	}
}

// TransportEvent is one inbound occurrence reported by a transport.
// Datagram is only set for EventPacket.
type TransportEvent struct {
	Kind     EventKind
	Addr     net.Addr
	Datagram Datagram
}

// SendHandle enqueues datagrams without blocking.
type SendHandle interface {
	// TrySend enqueues d. It returns ErrQueueFull when the caller should
	// retry the same datagram later, ErrChannelClosed when the transport is
	// gone, and ErrPacketTooLarge when d can never be sent.
	TrySend(d Datagram) error
}

// ReceiveHandle dequeues transport events without blocking.
type ReceiveHandle interface {
	// TryRecv returns the next ready event, ErrQueueEmpty when nothing is
	// ready, or ErrChannelClosed once the transport is closed and drained.
	TryRecv() (TransportEvent, error)
}

// Transport is a bound datagram endpoint driven by manual polling.
type Transport interface {
	// SendHandle returns the handle datagrams are enqueued on.
	SendHandle() SendHandle

	// ReceiveHandle returns the handle events are dequeued from.
	ReceiveHandle() ReceiveHandle

	// ManualPoll drives the transport: it writes queued datagrams, processes
	// received ones, retransmits, acknowledges, heartbeats and expires idle
	// peers. now is the time the bookkeeping is evaluated against.
	ManualPoll(now time.Time)

	// LocalAddr returns the bound local address.
	LocalAddr() net.Addr

	// Close shuts the transport down. Handles report ErrChannelClosed afterwards.
	Close() error
}

// Factory binds transports. It is the seam that makes transport backends
// pluggable.
type Factory interface {
	Bind(addr string, config Config) (Transport, error)
}

// FactoryFunc adapts a function to the Factory interface.
type FactoryFunc func(addr string, config Config) (Transport, error)

// Bind calls f(addr, config).
func (f FactoryFunc) Bind(addr string, config Config) (Transport, error) {
	return f(addr, config)
}

// Config holds settings shared by all transport backends.
type Config struct {
	// IdleTimeout is how long a connected peer may stay silent before an
	// EventTimeout is raised for it.
	IdleTimeout time.Duration

	// HeartbeatInterval is how long a connection may go without sending
	// before a heartbeat is sent to keep the peer's idle timer fresh.
	// Zero disables heartbeats.
	HeartbeatInterval time.Duration

	// ResendTimeout is how long a reliable datagram waits for its ack
	// before it is sent again.
	ResendTimeout time.Duration

	// SendQueueSize bounds the send queue; TrySend reports ErrQueueFull
	// when it is exhausted.
	SendQueueSize int

	// MaxOrderedBuffer bounds the out-of-order datagrams held per stream.
	// At most MaxWindow.
	MaxOrderedBuffer int

	// DuplicateWindow is the number of recent reliable message ids
	// remembered per peer to suppress duplicates. At most MaxWindow.
	DuplicateWindow int

	// ProtocolID is stamped on every datagram; others are ignored.
	ProtocolID uint16
}

// MaxWindow caps MaxOrderedBuffer and DuplicateWindow. Order indexes and
// message ids are u16 compared with wraparound, so a window must stay below
// half the sequence space.
const MaxWindow = 1<<15 - 1

// DefaultConfig returns the default transport configuration.
//
// Default Value Rationale:
//   - IdleTimeout: 5s - long enough to ride out short stalls of a game client
//   - HeartbeatInterval: 1s - well below IdleTimeout so quiet peers stay connected
//   - ResendTimeout: 100ms - a few round trips on a LAN or a fair WAN link
//   - SendQueueSize: 1024 - several ticks of traffic before backpressure kicks in
func DefaultConfig() Config {
	return Config{
		IdleTimeout:       5 * time.Second,
		HeartbeatInterval: time.Second,
		ResendTimeout:     100 * time.Millisecond,
		SendQueueSize:     1024,
		MaxOrderedBuffer:  1024,
		DuplicateWindow:   1024,
		ProtocolID:        0x7477,
	}
}

// Validate checks that the configuration can drive a transport.
func (c Config) Validate() error {
	if c.IdleTimeout <= 0 {
		return fmt.Errorf("%w: idle timeout must be positive, got %v", ErrInvalidConfig, c.IdleTimeout)
	}
	if c.HeartbeatInterval < 0 {
		return fmt.Errorf("%w: heartbeat interval must not be negative, got %v", ErrInvalidConfig, c.HeartbeatInterval)
	}
	if c.HeartbeatInterval > 0 && c.HeartbeatInterval >= c.IdleTimeout {
		return fmt.Errorf("%w: heartbeat interval %v must be shorter than idle timeout %v", ErrInvalidConfig, c.HeartbeatInterval, c.IdleTimeout)
	}
	if c.ResendTimeout <= 0 {
		return fmt.Errorf("%w: resend timeout must be positive, got %v", ErrInvalidConfig, c.ResendTimeout)
	}
	if c.SendQueueSize <= 0 {
		return fmt.Errorf("%w: send queue size must be positive, got %d", ErrInvalidConfig, c.SendQueueSize)
	}
	if c.MaxOrderedBuffer <= 0 || c.MaxOrderedBuffer > MaxWindow {
		return fmt.Errorf("%w: ordered buffer must be in [1, %d], got %d", ErrInvalidConfig, MaxWindow, c.MaxOrderedBuffer)
	}
	if c.DuplicateWindow <= 0 || c.DuplicateWindow > MaxWindow {
		return fmt.Errorf("%w: duplicate window must be in [1, %d], got %d", ErrInvalidConfig, MaxWindow, c.DuplicateWindow)
	}
	return nil
}

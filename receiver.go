package tickwire

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"github.com/opd-ai/tickwire/connection"
	"github.com/opd-ai/tickwire/event"
	"github.com/opd-ai/tickwire/kind"
	"github.com/opd-ai/tickwire/queue"
)

// ConnectProcessor is called after a new connection was added.
type ConnectProcessor func(conn connection.Connection)

// DisconnectProcessor is called after a connection was removed.
type DisconnectProcessor func(conn connection.Connection, reason event.Reason)

// ReceiverStats counts the events a Receiver applied.
type ReceiverStats struct {
	Connected    uint64
	Disconnected uint64
	TimedOut     uint64
	Packets      uint64
	Unregistered uint64
	Failed       uint64
}

// Receiver is the inward half of a session. Drain applies queued events to
// the connection directory and dispatches packets to their kinds.
//
// Drain must be called from one goroutine at a time, typically once per tick.
type Receiver struct {
	incoming  *queue.FIFO[event.Event]
	directory *connection.Directory
	registry  *kind.Registry

	mu           sync.RWMutex
	onConnect    []ConnectProcessor
	onDisconnect []DisconnectProcessor

	stopped      atomic.Bool
	connected    atomic.Uint64
	disconnected atomic.Uint64
	timedOut     atomic.Uint64
	packets      atomic.Uint64
	unregistered atomic.Uint64
	failed       atomic.Uint64
}

func newReceiver(incoming *queue.FIFO[event.Event], directory *connection.Directory, registry *kind.Registry) *Receiver {
	return &Receiver{
		incoming:  incoming,
		directory: directory,
		registry:  registry,
	}
}

// OnConnect adds a processor called for every new connection.
func (r *Receiver) OnConnect(fn ConnectProcessor) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.onConnect = append(r.onConnect, fn)
}

// OnDisconnect adds a processor called for every removed connection.
func (r *Receiver) OnDisconnect(fn DisconnectProcessor) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.onDisconnect = append(r.onDisconnect, fn)
}

// Drain applies every event queued when it is called, in queue order.
// Failures are scoped to the packet that caused them: draining continues
// and the combined per-packet errors are returned.
func (r *Receiver) Drain() error {
	var (
		errs error
		stop bool
	)

	for n := r.incoming.Len(); n > 0; n-- {
		ev, ok := r.incoming.TryPop()
		if !ok {
			break
		}

		switch e := ev.(type) {
		case event.Connected:
			r.connect(e.Remote)
		case event.TimedOut:
			r.disconnect(e.Remote, event.ReasonTimedOut)
		case event.Disconnected:
			r.disconnect(e.Remote, event.ReasonDisconnected)
		case event.Packet:
			if err := r.process(e); err != nil {
				errs = multierr.Append(errs, err)
			}
		case event.Stop:
			stop = true
		}
	}

	if stop {
		r.stopped.Store(true)
		logrus.WithFields(logrus.Fields{
			"function": "Receiver.Drain",
		}).Info("Receiver observed stop")
	}

	return errs
}

// Stopped reports whether a drain has applied the socket's final Stop event.
func (r *Receiver) Stopped() bool {
	return r.stopped.Load()
}

// Stats returns the counts of applied events.
func (r *Receiver) Stats() ReceiverStats {
	return ReceiverStats{
		Connected:    r.connected.Load(),
		Disconnected: r.disconnected.Load(),
		TimedOut:     r.timedOut.Load(),
		Packets:      r.packets.Load(),
		Unregistered: r.unregistered.Load(),
		Failed:       r.failed.Load(),
	}
}

func (r *Receiver) connect(addr net.Addr) {
	id := r.directory.AddConnection(addr)
	r.connected.Add(1)

	logrus.WithFields(logrus.Fields{
		"function":      "Receiver.connect",
		"addr":          addr.String(),
		"connection_id": id,
	}).Debug("Connection added")

	conn := connection.Connection{ID: id, Addr: addr}

	r.mu.RLock()
	processors := r.onConnect
	r.mu.RUnlock()

	for _, fn := range processors {
		fn(conn)
	}
}

func (r *Receiver) disconnect(addr net.Addr, reason event.Reason) {
	id, ok := r.directory.RemoveConnection(addr)
	if !ok {
		logrus.WithFields(logrus.Fields{
			"function": "Receiver.disconnect",
			"addr":     addr.String(),
			"reason":   reason.String(),
		}).Debug("Ignoring disconnect of unknown address")
		return
	}

	if reason == event.ReasonTimedOut {
		r.timedOut.Add(1)
	} else {
		r.disconnected.Add(1)
	}

	logrus.WithFields(logrus.Fields{
		"function":      "Receiver.disconnect",
		"addr":          addr.String(),
		"connection_id": id,
		"reason":        reason.String(),
	}).Debug("Connection removed")

	conn := connection.Connection{ID: id, Addr: addr}

	r.mu.RLock()
	processors := r.onDisconnect
	r.mu.RUnlock()

	for _, fn := range processors {
		fn(conn, reason)
	}
}

// process decodes e and hands it to its kind.
func (r *Receiver) process(e event.Packet) error {
	kindID := e.Payload.KindID

	reg, ok := r.registry.Resolve(kindID)
	if !ok {
		r.unregistered.Add(1)
		logrus.WithFields(logrus.Fields{
			"function": "Receiver.process",
			"kind_id":  kindID,
			"from":     e.Remote.String(),
		}).Warn("Skipping packet of unregistered kind")
		return fmt.Errorf("%w: %q from %s", kind.ErrUnregisteredKind, kindID, e.Remote)
	}

	value, err := reg.Decode(e.Payload.Data)
	if err != nil {
		r.failed.Add(1)
		logrus.WithFields(logrus.Fields{
			"function": "Receiver.process",
			"kind_id":  kindID,
			"from":     e.Remote.String(),
			"error":    err.Error(),
		}).Warn("Failed to decode packet")
		return fmt.Errorf("%w %q from %s: %v", kind.ErrDecode, kindID, e.Remote, err)
	}

	if err := invoke(reg.Process, value, e); err != nil {
		r.failed.Add(1)
		logrus.WithFields(logrus.Fields{
			"function": "Receiver.process",
			"kind_id":  kindID,
			"from":     e.Remote.String(),
			"error":    err.Error(),
		}).Warn("Failed to process packet")
		return err
	}

	r.packets.Add(1)
	return nil
}

// invoke runs process and turns both returned errors and panics into
// ErrProcess.
func invoke(process kind.ProcessFunc, value any, e event.Packet) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: kind %q from %s panicked: %v", ErrProcess, e.Payload.KindID, e.Remote, rec)
		}
	}()

	if perr := process(value, e.Remote, e.Guarantee); perr != nil {
		return fmt.Errorf("%w: kind %q from %s: %w", ErrProcess, e.Payload.KindID, e.Remote, perr)
	}
	return nil
}

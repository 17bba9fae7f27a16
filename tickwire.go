package tickwire

import (
	"io"
	"net"
	"strconv"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/tickwire/connection"
	"github.com/opd-ai/tickwire/event"
	"github.com/opd-ai/tickwire/factory"
	"github.com/opd-ai/tickwire/interfaces"
	"github.com/opd-ai/tickwire/kind"
	"github.com/opd-ai/tickwire/socket"
)

// Options configures a Builder.
type Options struct {
	// Host is the local address the socket binds to.
	Host string

	// Socket holds the worker and transport settings.
	Socket socket.Config

	// DefaultProcessors installs connect and disconnect processors that
	// only log.
	DefaultProcessors bool
}

// NewOptions creates a new Options with default values.
// Transport settings honour the TICKWIRE_* environment overrides.
func NewOptions() *Options {
	config := socket.DefaultConfig()
	config.Transport = factory.LoadConfig()

	return &Options{
		Host:   "127.0.0.1",
		Socket: config,
	}
}

// Builder starts networking sessions for one kind registry. Each Builder
// owns at most one active session; separate Builders may run side by side
// in the same process.
type Builder struct {
	mu       sync.Mutex
	registry *kind.Registry
	options  *Options
	socket   *socket.Socket
}

// NewBuilder creates a Builder. A nil options uses NewOptions.
func NewBuilder(registry *kind.Registry, options *Options) *Builder {
	if options == nil {
		options = NewOptions()
	}
	if registry == nil {
		registry = kind.NewRegistry()
	}

	return &Builder{
		registry: registry,
		options:  options,
	}
}

// WithDefaultProcessors makes sessions started afterwards log connects and
// disconnects.
func (b *Builder) WithDefaultProcessors() *Builder {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.options.DefaultProcessors = true
	return b
}

// Registry returns the registry sessions dispatch packets through.
func (b *Builder) Registry() *kind.Registry {
	return b.registry
}

// Start binds the configured host on port using the environment-selected
// transport and returns the two halves of the session.
func (b *Builder) Start(port uint16) (*Sender, *Receiver, error) {
	return b.StartAs(port, factory.NewTransportFactory())
}

// StartAs is Start with an explicit transport factory.
func (b *Builder) StartAs(port uint16, f interfaces.Factory) (*Sender, *Receiver, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.activeLocked() {
		logrus.WithFields(logrus.Fields{
			"function":   "Builder.StartAs",
			"port":       port,
			"local_addr": b.socket.LocalAddr().String(),
		}).Warn("Refusing to start a second session")
		return nil, nil, ErrNetworkAlreadyActive
	}

	b.registry.Freeze()

	addr := net.JoinHostPort(b.options.Host, strconv.Itoa(int(port)))
	sock, err := socket.Bind(addr, b.options.Socket, f)
	if err != nil {
		return nil, nil, newNetError("bind", addr, err)
	}
	b.socket = sock

	directory := connection.New()
	sender := &Sender{
		outgoing:  sock.Outgoing(),
		directory: directory,
		stop:      sock.Stop,
	}
	receiver := newReceiver(sock.Incoming(), directory, b.registry)

	if b.options.DefaultProcessors {
		receiver.OnConnect(logConnect)
		receiver.OnDisconnect(logDisconnect)
	}

	logrus.WithFields(logrus.Fields{
		"function":   "Builder.StartAs",
		"local_addr": sock.LocalAddr().String(),
		"kinds":      b.registry.Len(),
	}).Info("Session started")

	return sender, receiver, nil
}

// Close stops the active session, if any, and waits for its workers.
func (b *Builder) Close() error {
	b.mu.Lock()
	sock := b.socket
	b.socket = nil
	b.mu.Unlock()

	if sock == nil {
		return nil
	}
	if err := sock.Close(); err != nil {
		return newNetError("close", sock.LocalAddr().String(), err)
	}
	return nil
}

// Active reports whether a started session's workers are still running.
func (b *Builder) Active() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.activeLocked()
}

// LocalAddr returns the bound address of the current session, or nil.
func (b *Builder) LocalAddr() net.Addr {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.socket == nil {
		return nil
	}
	return b.socket.LocalAddr()
}

// WriteMetrics writes the current session's counters in Prometheus text
// format. It writes nothing when no session was started.
func (b *Builder) WriteMetrics(w io.Writer) {
	b.mu.Lock()
	sock := b.socket
	b.mu.Unlock()

	if sock != nil {
		sock.WriteMetrics(w)
	}
}

func (b *Builder) activeLocked() bool {
	if b.socket == nil {
		return false
	}
	select {
	case <-b.socket.Done():
		return false
	default:
		return true
	}
}

func logConnect(conn connection.Connection) {
	logrus.WithFields(logrus.Fields{
		"function":      "logConnect",
		"connection_id": conn.ID,
		"addr":          conn.Addr.String(),
	}).Info("Peer connected")
}

func logDisconnect(conn connection.Connection, reason event.Reason) {
	logrus.WithFields(logrus.Fields{
		"function":      "logDisconnect",
		"connection_id": conn.ID,
		"addr":          conn.Addr.String(),
		"reason":        reason.String(),
	}).Info("Peer disconnected")
}

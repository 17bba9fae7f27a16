package simulation

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/tickwire/interfaces"
	"github.com/opd-ai/tickwire/queue"
)

var (
	// ErrAddressInUse is returned when binding an address another simulated
	// transport holds.
	ErrAddressInUse = errors.New("simulated address already in use")

	// ErrUnreachable is recorded for datagrams sent to an unbound address.
	ErrUnreachable = errors.New("simulated address unreachable")
)

// firstEphemeralPort is the first port handed out for ":0" binds.
const firstEphemeralPort = 40000

// DeliveryRecord describes one data datagram that left a simulated transport.
type DeliveryRecord struct {
	From        string
	To          string
	Size        int
	Reliability interfaces.Reliability
	Stream      uint8
	Timestamp   int64
	Delivered   bool
	Error       error
}

// Stats summarises the delivery log.
type Stats struct {
	Endpoints  int
	Deliveries int
	Delivered  int
	Failed     int
}

// Hub connects simulated transports in one process. Datagrams are never
// lost or reordered; undeliverable ones are recorded as failed.
type Hub struct {
	mu        sync.RWMutex
	endpoints map[string]*Transport
	log       []DeliveryRecord
	nextPort  int
	clock     clock.Clock
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithClock sets the clock used to timestamp delivery records.
func WithClock(c clock.Clock) HubOption {
	return func(h *Hub) {
		h.clock = c
	}
}

// NewHub creates an empty hub.
func NewHub(opts ...HubOption) *Hub {
	logrus.WithFields(logrus.Fields{
		"function": "NewHub",
	}).Debug("Creating simulation hub")

	h := &Hub{
		endpoints: make(map[string]*Transport),
		nextPort:  firstEphemeralPort,
		clock:     clock.New(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Factory returns a factory that binds transports on this hub.
func (h *Hub) Factory() interfaces.Factory {
	return interfaces.FactoryFunc(func(addr string, config interfaces.Config) (interfaces.Transport, error) {
		t, err := h.Bind(addr, config)
		if err != nil {
			return nil, err
		}
		return t, nil
	})
}

// Bind creates a simulated transport on addr. Port 0 picks a free port.
func (h *Hub) Bind(addr string, config interfaces.Config) (*Transport, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("simulated bind %q: %w", addr, err)
	}
	if udpAddr.IP == nil {
		udpAddr.IP = net.IPv4(127, 0, 0, 1)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if udpAddr.Port == 0 {
		for {
			udpAddr.Port = h.nextPort
			h.nextPort++
			if _, taken := h.endpoints[udpAddr.String()]; !taken {
				break
			}
		}
	}

	key := udpAddr.String()
	if _, taken := h.endpoints[key]; taken {
		return nil, fmt.Errorf("%w: %s", ErrAddressInUse, key)
	}

	t := &Transport{
		hub:     h,
		addr:    udpAddr,
		config:  config,
		inbox:   queue.New[message](),
		events:  queue.New[interfaces.TransportEvent](),
		peers:   make(map[string]*peerState),
		pending: make([]interfaces.Datagram, 0, config.SendQueueSize),
	}
	h.endpoints[key] = t

	logrus.WithFields(logrus.Fields{
		"function": "Hub.Bind",
		"addr":     key,
	}).Info("Simulated transport bound")

	return t, nil
}

// deliver hands m to the transport bound at to and records the outcome
// for data datagrams.
func (h *Hub) deliver(to net.Addr, m message) bool {
	key := to.String()

	h.mu.Lock()
	defer h.mu.Unlock()

	target, ok := h.endpoints[key]
	if ok {
		ok = target.inbox.Push(m)
	}

	if m.kind == messageData {
		record := DeliveryRecord{
			From:        m.from.String(),
			To:          key,
			Size:        len(m.datagram.Payload),
			Reliability: m.datagram.Reliability,
			Stream:      m.datagram.Stream,
			Timestamp:   h.clock.Now().UnixNano(),
			Delivered:   ok,
		}
		if !ok {
			record.Error = fmt.Errorf("%w: %s", ErrUnreachable, key)
		}
		h.log = append(h.log, record)
	}

	return ok
}

// unbind removes t from the hub.
func (h *Hub) unbind(t *Transport) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.endpoints[t.addr.String()] == t {
		delete(h.endpoints, t.addr.String())
	}
}

// DeliveryLog returns a copy of every recorded data delivery.
func (h *Hub) DeliveryLog() []DeliveryRecord {
	h.mu.RLock()
	defer h.mu.RUnlock()

	log := make([]DeliveryRecord, len(h.log))
	copy(log, h.log)
	return log
}

// ClearDeliveryLog forgets all recorded deliveries.
func (h *Hub) ClearDeliveryLog() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.log = nil
}

// Stats returns counts over the delivery log.
func (h *Hub) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	stats := Stats{
		Endpoints:  len(h.endpoints),
		Deliveries: len(h.log),
	}
	for _, record := range h.log {
		if record.Delivered {
			stats.Delivered++
		} else {
			stats.Failed++
		}
	}
	return stats
}

// Now returns the hub clock's time, for driving ManualPoll in tests.
func (h *Hub) Now() time.Time {
	return h.clock.Now()
}

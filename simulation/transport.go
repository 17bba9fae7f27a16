package simulation

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/tickwire/interfaces"
	"github.com/opd-ai/tickwire/limits"
	"github.com/opd-ai/tickwire/queue"
)

type messageKind uint8

const (
	messageData messageKind = iota
	messageHeartbeat
	messageDisconnect
)

// message travels between simulated transports.
type message struct {
	kind     messageKind
	from     net.Addr
	datagram interfaces.Datagram
}

type peerState struct {
	addr        net.Addr
	established bool
	lastRecv    time.Time
	lastSend    time.Time
}

// Transport is a simulated interfaces.Transport bound on a Hub.
type Transport struct {
	hub    *Hub
	addr   *net.UDPAddr
	config interfaces.Config

	inbox  *queue.FIFO[message]
	events *queue.FIFO[interfaces.TransportEvent]

	mu        sync.Mutex
	pending   []interfaces.Datagram
	peers     map[string]*peerState
	failSends int

	closed    atomic.Bool
	closeOnce sync.Once
}

var _ interfaces.Transport = (*Transport)(nil)

// InjectQueueFull makes the next n TrySend calls report ErrQueueFull.
func (t *Transport) InjectQueueFull(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.failSends = n
}

// SendHandle returns the handle datagrams are enqueued on.
func (t *Transport) SendHandle() interfaces.SendHandle {
	return sendHandle{t: t}
}

// ReceiveHandle returns the handle events are dequeued from.
func (t *Transport) ReceiveHandle() interfaces.ReceiveHandle {
	return receiveHandle{t: t}
}

// LocalAddr returns the simulated bound address.
func (t *Transport) LocalAddr() net.Addr {
	return t.addr
}

// ManualPoll delivers queued datagrams to their targets, turns received
// messages into events and expires silent peers.
func (t *Transport) ManualPoll(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed.Load() {
		return
	}

	t.inbox.PopAll(func(m message) {
		t.receive(m, now)
	})

	for _, d := range t.pending {
		p := t.peer(d.Addr, now)
		t.hub.deliver(d.Addr, message{kind: messageData, from: t.addr, datagram: d})
		p.lastSend = now
	}
	t.pending = t.pending[:0]

	for key, p := range t.peers {
		if now.Sub(p.lastRecv) >= t.config.IdleTimeout {
			delete(t.peers, key)
			if p.established {
				t.events.Push(interfaces.TransportEvent{Kind: interfaces.EventTimeout, Addr: p.addr})
			}
			continue
		}
		if t.config.HeartbeatInterval > 0 && p.established && now.Sub(p.lastSend) >= t.config.HeartbeatInterval {
			t.hub.deliver(p.addr, message{kind: messageHeartbeat, from: t.addr})
			p.lastSend = now
		}
	}
}

func (t *Transport) receive(m message, now time.Time) {
	key := m.from.String()
	p, known := t.peers[key]

	if m.kind == messageDisconnect {
		if known {
			delete(t.peers, key)
			if p.established {
				t.events.Push(interfaces.TransportEvent{Kind: interfaces.EventDisconnect, Addr: p.addr})
			}
		}
		return
	}

	p = t.peer(m.from, now)
	p.lastRecv = now
	if !p.established {
		p.established = true
		t.events.Push(interfaces.TransportEvent{Kind: interfaces.EventConnect, Addr: p.addr})
	}

	if m.kind == messageData {
		d := m.datagram
		d.Addr = m.from
		t.events.Push(interfaces.TransportEvent{Kind: interfaces.EventPacket, Addr: m.from, Datagram: d})
	}
}

func (t *Transport) peer(addr net.Addr, now time.Time) *peerState {
	key := addr.String()
	p, ok := t.peers[key]
	if !ok {
		p = &peerState{addr: addr, lastRecv: now, lastSend: now}
		t.peers[key] = p
	}
	return p
}

// Close announces the shutdown to established peers and unbinds from the hub.
func (t *Transport) Close() error {
	t.closeOnce.Do(func() {
		t.mu.Lock()
		t.closed.Store(true)
		for _, p := range t.peers {
			if p.established {
				t.hub.deliver(p.addr, message{kind: messageDisconnect, from: t.addr})
			}
		}
		t.peers = make(map[string]*peerState)
		t.pending = nil
		t.mu.Unlock()

		t.hub.unbind(t)

		logrus.WithFields(logrus.Fields{
			"function": "Transport.Close",
			"addr":     t.addr.String(),
		}).Info("Simulated transport closed")
	})
	return nil
}

type sendHandle struct {
	t *Transport
}

// TrySend queues d for the next ManualPoll.
func (h sendHandle) TrySend(d interfaces.Datagram) error {
	if h.t.closed.Load() {
		return interfaces.ErrChannelClosed
	}
	if len(d.Payload) > limits.MaxDatagramPayload {
		return fmt.Errorf("%w: %d bytes exceeds %d", interfaces.ErrPacketTooLarge, len(d.Payload), limits.MaxDatagramPayload)
	}

	h.t.mu.Lock()
	defer h.t.mu.Unlock()

	if h.t.failSends > 0 {
		h.t.failSends--
		return interfaces.ErrQueueFull
	}
	if len(h.t.pending) >= h.t.config.SendQueueSize {
		return interfaces.ErrQueueFull
	}

	h.t.pending = append(h.t.pending, d)
	return nil
}

type receiveHandle struct {
	t *Transport
}

// TryRecv pops the next event.
func (h receiveHandle) TryRecv() (interfaces.TransportEvent, error) {
	closed := h.t.closed.Load()
	if ev, ok := h.t.events.TryPop(); ok {
		return ev, nil
	}
	if closed {
		return interfaces.TransportEvent{}, interfaces.ErrChannelClosed
	}
	return interfaces.TransportEvent{}, interfaces.ErrQueueEmpty
}

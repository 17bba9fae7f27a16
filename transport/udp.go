package transport

import (
	"context"
	"errors"
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

// readTimeout bounds each blocking read so the read loop notices Close.
const readTimeout = 100 * time.Millisecond

// received is a raw datagram handed from the read loop to ManualPoll.
type received struct {
	data []byte
	addr net.Addr
}

// UDPTransport implements interfaces.Transport over a UDP socket.
//
// A background goroutine reads datagrams into an internal queue; all protocol
// work happens inside ManualPoll, on the caller's goroutine.
type UDPTransport struct {
	conn   net.PacketConn
	config interfaces.Config

	outbound chan interfaces.Datagram
	inbound  *queue.FIFO[received]
	events   *queue.FIFO[interfaces.TransportEvent]

	pollMu sync.Mutex
	peers  map[string]*peer
	buffer []byte

	closed     atomic.Bool
	closeOnce  sync.Once
	closeErr   error
	ctx        context.Context
	cancel     context.CancelFunc
	readerDone chan struct{}
}

var _ interfaces.Transport = (*UDPTransport)(nil)

// Bind opens a UDP socket on addr and starts reading from it.
func Bind(addr string, config interfaces.Config) (*UDPTransport, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Bind",
			"addr":     addr,
			"error":    err.Error(),
		}).Error("Failed to bind UDP socket")
		return nil, err
	}

	return newUDPTransport(conn, config), nil
}

// newUDPTransport wraps an already bound connection.
func newUDPTransport(conn net.PacketConn, config interfaces.Config) *UDPTransport {
	ctx, cancel := context.WithCancel(context.Background())

	t := &UDPTransport{
		conn:       conn,
		config:     config,
		outbound:   make(chan interfaces.Datagram, config.SendQueueSize),
		inbound:    queue.New[received](),
		events:     queue.New[interfaces.TransportEvent](),
		peers:      make(map[string]*peer),
		buffer:     make([]byte, limits.MaxDatagramSize),
		ctx:        ctx,
		cancel:     cancel,
		readerDone: make(chan struct{}),
	}
	go t.readLoop()

	logrus.WithFields(logrus.Fields{
		"function":    "Bind",
		"local_addr":  conn.LocalAddr().String(),
		"protocol_id": config.ProtocolID,
	}).Info("UDP transport bound")

	return t
}

// Factory binds UDP transports.
var Factory interfaces.Factory = interfaces.FactoryFunc(func(addr string, config interfaces.Config) (interfaces.Transport, error) {
	t, err := Bind(addr, config)
	if err != nil {
		return nil, err
	}
	return t, nil
})

// SendHandle returns the handle datagrams are enqueued on.
func (t *UDPTransport) SendHandle() interfaces.SendHandle {
	return sendHandle{t: t}
}

// ReceiveHandle returns the handle events are dequeued from.
func (t *UDPTransport) ReceiveHandle() interfaces.ReceiveHandle {
	return receiveHandle{t: t}
}

// LocalAddr returns the local address the transport is listening on.
func (t *UDPTransport) LocalAddr() net.Addr {
	return t.conn.LocalAddr()
}

// PeerCount returns the number of addresses with protocol state.
func (t *UDPTransport) PeerCount() int {
	t.pollMu.Lock()
	defer t.pollMu.Unlock()

	return len(t.peers)
}

// ManualPoll processes received datagrams, writes queued ones and runs the
// per-peer timers against now.
func (t *UDPTransport) ManualPoll(now time.Time) {
	t.pollMu.Lock()
	defer t.pollMu.Unlock()

	if t.closed.Load() {
		return
	}

	t.inbound.PopAll(func(r received) {
		t.handleDatagram(r, now)
	})

	t.flushOutbound(now)

	for key, p := range t.peers {
		if now.Sub(p.lastRecv) >= t.config.IdleTimeout {
			delete(t.peers, key)
			if p.established {
				logrus.WithFields(logrus.Fields{
					"function": "UDPTransport.ManualPoll",
					"peer":     key,
				}).Info("Peer timed out")
				t.events.Push(interfaces.TransportEvent{Kind: interfaces.EventTimeout, Addr: p.addr})
			}
			continue
		}

		for _, pr := range p.expired(now, t.config.ResendTimeout) {
			t.sendReliable(p, pr, now)
		}

		if p.ackPending {
			t.writeControl(p, packetAck, now)
		}

		if t.config.HeartbeatInterval > 0 && p.established && now.Sub(p.lastSend) >= t.config.HeartbeatInterval {
			t.writeControl(p, packetHeartbeat, now)
		}
	}
}

// Close sends a disconnect to every established peer and closes the socket.
// Events produced before Close stay receivable.
func (t *UDPTransport) Close() error {
	t.closeOnce.Do(func() {
		t.pollMu.Lock()
		t.closed.Store(true)
		now := time.Now()
		for _, p := range t.peers {
			if p.established {
				t.writeControl(p, packetDisconnect, now)
			}
		}
		t.peers = make(map[string]*peer)
		t.pollMu.Unlock()

		t.cancel()
		t.closeErr = t.conn.Close()
		<-t.readerDone

		logrus.WithFields(logrus.Fields{
			"function":   "UDPTransport.Close",
			"local_addr": t.conn.LocalAddr().String(),
		}).Info("UDP transport closed")
	})

	return t.closeErr
}

// readLoop moves datagrams from the socket to the inbound queue.
func (t *UDPTransport) readLoop() {
	defer close(t.readerDone)

	buffer := make([]byte, limits.MaxReadBuffer)
	for {
		select {
		case <-t.ctx.Done():
			return
		default:
		}

		_ = t.conn.SetReadDeadline(time.Now().Add(readTimeout))
		n, addr, err := t.conn.ReadFrom(buffer)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			logrus.WithFields(logrus.Fields{
				"function": "UDPTransport.readLoop",
				"error":    err.Error(),
			}).Debug("Read failed")
			continue
		}

		if err := limits.ValidateDatagram(buffer[:n]); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "UDPTransport.readLoop",
				"from":     addr.String(),
				"error":    err.Error(),
			}).Debug("Dropping datagram")
			continue
		}

		data := make([]byte, n)
		copy(data, buffer[:n])
		t.inbound.Push(received{data: data, addr: addr})
	}
}

// handleDatagram applies one received datagram to its peer.
func (t *UDPTransport) handleDatagram(r received, now time.Time) {
	h, err := parseHeader(r.data)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "UDPTransport.handleDatagram",
			"from":     r.addr.String(),
			"error":    err.Error(),
		}).Debug("Dropping malformed datagram")
		return
	}
	if h.protocolID != t.config.ProtocolID {
		logrus.WithFields(logrus.Fields{
			"function":    "UDPTransport.handleDatagram",
			"from":        r.addr.String(),
			"protocol_id": h.protocolID,
		}).Debug("Dropping datagram with foreign protocol id")
		return
	}

	key := r.addr.String()
	p, known := t.peers[key]

	if h.kind == packetDisconnect {
		if known {
			delete(t.peers, key)
			if p.established {
				t.events.Push(interfaces.TransportEvent{Kind: interfaces.EventDisconnect, Addr: p.addr})
			}
		}
		return
	}

	if !known {
		p = newPeer(r.addr, now, t.config.DuplicateWindow)
		t.peers[key] = p
	}
	p.lastRecv = now
	if !p.established {
		p.established = true
		t.events.Push(interfaces.TransportEvent{Kind: interfaces.EventConnect, Addr: p.addr})
	}

	if h.hasAcks() {
		p.acknowledge(h.ackSequence, h.ackBits)
	}

	if h.kind == packetData {
		t.handleData(p, h, r.data[limits.HeaderSize:])
	}
}

// handleData delivers the payload of a data datagram according to its
// reliability.
func (t *UDPTransport) handleData(p *peer, h header, payload []byte) {
	deliver := func(b []byte) {
		t.events.Push(interfaces.TransportEvent{
			Kind: interfaces.EventPacket,
			Addr: p.addr,
			Datagram: interfaces.Datagram{
				Addr:        p.addr,
				Payload:     b,
				Reliability: h.reliability,
				Stream:      h.stream,
			},
		})
	}
	key := streamKey{reliability: h.reliability, stream: h.stream}

	switch h.reliability {
	case interfaces.Unreliable:
		deliver(payload)

	case interfaces.UnreliableSequenced:
		if p.sequencedStream(key).accept(h.orderIndex) {
			deliver(payload)
		}

	case interfaces.ReliableUnordered:
		p.recordReceived(h.sequence)
		if p.markSeen(h.orderIndex) {
			deliver(payload)
		}

	case interfaces.ReliableSequenced:
		p.recordReceived(h.sequence)
		if p.sequencedStream(key).accept(h.orderIndex) {
			deliver(payload)
		}

	case interfaces.ReliableOrdered:
		s := p.orderedStream(h.stream)
		if !s.admits(h.orderIndex, t.config.MaxOrderedBuffer) {
			// left unacked so the sender retries once the buffer drains
			logrus.WithFields(logrus.Fields{
				"function": "UDPTransport.handleData",
				"peer":     p.addr.String(),
				"stream":   h.stream,
			}).Debug("Ordered buffer full, dropping datagram")
			return
		}
		p.recordReceived(h.sequence)
		for _, b := range s.accept(h.orderIndex, payload) {
			deliver(b)
		}
	}
}

// flushOutbound writes every datagram waiting in the send queue.
func (t *UDPTransport) flushOutbound(now time.Time) {
	for {
		select {
		case d := <-t.outbound:
			t.sendData(d, now)
		default:
			return
		}
	}
}

// sendData writes a freshly enqueued datagram.
func (t *UDPTransport) sendData(d interfaces.Datagram, now time.Time) {
	key := d.Addr.String()
	p, ok := t.peers[key]
	if !ok {
		p = newPeer(d.Addr, now, t.config.DuplicateWindow)
		t.peers[key] = p
	}

	index := p.nextOrderIndex(streamKey{reliability: d.Reliability, stream: d.Stream})

	if d.Reliability.IsReliable() {
		t.sendReliable(p, &pending{
			reliability: d.Reliability,
			stream:      d.Stream,
			orderIndex:  index,
			payload:     d.Payload,
		}, now)
		return
	}

	t.write(p, header{
		kind:        packetData,
		reliability: d.Reliability,
		stream:      d.Stream,
		orderIndex:  index,
	}, d.Payload, now)
}

// sendReliable writes pr under a new sequence and tracks it until acked.
func (t *UDPTransport) sendReliable(p *peer, pr *pending, now time.Time) {
	seq := p.nextSequence()
	pr.sentAt = now
	p.track(seq, pr)

	t.write(p, header{
		kind:        packetData,
		reliability: pr.reliability,
		stream:      pr.stream,
		sequence:    seq,
		orderIndex:  pr.orderIndex,
	}, pr.payload, now)
}

// writeControl writes a payload-less datagram of the given type.
func (t *UDPTransport) writeControl(p *peer, kind packetType, now time.Time) {
	t.write(p, header{kind: kind}, nil, now)
}

// write stamps protocol id and acks on h and sends it with payload.
func (t *UDPTransport) write(p *peer, h header, payload []byte, now time.Time) {
	h.protocolID = t.config.ProtocolID
	if p.hasRemote {
		h.flags |= flagAckValid
		h.ackSequence = p.remoteSequence
		h.ackBits = p.ackBits
		p.ackPending = false
	}

	n := limits.HeaderSize + len(payload)
	h.marshalTo(t.buffer)
	copy(t.buffer[limits.HeaderSize:], payload)

	if _, err := t.conn.WriteTo(t.buffer[:n], p.addr); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "UDPTransport.write",
			"peer":     p.addr.String(),
			"type":     h.kind.String(),
			"error":    err.Error(),
		}).Debug("Write failed")
		return
	}
	p.lastSend = now
}

// sendHandle is the SendHandle of a UDPTransport.
type sendHandle struct {
	t *UDPTransport
}

// TrySend enqueues d for the next ManualPoll.
func (h sendHandle) TrySend(d interfaces.Datagram) error {
	if h.t.closed.Load() {
		return interfaces.ErrChannelClosed
	}
	if len(d.Payload) > limits.MaxDatagramPayload {
		return fmt.Errorf("%w: %d bytes exceeds %d", interfaces.ErrPacketTooLarge, len(d.Payload), limits.MaxDatagramPayload)
	}
	if !d.Reliability.Valid() {
		return fmt.Errorf("%w: %d", errUnknownReliability, d.Reliability)
	}
	if d.Addr == nil {
		return errMissingAddress
	}

	select {
	case h.t.outbound <- d:
		return nil
	default:
		return interfaces.ErrQueueFull
	}
}

// receiveHandle is the ReceiveHandle of a UDPTransport.
type receiveHandle struct {
	t *UDPTransport
}

// TryRecv pops the next event.
func (h receiveHandle) TryRecv() (interfaces.TransportEvent, error) {
	// events are only pushed under the poll lock, which Close takes before
	// marking the transport closed
	closed := h.t.closed.Load()
	if ev, ok := h.t.events.TryPop(); ok {
		return ev, nil
	}
	if closed {
		return interfaces.TransportEvent{}, interfaces.ErrChannelClosed
	}
	return interfaces.TransportEvent{}, interfaces.ErrQueueEmpty
}

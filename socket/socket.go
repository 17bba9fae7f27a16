// Package socket bridges a datagram transport and the application's queues.
//
// A Socket binds one transport and runs exactly two workers. The outgoing
// worker pops packets from the outgoing queue, encodes them and hands them
// to the transport. The incoming worker drives the transport with
// ManualPoll and pushes the resulting events onto the incoming queue. Both
// queues are lock-free, so the application never blocks on the network.
//
// Stopping is cooperative: Stop closes the outgoing queue, the outgoing
// worker flushes whatever was already accepted, then the incoming worker
// closes the transport and pushes a final event.Stop. No other event is
// queued after Stop returns.
package socket

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/opd-ai/tickwire/event"
	"github.com/opd-ai/tickwire/interfaces"
	"github.com/opd-ai/tickwire/limits"
	"github.com/opd-ai/tickwire/packet"
	"github.com/opd-ai/tickwire/queue"
)

// Socket owns a bound transport and the two workers serving it.
type Socket struct {
	transport interfaces.Transport
	config    Config

	outgoing *queue.FIFO[packet.Packet]
	incoming *queue.FIFO[event.Event]
	metrics  *socketMetrics

	stopOnce     sync.Once
	pushMu       sync.Mutex
	stopping     chan struct{}
	outgoingDone chan struct{}
	done         chan struct{}
	group        *errgroup.Group
	err          error
}

// Bind binds a transport on addr through f and starts the workers.
func Bind(addr string, config Config, f interfaces.Factory) (*Socket, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("socket config: %w", err)
	}

	tr, err := f.Bind(addr, config.Transport)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "socket.Bind",
			"addr":     addr,
			"error":    err.Error(),
		}).Error("Failed to bind transport")
		return nil, err
	}

	s := &Socket{
		transport:    tr,
		config:       config,
		outgoing:     queue.New[packet.Packet](),
		incoming:     queue.New[event.Event](),
		stopping:     make(chan struct{}),
		outgoingDone: make(chan struct{}),
		done:         make(chan struct{}),
		group:        &errgroup.Group{},
	}
	s.metrics = newSocketMetrics(s)

	s.group.Go(s.runOutgoing)
	s.group.Go(s.runIncoming)

	go func() {
		s.err = s.group.Wait()
		close(s.done)
	}()

	logrus.WithFields(logrus.Fields{
		"function":   "socket.Bind",
		"local_addr": tr.LocalAddr().String(),
	}).Info("Socket bound, workers started")

	return s, nil
}

// Outgoing returns the queue packets are sent from.
func (s *Socket) Outgoing() *queue.FIFO[packet.Packet] {
	return s.outgoing
}

// Incoming returns the queue received events are delivered to.
func (s *Socket) Incoming() *queue.FIFO[event.Event] {
	return s.incoming
}

// LocalAddr returns the address the transport is bound to.
func (s *Socket) LocalAddr() net.Addr {
	return s.transport.LocalAddr()
}

// Stop asks both workers to finish. It does not block and may be called
// any number of times. Packets enqueued before Stop are still sent.
func (s *Socket) Stop() {
	s.stopOnce.Do(func() {
		s.outgoing.Close()

		s.pushMu.Lock()
		close(s.stopping)
		s.pushMu.Unlock()

		logrus.WithFields(logrus.Fields{
			"function":   "Socket.Stop",
			"local_addr": s.transport.LocalAddr().String(),
		}).Info("Socket stopping")
	})
}

// Done is closed once both workers have exited.
func (s *Socket) Done() <-chan struct{} {
	return s.done
}

// Close stops the socket and waits for both workers. It returns the first
// worker error, which includes a failure to close the transport.
func (s *Socket) Close() error {
	s.Stop()
	<-s.done

	return s.err
}

// runOutgoing moves packets from the outgoing queue to the transport.
func (s *Socket) runOutgoing() error {
	defer close(s.outgoingDone)

	sender := s.transport.SendHandle()
	ticker := s.config.Clock.Ticker(s.config.IdleInterval)
	defer ticker.Stop()

	var pending *interfaces.Datagram
	for {
		if pending == nil {
			settled := s.outgoing.Settled()
			p, ok := s.outgoing.TryPop()
			if !ok {
				if settled {
					return nil
				}
				select {
				case <-ticker.C:
				case <-s.stopping:
				}
				continue
			}

			d, err := toDatagram(p)
			if err != nil {
				s.metrics.dropped.Inc()
				logrus.WithFields(logrus.Fields{
					"function": "Socket.runOutgoing",
					"packet":   p.String(),
					"error":    err.Error(),
				}).Warn("Dropping packet that cannot be encoded")
				continue
			}
			pending = &d
		}

		err := sender.TrySend(*pending)
		switch {
		case err == nil:
			s.metrics.sent.Inc()
			pending = nil
		case errors.Is(err, interfaces.ErrQueueFull):
			s.metrics.retries.Inc()
			<-ticker.C
		case errors.Is(err, interfaces.ErrChannelClosed):
			logrus.WithFields(logrus.Fields{
				"function": "Socket.runOutgoing",
			}).Info("Transport closed, outgoing worker exiting")
			return nil
		default:
			s.metrics.dropped.Inc()
			logrus.WithFields(logrus.Fields{
				"function": "Socket.runOutgoing",
				"to":       pending.Addr.String(),
				"error":    err.Error(),
			}).Warn("Transport rejected datagram, dropping")
			pending = nil
		}
	}
}

// runIncoming polls the transport and moves its events to the incoming queue.
func (s *Socket) runIncoming() error {
	receiver := s.transport.ReceiveHandle()
	ticker := s.config.Clock.Ticker(s.config.IdleInterval)
	defer ticker.Stop()

	for {
		s.transport.ManualPoll(s.config.Clock.Now())
		n, closed := s.drainEvents(receiver)
		if closed {
			logrus.WithFields(logrus.Fields{
				"function": "Socket.runIncoming",
			}).Info("Transport closed, incoming worker exiting")
			s.Stop()
			s.finish()
			return nil
		}

		select {
		case <-s.stopping:
			return s.shutdown(receiver, ticker.C)
		default:
		}

		if n == 0 {
			select {
			case <-ticker.C:
			case <-s.stopping:
			}
		}
	}
}

// shutdown keeps the transport polled until the outgoing worker flushed,
// then closes the transport. Events raised meanwhile are discarded; the
// only event after Stop is event.Stop.
func (s *Socket) shutdown(receiver interfaces.ReceiveHandle, tick <-chan time.Time) error {
	flushed := false
	for !flushed {
		select {
		case <-s.outgoingDone:
			flushed = true
		case <-tick:
		}
		s.transport.ManualPoll(s.config.Clock.Now())
		s.drainEvents(receiver)
	}

	err := s.transport.Close()
	s.drainEvents(receiver)
	s.finish()

	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Socket.shutdown",
			"error":    err.Error(),
		}).Error("Failed to close transport")
		return fmt.Errorf("close transport: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"function": "Socket.shutdown",
		"stats":    fmt.Sprintf("%+v", s.metrics.stats()),
	}).Info("Socket stopped")

	return nil
}

// finish pushes the final Stop event and closes the incoming queue.
func (s *Socket) finish() {
	s.incoming.Push(event.Stop{})
	s.incoming.Close()
}

// drainEvents moves every ready transport event to the incoming queue, or
// discards it once the socket is stopping. It reports how many events it
// took and whether the transport is closed.
func (s *Socket) drainEvents(receiver interfaces.ReceiveHandle) (int, bool) {
	n := 0
	for {
		ev, err := receiver.TryRecv()
		switch {
		case err == nil:
		case errors.Is(err, interfaces.ErrChannelClosed):
			return n, true
		default:
			return n, false
		}

		n++
		s.metrics.received.Inc()

		translated, err := fromTransportEvent(ev)
		if err != nil {
			s.metrics.decodeErrors.Inc()
			logrus.WithFields(logrus.Fields{
				"function": "Socket.drainEvents",
				"from":     ev.Addr.String(),
				"error":    err.Error(),
			}).Warn("Dropping undecodable datagram")
			continue
		}
		s.push(translated)
	}
}

// push appends ev to the incoming queue unless Stop was called.
func (s *Socket) push(ev event.Event) {
	s.pushMu.Lock()
	defer s.pushMu.Unlock()

	select {
	case <-s.stopping:
		s.metrics.discarded.Inc()
		logrus.WithFields(logrus.Fields{
			"function": "Socket.push",
			"event":    ev.String(),
		}).Debug("Discarding event raised after stop")
	default:
		s.incoming.Push(ev)
	}
}

// toDatagram encodes p for the transport.
func toDatagram(p packet.Packet) (interfaces.Datagram, error) {
	envelope, err := p.Payload().MarshalBinary()
	if err != nil {
		return interfaces.Datagram{}, err
	}
	if err := limits.ValidateEnvelope(envelope); err != nil {
		return interfaces.Datagram{}, err
	}

	reliability, stream := ToReliability(p.Guarantee())
	return interfaces.Datagram{
		Addr:        p.Addr(),
		Payload:     envelope,
		Reliability: reliability,
		Stream:      stream,
	}, nil
}

// fromTransportEvent translates a transport event into an application event.
func fromTransportEvent(ev interfaces.TransportEvent) (event.Event, error) {
	switch ev.Kind {
	case interfaces.EventConnect:
		return event.Connected{Remote: ev.Addr}, nil
	case interfaces.EventTimeout:
		return event.TimedOut{Remote: ev.Addr}, nil
	case interfaces.EventDisconnect:
		return event.Disconnected{Remote: ev.Addr}, nil
	case interfaces.EventPacket:
		payload, err := packet.UnmarshalPayload(ev.Datagram.Payload)
		if err != nil {
			return nil, err
		}
		return event.Packet{
			Remote:    ev.Addr,
			Guarantee: FromReliability(ev.Datagram.Reliability, ev.Datagram.Stream),
			Payload:   payload,
		}, nil
	default:
		return nil, fmt.Errorf("unknown transport event %s", ev.Kind)
	}
}

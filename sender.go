package tickwire

import (
	"fmt"
	"net"

	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"github.com/opd-ai/tickwire/connection"
	"github.com/opd-ai/tickwire/limits"
	"github.com/opd-ai/tickwire/packet"
	"github.com/opd-ai/tickwire/queue"
)

// Sender is the outward half of a session. It enqueues packets on the
// socket's outgoing queue and never blocks on the network.
//
// A Sender is safe for concurrent use.
type Sender struct {
	outgoing  *queue.FIFO[packet.Packet]
	directory *connection.Directory
	stop      func()
}

// Send enqueues p. It returns ErrNetworkStopped after Stop and a limits
// error when the encoded payload cannot fit in one datagram.
func (s *Sender) Send(p packet.Packet) error {
	if s.outgoing.IsClosed() {
		return ErrNetworkStopped
	}

	envelope, err := p.Payload().MarshalBinary()
	if err != nil {
		return fmt.Errorf("encode %s: %w", p, err)
	}
	if err := limits.ValidateEnvelope(envelope); err != nil {
		return fmt.Errorf("send %s: %w", p, err)
	}

	if !s.outgoing.Push(p) {
		return ErrNetworkStopped
	}

	logrus.WithFields(logrus.Fields{
		"function": "Sender.Send",
		"packet":   p.String(),
	}).Debug("Packet enqueued")

	return nil
}

// SendTo builds b for addr and enqueues it.
func (s *Sender) SendTo(addr net.Addr, b packet.Builder) error {
	p, err := b.WithAddr(addr).Build()
	if err != nil {
		return err
	}
	return s.Send(p)
}

// SendToServer sends b to connection 0, which on a client is the server.
func (s *Sender) SendToServer(b packet.Builder) error {
	server, ok := s.directory.Get(connection.ServerID)
	if !ok {
		return ErrNoServerConnection
	}
	return s.SendTo(server.Addr, b)
}

// Broadcast enqueues one packet built from b for every connection known at
// call time. It returns how many packets were enqueued; failures for single
// connections are combined in the error.
func (s *Sender) Broadcast(b packet.Builder) (int, error) {
	var (
		sent int
		errs error
	)
	for _, conn := range s.directory.Connections() {
		if err := s.SendTo(conn.Addr, b); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("broadcast to %s: %w", conn, err))
			continue
		}
		sent++
	}

	logrus.WithFields(logrus.Fields{
		"function": "Sender.Broadcast",
		"kind_id":  b.Payload().KindID,
		"sent":     sent,
	}).Debug("Broadcast enqueued")

	return sent, errs
}

// Stop asks the session to shut down. It does not block; packets enqueued
// before Stop are still sent.
func (s *Sender) Stop() {
	s.stop()
}

// Connections returns a snapshot of the live connections.
func (s *Sender) Connections() []connection.Connection {
	return s.directory.Connections()
}

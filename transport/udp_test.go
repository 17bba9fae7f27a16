package transport

import (
	"net"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/tickwire/interfaces"
	"github.com/opd-ai/tickwire/limits"
)

func bindLoopback(t *testing.T, config interfaces.Config) *UDPTransport {
	t.Helper()

	tr, err := Bind("127.0.0.1:0", config)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tr.Close() })

	return tr
}

// collect polls tr at now until want events arrived or the deadline passes.
func collect(t *testing.T, tr *UDPTransport, now time.Time, want int) []interfaces.TransportEvent {
	t.Helper()

	var events []interfaces.TransportEvent
	require.Eventually(t, func() bool {
		tr.ManualPoll(now)
		for {
			ev, err := tr.ReceiveHandle().TryRecv()
			if err != nil {
				break
			}
			events = append(events, ev)
		}
		return len(events) >= want
	}, 2*time.Second, 5*time.Millisecond)

	return events
}

func TestBindRejectsInvalidConfig(t *testing.T) {
	config := interfaces.DefaultConfig()
	config.IdleTimeout = 0

	_, err := Bind("127.0.0.1:0", config)
	assert.ErrorIs(t, err, interfaces.ErrInvalidConfig)
}

func TestBindAddressInUse(t *testing.T) {
	first := bindLoopback(t, interfaces.DefaultConfig())

	_, err := Bind(first.LocalAddr().String(), interfaces.DefaultConfig())
	assert.Error(t, err)
}

func TestReliableOrderedLoopback(t *testing.T) {
	mock := clock.NewMock()
	a := bindLoopback(t, interfaces.DefaultConfig())
	b := bindLoopback(t, interfaces.DefaultConfig())

	for i := 0; i < 10; i++ {
		require.NoError(t, a.SendHandle().TrySend(interfaces.Datagram{
			Addr:        b.LocalAddr(),
			Payload:     []byte{byte(i)},
			Reliability: interfaces.ReliableOrdered,
			Stream:      3,
		}))
	}
	a.ManualPoll(mock.Now())

	events := collect(t, b, mock.Now(), 11)
	require.Len(t, events, 11)

	assert.Equal(t, interfaces.EventConnect, events[0].Kind)
	assert.Equal(t, a.LocalAddr().String(), events[0].Addr.String())
	for i, ev := range events[1:] {
		require.Equal(t, interfaces.EventPacket, ev.Kind)
		assert.Equal(t, []byte{byte(i)}, ev.Datagram.Payload)
		assert.Equal(t, interfaces.ReliableOrdered, ev.Datagram.Reliability)
		assert.Equal(t, uint8(3), ev.Datagram.Stream)
	}

	// b acknowledges in its next poll; a forgets the datagrams
	b.ManualPoll(mock.Now())
	require.Eventually(t, func() bool {
		a.ManualPoll(mock.Now())
		a.pollMu.Lock()
		defer a.pollMu.Unlock()
		p := a.peers[b.LocalAddr().String()]
		return p != nil && len(p.unacked) == 0
	}, 2*time.Second, 5*time.Millisecond)
}

func TestReliableResendUntilAcked(t *testing.T) {
	mock := clock.NewMock()
	config := interfaces.DefaultConfig()
	a := bindLoopback(t, config)

	raw, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer raw.Close()

	require.NoError(t, a.SendHandle().TrySend(interfaces.Datagram{
		Addr:        raw.LocalAddr(),
		Payload:     []byte("hello"),
		Reliability: interfaces.ReliableUnordered,
	}))
	a.ManualPoll(mock.Now())

	readHeader := func() (header, []byte) {
		buf := make([]byte, limits.MaxDatagramSize)
		require.NoError(t, raw.SetReadDeadline(time.Now().Add(2*time.Second)))
		n, _, err := raw.ReadFrom(buf)
		require.NoError(t, err)
		h, err := parseHeader(buf[:n])
		require.NoError(t, err)
		return h, buf[limits.HeaderSize:n]
	}

	first, payload := readHeader()
	assert.Equal(t, packetData, first.kind)
	assert.Equal(t, []byte("hello"), payload)

	// no ack within the resend timeout: the datagram goes out again under a
	// new sequence with the same message id
	mock.Add(config.ResendTimeout)
	a.ManualPoll(mock.Now())

	second, payload := readHeader()
	assert.Equal(t, []byte("hello"), payload)
	assert.NotEqual(t, first.sequence, second.sequence)
	assert.Equal(t, first.orderIndex, second.orderIndex)

	ack := make([]byte, limits.HeaderSize)
	header{
		protocolID:  config.ProtocolID,
		kind:        packetAck,
		flags:       flagAckValid,
		ackSequence: second.sequence,
	}.marshalTo(ack)
	_, err = raw.WriteTo(ack, a.LocalAddr())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		a.ManualPoll(mock.Now())
		a.pollMu.Lock()
		defer a.pollMu.Unlock()
		p := a.peers[raw.LocalAddr().String()]
		return p != nil && p.established && len(p.unacked) == 0
	}, 2*time.Second, 5*time.Millisecond)
}

func TestIdleTimeoutWithMockClock(t *testing.T) {
	mock := clock.NewMock()
	config := interfaces.DefaultConfig()
	config.HeartbeatInterval = 0
	a := bindLoopback(t, config)
	b := bindLoopback(t, config)

	require.NoError(t, a.SendHandle().TrySend(interfaces.Datagram{
		Addr:        b.LocalAddr(),
		Payload:     []byte{1},
		Reliability: interfaces.Unreliable,
	}))
	a.ManualPoll(mock.Now())

	events := collect(t, b, mock.Now(), 2)
	assert.Equal(t, interfaces.EventConnect, events[0].Kind)
	assert.Equal(t, interfaces.EventPacket, events[1].Kind)

	mock.Add(config.IdleTimeout - time.Millisecond)
	b.ManualPoll(mock.Now())
	_, err := b.ReceiveHandle().TryRecv()
	assert.ErrorIs(t, err, interfaces.ErrQueueEmpty)

	mock.Add(time.Millisecond)
	b.ManualPoll(mock.Now())
	ev, err := b.ReceiveHandle().TryRecv()
	require.NoError(t, err)
	assert.Equal(t, interfaces.EventTimeout, ev.Kind)
	assert.Equal(t, a.LocalAddr().String(), ev.Addr.String())
	assert.Equal(t, 0, b.PeerCount())

	// a never heard from b, so its peer entry expires without an event
	a.ManualPoll(mock.Now())
	_, err = a.ReceiveHandle().TryRecv()
	assert.ErrorIs(t, err, interfaces.ErrQueueEmpty)
	assert.Equal(t, 0, a.PeerCount())
}

func TestHeartbeatSentToQuietPeer(t *testing.T) {
	mock := clock.NewMock()
	config := interfaces.DefaultConfig()
	a := bindLoopback(t, config)
	b := bindLoopback(t, config)

	require.NoError(t, a.SendHandle().TrySend(interfaces.Datagram{
		Addr:        b.LocalAddr(),
		Reliability: interfaces.Unreliable,
	}))
	a.ManualPoll(mock.Now())
	collect(t, b, mock.Now(), 2)

	// b is established towards a, so it heartbeats and a connects
	mock.Add(config.HeartbeatInterval)
	b.ManualPoll(mock.Now())

	events := collect(t, a, mock.Now(), 1)
	assert.Equal(t, interfaces.EventConnect, events[0].Kind)
}

func TestCloseSendsDisconnect(t *testing.T) {
	mock := clock.NewMock()
	a := bindLoopback(t, interfaces.DefaultConfig())
	b := bindLoopback(t, interfaces.DefaultConfig())

	require.NoError(t, a.SendHandle().TrySend(interfaces.Datagram{
		Addr:        b.LocalAddr(),
		Reliability: interfaces.Unreliable,
	}))
	a.ManualPoll(mock.Now())
	collect(t, b, mock.Now(), 2)

	require.NoError(t, b.SendHandle().TrySend(interfaces.Datagram{
		Addr:        a.LocalAddr(),
		Reliability: interfaces.Unreliable,
	}))
	b.ManualPoll(mock.Now())
	events := collect(t, a, mock.Now(), 2)
	assert.Equal(t, interfaces.EventConnect, events[0].Kind)

	require.NoError(t, b.Close())
	require.NoError(t, b.Close(), "close is idempotent")

	events = collect(t, a, mock.Now(), 1)
	assert.Equal(t, interfaces.EventDisconnect, events[0].Kind)
	assert.Equal(t, 0, a.PeerCount())

	_, err := b.ReceiveHandle().TryRecv()
	assert.ErrorIs(t, err, interfaces.ErrChannelClosed)
	assert.ErrorIs(t, b.SendHandle().TrySend(interfaces.Datagram{Addr: a.LocalAddr()}), interfaces.ErrChannelClosed)
}

func TestForeignProtocolDropped(t *testing.T) {
	mock := clock.NewMock()
	b := bindLoopback(t, interfaces.DefaultConfig())

	foreign := interfaces.DefaultConfig()
	foreign.ProtocolID = 0x0101
	a := bindLoopback(t, foreign)

	require.NoError(t, a.SendHandle().TrySend(interfaces.Datagram{
		Addr:        b.LocalAddr(),
		Reliability: interfaces.Unreliable,
	}))
	a.ManualPoll(mock.Now())

	require.Eventually(t, func() bool {
		return b.inbound.Len() > 0
	}, 2*time.Second, 5*time.Millisecond)
	b.ManualPoll(mock.Now())

	_, err := b.ReceiveHandle().TryRecv()
	assert.ErrorIs(t, err, interfaces.ErrQueueEmpty)
	assert.Equal(t, 0, b.PeerCount())
}

func TestTrySendErrors(t *testing.T) {
	config := interfaces.DefaultConfig()
	config.SendQueueSize = 1
	a := bindLoopback(t, config)
	to := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 9}

	err := a.SendHandle().TrySend(interfaces.Datagram{Addr: to, Payload: make([]byte, limits.MaxDatagramPayload+1)})
	assert.ErrorIs(t, err, interfaces.ErrPacketTooLarge)

	err = a.SendHandle().TrySend(interfaces.Datagram{Addr: to, Reliability: interfaces.Reliability(42)})
	assert.ErrorIs(t, err, errUnknownReliability)

	err = a.SendHandle().TrySend(interfaces.Datagram{})
	assert.ErrorIs(t, err, errMissingAddress)

	require.NoError(t, a.SendHandle().TrySend(interfaces.Datagram{Addr: to}))
	assert.ErrorIs(t, a.SendHandle().TrySend(interfaces.Datagram{Addr: to}), interfaces.ErrQueueFull)

	// polling empties the queue
	a.ManualPoll(time.Now())
	assert.NoError(t, a.SendHandle().TrySend(interfaces.Datagram{Addr: to}))
}

func TestFactoryBindsUDP(t *testing.T) {
	tr, err := Factory.Bind("127.0.0.1:0", interfaces.DefaultConfig())
	require.NoError(t, err)
	defer tr.Close()

	assert.IsType(t, &UDPTransport{}, tr)

	_, err = Factory.Bind("not-an-address", interfaces.DefaultConfig())
	assert.Error(t, err)
}

package simulation

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/tickwire/interfaces"
)

func recvAll(tr *Transport) []interfaces.TransportEvent {
	var events []interfaces.TransportEvent
	for {
		ev, err := tr.ReceiveHandle().TryRecv()
		if err != nil {
			return events
		}
		events = append(events, ev)
	}
}

func newPair(t *testing.T, hub *Hub, config interfaces.Config) (*Transport, *Transport) {
	t.Helper()

	server, err := hub.Bind("127.0.0.1:9001", config)
	require.NoError(t, err)
	client, err := hub.Bind("127.0.0.1:9002", config)
	require.NoError(t, err)

	return server, client
}

func TestDeliveryRaisesConnectThenPackets(t *testing.T) {
	hub := NewHub()
	server, client := newPair(t, hub, interfaces.DefaultConfig())

	for i := 0; i < 3; i++ {
		require.NoError(t, client.SendHandle().TrySend(interfaces.Datagram{
			Addr:        server.LocalAddr(),
			Payload:     []byte{byte(i)},
			Reliability: interfaces.ReliableOrdered,
		}))
	}

	// nothing moves before the sender polls
	server.ManualPoll(hub.Now())
	assert.Empty(t, recvAll(server))

	client.ManualPoll(hub.Now())
	server.ManualPoll(hub.Now())

	events := recvAll(server)
	require.Len(t, events, 4)
	assert.Equal(t, interfaces.EventConnect, events[0].Kind)
	assert.Equal(t, "127.0.0.1:9002", events[0].Addr.String())
	for i, ev := range events[1:] {
		assert.Equal(t, interfaces.EventPacket, ev.Kind)
		assert.Equal(t, []byte{byte(i)}, ev.Datagram.Payload)
		assert.Equal(t, "127.0.0.1:9002", ev.Datagram.Addr.String())
	}

	stats := hub.Stats()
	assert.Equal(t, Stats{Endpoints: 2, Deliveries: 3, Delivered: 3}, stats)
}

func TestUnreachableIsRecorded(t *testing.T) {
	hub := NewHub()
	client, err := hub.Bind("127.0.0.1:0", interfaces.DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:40000", client.LocalAddr().String())

	gone, err := hub.Bind("127.0.0.1:9005", interfaces.DefaultConfig())
	require.NoError(t, err)
	addr := gone.LocalAddr()
	require.NoError(t, gone.Close())

	require.NoError(t, client.SendHandle().TrySend(interfaces.Datagram{Addr: addr, Payload: []byte{1}}))
	client.ManualPoll(hub.Now())

	log := hub.DeliveryLog()
	require.Len(t, log, 1)
	assert.False(t, log[0].Delivered)
	assert.ErrorIs(t, log[0].Error, ErrUnreachable)

	hub.ClearDeliveryLog()
	assert.Empty(t, hub.DeliveryLog())
}

func TestBindAddressInUse(t *testing.T) {
	hub := NewHub()
	_, err := hub.Bind("127.0.0.1:9001", interfaces.DefaultConfig())
	require.NoError(t, err)

	_, err = hub.Bind("127.0.0.1:9001", interfaces.DefaultConfig())
	assert.ErrorIs(t, err, ErrAddressInUse)

	_, err = hub.Factory().Bind("127.0.0.1:9001", interfaces.DefaultConfig())
	assert.ErrorIs(t, err, ErrAddressInUse)
}

func TestInjectQueueFull(t *testing.T) {
	hub := NewHub()
	config := interfaces.DefaultConfig()
	config.SendQueueSize = 2
	server, client := newPair(t, hub, config)

	d := interfaces.Datagram{Addr: server.LocalAddr()}

	client.InjectQueueFull(1)
	assert.ErrorIs(t, client.SendHandle().TrySend(d), interfaces.ErrQueueFull)
	assert.NoError(t, client.SendHandle().TrySend(d))
	assert.NoError(t, client.SendHandle().TrySend(d))
	assert.ErrorIs(t, client.SendHandle().TrySend(d), interfaces.ErrQueueFull, "queue bounded by SendQueueSize")

	client.ManualPoll(hub.Now())
	assert.NoError(t, client.SendHandle().TrySend(d))
}

func TestTimeoutAndHeartbeatWithMockClock(t *testing.T) {
	mock := clock.NewMock()
	hub := NewHub(WithClock(mock))
	config := interfaces.DefaultConfig()

	server, err := hub.Bind("127.0.0.1:9001", config)
	require.NoError(t, err)
	quiet := config
	quiet.HeartbeatInterval = 0
	client, err := hub.Bind("127.0.0.1:9002", quiet)
	require.NoError(t, err)

	require.NoError(t, client.SendHandle().TrySend(interfaces.Datagram{Addr: server.LocalAddr()}))
	client.ManualPoll(mock.Now())
	server.ManualPoll(mock.Now())
	require.Len(t, recvAll(server), 2)

	// the server heartbeats the quiet client, which connects in turn
	mock.Add(config.HeartbeatInterval)
	server.ManualPoll(mock.Now())
	client.ManualPoll(mock.Now())
	events := recvAll(client)
	require.Len(t, events, 1)
	assert.Equal(t, interfaces.EventConnect, events[0].Kind)

	// without further client traffic the server times the client out
	mock.Add(config.IdleTimeout)
	server.ManualPoll(mock.Now())
	events = recvAll(server)
	require.Len(t, events, 1)
	assert.Equal(t, interfaces.EventTimeout, events[0].Kind)
	assert.Equal(t, "127.0.0.1:9002", events[0].Addr.String())
}

func TestCloseDisconnectsPeers(t *testing.T) {
	hub := NewHub()
	server, client := newPair(t, hub, interfaces.DefaultConfig())

	require.NoError(t, client.SendHandle().TrySend(interfaces.Datagram{Addr: server.LocalAddr()}))
	client.ManualPoll(hub.Now())
	server.ManualPoll(hub.Now())
	recvAll(server)

	require.NoError(t, server.SendHandle().TrySend(interfaces.Datagram{Addr: client.LocalAddr()}))
	server.ManualPoll(hub.Now())
	client.ManualPoll(hub.Now())
	require.Len(t, recvAll(client), 2)

	require.NoError(t, server.Close())
	require.NoError(t, server.Close())

	client.ManualPoll(hub.Now())
	events := recvAll(client)
	require.Len(t, events, 1)
	assert.Equal(t, interfaces.EventDisconnect, events[0].Kind)

	_, err := server.ReceiveHandle().TryRecv()
	assert.ErrorIs(t, err, interfaces.ErrChannelClosed)
	assert.ErrorIs(t, server.SendHandle().TrySend(interfaces.Datagram{Addr: client.LocalAddr()}), interfaces.ErrChannelClosed)
	assert.Equal(t, 1, hub.Stats().Endpoints)
}

func TestHubNowFollowsClock(t *testing.T) {
	mock := clock.NewMock()
	hub := NewHub(WithClock(mock))

	mock.Add(time.Minute)
	assert.Equal(t, mock.Now(), hub.Now())
}

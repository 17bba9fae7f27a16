// Package tickwire is a tick-friendly UDP networking layer for real-time
// simulations such as game servers and clients.
//
// The application never blocks on the network. Outgoing packets are pushed
// onto a lock-free queue and incoming events are drained once per tick,
// typically from inside the simulation's update loop. Two background workers
// owned by the socket package move data between those queues and the
// datagram transport.
//
// # Getting Started
//
// Register the kinds of messages the session understands, then start it:
//
//	type Echo struct{ Data []byte }
//
//	func (Echo) KindID() string { return "echo" }
//
//	registry := kind.NewRegistry()
//	kind.RegisterKind(registry, func(e Echo, from net.Addr, g packet.Guarantee) error {
//	    fmt.Printf("echo from %s: %v\n", from, e.Data)
//	    return nil
//	})
//
//	builder := tickwire.NewBuilder(registry, tickwire.NewOptions())
//	sender, receiver, err := builder.Start(9001)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer builder.Close()
//
// Each tick, apply what arrived and send what changed:
//
//	if err := receiver.Drain(); err != nil {
//	    log.Println(err)
//	}
//	payload, _ := packet.PayloadFrom(Echo{Data: []byte{1, 2, 3}})
//	sender.Broadcast(packet.NewBuilder(packet.ReliableOrdered, payload))
//
// # Delivery Guarantees
//
// Every packet carries a packet.Guarantee combining reliable or unreliable
// delivery with unordered, sequenced or ordered arrival on one of 256
// streams. Sequenced streams drop packets older than the newest one seen;
// ordered streams hold later packets back until the gaps are filled.
//
// # Connections
//
// A peer becomes a connection when the first datagram from it arrives. Its
// Connected event is always applied before any of its packets. Connections
// get small numeric ids; the lowest free id is reused first, so on a client
// whose only peer is the server that peer is connection 0 and
// Sender.SendToServer reaches it.
//
// # Shutdown
//
// Sender.Stop is non-blocking. Packets accepted before it are still sent,
// after which the transport is closed and the receiver observes a final
// event.Stop; Receiver.Stopped reports true once a drain applied it.
//
// # Testing
//
// The simulation package provides an in-memory transport hub. Pass
// hub.Factory() to Builder.StartAs, or set TICKWIRE_USE_SIMULATION, to run
// sessions without opening sockets.
package tickwire

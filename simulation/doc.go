// Package simulation provides an in-process transport backend for
// deterministic tests of the socket and session layers.
//
// # Overview
//
// A Hub connects any number of simulated transports. Each transport
// implements interfaces.Transport with the same event semantics as the UDP
// backend: the first datagram from an address raises EventConnect, silence
// past IdleTimeout raises EventTimeout, and Close sends a disconnect that
// raises EventDisconnect at every established peer.
//
// Datagrams move between transports only inside ManualPoll: the sender's
// poll hands queued datagrams to the hub, the receiver's poll turns them
// into events. Nothing is lost or reordered, so every reliability behaves
// like ReliableOrdered.
//
// # Usage
//
//	hub := simulation.NewHub()
//	server, _ := hub.Bind("127.0.0.1:9001", interfaces.DefaultConfig())
//	client, _ := hub.Bind("127.0.0.1:9002", interfaces.DefaultConfig())
//
//	_ = client.SendHandle().TrySend(interfaces.Datagram{
//	    Addr:    server.LocalAddr(),
//	    Payload: []byte("hello"),
//	})
//	client.ManualPoll(hub.Now())
//	server.ManualPoll(hub.Now())
//
//	ev, _ := server.ReceiveHandle().TryRecv() // EventConnect
//
// # Delivery Log
//
// The hub records every data datagram with its source, target, size,
// reliability and whether a transport was bound at the target. Use
// DeliveryLog and Stats for verification, ClearDeliveryLog between cases.
//
// # Backpressure
//
// TrySend reports ErrQueueFull once SendQueueSize datagrams wait for the
// next poll. InjectQueueFull forces the next n sends to fail the same way,
// which lets tests exercise retry paths without filling a queue.
package simulation

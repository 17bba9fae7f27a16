// Package interfaces defines the contract between the tickwire socket and
// the datagram transport underneath it.
//
// This package provides the abstractions that make transport backends
// pluggable: the UDP backend in package transport for production, the
// in-process backend in package simulation for deterministic tests, or any
// custom backend an application brings.
//
// # Core Interfaces
//
// [Factory] binds a [Transport] at an address with a [Config]:
//
//	t, err := factory.Bind("127.0.0.1:9001", interfaces.DefaultConfig())
//	if err != nil {
//	    log.Fatalf("bind failed: %v", err)
//	}
//
// A [Transport] never blocks its caller. Datagrams are queued on the
// [SendHandle], events are dequeued from the [ReceiveHandle], and all wire
// work happens inside ManualPoll, which the socket's incoming worker calls
// in a loop:
//
//	for {
//	    t.ManualPoll(time.Now())
//	    for {
//	        ev, err := t.ReceiveHandle().TryRecv()
//	        if err != nil {
//	            break // ErrQueueEmpty or ErrChannelClosed
//	        }
//	        handle(ev)
//	    }
//	}
//
// # Reliability
//
// [Reliability] is the transport-level encoding of a packet guarantee. The
// socket maps every delivery/order combination onto one value; a backend
// must honour all of them.
//
// # Error Handling
//
// TrySend distinguishes transient from permanent conditions:
//   - ErrQueueFull: retry the same datagram later, it was not taken
//   - ErrChannelClosed: the transport is gone for good
//   - ErrPacketTooLarge: this datagram can never be sent
//
// # Thread Safety
//
// Handles must be safe for use from a goroutine other than the one calling
// ManualPoll. ManualPoll itself is only ever called from one goroutine.
//
// # Network Interface Compliance
//
// Addresses are net.Addr values throughout. Backends key peers by
// Addr.String() and must not require concrete types like *net.UDPAddr from
// their callers.
package interfaces

// Package transport implements a reliable/unreliable datagram protocol over
// UDP and exposes it through the interfaces.Transport contract.
//
// Every datagram starts with a 16-byte header carrying the protocol id, the
// packet type, the reliability and stream of the payload, a sequence number
// for reliable datagrams, an order index and piggybacked acknowledgements for
// the 32 sequences preceding the newest one received.
//
// Reliable datagrams are kept until acknowledged and resent under a fresh
// sequence when ResendTimeout elapses. Ordered streams hold back datagrams
// that arrive early; sequenced streams discard anything older than the
// newest datagram already delivered. Reliable unordered datagrams are
// deduplicated through a bounded window of recent message ids.
//
// A peer is established by the first datagram received from its address.
// Established peers that stay silent for IdleTimeout produce EventTimeout,
// a disconnect datagram produces EventDisconnect, and Close announces the
// shutdown to every established peer.
//
// The transport does no work on its own apart from reading the socket:
//
//	tr, err := transport.Bind("127.0.0.1:9001", interfaces.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//	defer tr.Close()
//
//	for {
//	    tr.ManualPoll(time.Now())
//	    ev, err := tr.ReceiveHandle().TryRecv()
//	    ...
//	}
package transport

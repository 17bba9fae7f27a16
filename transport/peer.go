package transport

import (
	"net"
	"sort"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/opd-ai/tickwire/interfaces"
)

// streamKey separates the index spaces of the reliabilities sharing a stream.
type streamKey struct {
	reliability interfaces.Reliability
	stream      uint8
}

// pending is a reliable datagram waiting for its ack.
type pending struct {
	reliability interfaces.Reliability
	stream      uint8
	orderIndex  uint16
	payload     []byte
	sentAt      time.Time
	enqueued    uint64
}

// orderedStream restores send order for one reliable ordered stream.
type orderedStream struct {
	expected uint16
	buffer   map[uint16][]byte
}

func newOrderedStream() *orderedStream {
	return &orderedStream{buffer: make(map[uint16][]byte)}
}

// admits reports whether a datagram with the given index can be taken
// without growing the buffer past max. Duplicates of delivered or buffered
// datagrams are always admitted since they are dropped without storing.
func (s *orderedStream) admits(index uint16, max int) bool {
	if index == s.expected || !sequenceGreaterThan(index, s.expected) {
		return true
	}
	if _, ok := s.buffer[index]; ok {
		return true
	}
	return len(s.buffer) < max
}

// accept takes the datagram at index and returns every payload that is now
// deliverable, in order.
func (s *orderedStream) accept(index uint16, payload []byte) [][]byte {
	if index != s.expected {
		if sequenceGreaterThan(index, s.expected) {
			if _, ok := s.buffer[index]; !ok {
				s.buffer[index] = payload
			}
		}
		return nil
	}

	ready := [][]byte{payload}
	s.expected++
	for {
		next, ok := s.buffer[s.expected]
		if !ok {
			return ready
		}
		delete(s.buffer, s.expected)
		ready = append(ready, next)
		s.expected++
	}
}

// sequencedStream keeps the newest index seen on a sequenced stream.
type sequencedStream struct {
	newest uint16
	seen   bool
}

// accept reports whether index is newer than everything seen so far.
func (s *sequencedStream) accept(index uint16) bool {
	if s.seen && !sequenceGreaterThan(index, s.newest) {
		return false
	}
	s.newest = index
	s.seen = true
	return true
}

// peer is the per-address protocol state. It is only touched while the
// transport's poll lock is held.
type peer struct {
	addr        net.Addr
	established bool
	lastRecv    time.Time
	lastSend    time.Time

	// outgoing
	localSequence uint16
	nextIndex     map[streamKey]uint16
	unacked       map[uint16]*pending
	enqueued      uint64

	// incoming
	remoteSequence uint16
	hasRemote      bool
	ackBits        uint32
	ackPending     bool
	ordered        map[uint8]*orderedStream
	sequenced      map[streamKey]*sequencedStream
	seen           *lru.Cache[uint16, struct{}]
}

func newPeer(addr net.Addr, now time.Time, duplicateWindow int) *peer {
	seen, err := lru.New[uint16, struct{}](duplicateWindow)
	if err != nil {
		// only fails on a non-positive size, which Config.Validate rejects
		panic(err)
	}

	return &peer{
		addr:      addr,
		lastRecv:  now,
		lastSend:  now,
		nextIndex: make(map[streamKey]uint16),
		unacked:   make(map[uint16]*pending),
		ordered:   make(map[uint8]*orderedStream),
		sequenced: make(map[streamKey]*sequencedStream),
		seen:      seen,
	}
}

// nextSequence returns the sequence for the next reliable datagram.
func (p *peer) nextSequence() uint16 {
	seq := p.localSequence
	p.localSequence++
	return seq
}

// nextOrderIndex returns the order index for the next datagram of key.
// Unreliable datagrams carry no index.
func (p *peer) nextOrderIndex(key streamKey) uint16 {
	if key.reliability == interfaces.Unreliable {
		return 0
	}
	if key.reliability == interfaces.ReliableUnordered {
		// one message id space per peer for duplicate suppression
		key.stream = 0
	}
	index := p.nextIndex[key]
	p.nextIndex[key] = index + 1
	return index
}

// track remembers a reliable datagram until it is acked.
func (p *peer) track(seq uint16, pr *pending) {
	pr.enqueued = p.enqueued
	p.enqueued++
	p.unacked[seq] = pr
}

// acknowledge drops every datagram covered by ackSeq and its bitfield.
func (p *peer) acknowledge(ackSeq uint16, bits uint32) {
	delete(p.unacked, ackSeq)
	for i := uint16(0); i < 32; i++ {
		if bits&(1<<i) != 0 {
			delete(p.unacked, ackSeq-1-i)
		}
	}
}

// expired returns the unacked datagrams older than timeout in send order
// and forgets their sequences; the caller resends them under new ones.
func (p *peer) expired(now time.Time, timeout time.Duration) []*pending {
	var due []*pending
	for seq, pr := range p.unacked {
		if now.Sub(pr.sentAt) >= timeout {
			due = append(due, pr)
			delete(p.unacked, seq)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].enqueued < due[j].enqueued })
	return due
}

// recordReceived updates the ack state for an incoming reliable sequence.
func (p *peer) recordReceived(seq uint16) {
	p.ackPending = true

	if !p.hasRemote {
		p.hasRemote = true
		p.remoteSequence = seq
		p.ackBits = 0
		return
	}

	switch {
	case sequenceGreaterThan(seq, p.remoteSequence):
		shift := seq - p.remoteSequence
		// shifts of 32 or more clear the field
		p.ackBits = p.ackBits<<shift | 1<<(shift-1)
		p.remoteSequence = seq
	case seq != p.remoteSequence:
		back := p.remoteSequence - seq
		if back <= 32 {
			p.ackBits |= 1 << (back - 1)
		}
	}
}

// markSeen reports whether messageID is new and remembers it.
func (p *peer) markSeen(messageID uint16) bool {
	if p.seen.Contains(messageID) {
		return false
	}
	p.seen.Add(messageID, struct{}{})
	return true
}

func (p *peer) orderedStream(stream uint8) *orderedStream {
	s, ok := p.ordered[stream]
	if !ok {
		s = newOrderedStream()
		p.ordered[stream] = s
	}
	return s
}

func (p *peer) sequencedStream(key streamKey) *sequencedStream {
	s, ok := p.sequenced[key]
	if !ok {
		s = &sequencedStream{}
		p.sequenced[key] = s
	}
	return s
}

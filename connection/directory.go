// Package connection keeps the bidirectional mapping between remote
// addresses and small numeric connection ids.
//
// Ids are recycled: when a connection is removed its id returns to a free
// pool and the smallest free id is handed out next. This keeps ids dense so
// applications can index slices with them.
//
// The Directory is guarded by a single read-many/write-one lock. The send
// path reads it (address lookup, broadcast snapshot); the receiver writes it
// while applying Connected, Disconnected and TimedOut events.
package connection

import (
	"container/heap"
	"fmt"
	"net"
	"sort"
	"sync"
)

// ID identifies a live connection.
type ID uint32

// ServerID is the id the first connection receives. A client's first
// connection is the server it talks to.
const ServerID ID = 0

// Connection is a remote address with its assigned id.
type Connection struct {
	ID   ID
	Addr net.Addr
}

// String returns a short description for logs.
func (c Connection) String() string {
	return fmt.Sprintf("connection(%d, %s)", c.ID, c.Addr)
}

// Directory maps addresses to ids and back.
type Directory struct {
	mu     sync.RWMutex
	byAddr map[string]ID
	byID   map[ID]Connection
	free   idHeap
	next   ID
}

// New creates an empty directory.
func New() *Directory {
	return &Directory{
		byAddr: make(map[string]ID),
		byID:   make(map[ID]Connection),
	}
}

// AddConnection returns the id of addr, assigning one if addr is new.
// A new address gets the smallest free id, or the next unused id when the
// free pool is empty. Adding a known address again returns its existing id
// and leaves the free pool untouched.
func (d *Directory) AddConnection(addr net.Addr) ID {
	key := addr.String()

	d.mu.Lock()
	defer d.mu.Unlock()

	if id, ok := d.byAddr[key]; ok {
		return id
	}

	var id ID
	if d.free.Len() > 0 {
		id = heap.Pop(&d.free).(ID)
	} else {
		id = d.next
		d.next++
	}

	d.byAddr[key] = id
	d.byID[id] = Connection{ID: id, Addr: addr}

	return id
}

// RemoveConnection removes addr from both directions of the mapping and
// returns its freed id. The second return value is false if addr was unknown.
func (d *Directory) RemoveConnection(addr net.Addr) (ID, bool) {
	key := addr.String()

	d.mu.Lock()
	defer d.mu.Unlock()

	id, ok := d.byAddr[key]
	if !ok {
		return 0, false
	}

	delete(d.byAddr, key)
	delete(d.byID, id)
	heap.Push(&d.free, id)

	return id, true
}

// Get returns the connection with the given id.
func (d *Directory) Get(id ID) (Connection, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	conn, ok := d.byID[id]
	return conn, ok
}

// Lookup returns the id assigned to addr.
func (d *Directory) Lookup(addr net.Addr) (ID, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	id, ok := d.byAddr[addr.String()]
	return id, ok
}

// Connections returns a snapshot of all live connections ordered by id.
func (d *Directory) Connections() []Connection {
	d.mu.RLock()
	conns := make([]Connection, 0, len(d.byID))
	for _, conn := range d.byID {
		conns = append(conns, conn)
	}
	d.mu.RUnlock()

	sort.Slice(conns, func(i, j int) bool { return conns[i].ID < conns[j].ID })
	return conns
}

// Len returns the number of live connections.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return len(d.byID)
}

// FreeIDs returns the ids waiting for reuse in ascending order.
func (d *Directory) FreeIDs() []ID {
	d.mu.RLock()
	ids := make([]ID, len(d.free))
	copy(ids, d.free)
	d.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// idHeap is a min-heap of free ids.
type idHeap []ID

func (h idHeap) Len() int           { return len(h) }
func (h idHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h idHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *idHeap) Push(x any) {
	*h = append(*h, x.(ID))
}

func (h *idHeap) Pop() any {
	old := *h
	n := len(old)
	id := old[n-1]
	*h = old[:n-1]
	return id
}

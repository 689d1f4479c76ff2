// Package test holds integration-style tests that exercise a small
// mesh.Session cluster end to end, in place of single-package unit
// tests: multi-hop routing, broadcast fan-out and topology
// convergence only show up once more than two sessions are wired
// together and driven forward in lockstep.
package test

import (
	"time"

	"github.com/painlessmesh/gomesh/pkg/mesh"
	"github.com/painlessmesh/gomesh/pkg/mesh/definition"
	"github.com/painlessmesh/gomesh/pkg/mesh/slotmap"
	"github.com/painlessmesh/gomesh/pkg/mesh/task"
)

// busTransport is an in-process conn.Transport. Two busTransports are
// paired by wire: each Send call hands its bytes straight to the peer
// session's Deliver, so the whole cluster runs on the calling
// goroutine with no sockets and no background readers.
//
// A station-side AddConnection sends its first node-sync request
// synchronously, before the harness has had a chance to learn the
// peer's connection ID. Send queues frames until wire runs, then wire
// flushes them in order.
type busTransport struct {
	peer       *mesh.Session
	peerConnID slotmap.ID
	wired      bool
	queued     [][]byte
	closed     bool
}

func (b *busTransport) Send(data []byte) error {
	cp := append([]byte(nil), data...)
	if !b.wired {
		b.queued = append(b.queued, cp)
		return nil
	}
	b.peer.Deliver(b.peerConnID, cp)
	return nil
}

func (b *busTransport) Close() error {
	b.closed = true
	return nil
}

func (b *busTransport) wire(peer *mesh.Session, peerConnID slotmap.ID) {
	b.peer = peer
	b.peerConnID = peerConnID
	b.wired = true
	pending := b.queued
	b.queued = nil
	for _, data := range pending {
		peer.Deliver(peerConnID, data)
	}
}

// Node is one cluster member: its Session plus the scheduler driving
// it, so MeshCluster can advance every member's cooperative loop
// together.
type Node struct {
	ID        uint32
	Session   *mesh.Session
	Scheduler *task.CoopScheduler
}

// MeshCluster wires a set of mesh.Session values together for an
// integration test and advances them in lockstep.
type MeshCluster struct {
	Nodes []*Node
	now   time.Time
}

func newNode(id uint32, start time.Time) *Node {
	sched := task.NewCoopScheduler(start)
	cfg := mesh.DefaultConfig()
	cfg.NodeID = id
	s := mesh.New(cfg, sched, definition.NewNoopLogger(), nil)
	if err := s.Init(); err != nil {
		panic(err)
	}
	return &Node{ID: id, Session: s, Scheduler: sched}
}

// Link connects a and b as neighbors: a dials b, the station side of
// the pair, matching how a leaf joins the mesh through an AP it
// scanned.
func Link(a, b *Node) {
	ta := &busTransport{}
	tb := &busTransport{}

	idA := a.Session.AddConnection(ta, true)
	idB := b.Session.AddConnection(tb, false)

	ta.wire(b.Session, idB)
	tb.wire(a.Session, idA)
}

// NewCluster builds n unlinked nodes with sequential node IDs starting
// at 1, sharing a common start time.
func NewCluster(n int, start time.Time) *MeshCluster {
	c := &MeshCluster{now: start}
	for i := 0; i < n; i++ {
		c.Nodes = append(c.Nodes, newNode(uint32(i+1), start))
	}
	return c
}

// NewLine builds a cluster of n nodes wired node[0]-node[1]-...-node[n-1].
func NewLine(n int, start time.Time) *MeshCluster {
	c := NewCluster(n, start)
	for i := 0; i+1 < len(c.Nodes); i++ {
		Link(c.Nodes[i], c.Nodes[i+1])
	}
	return c
}

// NewRing builds a cluster of n nodes wired in a ring: node[i] to
// node[i+1], wrapping node[n-1] back to node[0]. n must be at least 3
// for the wrap-around edge to be distinct from the line edges.
//
// The wrap-around link's own first node-sync exchange advertises a tree
// that already contains the far node, so node-sync's loop check closes
// that connection immediately: the ring settles into the same spanning
// tree a line would, by design. This is what makes it a useful broadcast
// test rather than a different one: delivery must still land on every
// node exactly once despite the redundant physical link.
func NewRing(n int, start time.Time) *MeshCluster {
	c := NewCluster(n, start)
	for i := 0; i+1 < len(c.Nodes); i++ {
		Link(c.Nodes[i], c.Nodes[i+1])
	}
	Link(c.Nodes[len(c.Nodes)-1], c.Nodes[0])
	return c
}

// Node looks up a cluster member by its 1-based node ID.
func (c *MeshCluster) Node(id uint32) *Node {
	for _, n := range c.Nodes {
		if n.ID == id {
			return n
		}
	}
	return nil
}

// Advance moves the cluster's shared clock forward by step, total/step
// times, calling Update on every node after each step. Node-sync is
// driven by each connection's own recurring scheduled task, so
// repeated small steps are what let topology knowledge propagate hop
// by hop; a single large jump only fires each recurring task once.
func (c *MeshCluster) Advance(total, step time.Duration) {
	for elapsed := time.Duration(0); elapsed < total; elapsed += step {
		c.now = c.now.Add(step)
		for _, n := range c.Nodes {
			n.Session.Update(c.now)
		}
	}
}

// Settle advances the cluster long enough for node-sync to propagate
// across every hop: one full node-sync cadence per hop, plus slack.
func (c *MeshCluster) Settle() {
	hops := len(c.Nodes)
	cadence := 4 * time.Second
	c.Advance(time.Duration(hops+2)*cadence, 200*time.Millisecond)
}

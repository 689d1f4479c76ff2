package test

import (
	"testing"
	"time"

	"github.com/painlessmesh/gomesh/pkg/mesh/protocol"
)

var testStart = time.Unix(1_700_000_000, 0)

// Scenario: 3-node broadcast ring. Node 1 broadcasts; nodes 2 and 3
// must each receive exactly once, with no duplicate delivery from the
// ring's second path back around.
func TestBroadcastReachesEveryNodeOnceInRing(t *testing.T) {
	c := NewRing(3, testStart)
	c.Settle()

	counts := map[uint32]int{}
	for _, n := range c.Nodes {
		id := n.ID
		if id == 1 {
			continue
		}
		n.Session.OnReceive(protocol.TypeBroadcast, func(v protocol.Variant) bool {
			counts[id]++
			return true
		})
	}

	if ok := c.Node(1).Session.SendBroadcast("hello mesh", false); !ok {
		t.Fatalf("expected SendBroadcast to succeed")
	}

	if counts[2] != 1 {
		t.Fatalf("expected node 2 to receive the broadcast exactly once, got %d", counts[2])
	}
	if counts[3] != 1 {
		t.Fatalf("expected node 3 to receive the broadcast exactly once, got %d", counts[3])
	}
}

// Scenario: 2-node echo. Node 2 echoes every Single it receives back
// to its sender; node 1 sends "ping" and must get "ping" back.
func TestTwoNodeEcho(t *testing.T) {
	c := NewLine(2, testStart)
	c.Settle()

	a := c.Node(1)
	b := c.Node(2)

	var got string
	gotReply := false
	a.Session.OnReceive(protocol.TypeSingle, func(v protocol.Variant) bool {
		single, ok := v.(*protocol.Single)
		if !ok {
			return false
		}
		got = single.Msg
		gotReply = true
		return true
	})
	b.Session.OnReceive(protocol.TypeSingle, func(v protocol.Variant) bool {
		single, ok := v.(*protocol.Single)
		if !ok {
			return false
		}
		b.Session.SendSingle(single.Header().From, single.Msg)
		return true
	})

	if ok := a.Session.SendSingle(b.ID, "ping"); !ok {
		t.Fatalf("expected a direct route from node 1 to node 2")
	}

	if !gotReply {
		t.Fatalf("expected node 1 to receive an echoed reply")
	}
	if got != "ping" {
		t.Fatalf("expected echoed payload %q, got %q", "ping", got)
	}
}

// Scenario: 4-node line, multi-hop unicast. Node 1 sends to node 4,
// three hops away through nodes 2 and 3; it must be delivered exactly
// once, and neither intermediate node's own handler should fire.
func TestMultiHopLineDeliversAcrossFourNodes(t *testing.T) {
	c := NewLine(4, testStart)
	c.Settle()

	receipts := map[uint32]int{}
	for _, n := range c.Nodes {
		id := n.ID
		n.Session.OnReceive(protocol.TypeSingle, func(v protocol.Variant) bool {
			receipts[id]++
			return true
		})
	}

	if ok := c.Node(1).Session.SendSingle(4, "via hops"); !ok {
		t.Fatalf("expected node 1 to have a multi-hop route to node 4")
	}

	if receipts[4] != 1 {
		t.Fatalf("expected node 4 to receive the message exactly once, got %d", receipts[4])
	}
	if receipts[2] != 0 || receipts[3] != 0 {
		t.Fatalf("intermediate hops should only forward, not deliver locally: got %v", receipts)
	}
	if got := c.Node(1).Session.GetHopCount(4); got != 3 {
		t.Fatalf("expected node 4 to be 3 hops from node 1, got %d", got)
	}
}

// P3: a cluster's topology knowledge eventually converges so every
// node can see every other node, regardless of how the mesh was wired.
func TestTopologyConvergesAcrossLine(t *testing.T) {
	c := NewLine(5, testStart)
	c.Settle()

	for _, n := range c.Nodes {
		list := n.Session.GetNodeList(true)
		if len(list) != len(c.Nodes) {
			t.Fatalf("node %d: expected to know about all %d nodes, got %d (%v)", n.ID, len(c.Nodes), len(list), list)
		}
	}
}

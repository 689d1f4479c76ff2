// Package fuzzy runs randomized multi-node mesh scenarios: topologies
// built from a random (but always acyclic) parent assignment, driven
// through test.MeshCluster and checked against the convergence and
// no-duplicate-delivery properties the fixed-topology tests in ../test
// only exercise on a handful of hand-picked shapes.
package fuzzy

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/painlessmesh/gomesh/pkg/mesh/protocol"
	mtest "github.com/painlessmesh/gomesh/test"
)

var fuzzStart = time.Unix(1_700_000_000, 0)

// randomCluster builds n nodes and connects node i (i>=1) to a
// uniformly random earlier node, so the wiring is always a tree by
// construction: no loop-detection edge ever needs pruning, which keeps
// the random seed alone responsible for the resulting shape.
func randomCluster(n int, seed int64) *mtest.MeshCluster {
	r := rand.New(rand.NewSource(seed))
	c := mtest.NewCluster(n, fuzzStart)
	for i := 1; i < n; i++ {
		parent := r.Intn(i)
		mtest.Link(c.Nodes[parent], c.Nodes[i])
	}
	return c
}

func TestRandomTopologyConverges(t *testing.T) {
	defer goleak.VerifyNone(t)

	for seed := int64(0); seed < 6; seed++ {
		seed := seed
		t.Run(fmt.Sprintf("seed=%d", seed), func(t *testing.T) {
			c := randomCluster(12, seed)
			c.Settle()

			for _, n := range c.Nodes {
				list := n.Session.GetNodeList(true)
				if len(list) != len(c.Nodes) {
					t.Fatalf("node %d only knows %d/%d nodes: %v", n.ID, len(list), len(c.Nodes), list)
				}
			}
		})
	}
}

func TestRandomTopologyBroadcastNoDuplicates(t *testing.T) {
	defer goleak.VerifyNone(t)

	for seed := int64(0); seed < 6; seed++ {
		c := randomCluster(10, seed+100)
		c.Settle()

		counts := make(map[uint32]int, len(c.Nodes))
		for _, n := range c.Nodes {
			id := n.ID
			n.Session.OnReceive(protocol.TypeBroadcast, func(v protocol.Variant) bool {
				counts[id]++
				return true
			})
		}

		source := c.Nodes[0]
		if ok := source.Session.SendBroadcast("fanout", false); !ok {
			t.Fatalf("SendBroadcast failed")
		}

		for _, n := range c.Nodes {
			if n.ID == source.ID {
				continue
			}
			if counts[n.ID] != 1 {
				t.Fatalf("node %d received the broadcast %d times, want 1", n.ID, counts[n.ID])
			}
		}
	}
}

func TestRandomTopologyUnicastReachesOnlyTheDestination(t *testing.T) {
	defer goleak.VerifyNone(t)

	r := rand.New(rand.NewSource(42))
	for i := 0; i < 8; i++ {
		c := randomCluster(9, int64(200+i))

		src := c.Nodes[r.Intn(len(c.Nodes))]
		dst := c.Nodes[r.Intn(len(c.Nodes))]
		if src.ID == dst.ID {
			continue
		}
		c.Settle()

		receipts := map[uint32]int{}
		for _, n := range c.Nodes {
			id := n.ID
			n.Session.OnReceive(protocol.TypeSingle, func(v protocol.Variant) bool {
				receipts[id]++
				return true
			})
		}

		if ok := src.Session.SendSingle(dst.ID, "fuzz"); !ok {
			t.Fatalf("node %d has no route to node %d after settling", src.ID, dst.ID)
		}
		if receipts[dst.ID] != 1 {
			t.Fatalf("expected destination %d to receive exactly once, got %d", dst.ID, receipts[dst.ID])
		}
		for _, n := range c.Nodes {
			if n.ID != dst.ID && receipts[n.ID] != 0 {
				t.Fatalf("node %d (not the destination) delivered locally %d times", n.ID, receipts[n.ID])
			}
		}
	}
}

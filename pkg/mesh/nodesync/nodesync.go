// Package nodesync implements the node-sync request/reply handling of
// spec.md §4.5: loop detection, root-conflict resolution, subtree
// merging and the changedConnection trigger. It is deliberately
// connection-agnostic — callers (pkg/mesh/conn, the root session) own
// the scheduling and the socket; this package only decides what an
// advertised protocol.Tree means for the locally-owned layout.
package nodesync

import (
	"github.com/painlessmesh/gomesh/pkg/mesh/protocol"
	"github.com/painlessmesh/gomesh/pkg/mesh/routing"
)

// Decision is the outcome of processing an advertised subtree.
type Decision int

const (
	// Accept merges the advertised subtree into the local layout.
	Accept Decision = iota
	// CloseLoop closes the connection: the advertised tree contains our
	// own node ID, so accepting it would create a cycle (spec.md §4.5.1).
	CloseLoop
	// CloseRootConflict closes the station-side connection because both
	// ends claim to be root; the larger ID yields (spec.md §4.5.2).
	CloseRootConflict
)

// Outcome is the result of Process.
type Outcome struct {
	Decision          Decision
	ChangedConnection bool
}

// Process applies one advertised NodeTree (from a NodeSyncRequest or
// NodeSyncReply sent by neighborID) against the local layout rooted at
// selfID, per the four steps of spec.md §4.5.
func Process(layout *protocol.Tree, selfID uint32, neighborID uint32, advertised protocol.Tree) Outcome {
	if advertised.Contains(selfID) {
		return Outcome{Decision: CloseLoop}
	}

	if advertised.Root && layout.Root {
		if selfID > neighborID {
			return Outcome{Decision: CloseRootConflict}
		}
	}

	changed := routing.MergeSubtree(layout, neighborID, advertised)
	return Outcome{Decision: Accept, ChangedConnection: changed}
}

// Drop removes neighborID's subtree from layout, used when its
// connection closes, and reports whether changedConnection should fire.
func Drop(layout *protocol.Tree, neighborID uint32) (changed bool) {
	return routing.DropSubtree(layout, neighborID)
}

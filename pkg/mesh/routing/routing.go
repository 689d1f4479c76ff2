// Package routing implements the tree-shaped forwarding algorithms of
// spec.md §4.2/§6: given the locally-known subtree, decide which direct
// neighbor a message must be forwarded to (FindRoute), which neighbors a
// broadcast must fan out to (BroadcastTargets), and how an incoming
// node-sync reply merges into the existing layout (MergeSubtree).
//
// The package never touches a live connection; it works purely over
// protocol.Tree so it can be grounded and tested in isolation, and is
// imported by the nodesync package and the root mesh package rather than the other way
// around (spec.md §9: this avoids the import cycle a routing<->nodesync
// dependency would otherwise create).
package routing

import "github.com/painlessmesh/gomesh/pkg/mesh/protocol"

// FindRoute returns the direct child of tree whose subtree contains
// dest, which is the neighbor nodeId a message addressed to dest must be
// forwarded to next (spec.md §4.2, P1). ok is false when dest is not
// reachable anywhere under tree.
func FindRoute(tree protocol.Tree, dest uint32) (nextHop uint32, ok bool) {
	if tree.NodeID == dest {
		return dest, true
	}
	for _, sub := range tree.Subs {
		if sub.Contains(dest) {
			return sub.NodeID, true
		}
	}
	return 0, false
}

// BroadcastTargets returns the direct-child node IDs a broadcast received
// from fromNeighbor (0 if originated locally) must be forwarded to: every
// child except the one the message arrived from, since that neighbor
// already has it (spec.md §4.2, P2 no-duplicate-delivery).
func BroadcastTargets(tree protocol.Tree, fromNeighbor uint32) []uint32 {
	var targets []uint32
	for _, sub := range tree.Subs {
		if sub.NodeID == fromNeighbor {
			continue
		}
		targets = append(targets, sub.NodeID)
	}
	return targets
}

// IsRooted reports whether tree or any node in it claims to be the mesh
// root (spec.md §4.2 "at most one root should be elected").
func IsRooted(tree protocol.Tree) bool {
	if tree.Root {
		return true
	}
	for _, sub := range tree.Subs {
		if IsRooted(sub) {
			return true
		}
	}
	return false
}

// MergeSubtree replaces the subtree belonging to neighborID inside tree
// with replacement (the content of a fresh node-sync reply), adding a new
// direct child if neighborID was not already one. It reports whether the
// merge actually changed the tree's shape, which callers use to decide
// whether changedConnection must fire (spec.md §5).
func MergeSubtree(tree *protocol.Tree, neighborID uint32, replacement protocol.Tree) (changed bool) {
	for i := range tree.Subs {
		if tree.Subs[i].NodeID == neighborID {
			if tree.Subs[i].Equal(replacement) {
				return false
			}
			tree.Subs[i] = replacement
			return true
		}
	}
	tree.Subs = append(tree.Subs, replacement)
	return true
}

// DropSubtree removes the direct child neighborID from tree, used when a
// connection closes (spec.md §4.2). It reports whether anything was
// removed.
func DropSubtree(tree *protocol.Tree, neighborID uint32) bool {
	for i := range tree.Subs {
		if tree.Subs[i].NodeID == neighborID {
			tree.Subs = append(tree.Subs[:i], tree.Subs[i+1:]...)
			return true
		}
	}
	return false
}

package protocol

// Tree is the wire shape of a node and its subtree, exchanged by
// node-sync request/reply (spec.md §6): {nodeId, root, time-authority?,
// subs:[...]}. It is also the in-memory layout: the routing and
// nodesync packages and Session work on this type directly.
type Tree struct {
	NodeID          uint32 `json:"nodeId"`
	Root            bool   `json:"root"`
	HasTimeAuthority bool   `json:"timeAuth,omitempty"`
	Subs            []Tree `json:"subs,omitempty"`
}

// Equal reports whether two trees describe the same node set and shape,
// used to detect a structural change worth re-broadcasting (spec.md §5,
// "changedConnection fires only on a structural-hash change").
func (t Tree) Equal(other Tree) bool {
	if t.NodeID != other.NodeID || t.Root != other.Root || t.HasTimeAuthority != other.HasTimeAuthority {
		return false
	}
	if len(t.Subs) != len(other.Subs) {
		return false
	}
	for i := range t.Subs {
		if !t.Subs[i].Equal(other.Subs[i]) {
			return false
		}
	}
	return true
}

// Clear resets t to its zero value {0,false,false,[]} in place (spec.md
// §3's clear()). Session does not call it on a dropped connection; that
// neighbor's subtree is pruned with nodesync.Drop.
func (t *Tree) Clear() {
	*t = Tree{}
}

// Contains reports whether nodeID appears anywhere in t's subtree,
// including t itself.
func (t Tree) Contains(nodeID uint32) bool {
	if t.NodeID == nodeID {
		return true
	}
	for _, sub := range t.Subs {
		if sub.Contains(nodeID) {
			return true
		}
	}
	return false
}

// AsList flattens t into every node ID reachable from it, including
// itself, used by Session.GetNodeList (spec.md §4.7).
func (t Tree) AsList() []uint32 {
	ids := []uint32{t.NodeID}
	for _, sub := range t.Subs {
		ids = append(ids, sub.AsList()...)
	}
	return ids
}

// Size returns the number of nodes in the tree including t itself.
func (t Tree) Size() int {
	n := 1
	for _, sub := range t.Subs {
		n += sub.Size()
	}
	return n
}

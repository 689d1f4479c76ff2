// Package timesync implements the NTP-style four-timestamp offset
// exchange and authority-aware adoption decision of spec.md §4.6. It has
// no notion of connections or sockets: callers hand it the four raw
// timestamps and get back an offset/round-trip pair, and hand it two
// Candidate descriptions and get back an adopt/reject decision.
package timesync

// Millis is a wall-clock reading in milliseconds, matching the wire
// representation used throughout the mesh protocol (spec.md §6).
type Millis = uint32

// Exchange is the result of one four-timestamp NTP-style round (spec.md
// §4.6): t0 request sent by the adopter, t1 request received at the
// adopted node, t2 reply sent from the adopted node, t3 reply received
// back at the adopter. t0 and t3 are adopter clock readings; t1 and t2
// are adopted-node clock readings.
type Exchange struct {
	T0, T1, T2, T3 Millis
}

// Offset returns how far the adopted node's clock is ahead of (positive)
// or behind (negative) the adopter's clock, i.e. the correction the
// adopter adds to its own time, following spec.md §4.6's formula:
// ((t1-t0)-(t3-t2))/2.
func (e Exchange) Offset() int64 {
	return (int64(e.T1-e.T0) - int64(e.T3-e.T2)) / 2
}

// RoundTrip returns the round-trip delay of the exchange, following
// spec.md §4.6's formula: (t3-t0)-(t2-t1).
func (e Exchange) RoundTrip() int64 {
	return int64(e.T3-e.T0) - int64(e.T2-e.T1)
}

// Candidate describes one side of an adoption decision (spec.md §4.6).
type Candidate struct {
	NodeID           uint32
	HasTimeAuthority bool
	SubtreeSize      int
}

// Adopt decides whether self should adopt other's time, following the
// exact tie-break order of spec.md §4.6:
//  1. other has authority and self does not: adopt.
//  2. self has authority and other does not: do not adopt.
//  3. otherwise, the larger subtree wins; ties broken by the smaller
//     node ID.
func Adopt(self, other Candidate) bool {
	if other.HasTimeAuthority && !self.HasTimeAuthority {
		return true
	}
	if self.HasTimeAuthority && !other.HasTimeAuthority {
		return false
	}
	if other.SubtreeSize != self.SubtreeSize {
		return other.SubtreeSize > self.SubtreeSize
	}
	return other.NodeID < self.NodeID
}

// AdjustmentThreshold is the minimum absolute offset, in milliseconds,
// worth reporting through onNodeTimeAdjusted (spec.md §4.6): small
// corrections happen every cycle and would otherwise spam callbacks.
const AdjustmentThreshold = 50

// SignificantAdjustment reports whether offset is large enough to fire
// onNodeTimeAdjusted.
func SignificantAdjustment(offset int64) bool {
	if offset < 0 {
		offset = -offset
	}
	return offset >= AdjustmentThreshold
}

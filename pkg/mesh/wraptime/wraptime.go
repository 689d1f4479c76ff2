// Package wraptime gives "elapsed since" arithmetic that stays correct
// across a wrapping millisecond counter, the way the original painlessMesh
// firmware's millis()-based freshness checks have to (spec.md §9).
//
// The Go runtime exposes host-clock time.Time, which never wraps in any
// deployment horizon this library cares about. This package exists anyway
// because the wire-level timestamps exchanged in node-sync, time-sync and
// bridge heartbeats are framed as uint32 millisecond counters to stay
// bit-compatible with the embedded nodes on the other end of the link, and
// *those* wrap roughly every 49.7 days. All freshness/elapsed comparisons
// against wire timestamps must go through here, not raw subtraction.
package wraptime

// Millis is a wrapping 32-bit millisecond counter, matching the wire
// representation used throughout the protocol (timestamps, lastSeen,
// uptime).
type Millis uint32

// Elapsed returns how much time passed from start to now, correctly
// handling a single wraparound of the underlying uint32 counter. Go has no
// unsigned overflow trap, so this is a plain subtraction - the point of
// naming it is to make every call site provably wrap-aware rather than
// leaving it to chance.
func Elapsed(now, start Millis) Millis {
	return now - start
}

// Before reports whether a happened strictly before b, tolerating a single
// wraparound between them (the same trick the rest of painlessMesh's
// freshness checks rely on: treat the difference as a signed 32-bit value).
func Before(a, b Millis) bool {
	return int32(a-b) < 0
}

// Since computes now - start as a signed duration, so call sites that need
// to detect "start is actually in the future relative to now" (clock skew,
// not wraparound) can tell the two apart from a plain wrap comparison.
func Since(now, start Millis) int64 {
	return int64(int32(now - start))
}

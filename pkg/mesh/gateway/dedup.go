package gateway

import "time"

// dedupKey identifies one relay request by its origin and message ID
// (spec.md §4.8 step 1: "(messageId, originNode)").
type dedupKey struct {
	MsgID  uint32
	Origin uint32
}

// dedupEntry tracks whether the ACK for a duplicate-suppressed request
// has actually been sent yet, so a redundant retry that arrives before
// the first ACK goes out can still get one (spec.md §4.8 step 1: "this
// collapses redundant retries from lossy links into a single ACK").
type dedupEntry struct {
	seenAt    time.Time
	ackSent   bool
}

// Dedup is a deterministic, exact-match duplicate suppressor: spec.md's
// property P13 demands duplicates never slip through, which rules out a
// probabilistic structure like a cuckoo filter's false-positive risk (see
// DESIGN.md for the explicit rejection). Capacity is enforced by
// evicting the oldest entry, matching the bounded-window behavior of
// spec.md §4.8's "duplicate tracking window".
type Dedup struct {
	window   time.Duration
	capacity int

	entries map[dedupKey]*dedupEntry
	order   []dedupKey
}

// NewDedup returns a Dedup configured with the given window and
// capacity (spec.md §4.8 defaults: 60s, 500 entries).
func NewDedup(window time.Duration, capacity int) *Dedup {
	return &Dedup{
		window:   window,
		capacity: capacity,
		entries:  make(map[dedupKey]*dedupEntry),
	}
}

// Seen records a sighting of (msgID, origin) at now. It returns
// duplicate=true if this key was already seen within the window, in
// which case needsAck reports whether the caller should still send the
// ACK (because the original sighting never did).
func (d *Dedup) Seen(msgID, origin uint32, now time.Time) (duplicate bool, needsAck bool) {
	key := dedupKey{MsgID: msgID, Origin: origin}
	d.evictExpired(now)

	if e, ok := d.entries[key]; ok {
		return true, !e.ackSent
	}

	d.entries[key] = &dedupEntry{seenAt: now}
	d.order = append(d.order, key)
	if len(d.order) > d.capacity {
		oldest := d.order[0]
		d.order = d.order[1:]
		delete(d.entries, oldest)
	}
	return false, true
}

// MarkAckSent records that the ACK for (msgID, origin) has now been
// sent, so a later duplicate sighting won't trigger a second one.
func (d *Dedup) MarkAckSent(msgID, origin uint32) {
	if e, ok := d.entries[dedupKey{MsgID: msgID, Origin: origin}]; ok {
		e.ackSent = true
	}
}

func (d *Dedup) evictExpired(now time.Time) {
	cut := 0
	for _, key := range d.order {
		e := d.entries[key]
		if e == nil || now.Sub(e.seenAt) >= d.window {
			delete(d.entries, key)
			cut++
			continue
		}
		break
	}
	if cut > 0 {
		d.order = d.order[cut:]
	}
}

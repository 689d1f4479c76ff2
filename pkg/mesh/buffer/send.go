package buffer

// Priority is the 4-level send priority of spec.md §3/§4.1.
type Priority uint8

const (
	Critical Priority = 0
	High     Priority = 1
	Normal   Priority = 2
	Low      Priority = 3
)

func clamp(p Priority) Priority {
	if p > Low {
		return Low
	}
	return p
}

// sendEntry is heap-allocated and referenced by pointer so a partially-sent
// entry stays identifiable across later Push/FreeRead calls even though its
// position in the entries slice can shift as older entries are removed.
type sendEntry struct {
	message  []byte
	priority Priority
}

// Stats reports queued/sent counters per priority level, as referenced by
// spec.md §4.1 ("Counters track per-level queued and sent totals").
type Stats struct {
	Queued [4]uint64
	Sent   [4]uint64
}

// SendBuffer is the per-connection outbound buffer: a priority queue with
// FIFO ordering within a level, and a "continuing entry" rule that keeps a
// partially-written message from ever being interleaved with another
// (spec.md §4.1).
type SendBuffer struct {
	entries []*sendEntry

	active *sendEntry
	clean  bool

	lastReadLen      int
	lastReadPriority Priority

	stats Stats
}

// NewSendBuffer returns an empty SendBuffer.
func NewSendBuffer() *SendBuffer {
	return &SendBuffer{clean: true, lastReadPriority: Normal}
}

// Push is the legacy two-level API: priority=true maps to High, false to
// Normal (spec.md §4.1).
func (s *SendBuffer) Push(message []byte, priority bool) {
	level := Normal
	if priority {
		level = High
	}
	s.PushWithPriority(message, level)
}

// PushWithPriority enqueues message at the given priority, clamped to
// [Critical, Low].
func (s *SendBuffer) PushWithPriority(message []byte, priority Priority) {
	priority = clamp(priority)
	cp := make([]byte, len(message))
	copy(cp, message)
	s.entries = append(s.entries, &sendEntry{message: cp, priority: priority})
	s.stats.Queued[priority]++
}

// selected returns the entry that the next Read/ReadPtr must serve: the
// in-progress partial entry if one exists, otherwise the lowest-numbered
// priority entry, ties broken by insertion order.
func (s *SendBuffer) selected() *sendEntry {
	if !s.clean && s.active != nil {
		for _, e := range s.entries {
			if e == s.active {
				return s.active
			}
		}
		// The active entry was removed out from under us (e.g. Clear);
		// fall through to a fresh selection.
		s.active = nil
		s.clean = true
	}

	var best *sendEntry
	for _, e := range s.entries {
		if best == nil || e.priority < best.priority {
			best = e
		}
	}
	return best
}

// RequestLength returns how many bytes are available to send right now,
// capped at bufferLen.
func (s *SendBuffer) RequestLength(bufferLen int) int {
	sel := s.selected()
	if sel == nil {
		return 0
	}
	n := len(sel.message)
	if n > bufferLen {
		n = bufferLen
	}
	return n
}

// ReadPtr returns a zero-copy view of up to length bytes of the selected
// message, and records it as the entry FreeRead must act on next. Callers
// should have checked RequestLength first.
func (s *SendBuffer) ReadPtr(length int) []byte {
	sel := s.selected()
	if sel == nil {
		return nil
	}
	s.active = sel
	n := length
	if n > len(sel.message) {
		n = len(sel.message)
	}
	s.lastReadLen = n
	s.lastReadPriority = sel.priority
	return sel.message[:n]
}

// FreeRead consumes the bytes handed out by the most recent ReadPtr. If the
// whole message was consumed the entry is removed and counted against its
// priority's Sent total; otherwise the sent prefix is dropped from the
// entry and the buffer stays "dirty" so the same entry continues next time
// regardless of what else was pushed in between.
func (s *SendBuffer) FreeRead() {
	sel := s.active
	if sel == nil {
		s.lastReadLen = 0
		return
	}

	if s.lastReadLen >= len(sel.message) {
		for i, e := range s.entries {
			if e == sel {
				s.entries = append(s.entries[:i], s.entries[i+1:]...)
				break
			}
		}
		s.stats.Sent[sel.priority]++
		s.active = nil
		s.clean = true
	} else {
		sel.message = sel.message[s.lastReadLen:]
		s.clean = false
	}
	s.lastReadLen = 0
}

// LastReadPriority returns the priority of the most recently served entry,
// so a transport can decide to force-flush immediately for Critical/High
// (spec.md §4.1, §4.2).
func (s *SendBuffer) LastReadPriority() Priority {
	return s.lastReadPriority
}

// Empty reports whether there is nothing left to send.
func (s *SendBuffer) Empty() bool {
	return len(s.entries) == 0
}

// Size returns the number of entries currently queued.
func (s *SendBuffer) Size() int {
	return len(s.entries)
}

// Clear discards every queued entry and resets read state, but preserves
// the queued/sent counters accumulated so far.
func (s *SendBuffer) Clear() {
	s.entries = nil
	s.active = nil
	s.clean = true
	s.lastReadLen = 0
}

// Stats returns a snapshot of the per-priority queued/sent counters.
func (s *SendBuffer) Stats() Stats {
	return s.stats
}

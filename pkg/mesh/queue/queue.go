// Package queue implements the bounded offline message queue of spec.md
// §4.8/P15: messages that could not be relayed to the internet
// immediately are held here, admitted/evicted by priority, and flushed
// with a retry cap once a gateway becomes reachable again. It is
// grounded on original_source/src/painlessmesh/message_queue.{hpp,cpp}'s
// MessageQueue, translated from its vector+linear-scan shape into a
// slice-backed Go queue with the same admission and retry policy.
package queue

import (
	"bufio"
	"os"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Priority mirrors the 4-level priority used throughout the mesh
// (spec.md §4.1); critical messages are never evicted to make room.
type Priority uint8

const (
	Critical Priority = 0
	High     Priority = 1
	Normal   Priority = 2
	Low      Priority = 3
)

// DefaultMaxSize and DefaultMaxRetries mirror the teacher's defaults
// (MessageQueue's maxQueueSize=500, maxRetryAttempts=3).
const (
	DefaultMaxSize    = 500
	DefaultMaxRetries = 3
)

// State is a queue fill-level bucket, fired through a state-change
// callback only on the edges the teacher's calculateQueueState names.
type State int

const (
	Empty State = iota
	Quarter
	Half
	ThreeQuarters
	Full
)

// Message is one queued relay request.
type Message struct {
	ID          uint32   `json:"id"`
	Priority    Priority `json:"priority"`
	Timestamp   uint32   `json:"timestamp"`
	Attempts    uint32   `json:"attempts"`
	Payload     string   `json:"payload"`
	Destination string   `json:"destination"`
}

// Stats mirrors QueueStats.
type Stats struct {
	TotalQueued uint32
	TotalSent   uint32
	TotalDropped uint32
	TotalFailed  uint32
	CurrentSize  uint32
	PeakSize     uint32
}

// SendFunc attempts to deliver one message and reports success.
type SendFunc func(payload, destination string) bool

// StateChangeFunc is invoked whenever the queue crosses a reporting
// threshold, with the new state and current message count.
type StateChangeFunc func(state State, count int)

// Queue is the bounded, priority-aware, optionally NDJSON-persisted
// offline message queue.
type Queue struct {
	messages []Message

	maxSize     int
	maxRetries  uint32
	nextID      uint32

	persistPath string
	persist     bool

	stats Stats

	onStateChange  StateChangeFunc
	lastNotified   State
}

// New returns a Queue configured per spec.md §4.8's defaults, which
// Init can override.
func New() *Queue {
	return &Queue{maxSize: DefaultMaxSize, maxRetries: DefaultMaxRetries, nextID: 1, lastNotified: Empty}
}

// Init sets the capacity and, if persistPath is non-empty, loads any
// previously-saved NDJSON queue from disk (spec.md §4.8).
func (q *Queue) Init(maxSize int, persistPath string) error {
	q.maxSize = maxSize
	q.persistPath = persistPath
	q.persist = persistPath != ""
	if !q.persist {
		return nil
	}
	if _, err := q.Load(); err != nil && !os.IsNotExist(errors.Cause(err)) {
		return err
	}
	return nil
}

// SetMaxRetryAttempts overrides the default retry cap.
func (q *Queue) SetMaxRetryAttempts(n uint32) {
	q.maxRetries = n
}

// OnStateChanged registers the fill-level callback.
func (q *Queue) OnStateChanged(fn StateChangeFunc) {
	q.onStateChange = fn
}

// IsFull reports whether the queue is at capacity.
func (q *Queue) IsFull() bool {
	return len(q.messages) >= q.maxSize
}

// IsEmpty reports whether the queue holds no messages.
func (q *Queue) IsEmpty() bool {
	return len(q.messages) == 0
}

// Stats returns a snapshot of the queue's counters.
func (q *Queue) Stats() Stats {
	return q.stats
}

// Enqueue admits a message at the given priority (spec.md P15): if the
// queue is full, Critical/High messages try to make room via makeSpace;
// Normal/Low messages are dropped outright. It returns the assigned
// message ID, or 0 if the message was dropped (including when
// makeSpace itself could not free a slot).
func (q *Queue) Enqueue(payload, destination string, priority Priority, now uint32) uint32 {
	if q.IsFull() {
		if priority == Critical || priority == High {
			if !q.makeSpace(now) {
				q.stats.TotalDropped++
				return 0
			}
		} else {
			q.stats.TotalDropped++
			return 0
		}
	}

	msg := Message{
		ID:          q.nextID,
		Priority:    priority,
		Timestamp:   now,
		Payload:     payload,
		Destination: destination,
	}
	q.nextID++
	q.messages = append(q.messages, msg)
	q.stats.TotalQueued++
	q.stats.CurrentSize = uint32(len(q.messages))
	if q.stats.CurrentSize > q.stats.PeakSize {
		q.stats.PeakSize = q.stats.CurrentSize
	}

	q.notifyStateChange()
	if q.persist && priority == Critical {
		_ = q.Save()
	}
	return msg.ID
}

// normalEvictionAge is the minimum age, in milliseconds, a NORMAL
// priority entry must reach before makeSpace will evict it (spec.md
// §4.8, original_source message_queue.cpp's makeSpace(): "Only remove
// old NORMAL messages (older than 1 hour)").
const normalEvictionAge = 3600000

// makeSpace evicts the oldest LOW priority entry; if none exists, the
// oldest NORMAL priority entry old enough to cross normalEvictionAge;
// otherwise it reports failure and leaves the queue untouched.
// CRITICAL/HIGH entries are never scanned, so they are never evicted to
// make room for each other (spec.md §4.8, P15).
func (q *Queue) makeSpace(now uint32) bool {
	for i, m := range q.messages {
		if m.Priority == Low {
			q.messages = append(q.messages[:i], q.messages[i+1:]...)
			q.stats.TotalDropped++
			return true
		}
	}
	for i, m := range q.messages {
		if m.Priority == Normal && now-m.Timestamp > normalEvictionAge {
			q.messages = append(q.messages[:i], q.messages[i+1:]...)
			q.stats.TotalDropped++
			return true
		}
	}
	return false
}

// Flush attempts to send every queued message via send, removing
// messages that succeed or that exceed the retry cap, and returns the
// number successfully sent (spec.md §4.8, P15).
func (q *Queue) Flush(send SendFunc) int {
	if send == nil {
		return 0
	}

	sent := 0
	kept := q.messages[:0:0]
	for _, m := range q.messages {
		m.Attempts++
		if send(m.Payload, m.Destination) {
			q.stats.TotalSent++
			sent++
			continue
		}
		if m.Attempts >= q.maxRetries {
			q.stats.TotalFailed++
			continue
		}
		kept = append(kept, m)
	}
	q.messages = kept
	q.stats.CurrentSize = uint32(len(q.messages))

	q.notifyStateChange()
	if q.persist {
		_ = q.Save()
	}
	return sent
}

// Count returns the number of queued messages, optionally filtered by
// priority.
func (q *Queue) Count(priority *Priority) int {
	if priority == nil {
		return len(q.messages)
	}
	n := 0
	for _, m := range q.messages {
		if m.Priority == *priority {
			n++
		}
	}
	return n
}

// Prune removes messages older than maxAge (in the same millisecond
// units as now), returning how many were removed.
func (q *Queue) Prune(maxAge uint32, now uint32) int {
	kept := q.messages[:0:0]
	removed := 0
	for _, m := range q.messages {
		if now-m.Timestamp > maxAge {
			removed++
			continue
		}
		kept = append(kept, m)
	}
	q.messages = kept
	if removed > 0 {
		q.stats.CurrentSize = uint32(len(q.messages))
		q.notifyStateChange()
		if q.persist {
			_ = q.Save()
		}
	}
	return removed
}

// Clear discards every queued message.
func (q *Queue) Clear() {
	q.messages = nil
	q.stats.CurrentSize = 0
	q.notifyStateChange()
	if q.persist {
		_ = q.Save()
	}
}

func calculateState(count, maxSize int) State {
	if count == 0 {
		return Empty
	}
	if maxSize <= 0 {
		return Full
	}
	ratio := float64(count) / float64(maxSize)
	switch {
	case ratio >= 1:
		return Full
	case ratio >= 0.75:
		return ThreeQuarters
	case ratio >= 0.5:
		return Half
	case ratio >= 0.25:
		return Quarter
	default:
		return Empty
	}
}

func (q *Queue) notifyStateChange() {
	state := calculateState(len(q.messages), q.maxSize)
	if state == q.lastNotified {
		return
	}
	q.lastNotified = state
	if q.onStateChange != nil {
		q.onStateChange(state, len(q.messages))
	}
}

// Save persists the current queue to persistPath as newline-delimited
// JSON, one message per line: an exact format chosen so a partially
// written file can be recovered line-by-line rather than losing the
// whole queue to one truncated trailing record (spec.md §4.8).
func (q *Queue) Save() error {
	if q.persistPath == "" {
		return errors.New("queue: no persistence path configured")
	}
	f, err := os.Create(q.persistPath)
	if err != nil {
		return errors.Wrap(err, "queue: create persistence file")
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, m := range q.messages {
		line, err := json.Marshal(m)
		if err != nil {
			return errors.Wrap(err, "queue: marshal message")
		}
		if _, err := w.Write(line); err != nil {
			return errors.Wrap(err, "queue: write message")
		}
		if err := w.WriteByte('\n'); err != nil {
			return errors.Wrap(err, "queue: write newline")
		}
	}
	return w.Flush()
}

// Load replaces the in-memory queue with the contents of persistPath,
// skipping (rather than failing on) any unparsable trailing line, and
// returns the number of messages loaded.
func (q *Queue) Load() (int, error) {
	f, err := os.Open(q.persistPath)
	if err != nil {
		return 0, errors.Wrap(err, "queue: open persistence file")
	}
	defer f.Close()

	var loaded []Message
	var maxID uint32
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var m Message
		if err := json.Unmarshal(line, &m); err != nil {
			continue
		}
		loaded = append(loaded, m)
		if m.ID > maxID {
			maxID = m.ID
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, errors.Wrap(err, "queue: scan persistence file")
	}

	q.messages = loaded
	q.stats.CurrentSize = uint32(len(loaded))
	if q.stats.CurrentSize > q.stats.PeakSize {
		q.stats.PeakSize = q.stats.CurrentSize
	}
	if maxID >= q.nextID {
		q.nextID = maxID + 1
	}
	return len(loaded), nil
}

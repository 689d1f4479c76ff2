// Package buffer implements the per-connection framed receive/send buffer
// pair of spec.md §4.1, grounded on
// original_source/src/painlessmesh/buffer.hpp's ReceiveBuffer<T>/
// SentBuffer<T> templates.
package buffer

// DefaultChunkSize matches the transport MSS assumption the original
// firmware buffer was sized against (TCP_MSS, spec.md §4.1).
const DefaultChunkSize = 1024

// Scratch stands in for the fixed temp_buffer_t the C++ buffer pair
// reused across push calls. Push uses only its size: it walks the input
// in chunks of len(buf) bytes, and no bytes are copied into buf. A
// single Scratch can be shared across many connections' Push calls; a
// nil Scratch makes Push allocate one of DefaultChunkSize.
type Scratch struct {
	buf []byte
}

// NewScratch allocates a Scratch sized to chunkSize bytes.
func NewScratch(chunkSize int) *Scratch {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Scratch{buf: make([]byte, chunkSize)}
}

// ReceiveBuffer accumulates a byte stream that is a concatenation of
// NUL-terminated UTF-8 JSON objects into a FIFO queue of whole messages.
// A single Push may straddle zero or more message boundaries; empty
// fragments (two NULs in a row, or a push ending exactly on one) are
// skipped rather than queued.
type ReceiveBuffer struct {
	current []byte
	queue   [][]byte
}

// NewReceiveBuffer returns an empty ReceiveBuffer.
func NewReceiveBuffer() *ReceiveBuffer {
	return &ReceiveBuffer{}
}

// Push appends data to the buffer, splitting on NUL bytes. Every complete,
// non-empty message found is appended to the FIFO queue in order.
func (r *ReceiveBuffer) Push(data []byte, scratch *Scratch) {
	if scratch == nil {
		scratch = NewScratch(DefaultChunkSize)
	}

	for len(data) > 0 {
		n := len(data)
		if n > len(scratch.buf) {
			n = len(scratch.buf)
		}
		chunk := data[:n]
		data = data[n:]

		start := 0
		for i, b := range chunk {
			if b == 0 {
				r.current = append(r.current, chunk[start:i]...)
				r.flushCurrent()
				start = i + 1
			}
		}
		r.current = append(r.current, chunk[start:]...)
	}
}

func (r *ReceiveBuffer) flushCurrent() {
	if len(r.current) > 0 {
		msg := make([]byte, len(r.current))
		copy(msg, r.current)
		r.queue = append(r.queue, msg)
	}
	r.current = r.current[:0]
}

// Front returns the oldest queued message without removing it. Returns nil
// if the buffer is empty.
func (r *ReceiveBuffer) Front() []byte {
	if r.Empty() {
		return nil
	}
	return r.queue[0]
}

// PopFront removes and returns the oldest queued message. Returns nil if
// the buffer is empty.
func (r *ReceiveBuffer) PopFront() []byte {
	if r.Empty() {
		return nil
	}
	msg := r.queue[0]
	r.queue = r.queue[1:]
	return msg
}

// Empty reports whether there is no complete message waiting.
func (r *ReceiveBuffer) Empty() bool {
	return len(r.queue) == 0
}

// Clear discards all queued and in-progress data.
func (r *ReceiveBuffer) Clear() {
	r.queue = nil
	r.current = r.current[:0]
}

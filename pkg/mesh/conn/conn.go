// Package conn implements the per-link connection state of spec.md §3/§4:
// NUL-framed receive buffering, 4-level priority send buffering, node-sync
// cadence, a read/idle timeout, and traffic/latency metrics. It is
// grounded on original_source/src/painlessmesh/connection.hpp's
// BufferedConnection, translated from its AsyncClient-callback shape into
// explicit task.Scheduler entries driven by a cooperative Update loop
// (spec.md §9's shared_ptr/captured-this redesign: no self-referencing
// closures, no deferred-deletion spacing hack — a stale task.ID is
// already a safe no-op once the owning Connection is dropped from its
// slotmap.Map).
package conn

import (
	"time"

	"github.com/pkg/errors"

	"github.com/painlessmesh/gomesh/pkg/mesh/buffer"
	"github.com/painlessmesh/gomesh/pkg/mesh/health"
	"github.com/painlessmesh/gomesh/pkg/mesh/task"
)

// Default cadences, matching spec.md §3/§4's per-connection task set.
// DefaultTimeoutTicks must stay comfortably above DefaultNodeSyncCadence: a
// quiet link's only guaranteed traffic is the station's own periodic
// node-sync round trip, so an idle window shorter than that cadence would
// close every otherwise-healthy connection between syncs.
const (
	DefaultTickInterval    = 100 * time.Millisecond
	DefaultNodeSyncCadence = 36 // ticks between station-initiated node-sync requests
	DefaultTimeSyncCadence = 36 // ticks between station-initiated time-sync requests
	DefaultTimeoutTicks    = 60 // ticks of silence before a connection is considered dead
	sendChunkSize          = 1024
)

// Transport is the minimal sink/source a Connection needs: something
// that can hand off a framed byte slice and be closed. Concrete
// implementations (e.g. pkg/mesh/transport's TCP adapter) read inbound
// bytes off their own goroutine and deliver them to Connection.Receive.
type Transport interface {
	Send(data []byte) error
	Close() error
}

// Handlers bundles the callbacks a Connection fires; all are optional.
type Handlers struct {
	OnReceive      func(data []byte)
	OnDisconnect   func()
	OnNodeSyncDue  func()
	OnTimeSyncDue  func()
	OnIdleTimeout  func()
}

// Connection is one link's buffering and scheduling state. Its identity
// (the neighbor's node ID) is assigned once the first node-sync exchange
// completes; before that NeighborID is 0, matching spec.md §3's
// "neighborId (initially 0, set after first node-sync)".
type Connection struct {
	NeighborID    uint32
	IsStation     bool
	NewConnection bool

	transport Transport
	scratch   *buffer.Scratch
	recvBuf   *buffer.ReceiveBuffer
	sendBuf   *buffer.SendBuffer
	metrics   *health.ConnMetrics

	handlers Handlers

	scheduler      task.Scheduler
	sendTaskID     task.ID
	syncTaskID     task.ID
	timeSyncTaskID task.ID
	idleTaskID     task.ID

	ticksSinceReceive int
	idleSuspended     bool
	closed            bool
}

// New returns a Connection wrapping transport. isStation marks whether
// this node initiated the link, which determines node-sync cadence
// ownership (spec.md §3).
func New(transport Transport, isStation bool, handlers Handlers) *Connection {
	return &Connection{
		IsStation:     isStation,
		NewConnection: true,
		transport:     transport,
		scratch:       buffer.NewScratch(sendChunkSize),
		recvBuf:       buffer.NewReceiveBuffer(),
		sendBuf:       buffer.NewSendBuffer(),
		metrics:       health.NewConnMetrics(),
		handlers:      handlers,
	}
}

// Start registers this connection's recurring tasks on scheduler: a
// send-drain tick at tickInterval, a station-side node-sync cadence
// every nodeSyncEvery ticks, a station-side time-sync cadence every
// timeSyncEvery ticks, and an idle timeout check that fires once
// idleTimeoutTicks consecutive ticks pass without any received data
// (spec.md §3, §4.2, §4.6).
func (c *Connection) Start(scheduler task.Scheduler, tickInterval time.Duration, nodeSyncEvery, timeSyncEvery, idleTimeoutTicks int) {
	c.scheduler = scheduler
	c.sendTaskID = scheduler.Every(tickInterval, func() { c.drainSend() })
	if c.IsStation {
		c.syncTaskID = scheduler.Every(tickInterval*time.Duration(nodeSyncEvery), func() {
			if c.handlers.OnNodeSyncDue != nil {
				c.handlers.OnNodeSyncDue()
			}
		})
		c.timeSyncTaskID = scheduler.Every(tickInterval*time.Duration(timeSyncEvery), func() {
			if c.handlers.OnTimeSyncDue != nil {
				c.handlers.OnTimeSyncDue()
			}
		})
	}
	c.idleTaskID = scheduler.Every(tickInterval, func() {
		if c.idleSuspended {
			return
		}
		c.ticksSinceReceive++
		if c.ticksSinceReceive >= idleTimeoutTicks {
			if c.handlers.OnIdleTimeout != nil {
				c.handlers.OnIdleTimeout()
			}
		}
	})
}

// Write enqueues data at priority for sending, returning an error only
// if the connection is already closed.
func (c *Connection) Write(data []byte, priority buffer.Priority) error {
	if c.closed {
		return errors.New("conn: write to closed connection")
	}
	c.sendBuf.PushWithPriority(data, priority)
	c.drainSend()
	return nil
}

// drainSend pushes as much of the send buffer through the transport as
// is ready, mirroring writeNext()'s one-entry-per-call shape but without
// AsyncClient's non-blocking space() accounting since Go's net.Conn
// write is already a complete, blocking transfer of the slice handed to
// it.
func (c *Connection) drainSend() {
	if c.closed || c.sendBuf.Empty() {
		return
	}
	n := c.sendBuf.RequestLength(sendChunkSize)
	if n == 0 {
		return
	}
	ptr := c.sendBuf.ReadPtr(n)
	if err := c.transport.Send(ptr); err != nil {
		c.metrics.RecordDropped()
		return
	}
	c.metrics.RecordSent(n)
	c.sendBuf.FreeRead()
}

// Receive feeds newly-arrived bytes into the NUL-framed receive buffer
// and dispatches every complete message found, mirroring onData's
// push-then-drain shape.
func (c *Connection) Receive(data []byte) {
	if c.closed {
		return
	}
	c.recvBuf.Push(data, c.scratch)
	c.metrics.RecordReceived(len(data))
	c.ticksSinceReceive = 0
	c.NewConnection = false
	for !c.recvBuf.Empty() {
		msg := c.recvBuf.PopFront()
		if c.handlers.OnReceive != nil {
			c.handlers.OnReceive(msg)
		}
	}
}

// SuspendIdleTimeout stops counting silent ticks toward the idle
// timeout, without cancelling the underlying task. Used while a slow
// foreground operation (e.g. a gateway relay's outbound HTTP call) is
// borrowing this connection's read thread and would otherwise starve
// its own keepalive traffic (spec.md §4.8 step 2).
func (c *Connection) SuspendIdleTimeout() {
	c.ticksSinceReceive = 0
	c.idleSuspended = true
}

// ResumeIdleTimeout re-arms idle-timeout counting and resets the
// silence counter, as if data had just been received.
func (c *Connection) ResumeIdleTimeout() {
	c.idleSuspended = false
	c.ticksSinceReceive = 0
}

// RecordLatency feeds one time-sync round-trip sample into this
// connection's rolling latency window (spec.md §3).
func (c *Connection) RecordLatency(ms float64) {
	c.metrics.RecordLatency(ms)
}

// Metrics returns a point-in-time snapshot of this connection's traffic
// and latency counters.
func (c *Connection) Metrics() health.Snapshot {
	return c.metrics.Snapshot()
}

// Connected reports whether Close has not yet been called.
func (c *Connection) Connected() bool {
	return !c.closed
}

// Close cancels this connection's scheduled tasks, closes its
// transport, and fires OnDisconnect exactly once.
func (c *Connection) Close() {
	if c.closed {
		return
	}
	c.closed = true
	if c.scheduler != nil {
		c.scheduler.Cancel(c.sendTaskID)
		c.scheduler.Cancel(c.syncTaskID)
		c.scheduler.Cancel(c.timeSyncTaskID)
		c.scheduler.Cancel(c.idleTaskID)
	}
	c.sendBuf.Clear()
	c.recvBuf.Clear()
	_ = c.transport.Close()
	if c.handlers.OnDisconnect != nil {
		c.handlers.OnDisconnect()
	}
}

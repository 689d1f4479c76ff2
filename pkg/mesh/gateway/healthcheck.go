package gateway

import (
	"net"
	"strconv"
	"sync"
	"time"
)

// Status is a point-in-time snapshot of internet reachability (spec.md
// §4.8).
type Status struct {
	Available     bool
	LastCheck     time.Time
	LastSuccess   time.Time
	LastLatencyMs int64
	CheckCount    uint64
	SuccessCount  uint64
	FailureCount  uint64
	LastError     string
}

// Dialer matches net.DialTimeout's signature so tests can substitute a
// fake without opening a real socket. The TCP-only probe (rather than a
// full HTTP GET) is a deliberate choice: spec.md §4.8 only asks whether
// the configured host:port answers, not whether a given endpoint's
// content is reachable — that distinction belongs to sendToInternet's
// own HTTP client (pkg/mesh/gateway's fasthttp-based relay).
type Dialer func(network, address string, timeout time.Duration) (net.Conn, error)

// HealthChecker periodically probes a host:port over TCP and reports
// edge-triggered connectivity changes (spec.md §4.8).
type HealthChecker struct {
	mu sync.Mutex

	host    string
	port    int
	timeout time.Duration
	dial    Dialer

	status Status

	onChange func(available bool)
}

// NewHealthChecker returns a checker for host:port using net.DialTimeout
// as its dialer unless overridden with SetDialer.
func NewHealthChecker(host string, port int, timeout time.Duration) *HealthChecker {
	return &HealthChecker{
		host:    host,
		port:    port,
		timeout: timeout,
		dial:    net.DialTimeout,
	}
}

// SetDialer overrides the TCP dial function, used by tests.
func (h *HealthChecker) SetDialer(d Dialer) {
	h.dial = d
}

// OnConnectivityChanged registers the edge-triggered callback.
func (h *HealthChecker) OnConnectivityChanged(fn func(available bool)) {
	h.onChange = fn
}

// Status returns the current health snapshot.
func (h *HealthChecker) Status() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

// Check performs one probe, updates the snapshot, and fires
// onChange if availability flipped.
func (h *HealthChecker) Check(now time.Time) Status {
	address := net.JoinHostPort(h.host, strconv.Itoa(h.port))
	start := now

	conn, err := h.dial("tcp", address, h.timeout)

	h.mu.Lock()
	defer h.mu.Unlock()

	wasAvailable := h.status.Available
	h.status.LastCheck = now
	h.status.CheckCount++

	if err != nil {
		h.status.Available = false
		h.status.FailureCount++
		h.status.LastError = err.Error()
	} else {
		conn.Close()
		h.status.Available = true
		h.status.LastSuccess = now
		h.status.SuccessCount++
		h.status.LastLatencyMs = now.Sub(start).Milliseconds()
		h.status.LastError = ""
	}

	if h.status.Available != wasAvailable && h.onChange != nil {
		h.onChange(h.status.Available)
	}
	return h.status
}

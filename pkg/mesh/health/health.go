// Package health tracks per-connection traffic/latency metrics (spec.md
// §3, "Per-connection priority buffering and health metrics") and
// exposes them as a prometheus.Collector, grounded on
// runZeroInc-sockstats's TCPInfoCollector: a map of live entries guarded
// by a mutex, scraped on demand rather than pushed.
package health

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// latencyWindow is the rolling sample count spec.md §3 calls for
// ("latencySamples (rolling window ≤10)").
const latencyWindow = 10

// ConnMetrics tracks one connection's traffic counters and a rolling
// latency window, used to compute Quality().
type ConnMetrics struct {
	mu sync.Mutex

	messagesRx, messagesTx, messagesDropped uint64
	bytesRx, bytesTx                        uint64

	latencySamples []float64
	next           int
}

// NewConnMetrics returns a zeroed ConnMetrics.
func NewConnMetrics() *ConnMetrics {
	return &ConnMetrics{latencySamples: make([]float64, 0, latencyWindow)}
}

// RecordReceived accounts for one inbound message of n bytes.
func (c *ConnMetrics) RecordReceived(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messagesRx++
	c.bytesRx += uint64(n)
}

// RecordSent accounts for one outbound message of n bytes.
func (c *ConnMetrics) RecordSent(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messagesTx++
	c.bytesTx += uint64(n)
}

// RecordDropped accounts for one message discarded instead of sent (e.g.
// a transport write that failed).
func (c *ConnMetrics) RecordDropped() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messagesDropped++
}

// RecordLatency appends a round-trip sample in milliseconds to the
// rolling window, evicting the oldest sample once full.
func (c *ConnMetrics) RecordLatency(ms float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.latencySamples) < latencyWindow {
		c.latencySamples = append(c.latencySamples, ms)
		return
	}
	c.latencySamples[c.next] = ms
	c.next = (c.next + 1) % latencyWindow
}

// Snapshot is a point-in-time copy of a ConnMetrics' counters.
type Snapshot struct {
	MessagesRx, MessagesTx, MessagesDropped uint64
	BytesRx, BytesTx                        uint64
	AverageLatencyMs                        float64
}

// Snapshot returns the current counters and average latency.
func (c *ConnMetrics) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	var sum float64
	for _, s := range c.latencySamples {
		sum += s
	}
	avg := 0.0
	if len(c.latencySamples) > 0 {
		avg = sum / float64(len(c.latencySamples))
	}
	return Snapshot{
		MessagesRx:       c.messagesRx,
		MessagesTx:       c.messagesTx,
		MessagesDropped:  c.messagesDropped,
		BytesRx:          c.bytesRx,
		BytesTx:          c.bytesTx,
		AverageLatencyMs: avg,
	}
}

// Quality condenses a snapshot into a 0-100 score, following spec.md
// §4.2's formula: 100 − max(0,(latency−100)/5) − lossPct − an RSSI
// term. ConnMetrics tracks no RSSI (an out-of-scope link-layer input at
// this layer), so that term is always 0; gateway.Election is where RSSI
// actually factors into a decision.
func (s Snapshot) Quality() float64 {
	quality := 100.0
	if s.AverageLatencyMs > 100 {
		quality -= (s.AverageLatencyMs - 100) / 5
	}
	if total := s.MessagesTx + s.MessagesDropped; total > 0 {
		lossPct := float64(s.MessagesDropped) / float64(total) * 100
		quality -= lossPct
	}
	if quality < 0 {
		quality = 0
	}
	if quality > 100 {
		quality = 100
	}
	return quality
}

// Collector implements prometheus.Collector over a dynamic set of named
// connections, following TCPInfoCollector's add/remove/scrape shape.
type Collector struct {
	mu    sync.Mutex
	conns map[string]*ConnMetrics

	descRx, descTx, descDropped, descBytesRx, descBytesTx, descLatency, descQuality *prometheus.Desc
}

// NewCollector returns a Collector with no connections registered.
func NewCollector(namespace string) *Collector {
	labels := []string{"connection"}
	return &Collector{
		conns:       make(map[string]*ConnMetrics),
		descRx:      prometheus.NewDesc(namespace+"_messages_received_total", "Messages received on a connection.", labels, nil),
		descTx:      prometheus.NewDesc(namespace+"_messages_sent_total", "Messages sent on a connection.", labels, nil),
		descDropped: prometheus.NewDesc(namespace+"_messages_dropped_total", "Messages dropped on a connection.", labels, nil),
		descBytesRx: prometheus.NewDesc(namespace+"_bytes_received_total", "Bytes received on a connection.", labels, nil),
		descBytesTx: prometheus.NewDesc(namespace+"_bytes_sent_total", "Bytes sent on a connection.", labels, nil),
		descLatency: prometheus.NewDesc(namespace+"_latency_ms_average", "Average round-trip latency over the rolling sample window.", labels, nil),
		descQuality: prometheus.NewDesc(namespace+"_connection_quality", "Derived [0,100] connection quality score.", labels, nil),
	}
}

// Add registers name's metrics with the collector, creating them if new.
func (c *Collector) Add(name string) *ConnMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.conns[name]
	if !ok {
		m = NewConnMetrics()
		c.conns[name] = m
	}
	return m
}

// Remove stops tracking name.
func (c *Collector) Remove(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.conns, name)
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(descs chan<- *prometheus.Desc) {
	descs <- c.descRx
	descs <- c.descTx
	descs <- c.descDropped
	descs <- c.descBytesRx
	descs <- c.descBytesTx
	descs <- c.descLatency
	descs <- c.descQuality
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(metrics chan<- prometheus.Metric) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for name, m := range c.conns {
		snap := m.Snapshot()
		metrics <- prometheus.MustNewConstMetric(c.descRx, prometheus.CounterValue, float64(snap.MessagesRx), name)
		metrics <- prometheus.MustNewConstMetric(c.descTx, prometheus.CounterValue, float64(snap.MessagesTx), name)
		metrics <- prometheus.MustNewConstMetric(c.descDropped, prometheus.CounterValue, float64(snap.MessagesDropped), name)
		metrics <- prometheus.MustNewConstMetric(c.descBytesRx, prometheus.CounterValue, float64(snap.BytesRx), name)
		metrics <- prometheus.MustNewConstMetric(c.descBytesTx, prometheus.CounterValue, float64(snap.BytesTx), name)
		metrics <- prometheus.MustNewConstMetric(c.descLatency, prometheus.GaugeValue, snap.AverageLatencyMs, name)
		metrics <- prometheus.MustNewConstMetric(c.descQuality, prometheus.GaugeValue, snap.Quality(), name)
	}
}

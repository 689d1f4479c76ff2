package health

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestRecordAndSnapshot(t *testing.T) {
	m := NewConnMetrics()
	m.RecordReceived(10)
	m.RecordSent(20)
	m.RecordDropped()
	m.RecordLatency(50)
	m.RecordLatency(150)

	snap := m.Snapshot()
	if snap.MessagesRx != 1 || snap.MessagesTx != 1 || snap.MessagesDropped != 1 {
		t.Fatalf("unexpected counters: %+v", snap)
	}
	if snap.BytesRx != 10 || snap.BytesTx != 20 {
		t.Fatalf("unexpected byte counters: %+v", snap)
	}
	if snap.AverageLatencyMs != 100 {
		t.Fatalf("expected average latency 100, got %f", snap.AverageLatencyMs)
	}
}

func TestLatencyWindowEvictsOldest(t *testing.T) {
	m := NewConnMetrics()
	for i := 0; i < latencyWindow; i++ {
		m.RecordLatency(0)
	}
	m.RecordLatency(1000)
	snap := m.Snapshot()
	if snap.AverageLatencyMs != 100 {
		t.Fatalf("expected eviction to replace one zero sample, got %f", snap.AverageLatencyMs)
	}
}

func TestQualityPenalizesDropsAndLatency(t *testing.T) {
	perfect := Snapshot{MessagesTx: 10}
	if perfect.Quality() != 100 {
		t.Fatalf("expected perfect quality, got %f", perfect.Quality())
	}

	lossy := Snapshot{MessagesTx: 5, MessagesDropped: 5}
	if q := lossy.Quality(); q >= 100 {
		t.Fatalf("expected lossy connection to be penalized, got %f", q)
	}

	slow := Snapshot{MessagesTx: 10, AverageLatencyMs: 700}
	if q := slow.Quality(); q >= 100 {
		t.Fatalf("expected slow connection to be penalized, got %f", q)
	}
}

func TestCollectorDescribeAndCollect(t *testing.T) {
	c := NewCollector("mesh")
	m := c.Add("conn-1")
	m.RecordReceived(5)

	descs := make(chan *prometheus.Desc, 16)
	c.Describe(descs)
	close(descs)
	if len(descs) != 7 {
		t.Fatalf("expected 7 descriptors, got %d", len(descs))
	}

	metrics := make(chan prometheus.Metric, 16)
	c.Collect(metrics)
	close(metrics)
	if len(metrics) != 7 {
		t.Fatalf("expected 7 metrics for one connection, got %d", len(metrics))
	}
}

func TestCollectorRemoveStopsReporting(t *testing.T) {
	c := NewCollector("mesh")
	c.Add("conn-1")
	c.Remove("conn-1")
	if len(c.conns) != 0 {
		t.Fatalf("expected connection removed")
	}
}

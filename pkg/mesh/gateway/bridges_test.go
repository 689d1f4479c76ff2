package gateway

import (
	"testing"
	"time"
)

func TestPrimaryPicksBestHealthyRSSI(t *testing.T) {
	table := NewTable()
	now := time.Unix(1000, 0)
	table.Update(BridgeInfo{NodeID: 1, InternetConnected: true, RouterRSSI: -70, LastSeen: now})
	table.Update(BridgeInfo{NodeID: 2, InternetConnected: true, RouterRSSI: -40, LastSeen: now})
	table.Update(BridgeInfo{NodeID: 3, InternetConnected: false, RouterRSSI: -10, LastSeen: now})

	primary, ok := table.Primary(now)
	if !ok || primary.NodeID != 2 {
		t.Fatalf("expected node 2 (best healthy RSSI), got %+v ok=%v", primary, ok)
	}
}

func TestPrimaryExcludesStaleEntries(t *testing.T) {
	table := NewTable()
	now := time.Unix(1000, 0)
	stale := now.Add(-StaleAfter - time.Second)
	table.Update(BridgeInfo{NodeID: 1, InternetConnected: true, RouterRSSI: -30, LastSeen: stale})

	if _, ok := table.Primary(now); ok {
		t.Fatalf("expected stale bridge to be excluded from primary selection")
	}
}

func TestRemoveDropsBridge(t *testing.T) {
	table := NewTable()
	now := time.Unix(0, 0)
	table.Update(BridgeInfo{NodeID: 1, InternetConnected: true, LastSeen: now})
	table.Remove(1)
	if _, ok := table.Primary(now); ok {
		t.Fatalf("expected no primary after removal")
	}
}

package gateway

import "time"

// BridgeInfo is one entry in the session's knownBridges table, built
// from the most recent BridgeStatus a node has broadcast (spec.md
// §4.8).
type BridgeInfo struct {
	NodeID            uint32
	InternetConnected bool
	RouterRSSI        int32
	RouterChannel     int32
	Uptime            uint32
	GatewayIP         string
	LastSeen          time.Time
}

// StaleAfter is how long a BridgeInfo is trusted without a fresh
// BridgeStatus before it is excluded from primary selection (spec.md
// §4.8 "healthy" and "never use stale data for routing").
const StaleAfter = 45 * time.Second // matches the default heartbeat failure timeout

// IsHealthy reports whether info is recent enough and internet-connected
// to be considered for primary bridge selection.
func (info BridgeInfo) IsHealthy(now time.Time) bool {
	return info.InternetConnected && now.Sub(info.LastSeen) < StaleAfter
}

// Table tracks every bridge the local node has heard a BridgeStatus
// from, keyed by node ID.
type Table struct {
	bridges map[uint32]BridgeInfo
}

// NewTable returns an empty bridge table.
func NewTable() *Table {
	return &Table{bridges: make(map[uint32]BridgeInfo)}
}

// Update records or refreshes a bridge's status (spec.md §4.8 "Every
// node updates its knownBridges table on receipt").
func (t *Table) Update(info BridgeInfo) {
	t.bridges[info.NodeID] = info
}

// Remove drops a bridge from the table, used when its owning connection
// is lost.
func (t *Table) Remove(nodeID uint32) {
	delete(t.bridges, nodeID)
}

// All returns every known bridge, in no particular order.
func (t *Table) All() []BridgeInfo {
	out := make([]BridgeInfo, 0, len(t.bridges))
	for _, info := range t.bridges {
		out = append(out, info)
	}
	return out
}

// Primary returns the healthy bridge with the best RouterRSSI, per
// spec.md §4.8: "primary is picked as healthy AND internetConnected AND
// best RSSI".
func (t *Table) Primary(now time.Time) (BridgeInfo, bool) {
	var best BridgeInfo
	found := false
	for _, info := range t.bridges {
		if !info.IsHealthy(now) {
			continue
		}
		if !found || info.RouterRSSI > best.RouterRSSI {
			best = info
			found = true
		}
	}
	return best, found
}

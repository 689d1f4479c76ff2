// Package mesh is the root of the runtime: Session ties together
// protocol dispatch, routing, node-sync, time-sync, per-connection
// buffering, the gateway subsystem and the offline queue into the
// single public API spec.md §4.7 names. Everything link-layer specific
// (Wi-Fi association, RSSI scanning, physical RTC hardware, the raw
// TCP socket) is an injected collaborator; Session itself only ever
// touches the Transport, Scheduler, rtc.Source and RouterScanner
// interfaces.
package mesh

import (
	"fmt"
	"time"

	"github.com/painlessmesh/gomesh/pkg/mesh/gateway"
)

// Default configuration knobs (spec.md §6).
const (
	DefaultNodeTimeout      = 10 * time.Second
	DefaultNodeSyncInterval = 60 * time.Second
	DefaultStationDelay     = 10 * time.Second
	DefaultMeshPort         = 5555
)

// RouterScanner reports the configured router's current visibility and
// signal strength, the seam standing in for the wireless link layer's
// RSSI scan during bridge election (spec.md §4.8 step 1). FreeMemory
// and Uptime stand in for the platform's own introspection, used only
// to build this node's BridgeElection candidate.
type RouterScanner interface {
	Scan() (rssiDBm int32, visible bool)
	FreeMemory() uint32
	Uptime() time.Duration
}

// Config is the mesh session's own configuration, independent of the
// gateway subsystem's Config (pkg/mesh/gateway).
type Config struct {
	NodeID            uint32
	Root              bool
	ShouldContainRoot bool

	NodeTimeout      time.Duration
	NodeSyncInterval time.Duration
	StationDelay     time.Duration
	Port             int

	Gateway gateway.Config
}

// DefaultConfig returns a Config with every spec.md §6 default filled
// in. Callers still must set NodeID.
func DefaultConfig() Config {
	return Config{
		NodeTimeout:      DefaultNodeTimeout,
		NodeSyncInterval: DefaultNodeSyncInterval,
		StationDelay:     DefaultStationDelay,
		Port:             DefaultMeshPort,
		Gateway:          gateway.DefaultConfig(),
	}
}

// APAddress computes the mesh access-point IP address a node
// advertises for its nodeId, per spec.md §6's
// "10.(nodeId>>8 & 0xFF).(nodeId & 0xFF).1" formula.
func APAddress(nodeID uint32) string {
	return fmt.Sprintf("10.%d.%d.1", (nodeID>>8)&0xFF, nodeID&0xFF)
}

package mesh

import (
	"github.com/painlessmesh/gomesh/pkg/mesh/gateway"
	"github.com/painlessmesh/gomesh/pkg/mesh/protocol"
)

// PackageHandler is a user-registered plugin-type handler (spec.md
// §4.3): it receives a decoded Variant whose Type is >= PluginRangeStart
// and reports whether it fully handled the message. The first handler
// in a type's chain to return true stops dispatch.
type PackageHandler func(protocol.Variant) bool

// OnReceive registers handler for pluginType, appending it to that
// type's dispatch chain.
func (s *Session) OnReceive(pluginType protocol.Type, handler PackageHandler) {
	s.receiveHandlers[pluginType] = append(s.receiveHandlers[pluginType], handler)
}

// OnNewConnection registers a callback fired when a connection's first
// node-sync completes, with the neighbor's node ID learned from it.
func (s *Session) OnNewConnection(fn func(nodeID uint32)) {
	s.onNewConnection = append(s.onNewConnection, fn)
}

// OnDroppedConnection registers a callback fired when a connection is
// closed (loop/root-conflict close, idle timeout, or transport
// disconnect).
func (s *Session) OnDroppedConnection(fn func(nodeID uint32)) {
	s.onDroppedConnection = append(s.onDroppedConnection, fn)
}

// OnChangedConnections registers a callback fired whenever the local
// topology view changes shape (spec.md §4.5).
func (s *Session) OnChangedConnections(fn func()) {
	s.onChangedConnections = append(s.onChangedConnections, fn)
}

// OnNodeTimeAdjusted registers a callback fired when a time-sync
// exchange causes this node to adopt a new time offset.
func (s *Session) OnNodeTimeAdjusted(fn func(nodeID uint32, offsetMs int64)) {
	s.onNodeTimeAdjusted = append(s.onNodeTimeAdjusted, fn)
}

// OnNodeDelayReceived registers a callback fired when a
// StartDelayMeasurement round-trip completes.
func (s *Session) OnNodeDelayReceived(fn func(nodeID uint32, roundTripMs int64)) {
	s.onNodeDelayReceived = append(s.onNodeDelayReceived, fn)
}

// OnBridgeStatusChanged registers a callback fired whenever a
// BridgeStatus broadcast updates knownBridges.
func (s *Session) OnBridgeStatusChanged(fn func(gateway.BridgeInfo)) {
	s.onBridgeStatusChanged = append(s.onBridgeStatusChanged, fn)
}

// OnGatewayChanged registers a callback fired whenever the selected
// primary bridge changes (including losing one).
func (s *Session) OnGatewayChanged(fn func(primary uint32, ok bool)) {
	s.onGatewayChanged = append(s.onGatewayChanged, fn)
}

func (s *Session) fireNewConnection(nodeID uint32) {
	for _, fn := range s.onNewConnection {
		fn(nodeID)
	}
}

func (s *Session) fireDroppedConnection(nodeID uint32) {
	for _, fn := range s.onDroppedConnection {
		fn(nodeID)
	}
}

func (s *Session) fireChangedConnections() {
	for _, fn := range s.onChangedConnections {
		fn()
	}
}

func (s *Session) fireNodeTimeAdjusted(nodeID uint32, offsetMs int64) {
	for _, fn := range s.onNodeTimeAdjusted {
		fn(nodeID, offsetMs)
	}
}

func (s *Session) fireNodeDelayReceived(nodeID uint32, roundTripMs int64) {
	for _, fn := range s.onNodeDelayReceived {
		fn(nodeID, roundTripMs)
	}
}

func (s *Session) fireBridgeStatusChanged(info gateway.BridgeInfo) {
	for _, fn := range s.onBridgeStatusChanged {
		fn(info)
	}
}

func (s *Session) fireGatewayChanged(primary uint32, ok bool) {
	for _, fn := range s.onGatewayChanged {
		fn(primary, ok)
	}
}

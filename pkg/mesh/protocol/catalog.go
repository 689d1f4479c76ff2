// Package protocol implements the tagged JSON envelope of spec.md §4.3/§6:
// every message on the wire is a NUL-terminated JSON object carrying at
// least {type, from, dest, routing}, with reserved (0-15), gateway
// (610-622) and user/plugin (>=16) type ranges. Decode replaces the
// teacher's deep Package/SinglePackage inheritance chain with a single
// peek-then-switch over the wire "type" field, per the redesign flag in
// spec.md §9.
package protocol

// Type is the wire-stable integer message kind (spec.md §6).
type Type uint16

const (
	TypeNodeSyncRequest Type = 3
	TypeNodeSyncReply   Type = 4
	TypeTimeSync        Type = 5
	TypeTimeDelay       Type = 6
	TypeSingle          Type = 7
	TypeBroadcast       Type = 8

	TypeBridgeStatus       Type = 610
	TypeBridgeElection     Type = 611
	TypeBridgeTakeover     Type = 612
	TypeBridgeCoordination Type = 613
	TypeGatewayData        Type = 620
	TypeGatewayAck         Type = 621
	TypeGatewayHeartbeat   Type = 622

	// PluginRangeStart is the first type value available to user-defined
	// packages (spec.md §3, §4.3).
	PluginRangeStart Type = 16

	// GatewayRangeStart/End bound the built-in gateway subsystem's type
	// range (spec.md §3).
	GatewayRangeStart Type = 610
	GatewayRangeEnd   Type = 622

	// ReservedRangeEnd is the last type value reserved for internal
	// use outside the gateway range (spec.md §3).
	ReservedRangeEnd Type = 15
)

// IsReserved reports whether t is one of the built-in internal types
// (node-sync, time-sync, single, broadcast, OTA, drop-connection).
func (t Type) IsReserved() bool {
	return t <= ReservedRangeEnd
}

// IsGateway reports whether t belongs to the gateway subsystem's type
// range.
func (t Type) IsGateway() bool {
	return t >= GatewayRangeStart && t <= GatewayRangeEnd
}

// IsPlugin reports whether t is a user-defined package type.
func (t Type) IsPlugin() bool {
	return t >= PluginRangeStart && !t.IsGateway()
}

// Routing selects how a Variant should be delivered (spec.md §3, §6).
type Routing uint8

const (
	RoutingNeighbor  Routing = 0
	RoutingSingle    Routing = 1
	RoutingBroadcast Routing = 2
)

// BroadcastDest is the sentinel "dest" value meaning "every node"
// (spec.md §3).
const BroadcastDest uint32 = 0

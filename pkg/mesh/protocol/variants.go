package protocol

// NodeSyncRequest announces the sender's current subtree and asks the
// peer to reply with its own (spec.md §4.2, §6).
type NodeSyncRequest struct {
	Envelope
	Tree Tree `json:"tree"`
}

// NodeSyncReply answers a NodeSyncRequest with the receiver's subtree.
type NodeSyncReply struct {
	Envelope
	Tree Tree `json:"tree"`
}

// TimeSync carries the NTP-style timestamps t0-t2 exchanged across the
// three-step handshake (spec.md §4.4); the fourth, t3, is the
// originator's own receive time and is not sent.
type TimeSync struct {
	Envelope
	Type int    `json:"msgType"` // 0=request, 1=response, 2=final (mirrors the C++ TIME_SYNC sub-type)
	T0   uint32 `json:"t0,omitempty"`
	T1   uint32 `json:"t1,omitempty"`
	T2   uint32 `json:"t2,omitempty"`
}

// TimeDelay is the lightweight one-shot delay-measurement request/reply
// used by Session.StartDelayMeasurement (spec.md §4.7).
type TimeDelay struct {
	Envelope
	Type int    `json:"msgType"` // 0=request, 1=reply
	T0   uint32 `json:"t0"`
	T1   uint32 `json:"t1,omitempty"`
	T2   uint32 `json:"t2,omitempty"`
}

// Single is a unicast application payload addressed to exactly one node.
type Single struct {
	Envelope
	Msg string `json:"msg"`
}

// Broadcast is an application payload flooded to every reachable node.
type Broadcast struct {
	Envelope
	Msg string `json:"msg"`
}

// BridgeStatus is periodically broadcast by every active gateway to
// advertise its internet reachability and election weight (spec.md
// §4.8, §6: type=610).
type BridgeStatus struct {
	Envelope
	InternetConnected bool   `json:"internetConnected"`
	RouterRSSI        int32  `json:"routerRSSI"`
	RouterChannel     int32  `json:"routerChannel"`
	Uptime            uint32 `json:"uptime"`
	GatewayIP         string `json:"gatewayIP"`
	Timestamp         uint32 `json:"timestamp"`
}

// BridgeElection is broadcast by a node kicking off a new election round
// (spec.md §4.8, §6: type=611).
type BridgeElection struct {
	Envelope
	NodeID      uint32 `json:"nodeId"`
	RouterRSSI  int32  `json:"routerRSSI"`
	Uptime      uint32 `json:"uptime"`
	FreeMemory  uint32 `json:"freeMemory"`
	Timestamp   uint32 `json:"timestamp"`
	RouterSSID  string `json:"routerSSID"`
}

// BridgeTakeover announces that a new node has won the election and is
// now the primary bridge (spec.md §4.8, §6: type=612).
type BridgeTakeover struct {
	Envelope
	NewBridge      uint32 `json:"newBridge"`
	PreviousBridge uint32 `json:"previousBridge"`
	Reason         string `json:"reason"`
	RouterRSSI     int32  `json:"routerRSSI"`
}

// BridgeCoordination carries ancillary coordination data between bridge
// candidates during the Collecting phase; it is a domain-stack addition
// (spec.md §4.8 names the election steps but not a wire shape for the
// Collecting phase beyond BridgeElection itself, so this reuses
// BridgeElection's fields under its own type for tooling clarity).
type BridgeCoordination struct {
	Envelope
	NodeID     uint32 `json:"nodeId"`
	RouterRSSI int32  `json:"routerRSSI"`
	Uptime     uint32 `json:"uptime"`
	FreeMemory uint32 `json:"freeMemory"`
}

// GatewayData is a mesh-to-internet relay request (spec.md §4.8, §6).
type GatewayData struct {
	Envelope
	MsgID   uint32 `json:"msgId"`
	Origin  uint32 `json:"origin"`
	TS      uint32 `json:"ts"`
	Prio    uint8  `json:"prio"`
	DestURL string `json:"dest_url"`
	Payload string `json:"payload,omitempty"`
	Content string `json:"content,omitempty"`
	Retry   uint8  `json:"retry"`
	Ack     bool   `json:"ack"`
}

// GatewayAck is the gateway's reply to a GatewayData relay, reporting the
// outcome of the HTTP call (spec.md §4.8, §6).
type GatewayAck struct {
	Envelope
	MsgID   uint32 `json:"msgId"`
	Origin  uint32 `json:"origin"`
	Success bool   `json:"success"`
	HTTP    uint16 `json:"http"`
	Err     string `json:"err,omitempty"`
	TS      uint32 `json:"ts"`
}

// GatewayHeartbeat is broadcast by the primary bridge so the mesh can
// detect loss of the active gateway (spec.md §4.8).
type GatewayHeartbeat struct {
	Envelope
	IsPrimary   bool   `json:"isPrimary"`
	HasInternet bool   `json:"hasInternet"`
	RouterRSSI  int32  `json:"routerRSSI"`
	Uptime      uint32 `json:"uptime"`
	Timestamp   uint32 `json:"timestamp"`
}

// PluginPackage is the catch-all for any Type >= PluginRangeStart not
// handled by gateway dispatch: the payload is kept raw so registered user
// handlers can decode it into their own types (spec.md §4.3).
type PluginPackage struct {
	Envelope
	Payload RawMessage `json:"payload"`
}

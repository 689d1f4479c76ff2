package mesh

import (
	"sort"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"

	"github.com/painlessmesh/gomesh/pkg/mesh/buffer"
	"github.com/painlessmesh/gomesh/pkg/mesh/conn"
	"github.com/painlessmesh/gomesh/pkg/mesh/definition"
	"github.com/painlessmesh/gomesh/pkg/mesh/gateway"
	"github.com/painlessmesh/gomesh/pkg/mesh/invoke"
	"github.com/painlessmesh/gomesh/pkg/mesh/nodesync"
	"github.com/painlessmesh/gomesh/pkg/mesh/protocol"
	"github.com/painlessmesh/gomesh/pkg/mesh/queue"
	"github.com/painlessmesh/gomesh/pkg/mesh/routing"
	"github.com/painlessmesh/gomesh/pkg/mesh/rtc"
	"github.com/painlessmesh/gomesh/pkg/mesh/slotmap"
	"github.com/painlessmesh/gomesh/pkg/mesh/task"
	"github.com/painlessmesh/gomesh/pkg/mesh/timesync"
)

// bridgeStatusDelay is how long after a connection is promoted (its
// first node-sync reply) a bridge waits before unicasting its
// BridgeStatus to the new neighbor (spec.md §4.8, "500 ms after the
// connection is promoted").
const bridgeStatusDelay = 500 * time.Millisecond

// Session is the mesh runtime's top-level object: it owns every
// connection, the local routing tree, the gateway subsystem and the
// offline queue, and exposes the full public API of spec.md §4.7. It
// must only be driven from one cooperative loop via Update (or, if the
// host truly runs Update from more than one goroutine, the semaphore
// acquired at Update's entry keeps at most one logical agent inside at
// a time — the concession spec.md §5 names for multi-core MCUs,
// grounded on rockstar-0000-aistore's use of golang.org/x/sync).
type Session struct {
	cfg Config

	nodeID            uint32
	root              bool
	shouldContainRoot bool
	tree              protocol.Tree
	nodeTimeOffsetMs  int64

	scheduler task.Scheduler
	logger    definition.Logger
	invoker   invoke.Invoker
	sem       *semaphore.Weighted

	connections  *slotmap.Map[*conn.Connection]
	neighborConn map[uint32]slotmap.ID
	pendingDelay map[uint32]uint32 // dest nodeId -> T0, for StartDelayMeasurement

	receiveHandlers map[protocol.Type][]PackageHandler

	onNewConnection       []func(nodeID uint32)
	onDroppedConnection   []func(nodeID uint32)
	onChangedConnections  []func()
	onNodeTimeAdjusted    []func(nodeID uint32, offsetMs int64)
	onNodeDelayReceived   []func(nodeID uint32, roundTripMs int64)
	onBridgeStatusChanged []func(gateway.BridgeInfo)
	onGatewayChanged      []func(primary uint32, ok bool)

	rtcMgr *rtc.Manager

	scanner RouterScanner

	gatewayCfg  gateway.Config
	bridges     *gateway.Table
	election    *gateway.Election
	health      *gateway.HealthChecker
	dedup       *gateway.Dedup
	relay       *gateway.RelayClient
	gwServer    *gateway.Server
	isBridge    bool
	lastPrimary uint32
	hadPrimary  bool

	outboundQueue *queue.Queue

	running bool
}

// New constructs a Session from cfg. scheduler drives all scheduled
// work; logger and invoker may be nil, in which case
// definition.NewDefaultLogger and invoke.NewDefaultInvoker are used.
func New(cfg Config, scheduler task.Scheduler, logger definition.Logger, invoker invoke.Invoker) *Session {
	if logger == nil {
		logger = definition.NewDefaultLogger()
	}
	if invoker == nil {
		invoker = invoke.NewDefaultInvoker()
	}

	s := &Session{
		cfg:               cfg,
		nodeID:            cfg.NodeID,
		root:              cfg.Root,
		shouldContainRoot: cfg.ShouldContainRoot,
		tree:              protocol.Tree{NodeID: cfg.NodeID, Root: cfg.Root},

		scheduler: scheduler,
		logger:    logger,
		invoker:   invoker,
		sem:       semaphore.NewWeighted(1),

		connections:  slotmap.New[*conn.Connection](),
		neighborConn: make(map[uint32]slotmap.ID),
		pendingDelay: make(map[uint32]uint32),

		receiveHandlers: make(map[protocol.Type][]PackageHandler),

		rtcMgr: rtc.NewManager(),

		gatewayCfg: cfg.Gateway,
		bridges:    gateway.NewTable(),
		election:   gateway.NewElection(cfg.Gateway.MinimumRSSI, cfg.Gateway.ElectionTimeout, cfg.Gateway.RoleChangeThrottle),
		health:     gateway.NewHealthChecker(cfg.Gateway.DNSHost, cfg.Gateway.DNSPort, 3*time.Second),
		dedup:      gateway.NewDedup(cfg.Gateway.DedupWindow, cfg.Gateway.DedupCapacity),

		outboundQueue: queue.New(),
	}

	s.relay = gateway.NewRelayClient(cfg.Gateway, scheduler, s.forwardTo, s.HasActiveMeshConnections, s.primaryBridgeID, cfg.NodeID)
	s.gwServer = gateway.NewServer(cfg.NodeID, s.dedup, cfg.Gateway.DNSHost, cfg.Gateway.DNSPort, s.replyGatewayAck)
	s.health.OnConnectivityChanged(s.handleInternetConnectivityChanged)

	return s
}

// SetRouterScanner wires the link-layer's RSSI scan seam, required
// before Update will ever attempt a bridge election.
func (s *Session) SetRouterScanner(scanner RouterScanner) {
	s.scanner = scanner
}

// Init starts the session: validates the gateway config, initializes the
// in-memory offline queue (no queue task is scheduled), and begins the
// internet health check cadence if the gateway subsystem is enabled
// (spec.md §4.7).
func (s *Session) Init() error {
	if result := s.gatewayCfg.Validate(); !result.OK {
		return errors.Errorf("mesh: invalid gateway config: %s", result.Reason)
	}
	if err := s.outboundQueue.Init(queue.DefaultMaxSize, ""); err != nil {
		return err
	}
	s.running = true

	if s.gatewayCfg.Enabled {
		s.scheduler.Every(s.gatewayCfg.CheckInterval, func() {
			s.health.Check(s.scheduler.Now())
		})
	}
	return nil
}

// Stop halts the session: closes every connection and waits for any
// in-flight work spawned on the invoker (e.g. read loops a host started
// through Invoker) to finish. Gateway HTTP calls run synchronously
// inside Update and are not spawned on the invoker.
func (s *Session) Stop() {
	s.running = false
	s.connections.Each(func(_ slotmap.ID, c *conn.Connection) {
		if c != nil {
			c.Close()
		}
	})
	s.invoker.Stop()
}

// Update drives the cooperative loop: it must be called regularly by
// the host (spec.md §5). It fires every scheduler task due at now.
func (s *Session) Update(now time.Time) {
	if !s.sem.TryAcquire(1) {
		return
	}
	defer s.sem.Release(1)
	s.scheduler.RunPending(now)
	s.maybeRunElection(now)
}

// AddConnection registers transport as a new link and begins its
// per-connection scheduling. isStation marks whether this node
// initiated the connection (station role toward that neighbor).
func (s *Session) AddConnection(transport conn.Transport, isStation bool) slotmap.ID {
	id := s.connections.Insert((*conn.Connection)(nil))

	handlers := conn.Handlers{
		OnReceive:     func(data []byte) { s.handleFrame(id, data) },
		OnDisconnect:  func() { s.handleDisconnect(id) },
		OnNodeSyncDue: func() { s.sendNodeSyncRequest(id) },
		OnTimeSyncDue: func() { s.sendTimeSyncRequest(id) },
		OnIdleTimeout: func() { s.handleIdleTimeout(id) },
	}
	c := conn.New(transport, isStation, handlers)
	c.Start(s.scheduler, conn.DefaultTickInterval, conn.DefaultNodeSyncCadence, conn.DefaultTimeSyncCadence, conn.DefaultTimeoutTicks)
	s.connections.Set(id, c)

	if isStation {
		s.sendNodeSyncRequest(id)
	}
	return id
}

func (s *Session) sendNodeSyncRequest(connID slotmap.ID) {
	c, ok := s.connections.Get(connID)
	if !ok || c == nil {
		return
	}
	req := &protocol.NodeSyncRequest{
		Envelope: protocol.Envelope{MsgType: protocol.TypeNodeSyncRequest, From: s.nodeID, Routing: protocol.RoutingNeighbor},
		Tree:     s.treeFor(c.NeighborID),
	}
	s.writeOn(c, req, buffer.High)
}

// sendTimeSyncRequest originates a fresh Type-0 time-sync exchange with
// the neighbor on connID, mirroring startTimeSync()'s periodic role
// (spec.md §4.6, §3's timeSyncTask).
func (s *Session) sendTimeSyncRequest(connID slotmap.ID) {
	c, ok := s.connections.Get(connID)
	if !ok || c == nil {
		return
	}
	req := &protocol.TimeSync{
		Envelope: protocol.Envelope{MsgType: protocol.TypeTimeSync, From: s.nodeID, Dest: c.NeighborID, Routing: protocol.RoutingNeighbor},
		Type:     0,
		T0:       s.nowMillis(),
	}
	s.writeOn(c, req, buffer.High)
}

// treeFor builds the tree this node advertises to neighborID: its own
// layout with neighborID's direct subtree split-horizoned out (spec.md
// §4.5). Without this, a reply would hand the neighbor back its own
// subtree nested one level down, which advertised.Contains(selfID)
// would then read as a loop.
func (s *Session) treeFor(neighborID uint32) protocol.Tree {
	if neighborID == 0 {
		return s.tree
	}
	out := s.tree
	subs := make([]protocol.Tree, 0, len(s.tree.Subs))
	for _, sub := range s.tree.Subs {
		if sub.NodeID == neighborID {
			continue
		}
		subs = append(subs, sub)
	}
	out.Subs = subs
	return out
}

// Deliver feeds data into the connection identified by connID, the
// receiving-side counterpart of conn.Transport.Send. A transport whose
// own read loop has no natural goroutine of its own (an in-process
// loopback bus, a synchronous test harness) can call this directly
// instead of reaching into conn.Connection, which Session never exposes.
func (s *Session) Deliver(connID slotmap.ID, data []byte) {
	c, ok := s.connections.Get(connID)
	if !ok || c == nil {
		return
	}
	c.Receive(data)
}

func (s *Session) handleIdleTimeout(connID slotmap.ID) {
	c, ok := s.connections.Get(connID)
	if !ok || c == nil {
		return
	}
	c.Close()
}

func (s *Session) handleDisconnect(connID slotmap.ID) {
	c, ok := s.connections.Get(connID)
	if !ok || c == nil {
		s.connections.Remove(connID)
		return
	}
	neighborID := c.NeighborID
	s.connections.Remove(connID)
	if neighborID != 0 {
		delete(s.neighborConn, neighborID)
		if nodesync.Drop(&s.tree, neighborID) {
			s.fireChangedConnections()
		}
		s.bridges.Remove(neighborID)
		s.fireDroppedConnection(neighborID)
	}
}

func (s *Session) handleFrame(connID slotmap.ID, data []byte) {
	v, err := protocol.Decode(data)
	if err != nil {
		s.logger.Warnf("mesh: dropping undecodable frame: %v", err)
		return
	}
	s.dispatch(connID, v)
}

func (s *Session) dispatch(connID slotmap.ID, v protocol.Variant) {
	switch msg := v.(type) {
	case *protocol.NodeSyncRequest:
		s.handleNodeSync(connID, msg.From, msg.Tree, true)
	case *protocol.NodeSyncReply:
		s.handleNodeSync(connID, msg.From, msg.Tree, false)
	case *protocol.TimeSync:
		s.handleTimeSync(connID, msg)
	case *protocol.TimeDelay:
		s.handleTimeDelay(msg)
	case *protocol.Single:
		s.handleRoutedDeliver(msg.Dest, msg.From, msg, buffer.Normal)
	case *protocol.Broadcast:
		s.handleBroadcast(msg)
	case *protocol.BridgeStatus:
		s.handleBridgeStatus(msg)
	case *protocol.BridgeElection:
		s.election.Collect(gateway.Candidate{NodeID: msg.NodeID, RouterRSSI: msg.RouterRSSI, Uptime: msg.Uptime, FreeMemory: msg.FreeMemory})
		s.rebroadcast(msg, msg.From)
	case *protocol.BridgeCoordination:
		s.election.Collect(gateway.Candidate{NodeID: msg.NodeID, RouterRSSI: msg.RouterRSSI, Uptime: msg.Uptime, FreeMemory: msg.FreeMemory})
		s.rebroadcast(msg, msg.From)
	case *protocol.BridgeTakeover:
		s.logger.Infof("mesh: bridge takeover: %d -> %d (%s)", msg.PreviousBridge, msg.NewBridge, msg.Reason)
		s.isBridge = msg.NewBridge == s.nodeID
		s.rebroadcast(msg, msg.From)
	case *protocol.GatewayData:
		s.handleGatewayData(connID, msg)
	case *protocol.GatewayAck:
		s.handleGatewayAck(msg)
	case *protocol.GatewayHeartbeat:
		s.handleGatewayHeartbeat(msg)
	case *protocol.PluginPackage:
		s.dispatchPlugin(msg)
	default:
		s.logger.Warnf("mesh: no handler for decoded variant %T", v)
	}
}

func (s *Session) dispatchPlugin(msg *protocol.PluginPackage) {
	if msg.Dest != s.nodeID && msg.Dest != protocol.BroadcastDest {
		s.handleRoutedDeliver(msg.Dest, msg.From, msg, buffer.Normal)
		return
	}
	for _, handler := range s.receiveHandlers[msg.MsgType] {
		if handler(msg) {
			return
		}
	}
}

// handleRoutedDeliver delivers v locally if addressed here, otherwise
// forwards it to the next hop toward dest (spec.md §4.4). fromNeighbor
// is the neighbor this message arrived from, or 0 if it originated
// locally.
func (s *Session) handleRoutedDeliver(dest, fromNeighbor uint32, v protocol.Variant, priority buffer.Priority) {
	if dest == s.nodeID {
		for _, handler := range s.receiveHandlers[v.Header().MsgType] {
			if handler(v) {
				return
			}
		}
		return
	}
	nextHop, ok := routing.FindRoute(s.tree, dest)
	if !ok {
		s.logger.Warnf("mesh: no route to %d, dropping", dest)
		return
	}
	if nextHop == fromNeighbor {
		return
	}
	s.routeSingle(nextHop, v)
}

func (s *Session) handleBroadcast(msg *protocol.Broadcast) {
	for _, handler := range s.receiveHandlers[protocol.TypeBroadcast] {
		if handler(msg) {
			break
		}
	}
	for _, target := range routing.BroadcastTargets(s.tree, msg.From) {
		s.routeSingle(target, msg)
	}
}

// routeSingle sends v to the direct neighbor nextHop, returning false
// if no live connection to that neighbor exists.
func (s *Session) routeSingle(nextHop uint32, v protocol.Variant) bool {
	connID, ok := s.neighborConn[nextHop]
	if !ok {
		return false
	}
	c, ok := s.connections.Get(connID)
	if !ok || c == nil {
		return false
	}
	return s.writeOn(c, v, priorityFor(v.Header().MsgType)) == nil
}

func priorityFor(t protocol.Type) buffer.Priority {
	switch t {
	case protocol.TypeNodeSyncRequest, protocol.TypeNodeSyncReply, protocol.TypeGatewayData, protocol.TypeGatewayAck:
		return buffer.High
	case protocol.TypeBridgeElection, protocol.TypeBridgeTakeover, protocol.TypeBridgeCoordination:
		return buffer.Critical
	default:
		return buffer.Normal
	}
}

func (s *Session) writeOn(c *conn.Connection, v protocol.Variant, priority buffer.Priority) error {
	data, err := protocol.Encode(v)
	if err != nil {
		return err
	}
	return c.Write(data, priority)
}

// forwardTo routes v toward dest, which may be several hops away,
// returning false if no route currently exists. This is the
// SendSingleFunc collaborator RelayClient uses to reach a bridge that
// isn't necessarily a direct neighbor.
func (s *Session) forwardTo(dest uint32, v protocol.Variant) bool {
	nextHop, ok := routing.FindRoute(s.tree, dest)
	if !ok {
		return false
	}
	return s.routeSingle(nextHop, v)
}

// rebroadcast fans a broadcast-routed variant out to every child except
// fromNeighbor, the one it arrived from.
func (s *Session) rebroadcast(v protocol.Variant, fromNeighbor uint32) {
	for _, target := range routing.BroadcastTargets(s.tree, fromNeighbor) {
		s.routeSingle(target, v)
	}
}

func (s *Session) primaryBridgeID() (uint32, bool) {
	info, ok := s.bridges.Primary(s.scheduler.Now())
	return info.NodeID, ok
}

func (s *Session) findBridge(nodeID uint32) (gateway.BridgeInfo, bool) {
	for _, info := range s.bridges.All() {
		if info.NodeID == nodeID {
			return info, true
		}
	}
	return gateway.BridgeInfo{}, false
}

func (s *Session) refreshPrimaryBridge(now time.Time) {
	primary, ok := s.bridges.Primary(now)
	var id uint32
	if ok {
		id = primary.NodeID
	}
	if ok != s.hadPrimary || id != s.lastPrimary {
		s.hadPrimary = ok
		s.lastPrimary = id
		s.fireGatewayChanged(id, ok)
	}
}

func (s *Session) handleBridgeStatus(msg *protocol.BridgeStatus) {
	now := s.scheduler.Now()
	info := gateway.BridgeInfo{
		NodeID:            msg.From,
		InternetConnected: msg.InternetConnected,
		RouterRSSI:        msg.RouterRSSI,
		RouterChannel:     msg.RouterChannel,
		Uptime:            msg.Uptime,
		GatewayIP:         msg.GatewayIP,
		LastSeen:          now,
	}
	s.bridges.Update(info)
	s.fireBridgeStatusChanged(info)
	s.refreshPrimaryBridge(now)
	s.rebroadcast(msg, msg.From)
}

func (s *Session) handleGatewayHeartbeat(msg *protocol.GatewayHeartbeat) {
	now := s.scheduler.Now()
	info, found := s.findBridge(msg.From)
	if !found {
		info = gateway.BridgeInfo{NodeID: msg.From}
	}
	info.InternetConnected = msg.HasInternet
	info.RouterRSSI = msg.RouterRSSI
	info.Uptime = msg.Uptime
	info.LastSeen = now
	s.bridges.Update(info)
	s.refreshPrimaryBridge(now)
	s.rebroadcast(msg, msg.From)
}

func (s *Session) handleGatewayData(connID slotmap.ID, msg *protocol.GatewayData) {
	if msg.Dest != s.nodeID {
		s.forwardTo(msg.Dest, msg)
		return
	}
	c, ok := s.connections.Get(connID)
	if !ok {
		s.gwServer.Handle(msg, nil, s.scheduler.Now())
		return
	}
	s.gwServer.Handle(msg, c, s.scheduler.Now())
}

func (s *Session) replyGatewayAck(origin uint32, ack *protocol.GatewayAck) {
	s.forwardTo(origin, ack)
}

func (s *Session) handleGatewayAck(msg *protocol.GatewayAck) {
	if msg.Dest != s.nodeID {
		s.forwardTo(msg.Dest, msg)
		return
	}
	s.relay.HandleAck(msg)
}

func (s *Session) handleInternetConnectivityChanged(available bool) {
	s.logger.Infof("mesh: internet connectivity changed: available=%v", available)
}

// maybeRunElection checks whether conditions call for starting a bridge
// election (heartbeat-expired primary, or internet lost with no backup)
// and, if so, kicks one off (spec.md §4.8 step 7).
func (s *Session) maybeRunElection(now time.Time) {
	if !s.gatewayCfg.Enabled || !s.gatewayCfg.ParticipateInElection {
		return
	}
	if !s.election.CanStart(now) {
		return
	}
	_, hasPrimary := s.bridges.Primary(now)
	heartbeatExpired := s.hadPrimary && !hasPrimary
	internetLostNoBackup := !s.health.Status().Available && !hasPrimary
	if !heartbeatExpired && !internetLostNoBackup {
		return
	}
	if s.scanner == nil {
		return
	}

	rssi, visible := s.scanner.Scan()
	self := gateway.Candidate{
		NodeID:     s.nodeID,
		RouterRSSI: rssi,
		Uptime:     uint32(s.scanner.Uptime().Seconds()),
		FreeMemory: s.scanner.FreeMemory(),
	}
	if !s.election.Start(self, visible) {
		return
	}

	election := &protocol.BridgeElection{
		Envelope:   protocol.Envelope{MsgType: protocol.TypeBridgeElection, From: s.nodeID, Dest: protocol.BroadcastDest, Routing: protocol.RoutingBroadcast},
		NodeID:     s.nodeID,
		RouterRSSI: rssi,
		Uptime:     self.Uptime,
		FreeMemory: self.FreeMemory,
		Timestamp:  uint32(now.Unix()),
		RouterSSID: s.gatewayCfg.RouterSSID,
	}
	s.rebroadcast(election, 0)
	s.scheduler.After(s.gatewayCfg.ElectionTimeout, s.concludeElection)
}

func (s *Session) concludeElection() {
	now := s.scheduler.Now()
	winner, rejected := s.election.Evaluate(now)
	if rejected {
		return
	}
	wasBridge := s.isBridge
	s.isBridge = winner.NodeID == s.nodeID
	if wasBridge == s.isBridge {
		return
	}

	takeover := &protocol.BridgeTakeover{
		Envelope:       protocol.Envelope{MsgType: protocol.TypeBridgeTakeover, From: s.nodeID, Dest: protocol.BroadcastDest, Routing: protocol.RoutingBroadcast},
		NewBridge:      winner.NodeID,
		PreviousBridge: s.lastPrimary,
		Reason:         "election",
		RouterRSSI:     winner.RouterRSSI,
	}
	s.rebroadcast(takeover, 0)
}

func (s *Session) handleNodeSync(connID slotmap.ID, neighborID uint32, advertised protocol.Tree, isRequest bool) {
	c, ok := s.connections.Get(connID)
	if !ok || c == nil {
		return
	}

	outcome := nodesync.Process(&s.tree, s.nodeID, neighborID, advertised)
	switch outcome.Decision {
	case nodesync.CloseLoop:
		s.logger.Warnf("mesh: closing connection to %d: loop detected", neighborID)
		c.Close()
		return
	case nodesync.CloseRootConflict:
		s.logger.Warnf("mesh: closing connection to %d: root conflict", neighborID)
		c.Close()
		return
	}

	firstSync := c.NeighborID == 0
	if firstSync {
		c.NeighborID = neighborID
		s.neighborConn[neighborID] = connID
	}

	if isRequest {
		reply := &protocol.NodeSyncReply{
			Envelope: protocol.Envelope{MsgType: protocol.TypeNodeSyncReply, From: s.nodeID, Dest: neighborID, Routing: protocol.RoutingNeighbor},
			Tree:     s.treeFor(neighborID),
		}
		s.writeOn(c, reply, buffer.High)
	}

	if firstSync {
		s.fireNewConnection(neighborID)
		s.fireChangedConnections()
		if s.isBridge {
			s.scheduler.After(bridgeStatusDelay, func() { s.sendBridgeStatusTo(neighborID) })
		}
	} else if outcome.ChangedConnection {
		s.fireChangedConnections()
	}
}

// sendBridgeStatusTo unicasts this node's current bridge status to
// neighborID, 500ms after that connection's first node-sync completes
// (spec.md §4.8).
func (s *Session) sendBridgeStatusTo(neighborID uint32) {
	if !s.isBridge {
		return
	}
	var rssi int32
	var uptime uint32
	if s.scanner != nil {
		rssi, _ = s.scanner.Scan()
		uptime = uint32(s.scanner.Uptime().Seconds())
	}
	msg := &protocol.BridgeStatus{
		Envelope:          protocol.Envelope{MsgType: protocol.TypeBridgeStatus, From: s.nodeID, Dest: neighborID, Routing: protocol.RoutingSingle},
		InternetConnected: s.health.Status().Available,
		RouterRSSI:        rssi,
		Uptime:            uptime,
		GatewayIP:         APAddress(s.nodeID),
		Timestamp:         uint32(s.scheduler.Now().Unix()),
	}
	s.forwardTo(neighborID, msg)
}

func (s *Session) handleTimeSync(connID slotmap.ID, msg *protocol.TimeSync) {
	c, ok := s.connections.Get(connID)
	if !ok || c == nil {
		return
	}
	now := s.nowMillis()

	switch msg.Type {
	case 0: // request
		reply := &protocol.TimeSync{
			Envelope: protocol.Envelope{MsgType: protocol.TypeTimeSync, From: s.nodeID, Dest: msg.From, Routing: protocol.RoutingNeighbor},
			Type:     1,
			T0:       msg.T0,
			T1:       now,
			T2:       now,
		}
		s.writeOn(c, reply, buffer.High)
	case 1: // response
		t3 := now
		exchange := timesync.Exchange{T0: msg.T0, T1: msg.T1, T2: msg.T2, T3: t3}
		offset := exchange.Offset()

		self := timesync.Candidate{NodeID: s.nodeID, HasTimeAuthority: s.hasTimeAuthority(), SubtreeSize: s.treeFor(c.NeighborID).Size()}
		other := timesync.Candidate{NodeID: c.NeighborID}
		if sub, ok := findChild(s.tree, c.NeighborID); ok {
			other.HasTimeAuthority = sub.HasTimeAuthority
			other.SubtreeSize = sub.Size()
		}

		if timesync.Adopt(self, other) {
			s.nodeTimeOffsetMs += offset
			if timesync.SignificantAdjustment(offset) {
				s.fireNodeTimeAdjusted(c.NeighborID, offset)
			}
		}

		final := &protocol.TimeSync{
			Envelope: protocol.Envelope{MsgType: protocol.TypeTimeSync, From: s.nodeID, Dest: msg.From, Routing: protocol.RoutingNeighbor},
			Type:     2,
			T0:       msg.T0,
			T1:       msg.T1,
			T2:       t3,
		}
		s.writeOn(c, final, buffer.High)
	case 2: // final, informational only
	}
}

func (s *Session) handleTimeDelay(msg *protocol.TimeDelay) {
	if msg.Dest != s.nodeID {
		nextHop, ok := routing.FindRoute(s.tree, msg.Dest)
		if ok {
			s.routeSingle(nextHop, msg)
		}
		return
	}

	now := s.nowMillis()
	if msg.Type == 0 {
		reply := &protocol.TimeDelay{
			Envelope: protocol.Envelope{MsgType: protocol.TypeTimeDelay, From: s.nodeID, Dest: msg.From, Routing: protocol.RoutingSingle},
			Type:     1,
			T0:       msg.T0,
			T1:       now,
			T2:       now,
		}
		if nextHop, ok := routing.FindRoute(s.tree, msg.From); ok {
			s.routeSingle(nextHop, reply)
		}
		return
	}

	// msg.Type == 1: this is our own earlier request's reply.
	if _, pending := s.pendingDelay[msg.From]; pending {
		roundTrip := timesync.Exchange{T0: msg.T0, T1: msg.T1, T2: msg.T2, T3: now}.RoundTrip()
		delete(s.pendingDelay, msg.From)
		s.fireNodeDelayReceived(msg.From, roundTrip)
	}
}

// GetNodeTime returns this node's own view of the current time, in
// milliseconds: the scheduler's wall clock adjusted by whatever offset
// time-sync adoption has accumulated (spec.md §4.6, P6). Time-sync and
// delay-measurement timestamps are all stamped with this, not the raw clock, so
// an adopting node's wire timestamps actually move toward the node it
// adopted.
func (s *Session) GetNodeTime() uint32 {
	return uint32(s.scheduler.Now().UnixMilli() + s.nodeTimeOffsetMs)
}

func (s *Session) nowMillis() uint32 {
	return s.GetNodeTime()
}

func findChild(tree protocol.Tree, nodeID uint32) (protocol.Tree, bool) {
	for _, sub := range tree.Subs {
		if sub.NodeID == nodeID {
			return sub, true
		}
	}
	return protocol.Tree{}, false
}

func (s *Session) hasTimeAuthority() bool {
	return s.rtcMgr.HasRTC() || (s.isBridge && s.health.Status().Available)
}

// --- Public API: spec.md §4.7 ---

// SendSingle routes msg to dest as a unicast, returning false if no
// route currently exists.
func (s *Session) SendSingle(dest uint32, msg string) bool {
	v := &protocol.Single{
		Envelope: protocol.Envelope{MsgType: protocol.TypeSingle, From: s.nodeID, Dest: dest, Routing: protocol.RoutingSingle},
		Msg:      msg,
	}
	nextHop, ok := routing.FindRoute(s.tree, dest)
	if !ok {
		return false
	}
	return s.routeSingle(nextHop, v)
}

// SendBroadcast fans msg out to every reachable node. If includeSelf,
// this node's own broadcast handlers are invoked too.
func (s *Session) SendBroadcast(msg string, includeSelf bool) bool {
	v := &protocol.Broadcast{
		Envelope: protocol.Envelope{MsgType: protocol.TypeBroadcast, From: s.nodeID, Dest: protocol.BroadcastDest, Routing: protocol.RoutingBroadcast},
		Msg:      msg,
	}
	for _, target := range routing.BroadcastTargets(s.tree, 0) {
		s.routeSingle(target, v)
	}
	if includeSelf {
		for _, handler := range s.receiveHandlers[protocol.TypeBroadcast] {
			if handler(v) {
				break
			}
		}
	}
	return true
}

// StartDelayMeasurement initiates a round-trip delay measurement to
// dest, returning false if no route exists. The result arrives through
// OnNodeDelayReceived.
func (s *Session) StartDelayMeasurement(dest uint32) bool {
	nextHop, ok := routing.FindRoute(s.tree, dest)
	if !ok {
		return false
	}
	now := s.nowMillis()
	req := &protocol.TimeDelay{
		Envelope: protocol.Envelope{MsgType: protocol.TypeTimeDelay, From: s.nodeID, Dest: dest, Routing: protocol.RoutingSingle},
		Type:     0,
		T0:       now,
	}
	s.pendingDelay[dest] = now
	return s.routeSingle(nextHop, req)
}

// SetRoot marks this node as (or no longer as) the mesh root.
func (s *Session) SetRoot(root bool) {
	s.root = root
	s.tree.Root = root
}

// SetContainsRoot records whether this node's subtree is expected to
// contain a root elsewhere in the mesh.
func (s *Session) SetContainsRoot(v bool) {
	s.shouldContainRoot = v
}

// IsRoot reports whether this node is currently the mesh root.
func (s *Session) IsRoot() bool {
	return s.root
}

// GetNodeList returns every node ID reachable from this node's layout,
// optionally including this node itself.
func (s *Session) GetNodeList(includeSelf bool) []uint32 {
	ids := s.tree.AsList()
	if includeSelf {
		return ids
	}
	out := ids[:0]
	for _, id := range ids {
		if id != s.nodeID {
			out = append(out, id)
		}
	}
	return out
}

// SubConnectionJSON returns the local layout tree, suitable for
// diagnostics/serialization.
func (s *Session) SubConnectionJSON() protocol.Tree {
	return s.tree
}

// IsConnected reports whether id is reachable anywhere in the current
// layout.
func (s *Session) IsConnected(id uint32) bool {
	return s.tree.Contains(id)
}

// GetConnectionDetails returns the node IDs of every directly connected
// neighbor.
func (s *Session) GetConnectionDetails() []uint32 {
	ids := make([]uint32, 0, len(s.neighborConn))
	for id := range s.neighborConn {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// GetHopCount returns the number of hops to id, or -1 if unreachable.
func (s *Session) GetHopCount(id uint32) int {
	return hopCount(s.tree, id, 0)
}

func hopCount(tree protocol.Tree, id uint32, depth int) int {
	if tree.NodeID == id {
		return depth
	}
	for _, sub := range tree.Subs {
		if n := hopCount(sub, id, depth+1); n >= 0 {
			return n
		}
	}
	return -1
}

// HasActiveMeshConnections reports whether this node currently has any
// live connection at all, direct-neighbor or not yet synced (spec.md
// §4.8's sendToInternet preflight).
func (s *Session) HasActiveMeshConnections() bool {
	return s.connections.Len() > 0
}

// SendToInternet relays payload to url via the current primary bridge
// (spec.md §4.8). callback fires exactly once, synchronously on
// immediate preflight failure or asynchronously once the bridge's ACK
// (or a timeout) arrives.
func (s *Session) SendToInternet(url, payload, content string, priority uint8, callback gateway.Callback) uint32 {
	return s.relay.SendToInternet(url, payload, content, priority, callback)
}

// GetPrimaryBridge returns the currently selected healthy primary
// bridge, if any.
func (s *Session) GetPrimaryBridge() (uint32, bool) {
	return s.primaryBridgeID()
}

// GetLastKnownBridge returns the most recently selected primary bridge
// even if it is no longer healthy, useful while a new election runs.
func (s *Session) GetLastKnownBridge() (uint32, bool) {
	return s.lastPrimary, s.hadPrimary
}

// GetBridges returns every bridge this node currently has status for.
func (s *Session) GetBridges() []gateway.BridgeInfo {
	return s.bridges.All()
}

// IsBridge reports whether this node is currently acting as the
// primary bridge.
func (s *Session) IsBridge() bool {
	return s.isBridge
}

// HasInternetConnection reports this node's own last internet health
// check result.
func (s *Session) HasInternetConnection() bool {
	return s.health.Status().Available
}

// --- RTC, §4.7 ---

// EnableRTC adopts source as this node's RTC adapter.
func (s *Session) EnableRTC(source rtc.Source) bool {
	return s.rtcMgr.Enable(source) == nil
}

// DisableRTC drops the active RTC adapter, if any.
func (s *Session) DisableRTC() {
	s.rtcMgr.Disable()
}

// SyncRTCFromNTP pushes unixTS into the active RTC.
func (s *Session) SyncRTCFromNTP(unixTS uint32) bool {
	return s.rtcMgr.SyncFromNTP(unixTS, s.nowMillis()) == nil
}

// GetAccurateTime returns the active RTC's current time, or 0 if none
// is enabled.
func (s *Session) GetAccurateTime() uint32 {
	t, err := s.rtcMgr.Time()
	if err != nil {
		return 0
	}
	return t
}

// HasRTC reports whether an RTC adapter is currently active.
func (s *Session) HasRTC() bool {
	return s.rtcMgr.HasRTC()
}

// Invoker returns the invoke.Invoker a host should use to spawn any
// per-connection read loop (e.g. transport.TCPTransport.ReadLoop), so
// that Stop can drain every outstanding one before returning.
func (s *Session) Invoker() invoke.Invoker {
	return s.invoker
}

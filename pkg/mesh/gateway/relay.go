package gateway

import (
	"time"

	"github.com/painlessmesh/gomesh/pkg/mesh/protocol"
	"github.com/painlessmesh/gomesh/pkg/mesh/task"
)

// Callback reports the final outcome of one sendToInternet request.
type Callback func(success bool, httpStatus int, errMsg string)

// SendSingleFunc routes v to dest as a SINGLE package, returning false
// if no route exists.
type SendSingleFunc func(dest uint32, v protocol.Variant) bool

// HasActiveMeshConnectionsFunc reports whether this node currently has
// any live mesh connection at all (spec.md §4.8 preflight, guarding
// against the stale-BridgeInfo-after-partition false positive).
type HasActiveMeshConnectionsFunc func() bool

// PrimaryBridgeFunc returns the current healthy primary bridge node ID.
type PrimaryBridgeFunc func() (nodeID uint32, ok bool)

type pendingRequest struct {
	msgID      uint32
	bridge     uint32
	destURL    string
	payload    string
	content    string
	priority   uint8
	retryCount int
	callback   Callback
	timeoutID  task.ID
}

// RelayClient implements the client side of spec.md §4.8's
// sendToInternet: preflight checks, message-ID stamping, per-request
// timeout/retry scheduling, and ACK correlation.
type RelayClient struct {
	cfg Config

	scheduler  task.Scheduler
	sendSingle SendSingleFunc
	hasMesh    HasActiveMeshConnectionsFunc
	primary    PrimaryBridgeFunc

	selfNodeID uint32
	counter    uint32

	pending map[uint32]*pendingRequest
}

// NewRelayClient wires a RelayClient to its collaborators. selfNodeID is
// used to stamp the high bits of each generated message ID.
func NewRelayClient(cfg Config, scheduler task.Scheduler, sendSingle SendSingleFunc, hasMesh HasActiveMeshConnectionsFunc, primary PrimaryBridgeFunc, selfNodeID uint32) *RelayClient {
	return &RelayClient{
		cfg:        cfg,
		scheduler:  scheduler,
		sendSingle: sendSingle,
		hasMesh:    hasMesh,
		primary:    primary,
		selfNodeID: selfNodeID,
		pending:    make(map[uint32]*pendingRequest),
	}
}

// SendToInternet implements spec.md §4.8's sendToInternet contract. It
// returns 0 on immediate (preflight) failure, having already invoked
// callback synchronously in that case.
func (r *RelayClient) SendToInternet(url, payload, content string, priority uint8, callback Callback) uint32 {
	if !r.cfg.SendToInternetEnabled {
		callback(false, 0, "sendToInternet is not enabled")
		return 0
	}
	if r.hasMesh == nil || !r.hasMesh() {
		callback(false, 0, "No mesh connections")
		return 0
	}
	bridge, ok := r.primary()
	if !ok {
		callback(false, 0, "No healthy primary bridge")
		return 0
	}

	msgID := (r.selfNodeID&0xFFFF)<<16 | (r.counter & 0xFFFF)
	r.counter++

	req := &pendingRequest{
		msgID:    msgID,
		bridge:   bridge,
		destURL:  url,
		payload:  payload,
		content:  content,
		priority: priority,
		callback: callback,
	}
	r.pending[msgID] = req

	if !r.submit(req) {
		delete(r.pending, msgID)
		callback(false, 0, "failed to route request to bridge")
		return 0
	}
	return msgID
}

func (r *RelayClient) submit(req *pendingRequest) bool {
	data := &protocol.GatewayData{
		Envelope: protocol.Envelope{MsgType: protocol.TypeGatewayData, From: r.selfNodeID, Dest: req.bridge, Routing: protocol.RoutingSingle},
		MsgID:    req.msgID,
		Origin:   r.selfNodeID,
		Prio:     req.priority,
		DestURL:  req.destURL,
		Payload:  req.payload,
		Content:  req.content,
		Retry:    uint8(req.retryCount),
		Ack:      true,
	}
	if !r.sendSingle(req.bridge, data) {
		return false
	}
	req.timeoutID = r.scheduler.After(r.cfg.RequestTimeout, func() { r.handleTimeout(req.msgID) })
	return true
}

func (r *RelayClient) handleTimeout(msgID uint32) {
	req, ok := r.pending[msgID]
	if !ok {
		return
	}
	delete(r.pending, msgID)
	req.callback(false, 0, "request timed out")
}

// HandleAck correlates an inbound GatewayAck with a pending request,
// retrying on a retryable failure (exponential backoff up to
// cfg.MaxRetries) and otherwise delivering the final callback (spec.md
// §4.8).
func (r *RelayClient) HandleAck(ack *protocol.GatewayAck) {
	req, ok := r.pending[ack.MsgID]
	if !ok {
		return
	}
	r.scheduler.Cancel(req.timeoutID)

	if ack.Success {
		delete(r.pending, ack.MsgID)
		req.callback(true, int(ack.HTTP), "")
		return
	}

	if Retryable(int(ack.HTTP)) && req.retryCount < r.cfg.MaxRetries {
		req.retryCount++
		delay := r.cfg.RetryDelay * time.Duration(1<<uint(req.retryCount-1))
		r.scheduler.After(delay, func() {
			if !r.submit(req) {
				delete(r.pending, req.msgID)
				req.callback(false, int(ack.HTTP), ack.Err)
			}
		})
		return
	}

	delete(r.pending, ack.MsgID)
	req.callback(false, int(ack.HTTP), ack.Err)
}

// Pending returns the number of in-flight requests, used by tests and
// diagnostics.
func (r *RelayClient) Pending() int {
	return len(r.pending)
}

package gateway

import (
	"testing"
	"time"

	"github.com/painlessmesh/gomesh/pkg/mesh/protocol"
	"github.com/painlessmesh/gomesh/pkg/mesh/task"
)

func newRelayClient(sched task.Scheduler, hasMesh bool, bridge uint32, bridgeOK bool, route func(dest uint32, v protocol.Variant) bool) *RelayClient {
	cfg := DefaultConfig()
	cfg.SendToInternetEnabled = true
	if route == nil {
		route = func(uint32, protocol.Variant) bool { return true }
	}
	return NewRelayClient(cfg, sched, route, func() bool { return hasMesh }, func() (uint32, bool) { return bridge, bridgeOK }, 1)
}

func TestSendToInternetRejectedWhenDisabled(t *testing.T) {
	sched := task.NewCoopScheduler(time.Unix(0, 0))
	r := newRelayClient(sched, true, 2, true, nil)
	r.cfg.SendToInternetEnabled = false

	var gotSuccess bool
	var gotErr string
	id := r.SendToInternet("http://x", "", "", 0, func(success bool, status int, errMsg string) {
		gotSuccess = success
		gotErr = errMsg
	})
	if id != 0 || gotSuccess || gotErr == "" {
		t.Fatalf("expected immediate rejection, got id=%d success=%v err=%q", id, gotSuccess, gotErr)
	}
}

func TestSendToInternetRejectedWithoutMeshConnections(t *testing.T) {
	sched := task.NewCoopScheduler(time.Unix(0, 0))
	r := newRelayClient(sched, false, 2, true, nil)

	var gotErr string
	id := r.SendToInternet("http://x", "", "", 0, func(success bool, status int, errMsg string) { gotErr = errMsg })
	if id != 0 || gotErr == "" {
		t.Fatalf("expected rejection with no mesh connections, got id=%d err=%q", id, gotErr)
	}
}

func TestSendToInternetRejectedWithoutPrimaryBridge(t *testing.T) {
	sched := task.NewCoopScheduler(time.Unix(0, 0))
	r := newRelayClient(sched, true, 0, false, nil)

	var gotErr string
	id := r.SendToInternet("http://x", "", "", 0, func(success bool, status int, errMsg string) { gotErr = errMsg })
	if id != 0 || gotErr == "" {
		t.Fatalf("expected rejection with no primary bridge, got id=%d err=%q", id, gotErr)
	}
}

func TestSendToInternetSuccessDeliversCallback(t *testing.T) {
	sched := task.NewCoopScheduler(time.Unix(0, 0))
	r := newRelayClient(sched, true, 2, true, nil)

	var called bool
	id := r.SendToInternet("http://x", "payload", "text/plain", 1, func(success bool, status int, errMsg string) {
		called = true
		if !success || status != 200 {
			t.Fatalf("expected success 200, got success=%v status=%d err=%q", success, status, errMsg)
		}
	})
	if id == 0 {
		t.Fatalf("expected non-zero message id")
	}
	if r.Pending() != 1 {
		t.Fatalf("expected one pending request, got %d", r.Pending())
	}

	r.HandleAck(&protocol.GatewayAck{MsgID: id, Success: true, HTTP: 200})
	if !called {
		t.Fatalf("expected callback to fire")
	}
	if r.Pending() != 0 {
		t.Fatalf("expected pending map drained, got %d", r.Pending())
	}
}

func TestHandleAckRetriesRetryableFailure(t *testing.T) {
	sched := task.NewCoopScheduler(time.Unix(0, 0))
	var sentCount int
	r := newRelayClient(sched, true, 2, true, func(uint32, protocol.Variant) bool { sentCount++; return true })
	r.cfg.RetryDelay = time.Second
	r.cfg.MaxRetries = 2

	var finalSuccess bool
	id := r.SendToInternet("http://x", "", "", 0, func(success bool, status int, errMsg string) {
		finalSuccess = success
	})
	if sentCount != 1 {
		t.Fatalf("expected one initial send, got %d", sentCount)
	}

	r.HandleAck(&protocol.GatewayAck{MsgID: id, Success: false, HTTP: 503})
	sched.RunPending(sched.Now().Add(10 * time.Second))
	if sentCount != 2 {
		t.Fatalf("expected retry resubmission, got sentCount=%d", sentCount)
	}
	if r.Pending() != 1 {
		t.Fatalf("expected request still pending during retry, got %d", r.Pending())
	}
	if finalSuccess {
		t.Fatalf("callback should not have fired yet")
	}
}

func TestHandleAckGivesUpAfterMaxRetries(t *testing.T) {
	sched := task.NewCoopScheduler(time.Unix(0, 0))
	r := newRelayClient(sched, true, 2, true, nil)
	r.cfg.MaxRetries = 0

	var finalSuccess bool
	var finalStatus int
	id := r.SendToInternet("http://x", "", "", 0, func(success bool, status int, errMsg string) {
		finalSuccess = success
		finalStatus = status
	})

	r.HandleAck(&protocol.GatewayAck{MsgID: id, Success: false, HTTP: 503})
	if finalSuccess || finalStatus != 503 {
		t.Fatalf("expected terminal failure delivered, got success=%v status=%d", finalSuccess, finalStatus)
	}
	if r.Pending() != 0 {
		t.Fatalf("expected pending map drained after giving up, got %d", r.Pending())
	}
}

func TestSendToInternetTimesOut(t *testing.T) {
	sched := task.NewCoopScheduler(time.Unix(0, 0))
	r := newRelayClient(sched, true, 2, true, nil)
	r.cfg.RequestTimeout = 5 * time.Second

	var gotErr string
	r.SendToInternet("http://x", "", "", 0, func(success bool, status int, errMsg string) { gotErr = errMsg })

	sched.RunPending(sched.Now().Add(6 * time.Second))
	if gotErr == "" {
		t.Fatalf("expected timeout callback to fire")
	}
	if r.Pending() != 0 {
		t.Fatalf("expected pending map drained after timeout, got %d", r.Pending())
	}
}

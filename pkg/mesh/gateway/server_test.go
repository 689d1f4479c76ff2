package gateway

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/painlessmesh/gomesh/pkg/mesh/protocol"
)

type fakeSuspender struct {
	suspended int
	resumed   int
}

func (f *fakeSuspender) SuspendIdleTimeout() { f.suspended++ }
func (f *fakeSuspender) ResumeIdleTimeout()  { f.resumed++ }

type dummyConn struct{ net.Conn }

func (dummyConn) Close() error { return nil }

func newTestServer(reachable bool, status int, httpErr error) (*Server, *[]*protocol.GatewayAck) {
	acks := &[]*protocol.GatewayAck{}
	s := NewServer(1, NewDedup(time.Minute, 10), "8.8.8.8", 53, func(origin uint32, ack *protocol.GatewayAck) {
		*acks = append(*acks, ack)
	})
	s.SetDialer(func(network, address string, timeout time.Duration) (net.Conn, error) {
		if reachable {
			return dummyConn{}, nil
		}
		return nil, errors.New("unreachable")
	})
	s.SetHTTPDo(func(destURL, payload, content string) (int, string) {
		if httpErr != nil {
			return 0, httpErr.Error()
		}
		return status, ""
	})
	return s, acks
}

func TestHandleSuccessfulRelay(t *testing.T) {
	s, acks := newTestServer(true, 200, nil)
	sus := &fakeSuspender{}
	data := &protocol.GatewayData{MsgID: 10, Origin: 5, DestURL: "http://example.com"}

	s.Handle(data, sus, time.Unix(0, 0))

	if len(*acks) != 1 {
		t.Fatalf("expected one ack, got %d", len(*acks))
	}
	ack := (*acks)[0]
	if !ack.Success || ack.HTTP != 200 || ack.MsgID != 10 {
		t.Fatalf("unexpected ack: %+v", ack)
	}
	if sus.suspended != 1 || sus.resumed != 1 {
		t.Fatalf("expected idle timeout suspended and resumed once each, got suspended=%d resumed=%d", sus.suspended, sus.resumed)
	}
}

func TestHandleNoInternetReachability(t *testing.T) {
	s, acks := newTestServer(false, 200, nil)
	data := &protocol.GatewayData{MsgID: 11, Origin: 5, DestURL: "http://example.com"}

	s.Handle(data, nil, time.Unix(0, 0))

	if len(*acks) != 1 || (*acks)[0].Success {
		t.Fatalf("expected a failure ack when unreachable, got %+v", *acks)
	}
}

func TestHandleUpstreamFailureStatus(t *testing.T) {
	s, acks := newTestServer(true, 503, nil)
	data := &protocol.GatewayData{MsgID: 12, Origin: 5, DestURL: "http://example.com"}

	s.Handle(data, nil, time.Unix(0, 0))

	if len(*acks) != 1 || (*acks)[0].Success || (*acks)[0].HTTP != 503 {
		t.Fatalf("expected failure ack carrying upstream status, got %+v", *acks)
	}
}

func TestHandleDuplicateAfterAckSentIsSuppressed(t *testing.T) {
	s, acks := newTestServer(true, 200, nil)
	data := &protocol.GatewayData{MsgID: 14, Origin: 5, DestURL: "http://example.com"}

	s.Handle(data, nil, time.Unix(0, 0))
	s.Handle(data, nil, time.Unix(1, 0))
	s.Handle(data, nil, time.Unix(2, 0))

	if len(*acks) != 1 {
		t.Fatalf("expected no further ack once the first sighting's ack was sent, got %d", len(*acks))
	}
}

func TestHandleRedundantRetryBeforeFirstAckCollapsesIntoOneAck(t *testing.T) {
	s, acks := newTestServer(true, 200, nil)
	data := &protocol.GatewayData{MsgID: 15, Origin: 5, DestURL: "http://example.com"}

	// Simulate a retry that the dedup table already knows about but whose
	// ack hasn't gone out yet, by seeding the table directly rather than
	// through Handle (which always marks the ack sent before returning).
	s.dedup.Seen(data.MsgID, data.Origin, time.Unix(0, 0))

	s.Handle(data, nil, time.Unix(1, 0))

	if len(*acks) != 1 {
		t.Fatalf("expected exactly one collapsed ack, got %d", len(*acks))
	}
	if !(*acks)[0].Success {
		t.Fatalf("expected the collapsed duplicate ack to report success")
	}
}

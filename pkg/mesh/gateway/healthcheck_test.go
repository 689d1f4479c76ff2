package gateway

import (
	"net"
	"testing"
	"time"
)

func TestCheckFiresOnConnectivityEdges(t *testing.T) {
	h := NewHealthChecker("8.8.8.8", 53, time.Second)
	var events []bool
	h.OnConnectivityChanged(func(available bool) { events = append(events, available) })

	fail := true
	h.SetDialer(func(network, address string, timeout time.Duration) (net.Conn, error) {
		if fail {
			return nil, errDial
		}
		return &fakeConn{}, nil
	})

	now := time.Unix(0, 0)
	h.Check(now) // starts unavailable -> unavailable, no edge
	if len(events) != 0 {
		t.Fatalf("expected no edge on first failing check, got %v", events)
	}

	fail = false
	now = now.Add(time.Second)
	h.Check(now) // flips to available -> edge
	if len(events) != 1 || events[0] != true {
		t.Fatalf("expected one available edge, got %v", events)
	}

	fail = true
	now = now.Add(time.Second)
	h.Check(now) // flips back to unavailable -> edge
	if len(events) != 2 || events[1] != false {
		t.Fatalf("expected one unavailable edge, got %v", events)
	}
}

func TestCheckUpdatesCounters(t *testing.T) {
	h := NewHealthChecker("8.8.8.8", 53, time.Second)
	h.SetDialer(func(network, address string, timeout time.Duration) (net.Conn, error) {
		return &fakeConn{}, nil
	})
	h.Check(time.Unix(0, 0))
	h.Check(time.Unix(1, 0))

	status := h.Status()
	if status.CheckCount != 2 || status.SuccessCount != 2 || status.FailureCount != 0 {
		t.Fatalf("unexpected status: %+v", status)
	}
	if !status.Available {
		t.Fatalf("expected available after successful checks")
	}
}

type fakeConn struct{ net.Conn }

func (f *fakeConn) Close() error { return nil }

var errDial = &dialError{"connection refused"}

type dialError struct{ msg string }

func (e *dialError) Error() string { return e.msg }

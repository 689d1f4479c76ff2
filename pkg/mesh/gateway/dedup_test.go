package gateway

import (
	"testing"
	"time"
)

func TestSeenFirstTimeIsNotDuplicate(t *testing.T) {
	d := NewDedup(time.Minute, 10)
	dup, needsAck := d.Seen(1, 100, time.Unix(0, 0))
	if dup || !needsAck {
		t.Fatalf("expected first sighting to be fresh, got dup=%v needsAck=%v", dup, needsAck)
	}
}

func TestSeenDuplicateWithinWindow(t *testing.T) {
	d := NewDedup(time.Minute, 10)
	d.Seen(1, 100, time.Unix(0, 0))
	d.MarkAckSent(1, 100)
	dup, needsAck := d.Seen(1, 100, time.Unix(10, 0))
	if !dup || needsAck {
		t.Fatalf("expected duplicate with ack already sent, got dup=%v needsAck=%v", dup, needsAck)
	}
}

func TestSeenDuplicateBeforeFirstAckStillNeedsAck(t *testing.T) {
	d := NewDedup(time.Minute, 10)
	d.Seen(1, 100, time.Unix(0, 0))
	dup, needsAck := d.Seen(1, 100, time.Unix(1, 0))
	if !dup || !needsAck {
		t.Fatalf("expected duplicate still needing its ack, got dup=%v needsAck=%v", dup, needsAck)
	}
}

func TestSeenExpiresAfterWindow(t *testing.T) {
	d := NewDedup(10*time.Second, 10)
	d.Seen(1, 100, time.Unix(0, 0))
	dup, _ := d.Seen(1, 100, time.Unix(11, 0))
	if dup {
		t.Fatalf("expected entry to have expired past the window")
	}
}

func TestCapacityEvictsOldest(t *testing.T) {
	d := NewDedup(time.Hour, 2)
	d.Seen(1, 1, time.Unix(0, 0))
	d.Seen(2, 1, time.Unix(1, 0))
	d.Seen(3, 1, time.Unix(2, 0)) // evicts (1,1)

	dup, _ := d.Seen(1, 1, time.Unix(3, 0))
	if dup {
		t.Fatalf("expected oldest entry evicted due to capacity")
	}
}

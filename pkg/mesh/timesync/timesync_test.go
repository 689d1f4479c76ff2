package timesync

import "testing"

func TestOffsetAndRoundTrip(t *testing.T) {
	e := Exchange{T0: 1000, T1: 1010, T2: 1012, T3: 1025}
	// offset = ((1010-1000)-(1025-1012))/2 = (10-13)/2 = -1 (int division)
	if got := e.Offset(); got != -1 {
		t.Fatalf("expected offset -1, got %d", got)
	}
	// round trip = (1025-1000)-(1012-1010) = 25-2 = 23
	if got := e.RoundTrip(); got != 23 {
		t.Fatalf("expected round trip 23, got %d", got)
	}
}

func TestAdoptOtherHasAuthority(t *testing.T) {
	self := Candidate{NodeID: 5}
	other := Candidate{NodeID: 9, HasTimeAuthority: true}
	if !Adopt(self, other) {
		t.Fatalf("expected to adopt the time-authority candidate")
	}
}

func TestAdoptSelfHasAuthority(t *testing.T) {
	self := Candidate{NodeID: 5, HasTimeAuthority: true}
	other := Candidate{NodeID: 1}
	if Adopt(self, other) {
		t.Fatalf("expected to keep self's authoritative time")
	}
}

func TestAdoptTieBreaksOnSubtreeSize(t *testing.T) {
	self := Candidate{NodeID: 5, SubtreeSize: 2}
	other := Candidate{NodeID: 9, SubtreeSize: 7}
	if !Adopt(self, other) {
		t.Fatalf("expected larger subtree to win")
	}
}

func TestAdoptTieBreaksOnNodeID(t *testing.T) {
	self := Candidate{NodeID: 10, SubtreeSize: 3}
	other := Candidate{NodeID: 2, SubtreeSize: 3}
	if !Adopt(self, other) {
		t.Fatalf("expected smaller node id to win equal subtree sizes")
	}
	if Adopt(other, self) {
		t.Fatalf("expected larger node id not to adopt from smaller")
	}
}

func TestSignificantAdjustment(t *testing.T) {
	if SignificantAdjustment(10) {
		t.Fatalf("small offsets should not be significant")
	}
	if !SignificantAdjustment(-100) {
		t.Fatalf("large negative offsets should be significant")
	}
}

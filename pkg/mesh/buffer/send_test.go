package buffer

import "testing"

func drain(s *SendBuffer) []string {
	var out []string
	for !s.Empty() {
		n := s.RequestLength(1 << 20)
		if n == 0 {
			break
		}
		ptr := s.ReadPtr(n)
		out = append(out, string(ptr))
		s.FreeRead()
	}
	return out
}

func TestCriticalOvertakesNormal(t *testing.T) {
	s := NewSendBuffer()
	s.PushWithPriority([]byte("normal"), Normal)
	s.PushWithPriority([]byte("critical"), Critical)

	got := drain(s)
	if len(got) != 2 || got[0] != "critical" || got[1] != "normal" {
		t.Fatalf("expected critical before normal, got %v", got)
	}
}

func TestFIFOWithinPriority(t *testing.T) {
	s := NewSendBuffer()
	s.PushWithPriority([]byte("first"), Normal)
	s.PushWithPriority([]byte("second"), Normal)
	s.PushWithPriority([]byte("third"), Normal)

	got := drain(s)
	want := []string{"first", "second", "third"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected FIFO order %v, got %v", want, got)
		}
	}
}

func TestPartialReadContinuesDespiteHigherPriorityArrival(t *testing.T) {
	s := NewSendBuffer()
	s.PushWithPriority([]byte("normal-message"), Normal)

	// Read only a prefix.
	n := s.RequestLength(6)
	if n != 6 {
		t.Fatalf("expected 6 bytes available, got %d", n)
	}
	ptr := s.ReadPtr(n)
	if string(ptr) != "normal" {
		t.Fatalf("unexpected prefix: %q", ptr)
	}
	s.FreeRead()

	// Now a CRITICAL message arrives mid-send.
	s.PushWithPriority([]byte("urgent"), Critical)

	// The partially-sent NORMAL entry must still be selected next, per
	// spec.md §4.1/P7's partial-write exception.
	rest := s.RequestLength(1 << 20)
	ptr = s.ReadPtr(rest)
	if string(ptr) != "-message" {
		t.Fatalf("expected remaining normal bytes first, got %q", ptr)
	}
	s.FreeRead()

	// Only after the continuing entry finishes does CRITICAL get served.
	ptr = s.ReadPtr(s.RequestLength(1 << 20))
	if string(ptr) != "urgent" {
		t.Fatalf("expected urgent after continuing entry drained, got %q", ptr)
	}
}

func TestLegacyPushMapsBoolToPriority(t *testing.T) {
	s := NewSendBuffer()
	s.Push([]byte("low-ish"), false)
	s.Push([]byte("high-ish"), true)

	got := drain(s)
	if got[0] != "high-ish" || got[1] != "low-ish" {
		t.Fatalf("expected high-ish first, got %v", got)
	}
}

func TestPriorityClampedToLow(t *testing.T) {
	s := NewSendBuffer()
	s.PushWithPriority([]byte("msg"), Priority(200))
	s.ReadPtr(s.RequestLength(1 << 20))
	if s.LastReadPriority() != Low {
		t.Fatalf("expected clamped priority Low, got %v", s.LastReadPriority())
	}
}

func TestStatsCountQueuedAndSent(t *testing.T) {
	s := NewSendBuffer()
	s.PushWithPriority([]byte("a"), Critical)
	s.PushWithPriority([]byte("b"), Critical)
	drain(s)

	stats := s.Stats()
	if stats.Queued[Critical] != 2 || stats.Sent[Critical] != 2 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestClearResetsEntriesNotCounters(t *testing.T) {
	s := NewSendBuffer()
	s.PushWithPriority([]byte("a"), Normal)
	s.Clear()
	if !s.Empty() {
		t.Fatalf("expected empty after clear")
	}
	if s.Stats().Queued[Normal] != 1 {
		t.Fatalf("expected queued counter preserved across clear")
	}
}

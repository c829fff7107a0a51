package broadcast

import (
	"fmt"
	"testing"
)

func TestSinkBound(t *testing.T) {
	t.Parallel()

	s := NewSink(3)
	for i := 0; i < 5; i++ {
		s.Append(Entry{Outcome: OutcomeSent, Detail: fmt.Sprintf("e%d", i)})
	}

	got := s.Snapshot()
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	// Oldest dropped first.
	if got[0].Detail != "e2" || got[2].Detail != "e4" {
		t.Fatalf("unexpected window: %v .. %v", got[0].Detail, got[2].Detail)
	}
}

func TestSinkSnapshotIsCopy(t *testing.T) {
	t.Parallel()

	s := NewSink(10)
	s.Append(Entry{Outcome: OutcomeSent, Detail: "a"})

	snap := s.Snapshot()
	snap[0].Detail = "mutated"

	if got := s.Snapshot()[0].Detail; got != "a" {
		t.Fatalf("snapshot mutation leaked into sink: %q", got)
	}
}

func TestSinkClearAndLen(t *testing.T) {
	t.Parallel()

	s := NewSink(10)
	s.Append(Entry{Outcome: OutcomeSent})
	s.Append(Entry{Outcome: OutcomeFailed})
	if s.Len() != 2 {
		t.Fatalf("Len = %d, want 2", s.Len())
	}
	s.Clear()
	if s.Len() != 0 {
		t.Fatalf("Len after Clear = %d, want 0", s.Len())
	}
}

func TestSinkSetMaxTrims(t *testing.T) {
	t.Parallel()

	s := NewSink(10)
	for i := 0; i < 6; i++ {
		s.Append(Entry{Detail: fmt.Sprintf("e%d", i)})
	}
	s.SetMax(2)

	got := s.Snapshot()
	if len(got) != 2 || got[0].Detail != "e4" || got[1].Detail != "e5" {
		t.Fatalf("unexpected entries after SetMax: %+v", got)
	}
}

func TestSinkAppendStampsTime(t *testing.T) {
	t.Parallel()

	s := NewSink(10)
	s.Append(Entry{Outcome: OutcomeSent})
	if s.Snapshot()[0].Time.IsZero() {
		t.Fatal("Append should stamp a zero Time")
	}
}

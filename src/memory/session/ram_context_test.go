package session

import (
	"fmt"
	"testing"
)

func TestRAMContextBounded(t *testing.T) {
	const capacity = 4
	ctx := NewRAMContext(capacity)
	for i := 0; i < capacity+5; i++ {
		ctx.Add("s1", fmt.Sprintf("turn-%d", i))
	}
	got := ctx.Get("s1")
	if len(got) != capacity {
		t.Fatalf("expected %d turns after overflow, got %d", capacity, len(got))
	}
	for i, turn := range got {
		want := fmt.Sprintf("turn-%d", i+5)
		if turn != want {
			t.Fatalf("turn %d = %q, want %q", i, turn, want)
		}
	}
}

func TestRAMContextUnknownSession(t *testing.T) {
	ctx := NewRAMContext(0)
	if got := ctx.Get("missing"); len(got) != 0 {
		t.Fatalf("expected empty slice for unknown session, got %v", got)
	}
	if ctx.Len("missing") != 0 {
		t.Fatal("expected zero length for unknown session")
	}
}

func TestRAMContextGetReturnsCopy(t *testing.T) {
	ctx := NewRAMContext(4)
	ctx.Add("s1", "original")
	got := ctx.Get("s1")
	got[0] = "mutated"
	if ctx.Get("s1")[0] != "original" {
		t.Fatal("Get must return a copy, not the backing slice")
	}
}

func TestRAMContextRecent(t *testing.T) {
	ctx := NewRAMContext(8)
	for i := 0; i < 6; i++ {
		ctx.Add("s1", fmt.Sprintf("turn-%d", i))
	}
	recent := ctx.Recent("s1", 3)
	if len(recent) != 3 || recent[0] != "turn-3" || recent[2] != "turn-5" {
		t.Fatalf("unexpected recent window: %v", recent)
	}
}

func TestRAMContextClear(t *testing.T) {
	ctx := NewRAMContext(4)
	ctx.Add("s1", "a")
	ctx.Add("s2", "b")
	ctx.Clear()
	if ctx.Len("s1") != 0 || ctx.Len("s2") != 0 {
		t.Fatal("expected all sessions dropped after Clear")
	}
}

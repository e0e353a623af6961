package model

import (
	"math"
	"testing"
)

func TestEdgeIDDeterministic(t *testing.T) {
	a := EdgeID("u1", "User", "ORIGIN_FROM", "Kerala")
	b := EdgeID("u1", "User", "ORIGIN_FROM", "Kerala")
	if a != b {
		t.Fatalf("same tuple produced different ids: %s vs %s", a, b)
	}
	if a == EdgeID("u2", "User", "ORIGIN_FROM", "Kerala") {
		t.Fatal("different users must not share edge ids")
	}
	if a == EdgeID("u1", "User", "ORIGIN_FROM", "kerala") {
		t.Fatal("edge ids must be case-sensitive")
	}
}

func TestDocIDTrimsText(t *testing.T) {
	if DocID("u1", "I live in Pune") != DocID("u1", "  I live in Pune  ") {
		t.Fatal("doc id must normalize surrounding whitespace")
	}
	if DocID("u1", "I live in Pune") == DocID("u2", "I live in Pune") {
		t.Fatal("doc ids must be scoped per user")
	}
}

func TestSanitizeRelation(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"likes", "LIKES"},
		{"origin from", "ORIGINFROM"},
		{"lives_in", "LIVES_IN"},
		{"drop]->(x) DETACH DELETE", "DROPXDETACHDELETE"},
		{"!!!", GenericRelation},
		{"", GenericRelation},
	}
	for _, tc := range cases {
		if got := SanitizeRelation(tc.in); got != tc.want {
			t.Fatalf("SanitizeRelation(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestReinforceMonotonic(t *testing.T) {
	c := 0.5
	want := 0.5 + (1-0.5)*0.2
	if got := Reinforce(c); math.Abs(got-want) > 1e-9 {
		t.Fatalf("Reinforce(0.5) = %v, want %v", got, want)
	}
	prev := 0.3
	for i := 0; i < 50; i++ {
		next := Reinforce(prev)
		if next < prev {
			t.Fatalf("reinforcement decreased: %v -> %v", prev, next)
		}
		if next > 1 {
			t.Fatalf("reinforcement exceeded 1: %v", next)
		}
		prev = next
	}
}

func TestClampConfidence(t *testing.T) {
	if got := ClampConfidence(0); got != 1.0 {
		t.Fatalf("absent confidence should default to 1.0, got %v", got)
	}
	if got := ClampConfidence(1.7); got != 1.0 {
		t.Fatalf("expected clamp to 1.0, got %v", got)
	}
	if got := ClampConfidence(-0.2); got != 0 {
		t.Fatalf("expected clamp to 0, got %v", got)
	}
	if got := ClampConfidence(0.42); got != 0.42 {
		t.Fatalf("in-range confidence should pass through, got %v", got)
	}
}

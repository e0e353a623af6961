package engine

import (
	"context"
	"strings"
	"testing"

	"github.com/engram-ai/engram/src/memory/model"
	"github.com/engram-ai/engram/src/memory/store"
	"github.com/engram-ai/engram/src/models"
)

func seedCluster(t *testing.T, graph *store.InMemoryGraphStore, userID string) {
	t.Helper()
	for _, dst := range []string{"Pizza", "Burgers", "Fries", "Tacos"} {
		err := graph.InsertEdge(context.Background(), model.Edge{
			Src: "User", Dst: dst, Relation: "LIKES", Confidence: 0.75, UserID: userID,
		})
		if err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
}

func TestConsolidatorCompressesCluster(t *testing.T) {
	graph := store.NewInMemoryGraphStore()
	seedCluster(t, graph, "u1")

	llm := models.NewDummyLLM("").Queue(
		`{"consolidated": true, "new_facts": [{"relation": "LIKES", "target": "Junk Food", "confidence": 0.9}], "explanation": "grouped fast foods"}`,
	)
	c := NewConsolidator(llm, graph)

	if err := c.Run(context.Background(), "u1"); err != nil {
		t.Fatalf("run: %v", err)
	}

	// Only "User" exceeds the degree threshold; the four originals are
	// pruned and the rollup inserted.
	edges, err := graph.RecentEdgesForSubject(context.Background(), "u1", "User", 10)
	if err != nil {
		t.Fatalf("edges: %v", err)
	}
	if len(edges) != 1 {
		t.Fatalf("edges after consolidation = %d, want 1", len(edges))
	}
	if edges[0].Dst != "Junk Food" || edges[0].Relation != "LIKES" {
		t.Fatalf("rollup edge = %+v", edges[0])
	}
	if !strings.HasPrefix(edges[0].SourceText, "consolidated: ") {
		t.Fatalf("provenance missing: %q", edges[0].SourceText)
	}
	if edges[0].Confidence != 0.9 {
		t.Fatalf("confidence = %v", edges[0].Confidence)
	}
}

func TestConsolidatorToleratesMalformedResponse(t *testing.T) {
	graph := store.NewInMemoryGraphStore()
	seedCluster(t, graph, "u1")

	c := NewConsolidator(models.NewDummyLLM("").Queue("the model rambles instead of emitting JSON"), graph)
	if err := c.Run(context.Background(), "u1"); err != nil {
		t.Fatalf("malformed response must not fail the run: %v", err)
	}
	if got := graph.EdgeCount("u1"); got != 4 {
		t.Fatalf("edges = %d, want originals untouched", got)
	}
}

func TestConsolidatorRespectsUnrelatedVerdict(t *testing.T) {
	graph := store.NewInMemoryGraphStore()
	seedCluster(t, graph, "u1")

	c := NewConsolidator(models.NewDummyLLM("").Queue(`{"consolidated": false}`), graph)
	if err := c.Run(context.Background(), "u1"); err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := graph.EdgeCount("u1"); got != 4 {
		t.Fatalf("edges = %d, want originals untouched", got)
	}
}

func TestConsolidatorSkipsSparseGraph(t *testing.T) {
	graph := store.NewInMemoryGraphStore()
	_ = graph.InsertEdge(context.Background(), model.Edge{
		Src: "User", Dst: "Kerala", Relation: "LIVES_IN", Confidence: 0.75, UserID: "u1",
	})

	llm := models.NewDummyLLM("")
	c := NewConsolidator(llm, graph)
	if err := c.Run(context.Background(), "u1"); err != nil {
		t.Fatalf("run: %v", err)
	}
	if calls := len(llm.Prompts()); calls != 0 {
		t.Fatalf("model called %d times on a sparse graph", calls)
	}
}

package reasoning

import (
	"context"
	"errors"
	"testing"

	"github.com/engram-ai/engram/src/models"
)

const keralaGraph = `{"nodes":[{"id":"User","type":"person"},{"id":"Kerala","type":"place"}],"edges":[{"id":"e1","src":"User","dst":"Kerala","relation":"lives_in"}]}`

func TestExtractDirectJSON(t *testing.T) {
	x := NewExtractor(models.NewDummyLLM("").Queue(keralaGraph))
	delta := x.Extract(context.Background(), "I live in Kerala")
	if delta == nil {
		t.Fatal("expected a delta")
	}
	if len(delta.Edges) != 1 || delta.Edges[0].Relation != "lives_in" {
		t.Fatalf("edges = %+v", delta.Edges)
	}
	if delta.Edges[0].Confidence != 1.0 {
		t.Fatalf("missing confidence should default to 1.0, got %v", delta.Edges[0].Confidence)
	}
	if len(delta.Nodes) != 2 {
		t.Fatalf("nodes = %+v", delta.Nodes)
	}
}

func TestExtractFencedJSON(t *testing.T) {
	fenced := "```json\n" + keralaGraph + "\n```"
	x := NewExtractor(models.NewDummyLLM("").Queue(fenced))
	if delta := x.Extract(context.Background(), "I live in Kerala"); delta == nil {
		t.Fatal("fenced JSON should parse")
	}
}

func TestExtractEmbeddedJSON(t *testing.T) {
	chatty := "Sure! Here is the graph you asked for: " + keralaGraph + " Hope that helps."
	x := NewExtractor(models.NewDummyLLM("").Queue(chatty))
	if delta := x.Extract(context.Background(), "I live in Kerala"); delta == nil {
		t.Fatal("embedded JSON should parse")
	}
}

func TestExtractTrivialUtterancesSkipModel(t *testing.T) {
	llm := models.NewDummyLLM("")
	x := NewExtractor(llm)
	for _, text := range []string{"hi", "Hello", "THANKS", "thank you", "bye", ""} {
		if delta := x.Extract(context.Background(), text); delta != nil {
			t.Fatalf("%q should not extract", text)
		}
	}
	if calls := len(llm.Prompts()); calls != 0 {
		t.Fatalf("trivial utterances hit the model %d times", calls)
	}
}

func TestExtractRetriesOnGarbage(t *testing.T) {
	llm := models.NewDummyLLM("").Queue("not json at all", keralaGraph)
	x := NewExtractor(llm)
	if delta := x.Extract(context.Background(), "I live in Kerala"); delta == nil {
		t.Fatal("expected delta on second attempt")
	}
	if calls := len(llm.Prompts()); calls != 2 {
		t.Fatalf("model called %d times, want 2", calls)
	}
}

func TestExtractGivesUpAfterRetries(t *testing.T) {
	llm := models.NewDummyLLM("").Fail(errors.New("connection refused"))
	x := NewExtractor(llm)
	if delta := x.Extract(context.Background(), "I live in Kerala"); delta != nil {
		t.Fatal("expected nil after persistent failure")
	}
	if calls := len(llm.Prompts()); calls != DefaultExtractionRetries+1 {
		t.Fatalf("model called %d times, want %d", calls, DefaultExtractionRetries+1)
	}
}

func TestExtractEdgelessGraphIsNoFact(t *testing.T) {
	llm := models.NewDummyLLM("").Queue(`{"nodes":[],"edges":[]}`)
	x := NewExtractor(llm)
	if delta := x.Extract(context.Background(), "how are you today"); delta != nil {
		t.Fatal("edge-less graph should yield nil")
	}
	// No retry for a well-formed empty graph.
	if calls := len(llm.Prompts()); calls != 1 {
		t.Fatalf("model called %d times, want 1", calls)
	}
}

func TestExtractDropsIncompleteEdges(t *testing.T) {
	mixed := `{"nodes":[],"edges":[{"id":"e1","src":"User","dst":"","relation":"X"},{"id":"e2","src":"User","dst":"tea","relation":"likes","confidence":0.6}]}`
	x := NewExtractor(models.NewDummyLLM("").Queue(mixed))
	delta := x.Extract(context.Background(), "I like tea")
	if delta == nil || len(delta.Edges) != 1 {
		t.Fatalf("delta = %+v", delta)
	}
	if delta.Edges[0].Dst != "tea" || delta.Edges[0].Confidence != 0.6 {
		t.Fatalf("edge = %+v", delta.Edges[0])
	}
}

func TestComputeConfidence(t *testing.T) {
	if got := ComputeConfidence(nil); got != 0 {
		t.Fatalf("nil delta = %v", got)
	}
	x := NewExtractor(models.NewDummyLLM("").Queue(keralaGraph))
	delta := x.Extract(context.Background(), "I live in Kerala")
	if got := ComputeConfidence(delta); got != 0.75 {
		t.Fatalf("delta with edges = %v, want 0.75", got)
	}
	if 0.75 < DefaultMinConfidenceToStore {
		t.Fatal("baseline must clear the storage threshold")
	}
}

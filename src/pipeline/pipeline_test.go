package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/engram-ai/engram/src/concurrent"
	"github.com/engram-ai/engram/src/llm"
	"github.com/engram-ai/engram/src/memory/model"
	"github.com/engram-ai/engram/src/memory/session"
	"github.com/engram-ai/engram/src/memory/store"
	"github.com/engram-ai/engram/src/models"
	"github.com/engram-ai/engram/src/reasoning"
)

const originGraph = `{"nodes":[{"id":"User","type":"person"},{"id":"UP","type":"place"}],"edges":[{"id":"e1","src":"User","dst":"UP","relation":"ORIGIN_FROM"}]}`

func newTestSlowPipe(extractorLLM, judgeLLM models.Agent) (*SlowPipe, *store.InMemoryGraphStore, *store.InMemoryVectorStore) {
	graph := store.NewInMemoryGraphStore()
	vectors := store.NewInMemoryVectorStore(nil)
	buffer := session.NewRAMContext(8)
	p := NewSlowPipe(
		reasoning.NewExtractor(extractorLLM),
		reasoning.NewContradictionJudge(judgeLLM, nil),
		graph, vectors, buffer,
	)
	return p, graph, vectors
}

func TestSlowPipePersistsBothStores(t *testing.T) {
	p, graph, vectors := newTestSlowPipe(
		models.NewDummyLLM("").Queue(originGraph),
		models.NewDummyLLM("").Queue(`{"contradiction": false}`),
	)
	p.Process(context.Background(), "I am from UP", "u1", nil)

	if got := graph.EdgeCount("u1"); got != 1 {
		t.Fatalf("graph edges = %d, want 1", got)
	}
	if got := vectors.Count("u1"); got != 1 {
		t.Fatalf("vector docs = %d, want 1", got)
	}
	edges, _ := graph.RecentEdgesForSubject(context.Background(), "u1", "User", 5)
	if edges[0].SourceText != "I am from UP" {
		t.Fatalf("source_text = %q", edges[0].SourceText)
	}
	if edges[0].Confidence != 0.75 {
		t.Fatalf("confidence = %v, want turn baseline", edges[0].Confidence)
	}
}

func TestSlowPipeContradictionBlocksWholeTurn(t *testing.T) {
	p, graph, vectors := newTestSlowPipe(
		models.NewDummyLLM("").Queue(originGraph),
		models.NewDummyLLM("").Queue(`{"contradiction": true}`),
	)
	// Existing knowledge the new fact conflicts with.
	seed := model.Edge{Src: "User", Dst: "Kerala", Relation: "ORIGIN_FROM", Confidence: 0.75, UserID: "u1"}
	if err := graph.InsertEdge(context.Background(), seed); err != nil {
		t.Fatalf("seed: %v", err)
	}

	p.Process(context.Background(), "I am from UP", "u1", nil)

	if got := graph.EdgeCount("u1"); got != 1 {
		t.Fatalf("contradicting turn persisted, edges = %d", got)
	}
	if got := vectors.Count("u1"); got != 0 {
		t.Fatalf("contradicting turn reached the vector store, docs = %d", got)
	}
}

func TestSlowPipeTrivialRelationBypassesJudge(t *testing.T) {
	judgeLLM := models.NewDummyLLM("")
	greetGraph := `{"nodes":[],"edges":[{"id":"e1","src":"User","dst":"Assistant","relation":"GREETS"}]}`
	p, graph, _ := newTestSlowPipe(models.NewDummyLLM("").Queue(greetGraph), judgeLLM)

	p.Process(context.Background(), "good morning to you", "u1", nil)

	if got := graph.EdgeCount("u1"); got != 1 {
		t.Fatalf("trivial edge not persisted, edges = %d", got)
	}
	if calls := len(judgeLLM.Prompts()); calls != 0 {
		t.Fatalf("judge called %d times for a trivial relation", calls)
	}
}

func TestSlowPipeLowConfidenceRejected(t *testing.T) {
	p, graph, vectors := newTestSlowPipe(
		models.NewDummyLLM("").Queue(originGraph),
		models.NewDummyLLM(""),
	)
	p.MinConfidence = 0.9 // above the 0.75 baseline

	p.Process(context.Background(), "I am from UP", "u1", nil)

	if graph.EdgeCount("u1") != 0 || vectors.Count("u1") != 0 {
		t.Fatal("low-confidence delta reached a store")
	}
}

func TestSlowPipeNoDeltaAborts(t *testing.T) {
	p, graph, _ := newTestSlowPipe(
		models.NewDummyLLM("").Queue(`{"nodes":[],"edges":[]}`),
		models.NewDummyLLM(""),
	)
	p.Process(context.Background(), "how are you doing", "u1", nil)
	if graph.EdgeCount("u1") != 0 {
		t.Fatal("edge-less extraction persisted something")
	}
}

func TestSlowPipeReusesUpstreamDelta(t *testing.T) {
	extractorLLM := models.NewDummyLLM("")
	p, graph, _ := newTestSlowPipe(extractorLLM, models.NewDummyLLM(""))

	delta := &model.GraphDelta{Edges: []model.Edge{
		{Src: "User", Dst: "tea", Relation: "LIKES", Confidence: 1},
	}}
	p.Process(context.Background(), "I like tea", "u1", delta)

	if graph.EdgeCount("u1") != 1 {
		t.Fatal("upstream delta not persisted")
	}
	if calls := len(extractorLLM.Prompts()); calls != 0 {
		t.Fatalf("extractor re-ran %d times despite upstream delta", calls)
	}
}

type panickingGraphStore struct {
	store.GraphStore
}

func (panickingGraphStore) UpsertNode(context.Context, model.Node) error {
	panic("storage exploded")
}

func (panickingGraphStore) InsertEdge(context.Context, model.Edge) error {
	panic("storage exploded")
}

func TestSlowPipeContainsStorageCrash(t *testing.T) {
	p, _, _ := newTestSlowPipe(
		models.NewDummyLLM("").Queue(originGraph),
		models.NewDummyLLM("").Queue(`{"contradiction": false}`),
	)
	p.Graph = panickingGraphStore{p.Graph}

	// Must return normally; a panic here fails the test on its own.
	p.Process(context.Background(), "I am from UP", "u1", nil)
}

func newTestFastPipe(generatorLLM models.Agent, slow *SlowPipe, graph store.GraphStore, vectors store.VectorStore, queue *concurrent.Queue) *FastPipe {
	return NewFastPipe(
		graph, vectors, slow.Buffer,
		reasoning.NewReranker(reasoning.LexicalScorer{}),
		llm.NewGenerator(generatorLLM),
		slow, queue,
	)
}

func TestFastPipeRetrievesForQuestions(t *testing.T) {
	slow, graph, vectors := newTestSlowPipe(models.NewDummyLLM(""), models.NewDummyLLM(""))
	seed := model.Edge{Src: "User", Dst: "Kerala", Relation: "LIVES_IN", Confidence: 0.9, UserID: "u1"}
	if err := graph.InsertEdge(context.Background(), seed); err != nil {
		t.Fatalf("seed: %v", err)
	}

	generatorLLM := models.NewDummyLLM("").Queue("You live in Kerala.")
	fast := newTestFastPipe(generatorLLM, slow, graph, vectors, nil)

	result := fast.Process(context.Background(), "Where do I live?", "u1")
	if result.Response != "You live in Kerala." {
		t.Fatalf("response = %q", result.Response)
	}
	if len(result.MemoriesUsed) == 0 {
		t.Fatal("question did not retrieve memories")
	}
	if !strings.Contains(generatorLLM.Prompts()[0], "User LIVES_IN Kerala") {
		t.Fatalf("memory missing from generation prompt:\n%s", generatorLLM.Prompts()[0])
	}
}

func TestFastPipeSkipsRetrievalForStatements(t *testing.T) {
	slow, graph, vectors := newTestSlowPipe(models.NewDummyLLM(""), models.NewDummyLLM(""))
	seed := model.Edge{Src: "User", Dst: "Kerala", Relation: "LIVES_IN", Confidence: 0.9, UserID: "u1"}
	_ = graph.InsertEdge(context.Background(), seed)

	fast := newTestFastPipe(models.NewDummyLLM("").Queue("Nice!"), slow, graph, vectors, nil)
	result := fast.Process(context.Background(), "I had pizza today", "u1")
	if len(result.MemoriesUsed) != 0 {
		t.Fatalf("statement triggered retrieval: %d memories", len(result.MemoriesUsed))
	}
}

func TestFastPipeEnqueuesWrite(t *testing.T) {
	slow, graph, _ := newTestSlowPipe(
		models.NewDummyLLM("").Queue(originGraph),
		models.NewDummyLLM("").Queue(`{"contradiction": false}`),
	)
	queue := concurrent.NewQueue(1, 8, concurrent.Block)
	fast := newTestFastPipe(models.NewDummyLLM("").Queue("Okay!"), slow, slow.Graph, slow.Vectors, queue)

	result := fast.Process(context.Background(), "I am from UP", "u1")
	if result.JobID == "" {
		t.Fatal("no background job enqueued")
	}
	queue.Close() // drains the queue

	if got := graph.EdgeCount("u1"); got != 1 {
		t.Fatalf("background write did not land, edges = %d", got)
	}
}

func TestFastPipeAlwaysAnswers(t *testing.T) {
	slow, graph, vectors := newTestSlowPipe(models.NewDummyLLM(""), models.NewDummyLLM(""))
	fast := newTestFastPipe(models.NewDummyLLM("").Fail(errors.New("llm down")), slow, graph, vectors, nil)

	result := fast.Process(context.Background(), "Where do I live?", "u1")
	if result.Response != llm.DefaultFallback {
		t.Fatalf("response = %q", result.Response)
	}
}

func TestFastPipePreResponseGate(t *testing.T) {
	slow, graph, _ := newTestSlowPipe(
		models.NewDummyLLM("").Queue(originGraph),
		models.NewDummyLLM("").Queue(`{"contradiction": true}`),
	)
	seed := model.Edge{Src: "User", Dst: "Kerala", Relation: "ORIGIN_FROM", Confidence: 0.75, UserID: "u1"}
	_ = graph.InsertEdge(context.Background(), seed)

	generatorLLM := models.NewDummyLLM("")
	fast := newTestFastPipe(generatorLLM, slow, slow.Graph, slow.Vectors, nil)
	fast.PreResponseGate = true

	result := fast.Process(context.Background(), "I am from UP", "u1")
	if result.Response != ContradictionMessage {
		t.Fatalf("response = %q", result.Response)
	}
	if calls := len(generatorLLM.Prompts()); calls != 0 {
		t.Fatalf("generation ran %d times despite short-circuit", calls)
	}
	if got := graph.EdgeCount("u1"); got != 1 {
		t.Fatalf("contradicting fact persisted, edges = %d", got)
	}
}

func TestRequiresMemory(t *testing.T) {
	cases := map[string]bool{
		"Where do I live?":            true,
		"do you remember my name":     true,
		"as I told you before, hello": true,
		"I had pizza today":           false,
		"good morning":                false,
	}
	for text, want := range cases {
		if got := RequiresMemory(text); got != want {
			t.Errorf("RequiresMemory(%q) = %v, want %v", text, got, want)
		}
	}
}

func TestResetClearsEverything(t *testing.T) {
	slow, graph, vectors := newTestSlowPipe(models.NewDummyLLM(""), models.NewDummyLLM(""))
	_ = graph.InsertEdge(context.Background(), model.Edge{Src: "a", Dst: "b", Relation: "R", Confidence: 1, UserID: "u1"})
	_ = vectors.AddMemory(context.Background(), model.VectorMemory{UserID: "u1", Text: "hello"})
	slow.Buffer.Add("u1", "hello")

	if err := Reset(context.Background(), graph, vectors, slow.Buffer); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if graph.EdgeCount("") != 0 || vectors.Count("") != 0 || slow.Buffer.Len("u1") != 0 {
		t.Fatal("reset left state behind")
	}
}

func TestIsResetCommand(t *testing.T) {
	for _, cmd := range []string{"reset", "  WIPE  ", "forget all", "Clear Memory"} {
		if !IsResetCommand(cmd) {
			t.Errorf("IsResetCommand(%q) = false", cmd)
		}
	}
	if IsResetCommand("please don't reset") {
		t.Error("substring matched as reset command")
	}
}

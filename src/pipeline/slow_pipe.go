package pipeline

import (
	"context"
	"log"
	"time"

	"github.com/engram-ai/engram/src/memory/model"
	"github.com/engram-ai/engram/src/memory/session"
	"github.com/engram-ai/engram/src/memory/store"
	"github.com/engram-ai/engram/src/reasoning"
)

// Abort reasons logged by the write path.
const (
	AbortNoGraphDelta  = "no_graph_delta"
	AbortLowConfidence = "low_confidence"
	AbortContradiction = "contradiction"
)

const slowPipeTimeout = 120 * time.Second

// SlowPipe is the asynchronous write path: extract, score, gate,
// persist. It runs detached from the request that triggered it and
// never lets an error escape to its caller.
type SlowPipe struct {
	Extractor *reasoning.Extractor
	Judge     *reasoning.ContradictionJudge
	Graph     store.GraphStore
	Vectors   store.VectorStore
	Buffer    *session.RAMContext

	MinConfidence    float64
	RecentEdgeWindow int
}

func NewSlowPipe(extractor *reasoning.Extractor, judge *reasoning.ContradictionJudge, graph store.GraphStore, vectors store.VectorStore, buffer *session.RAMContext) *SlowPipe {
	return &SlowPipe{
		Extractor:        extractor,
		Judge:            judge,
		Graph:            graph,
		Vectors:          vectors,
		Buffer:           buffer,
		MinConfidence:    reasoning.DefaultMinConfidenceToStore,
		RecentEdgeWindow: 5,
	}
}

// Process runs one utterance through the write state machine. A delta
// already computed upstream is reused to avoid double extraction.
func (p *SlowPipe) Process(ctx context.Context, userInput, sessionID string, delta *model.GraphDelta) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[SlowPipe] recovered: %v", r)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, slowPipeTimeout)
	defer cancel()

	if delta == nil {
		delta = p.Extractor.Extract(ctx, userInput)
	}
	if delta == nil || len(delta.Edges) == 0 {
		log.Printf("[SlowPipe] abort: %s", AbortNoGraphDelta)
		return
	}

	confidence := reasoning.ComputeConfidence(delta)
	if confidence < p.MinConfidence {
		log.Printf("[SlowPipe] abort: %s (score=%.2f)", AbortLowConfidence, confidence)
		return
	}

	if p.contradicts(ctx, sessionID, delta.Edges[0]) {
		// All-or-nothing at turn granularity: nothing from this delta
		// is persisted, not even the other edges.
		log.Printf("[SlowPipe] abort: %s (edge=%s)", AbortContradiction, delta.Edges[0].Statement())
		return
	}

	for _, node := range delta.Nodes {
		if err := p.Graph.UpsertNode(ctx, node); err != nil {
			log.Printf("[SlowPipe] upsert node %s: %v", node.ID, err)
			return
		}
	}

	turnID := p.Buffer.Len(sessionID)
	for _, edge := range delta.Edges {
		edge.Confidence = edgeConfidence(edge.Confidence, confidence)
		edge.TurnID = turnID
		edge.UserID = sessionID
		edge.SourceText = userInput
		if err := p.Graph.InsertEdge(ctx, edge); err != nil {
			log.Printf("[SlowPipe] insert edge %s: %v", edge.Statement(), err)
			return
		}
	}

	if err := p.Vectors.AddMemory(ctx, model.VectorMemory{
		Text:       userInput,
		UserID:     sessionID,
		TurnID:     turnID,
		Confidence: confidence,
	}); err != nil {
		log.Printf("[SlowPipe] vector persist: %v", err)
		return
	}

	log.Printf("[SlowPipe] persisted %d nodes, %d edges (confidence=%.2f)", len(delta.Nodes), len(delta.Edges), confidence)
}

// contradicts checks the delta's first edge against the K most recently
// updated edges for the same subject. Trivial relations bypass the gate
// entirely.
func (p *SlowPipe) contradicts(ctx context.Context, sessionID string, first model.Edge) bool {
	if p.Judge == nil || p.Judge.IsTrivial(first.Relation) {
		return false
	}

	recent, err := p.Graph.RecentEdgesForSubject(ctx, sessionID, first.Src, p.RecentEdgeWindow)
	if err != nil {
		// Can't see existing knowledge; let the write through.
		log.Printf("[SlowPipe] recent edges unavailable: %v", err)
		return false
	}
	for _, existing := range recent {
		if p.Judge.IsTrivial(existing.Relation) {
			continue
		}
		if p.Judge.Detect(ctx, first, existing) {
			return true
		}
	}
	return false
}

// edgeConfidence prefers the extractor's per-edge score when it carries
// signal, falling back to the turn's global score. The extractor maps a
// missing confidence to 1.0, which is "no signal" here.
func edgeConfidence(perEdge, turnScore float64) float64 {
	if perEdge > 0 && perEdge < 1 {
		return perEdge
	}
	return turnScore
}

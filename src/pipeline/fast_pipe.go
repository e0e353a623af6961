package pipeline

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/engram-ai/engram/src/concurrent"
	"github.com/engram-ai/engram/src/llm"
	"github.com/engram-ai/engram/src/memory/model"
	"github.com/engram-ai/engram/src/memory/session"
	"github.com/engram-ai/engram/src/memory/store"
	"github.com/engram-ai/engram/src/reasoning"
)

// User-visible failure strings. Nothing else internal ever reaches the
// end user.
const (
	RetrievalFallback    = "I apologize, but I'm having trouble retrieving my memories right now. Please try again in a moment."
	ContradictionMessage = "Hmm, that contradicts what you told me earlier. Are you sure?"
)

// memoryKeywords trigger retrieval even for non-questions.
var memoryKeywords = []string{"remember", "recall", "told you", "earlier", "last time", "past"}

// TurnResult is what one turn through the read path produces.
type TurnResult struct {
	Response     string
	MemoriesUsed []reasoning.Candidate
	JobID        string
}

// FastPipe is the synchronous read path: gate, retrieve, fuse,
// generate, enqueue. It always returns a response, in bounded time,
// regardless of backend health.
type FastPipe struct {
	Graph      store.GraphStore
	Vectors    store.VectorStore
	Buffer     *session.RAMContext
	Reranker   *reasoning.Reranker
	Compressor *reasoning.ContextCompressor
	Generator  *llm.Generator
	Slow       *SlowPipe
	Queue      *concurrent.Queue

	TopK int
	// PreResponseGate short-circuits the turn with a visible rejection
	// when the new fact contradicts stored knowledge. Costs extraction
	// plus the judge on the synchronous path.
	PreResponseGate bool

	RecentTurns int
}

func NewFastPipe(graph store.GraphStore, vectors store.VectorStore, buffer *session.RAMContext, reranker *reasoning.Reranker, generator *llm.Generator, slow *SlowPipe, queue *concurrent.Queue) *FastPipe {
	return &FastPipe{
		Graph:       graph,
		Vectors:     vectors,
		Buffer:      buffer,
		Reranker:    reranker,
		Compressor:  reasoning.NewContextCompressor(0),
		Generator:   generator,
		Slow:        slow,
		Queue:       queue,
		TopK:        3,
		RecentTurns: 5,
	}
}

// RequiresMemory is the fast semantic gate: retrieval runs only for
// questions and memory-referential phrasing.
func RequiresMemory(userInput string) bool {
	if llm.IsQuestion(userInput) {
		return true
	}
	lower := strings.ToLower(userInput)
	for _, kw := range memoryKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// Process handles one user turn. It generates a reply synchronously and
// hands persistence to the background queue before returning.
func (p *FastPipe) Process(ctx context.Context, userInput, sessionID string) TurnResult {
	start := time.Now()

	var delta *model.GraphDelta
	if p.PreResponseGate && p.Slow != nil {
		delta = p.Slow.Extractor.Extract(ctx, userInput)
		if delta != nil && len(delta.Edges) > 0 && p.Slow.contradicts(ctx, sessionID, delta.Edges[0]) {
			log.Printf("[FastPipe] contradiction short-circuit for session %s", sessionID)
			p.Buffer.Add(sessionID, userInput)
			return TurnResult{Response: ContradictionMessage}
		}
	}

	response, memories := p.respond(ctx, userInput, sessionID)

	log.Printf("[FastPipe] done in %dms (memories=%d)", time.Since(start).Milliseconds(), len(memories))

	p.Buffer.Add(sessionID, userInput)

	// Persistence is fire-and-forget; the caller never waits on it.
	jobID := ""
	if p.Queue != nil && p.Slow != nil {
		input, sid, d := userInput, sessionID, delta
		jobID = p.Queue.Submit(func(jobCtx context.Context) {
			p.Slow.Process(jobCtx, input, sid, d)
		})
	}

	return TurnResult{Response: response, MemoriesUsed: memories, JobID: jobID}
}

// respond covers steps 1-4 of the read path and converts any failure
// into the fixed fallback reply.
func (p *FastPipe) respond(ctx context.Context, userInput, sessionID string) (response string, memories []reasoning.Candidate) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[FastPipe] recovered: %v", r)
			response = RetrievalFallback
		}
	}()

	recentTurns := p.Buffer.Recent(sessionID, p.RecentTurns)

	if RequiresMemory(userInput) {
		symbolic, neural := p.retrieve(ctx, userInput, sessionID)
		memories = p.Reranker.Fuse(ctx, userInput, symbolic, neural, p.TopK)
		if compressed := p.Compressor.Compress(memories); compressed != "" {
			memories = rebuildFromBlock(compressed, memories)
		}
	}

	return p.Generator.Generate(ctx, userInput, recentTurns, memories), memories
}

// retrieve queries both stores concurrently. Either store failing
// soft-degrades to an empty candidate list.
func (p *FastPipe) retrieve(ctx context.Context, userInput, sessionID string) ([]model.ScoredEdge, []model.VectorMemory) {
	var (
		wg       sync.WaitGroup
		symbolic []model.ScoredEdge
		neural   []model.VectorMemory
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		edges, err := p.Graph.RetrieveContext(ctx, sessionID, store.AnchorLimit+store.SpreadLimit)
		if err != nil {
			log.Printf("[FastPipe] symbolic search failed: %v", err)
			return
		}
		symbolic = edges
	}()
	go func() {
		defer wg.Done()
		neural = p.Vectors.Search(ctx, userInput, 5, sessionID)
	}()
	wg.Wait()

	return symbolic, neural
}

// rebuildFromBlock keeps only the candidates that survived compression,
// in compressed order, so the prompt and the reported memories agree.
func rebuildFromBlock(block string, candidates []reasoning.Candidate) []reasoning.Candidate {
	byText := make(map[string]reasoning.Candidate, len(candidates))
	for _, c := range candidates {
		byText[strings.Join(strings.Fields(c.Text), " ")] = c
	}
	var out []reasoning.Candidate
	for _, line := range strings.Split(block, "\n") {
		line = strings.TrimPrefix(line, "- ")
		if c, ok := byText[line]; ok {
			out = append(out, c)
		}
	}
	return out
}

package reasoning

import (
	"context"
	"log"
	"sort"
	"strings"

	"github.com/engram-ai/engram/src/memory/model"
)

// Candidate is one memory entering the fusion step: either edge-shaped
// (Edge set) or text-shaped (Memory set), never both.
type Candidate struct {
	Text   string
	Edge   *model.ScoredEdge
	Memory *model.VectorMemory
	Score  float64
}

// IsSymbolic reports whether the candidate came from the fact graph.
func (c Candidate) IsSymbolic() bool { return c.Edge != nil }

// RelevanceScorer scores each document's relevance to the query,
// returning one score per document in input order.
type RelevanceScorer interface {
	Score(ctx context.Context, query string, documents []string) ([]float64, error)
}

// Reranker fuses symbolic and neural retrieval candidates into one
// ranked list. Scorers is tried in order; the first that succeeds wins.
// When every scorer fails the candidates keep their prior scores
// (symbolic confidence, zero for neural) — scoring never raises.
type Reranker struct {
	Scorers []RelevanceScorer
}

func NewReranker(scorers ...RelevanceScorer) *Reranker {
	return &Reranker{Scorers: scorers}
}

// Fuse normalizes, scores, sorts descending (stable) and returns the
// top k original candidates.
func (r *Reranker) Fuse(ctx context.Context, query string, symbolic []model.ScoredEdge, neural []model.VectorMemory, topK int) []Candidate {
	candidates := make([]Candidate, 0, len(symbolic)+len(neural))
	for i := range symbolic {
		e := &symbolic[i]
		candidates = append(candidates, Candidate{
			Text:  e.Statement(),
			Edge:  e,
			Score: e.Confidence,
		})
	}
	for i := range neural {
		m := &neural[i]
		candidates = append(candidates, Candidate{
			Text:   m.Text,
			Memory: m,
			Score:  0,
		})
	}
	if len(candidates) == 0 {
		return nil
	}

	docs := make([]string, len(candidates))
	for i, c := range candidates {
		docs[i] = c.Text
	}
	for _, scorer := range r.Scorers {
		if scorer == nil {
			continue
		}
		scores, err := scorer.Score(ctx, query, docs)
		if err != nil {
			log.Printf("[Reranker] scorer failed, trying next: %v", err)
			continue
		}
		for i := 0; i < len(scores) && i < len(candidates); i++ {
			candidates[i].Score = scores[i]
		}
		break
	}

	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].Score > candidates[j].Score })
	if topK > 0 && len(candidates) > topK {
		candidates = candidates[:topK]
	}
	return candidates
}

// LexicalScorer is the local fallback relevance function: normalized
// token overlap between query and document. Crude, but it separates
// "where do I live" from "I like pizza" without any model.
type LexicalScorer struct{}

func (LexicalScorer) Score(_ context.Context, query string, documents []string) ([]float64, error) {
	queryTokens := tokenSet(query)
	scores := make([]float64, len(documents))
	if len(queryTokens) == 0 {
		return scores, nil
	}
	for i, doc := range documents {
		docTokens := tokenSet(doc)
		if len(docTokens) == 0 {
			continue
		}
		overlap := 0
		for tok := range docTokens {
			if _, ok := queryTokens[tok]; ok {
				overlap++
			}
		}
		union := len(queryTokens) + len(docTokens) - overlap
		if union > 0 {
			scores[i] = float64(overlap) / float64(union)
		}
	}
	return scores, nil
}

func tokenSet(s string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, tok := range strings.Fields(strings.ToLower(s)) {
		tok = strings.Trim(tok, ".,!?;:'\"()")
		if len(tok) < 2 {
			continue
		}
		out[tok] = struct{}{}
	}
	return out
}

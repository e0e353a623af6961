package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/engram-ai/engram/src/memory/model"
	"github.com/engram-ai/engram/src/memory/store"
	"github.com/engram-ai/engram/src/models"
)

// Consolidator is the out-of-band maintenance job: it finds entities
// with too many edges, asks a model whether the cluster reduces to one
// or two higher-level facts, inserts those with a provenance note, and
// prunes the originals. Runs scheduled, never per-turn.
type Consolidator struct {
	LLM   models.Agent
	Graph interface {
		store.GraphStore
		store.MaintenanceStore
	}

	// ClutterThreshold is the edge degree above which an entity is a
	// consolidation candidate.
	ClutterThreshold int
	// CandidateLimit caps entities processed per run.
	CandidateLimit int
	// FactLimit caps facts gathered per entity.
	FactLimit int
	// MinClusterSize skips clusters too small to be worth compressing.
	MinClusterSize int
}

func NewConsolidator(llm models.Agent, graph interface {
	store.GraphStore
	store.MaintenanceStore
}) *Consolidator {
	return &Consolidator{
		LLM:              llm,
		Graph:            graph,
		ClutterThreshold: 3,
		CandidateLimit:   3,
		FactLimit:        10,
		MinClusterSize:   3,
	}
}

type consolidationResult struct {
	Consolidated bool `json:"consolidated"`
	NewFacts     []struct {
		Relation   string  `json:"relation"`
		Target     string  `json:"target"`
		Confidence float64 `json:"confidence"`
	} `json:"new_facts"`
	Explanation string `json:"explanation"`
}

// Run consolidates one user's graph. Per-entity failures are logged and
// skipped; the run itself only fails when candidates can't be listed.
func (c *Consolidator) Run(ctx context.Context, userID string) error {
	log.Printf("[Consolidator] scanning graph for user %s", userID)

	candidates, err := c.Graph.HighDegreeEntities(ctx, c.ClutterThreshold, c.CandidateLimit)
	if err != nil {
		return fmt.Errorf("consolidation candidates: %w", err)
	}
	log.Printf("[Consolidator] %d candidate entities: %v", len(candidates), candidates)

	for _, entityID := range candidates {
		if err := c.processCluster(ctx, userID, entityID); err != nil {
			log.Printf("[Consolidator] skipping %s: %v", entityID, err)
		}
	}
	return nil
}

func (c *Consolidator) processCluster(ctx context.Context, userID, entityID string) error {
	facts, err := c.Graph.EdgesAround(ctx, entityID, c.FactLimit)
	if err != nil {
		return fmt.Errorf("gather facts: %w", err)
	}
	if len(facts) < c.MinClusterSize {
		return nil
	}

	var blob strings.Builder
	for _, f := range facts {
		other := f.Dst
		if other == entityID {
			other = f.Src
		}
		fmt.Fprintf(&blob, "- %s (%s)\n", other, f.Relation)
	}

	prompt := fmt.Sprintf(`You are a memory consolidation system.
The user has the following disjointed memories about %q:
%s
Can these be summarized into 1 or 2 high-level insights?
If yes, provide a strict JSON summary.
If they are unrelated, return strictly {"consolidated": false}.

Example Input:
- Pizza (LIKES)
- Burgers (LIKES)
- Fries (LIKES)

Example Output:
{
  "consolidated": true,
  "new_facts": [
    {"relation": "LIKES", "target": "Junk Food", "confidence": 0.9}
  ],
  "explanation": "Summarized specific fast foods into category 'Junk Food'"
}

Return ONLY VALID JSON.`, entityID, blob.String())

	content, err := c.LLM.GenerateJSON(ctx, prompt)
	if err != nil {
		return fmt.Errorf("consolidation model: %w", err)
	}

	var result consolidationResult
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &result); err != nil {
		return fmt.Errorf("malformed consolidation response %.100q: %w", content, err)
	}
	if !result.Consolidated || len(result.NewFacts) == 0 {
		return nil
	}
	log.Printf("[Consolidator] insight for %s: %s", entityID, result.Explanation)

	for _, fact := range result.NewFacts {
		if fact.Target == "" || fact.Relation == "" {
			continue
		}
		confidence := fact.Confidence
		if confidence <= 0 || confidence > 1 {
			confidence = 0.9
		}
		err := c.Graph.InsertEdge(ctx, model.Edge{
			Src:        entityID,
			Dst:        fact.Target,
			Relation:   fact.Relation,
			Confidence: confidence,
			UserID:     userID,
			SourceText: "consolidated: " + result.Explanation,
		})
		if err != nil {
			return fmt.Errorf("insert consolidated fact: %w", err)
		}
	}

	// Best-effort prune: partial failure leaves some originals behind,
	// which only costs clutter, not correctness.
	edgeIDs := make([]string, 0, len(facts))
	for _, f := range facts {
		edgeIDs = append(edgeIDs, f.EdgeID)
	}
	if err := c.Graph.DeleteEdges(ctx, edgeIDs); err != nil {
		log.Printf("[Consolidator] prune failed for %s: %v", entityID, err)
	}
	return nil
}

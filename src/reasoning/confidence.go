package reasoning

import "github.com/engram-ai/engram/src/memory/model"

// DefaultMinConfidenceToStore gates persistence in the write path.
const DefaultMinConfidenceToStore = 0.65

// ComputeConfidence scores an extracted delta deterministically: the
// presence of at least one edge means the extractor found a fact, which
// earns a fixed baseline above the storage threshold. Edge-less deltas
// score zero.
func ComputeConfidence(delta *model.GraphDelta) float64 {
	if delta != nil && len(delta.Edges) > 0 {
		return 0.75
	}
	return 0.0
}

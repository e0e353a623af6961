package store

import (
	"context"

	"github.com/engram-ai/engram/src/memory/model"
)

// Retrieval defaults for spreading activation: AnchorLimit recent edges
// form the depth-0 tier, SpreadLimit caps the depth-1 neighbor tier.
const (
	AnchorLimit   = 5
	SpreadLimit   = 10
	NeighborLimit = 20
)

// GraphStore is the durable symbolic fact store: entities plus typed,
// confidence-weighted relations, owned per user.
type GraphStore interface {
	// UpsertNode creates or refreshes an entity, updating last_seen.
	UpsertNode(ctx context.Context, node model.Node) error
	// InsertEdge merge-creates both endpoints and the relation. On a
	// content match it applies confidence reinforcement and refreshes
	// turn_id/last_updated; source_text keeps its first-seen value.
	InsertEdge(ctx context.Context, edge model.Edge) error
	// RetrieveContext runs spreading-activation retrieval: recent
	// anchors at depth 0, one-hop neighbors at depth 1 with decayed
	// scores, ordered by score descending.
	RetrieveContext(ctx context.Context, userID string, limit int) ([]model.ScoredEdge, error)
	// RecentEdgesForSubject returns the most recently updated edges a
	// user holds about one subject, newest first.
	RecentEdgesForSubject(ctx context.Context, userID, src string, limit int) ([]model.Edge, error)
	// RelatedNodes lists direct one-hop neighbors of an entity.
	RelatedNodes(ctx context.Context, entityID string, limit int) ([]model.Neighbor, error)
	// Wipe irreversibly clears the store.
	Wipe(ctx context.Context) error
}

// MaintenanceStore is implemented by graph stores that support the
// out-of-band consolidation job.
type MaintenanceStore interface {
	// HighDegreeEntities returns entity ids whose edge degree exceeds
	// the threshold, densest first.
	HighDegreeEntities(ctx context.Context, threshold, limit int) ([]string, error)
	// EdgesAround gathers edges touching an entity in either direction.
	EdgesAround(ctx context.Context, entityID string, limit int) ([]model.Edge, error)
	// DeleteEdges prunes edges by store identifier, best-effort.
	DeleteEdges(ctx context.Context, edgeIDs []string) error
}

// VectorStore is the durable store of raw text chunks with embeddings.
// AddMemory is idempotent: identical text for the same user never
// creates a second entry.
type VectorStore interface {
	AddMemory(ctx context.Context, mem model.VectorMemory) error
	// Search performs nearest-neighbor lookup filtered by user. Backend
	// failure yields an empty result set, never an error the read path
	// has to handle.
	Search(ctx context.Context, query string, k int, userID string) []model.VectorMemory
	Wipe(ctx context.Context) error
}

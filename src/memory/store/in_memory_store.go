package store

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/engram-ai/engram/src/memory/embed"
	"github.com/engram-ai/engram/src/memory/model"
)

// InMemoryGraphStore keeps the fact graph in process memory. It backs
// tests and single-process development and mirrors the merge semantics
// of the durable backends exactly.
type InMemoryGraphStore struct {
	mu    sync.RWMutex
	nodes map[string]model.Node
	edges map[string]*storedEdge
	seq   int64
	nowFn func() time.Time
}

type storedEdge struct {
	edge model.Edge
	seq  int64
}

func NewInMemoryGraphStore() *InMemoryGraphStore {
	return &InMemoryGraphStore{
		nodes: make(map[string]model.Node),
		edges: make(map[string]*storedEdge),
		nowFn: time.Now,
	}
}

var (
	_ GraphStore       = (*InMemoryGraphStore)(nil)
	_ MaintenanceStore = (*InMemoryGraphStore)(nil)
)

func (s *InMemoryGraphStore) UpsertNode(_ context.Context, node model.Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.nodes[node.ID]
	if ok && node.Type == "" {
		node.Type = existing.Type
	}
	node.LastSeen = s.nowFn().UTC()
	s.nodes[node.ID] = node
	return nil
}

func (s *InMemoryGraphStore) InsertEdge(_ context.Context, edge model.Edge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.nowFn().UTC()

	edge.Relation = model.SanitizeRelation(edge.Relation)
	edge.EdgeID = model.EdgeID(edge.UserID, edge.Src, edge.Relation, edge.Dst)

	for _, id := range []string{edge.Src, edge.Dst} {
		n, ok := s.nodes[id]
		if !ok {
			n = model.Node{ID: id, Type: "unknown"}
		}
		n.LastSeen = now
		s.nodes[id] = n
	}

	s.seq++
	if existing, ok := s.edges[edge.EdgeID]; ok {
		existing.edge.Confidence = model.Reinforce(existing.edge.Confidence)
		existing.edge.TurnID = edge.TurnID
		existing.edge.LastUpdated = now
		existing.seq = s.seq
		return nil
	}
	edge.FirstSeen = now
	edge.LastUpdated = now
	s.edges[edge.EdgeID] = &storedEdge{edge: edge, seq: s.seq}
	return nil
}

func (s *InMemoryGraphStore) RetrieveContext(_ context.Context, userID string, limit int) ([]model.ScoredEdge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	anchors := s.recentEdgesLocked(userID, AnchorLimit)
	anchorNodes := make(map[string]struct{}, len(anchors)*2)
	anchorIDs := make(map[string]struct{}, len(anchors))
	out := make([]model.ScoredEdge, 0, len(anchors)+SpreadLimit)
	for _, e := range anchors {
		anchorNodes[e.Src] = struct{}{}
		anchorNodes[e.Dst] = struct{}{}
		anchorIDs[e.EdgeID] = struct{}{}
		out = append(out, model.ScoredEdge{Edge: e, Score: e.Confidence, Depth: 0})
	}

	spread := make([]model.ScoredEdge, 0, SpreadLimit)
	for _, se := range s.edgesBySeqLocked() {
		e := se.edge
		if _, taken := anchorIDs[e.EdgeID]; taken {
			continue
		}
		_, srcAnchor := anchorNodes[e.Src]
		_, dstAnchor := anchorNodes[e.Dst]
		// One hop out of the anchor set, never inside it.
		if srcAnchor == dstAnchor {
			continue
		}
		spread = append(spread, model.ScoredEdge{Edge: e, Score: e.Confidence * model.SpreadDecay, Depth: 1})
		if len(spread) >= SpreadLimit {
			break
		}
	}
	out = append(out, spread...)

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryGraphStore) RecentEdgesForSubject(_ context.Context, userID, src string, limit int) ([]model.Edge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Edge
	for _, se := range s.edgesBySeqLocked() {
		if se.edge.UserID != userID {
			continue
		}
		if se.edge.Src != src && se.edge.Dst != src {
			continue
		}
		out = append(out, se.edge)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *InMemoryGraphStore) RelatedNodes(_ context.Context, entityID string, limit int) ([]model.Neighbor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 {
		limit = NeighborLimit
	}
	var out []model.Neighbor
	for _, se := range s.edgesBySeqLocked() {
		var other string
		switch entityID {
		case se.edge.Src:
			other = se.edge.Dst
		case se.edge.Dst:
			other = se.edge.Src
		default:
			continue
		}
		out = append(out, model.Neighbor{ID: other, Relation: se.edge.Relation})
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *InMemoryGraphStore) Wipe(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes = make(map[string]model.Node)
	s.edges = make(map[string]*storedEdge)
	return nil
}

func (s *InMemoryGraphStore) HighDegreeEntities(_ context.Context, threshold, limit int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	degree := make(map[string]int)
	for _, se := range s.edges {
		degree[se.edge.Src]++
		degree[se.edge.Dst]++
	}
	type candidate struct {
		id     string
		degree int
	}
	var dense []candidate
	for id, d := range degree {
		if d > threshold {
			dense = append(dense, candidate{id, d})
		}
	}
	sort.Slice(dense, func(i, j int) bool {
		if dense[i].degree != dense[j].degree {
			return dense[i].degree > dense[j].degree
		}
		return dense[i].id < dense[j].id
	})
	if limit > 0 && len(dense) > limit {
		dense = dense[:limit]
	}
	out := make([]string, len(dense))
	for i, c := range dense {
		out[i] = c.id
	}
	return out, nil
}

func (s *InMemoryGraphStore) EdgesAround(_ context.Context, entityID string, limit int) ([]model.Edge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Edge
	for _, se := range s.edgesBySeqLocked() {
		if se.edge.Src != entityID && se.edge.Dst != entityID {
			continue
		}
		out = append(out, se.edge)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *InMemoryGraphStore) DeleteEdges(_ context.Context, edgeIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range edgeIDs {
		delete(s.edges, id)
	}
	return nil
}

// EdgeCount reports stored edges for a user, used by tests and the
// maintenance CLI.
func (s *InMemoryGraphStore) EdgeCount(userID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, se := range s.edges {
		if userID == "" || se.edge.UserID == userID {
			n++
		}
	}
	return n
}

// recentEdgesLocked returns a user's edges newest-first.
func (s *InMemoryGraphStore) recentEdgesLocked(userID string, limit int) []model.Edge {
	var out []model.Edge
	for _, se := range s.edgesBySeqLocked() {
		if se.edge.UserID != userID {
			continue
		}
		out = append(out, se.edge)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// edgesBySeqLocked orders edges by last update, newest first.
func (s *InMemoryGraphStore) edgesBySeqLocked() []*storedEdge {
	all := make([]*storedEdge, 0, len(s.edges))
	for _, se := range s.edges {
		all = append(all, se)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].seq > all[j].seq })
	return all
}

// InMemoryVectorStore is the embedded fallback vector store. It embeds
// on write through the configured Embedder and ranks by cosine
// similarity on read.
type InMemoryVectorStore struct {
	mu       sync.RWMutex
	docs     map[string]model.VectorMemory
	embedder embed.Embedder
}

func NewInMemoryVectorStore(embedder embed.Embedder) *InMemoryVectorStore {
	if embedder == nil {
		embedder = embed.DummyEmbedder{}
	}
	return &InMemoryVectorStore{
		docs:     make(map[string]model.VectorMemory),
		embedder: embedder,
	}
}

var _ VectorStore = (*InMemoryVectorStore)(nil)

func (s *InMemoryVectorStore) AddMemory(ctx context.Context, mem model.VectorMemory) error {
	mem.DocID = model.DocID(mem.UserID, mem.Text)
	if len(mem.Embedding) == 0 {
		vec, err := s.embedder.Embed(ctx, mem.Text)
		if err != nil || len(vec) == 0 {
			vec = embed.DummyEmbedding(mem.Text)
		}
		mem.Embedding = vec
	}
	if mem.CreatedAt.IsZero() {
		mem.CreatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[mem.DocID] = mem
	return nil
}

func (s *InMemoryVectorStore) Search(ctx context.Context, query string, k int, userID string) []model.VectorMemory {
	if k <= 0 {
		return nil
	}
	qvec, err := s.embedder.Embed(ctx, query)
	if err != nil || len(qvec) == 0 {
		qvec = embed.DummyEmbedding(query)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.VectorMemory
	for _, doc := range s.docs {
		if userID != "" && doc.UserID != userID {
			continue
		}
		doc.Score = CosineSimilarity(qvec, doc.Embedding)
		out = append(out, doc)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > k {
		out = out[:k]
	}
	return out
}

func (s *InMemoryVectorStore) Wipe(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = make(map[string]model.VectorMemory)
	return nil
}

// Count reports stored documents, optionally scoped to a user.
func (s *InMemoryVectorStore) Count(userID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, doc := range s.docs {
		if userID == "" || doc.UserID == userID {
			n++
		}
	}
	return n
}

// CosineSimilarity compares two embeddings; zero when either is empty
// or lengths differ.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

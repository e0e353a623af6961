package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/engram-ai/engram/src/memory/model"
)

// Neo4jAccessMode controls whether a session is opened for read or write operations.
type Neo4jAccessMode string

const (
	AccessModeWrite Neo4jAccessMode = "write"
	AccessModeRead  Neo4jAccessMode = "read"
)

// Neo4jSessionConfig mirrors the minimal subset of Neo4j session configuration we require.
type Neo4jSessionConfig struct {
	AccessMode   Neo4jAccessMode
	DatabaseName string
}

// neo4jDriver abstracts the Neo4j driver capabilities used by the store. This allows tests to
// provide lightweight fakes without depending on the real driver package (which is guarded behind
// an optional build tag).
type neo4jDriver interface {
	NewSession(ctx context.Context, config Neo4jSessionConfig) (neo4jSession, error)
	Close(ctx context.Context) error
}

type neo4jSession interface {
	Run(ctx context.Context, query string, params map[string]any) (neo4jResult, error)
	Close(ctx context.Context) error
}

type neo4jResult interface {
	Next(ctx context.Context) bool
	Record() neo4jRecord
	Err() error
	Close(ctx context.Context) error
}

type neo4jRecord interface {
	Get(key string) (any, bool)
}

// Neo4jGraphStore persists the fact graph in Neo4j: entities as
// (:Entity {id}) nodes, facts as dynamically typed relationships
// carrying confidence/turn/user/source/timestamps. The relation type is
// always sanitized before it reaches a schema position because Cypher
// cannot parameterize relationship types.
type Neo4jGraphStore struct {
	driver   neo4jDriver
	database string
	nowFn    func() time.Time
}

var (
	_ GraphStore       = (*Neo4jGraphStore)(nil)
	_ MaintenanceStore = (*Neo4jGraphStore)(nil)
)

// ErrNeo4jUnavailable is returned when graph operations are attempted without a configured driver.
var ErrNeo4jUnavailable = errors.New("neo4j driver not configured")

func NewNeo4jGraphStore(driver neo4jDriver, database string) (*Neo4jGraphStore, error) {
	if driver == nil {
		return nil, errors.New("neo4j driver is nil")
	}
	return &Neo4jGraphStore{driver: driver, database: database, nowFn: time.Now}, nil
}

// CreateSchema ensures the uniqueness constraint on entity ids exists.
func (s *Neo4jGraphStore) CreateSchema(ctx context.Context) error {
	session, err := s.writeSession(ctx)
	if err != nil {
		return err
	}
	defer session.Close(ctx)
	res, err := session.Run(ctx, "CREATE CONSTRAINT IF NOT EXISTS FOR (n:Entity) REQUIRE n.id IS UNIQUE", nil)
	if err != nil {
		return fmt.Errorf("neo4j schema query: %w", err)
	}
	if res != nil {
		_ = res.Close(ctx)
	}
	return nil
}

func (s *Neo4jGraphStore) Close() error {
	if s == nil || s.driver == nil {
		return nil
	}
	return s.driver.Close(context.Background())
}

func (s *Neo4jGraphStore) UpsertNode(ctx context.Context, node model.Node) error {
	session, err := s.writeSession(ctx)
	if err != nil {
		return err
	}
	defer session.Close(ctx)
	nodeType := node.Type
	if nodeType == "" {
		nodeType = "unknown"
	}
	return s.exec(ctx, session, `
MERGE (n:Entity {id: $id})
SET n.type = $type, n.last_seen = $now
`, map[string]any{
		"id":   node.ID,
		"type": nodeType,
		"now":  s.now().UnixMilli(),
	})
}

// InsertEdge merge-creates both endpoints and the typed relation. The
// ON MATCH branch applies confidence reinforcement and leaves
// source_text at its first-seen value.
func (s *Neo4jGraphStore) InsertEdge(ctx context.Context, edge model.Edge) error {
	session, err := s.writeSession(ctx)
	if err != nil {
		return err
	}
	defer session.Close(ctx)
	relation := model.SanitizeRelation(edge.Relation)
	// The relation type is interpolated, not parameterized; it has been
	// reduced to [A-Z0-9_] above.
	query := fmt.Sprintf(`
MERGE (s:Entity {id: $src})
MERGE (d:Entity {id: $dst})
MERGE (s)-[r:%s]->(d)
ON CREATE SET
    r.edge_id = $edge_id,
    r.confidence = $confidence,
    r.turn_id = $turn_id,
    r.user_id = $user_id,
    r.source_text = $source_text,
    r.first_seen = $now,
    r.last_updated = $now
ON MATCH SET
    r.confidence = r.confidence + (1.0 - r.confidence) * $reinforce,
    r.last_updated = $now,
    r.turn_id = $turn_id
`, relation)
	return s.exec(ctx, session, query, map[string]any{
		"src":         edge.Src,
		"dst":         edge.Dst,
		"edge_id":     model.EdgeID(edge.UserID, edge.Src, relation, edge.Dst),
		"confidence":  edge.Confidence,
		"turn_id":     edge.TurnID,
		"user_id":     edge.UserID,
		"source_text": edge.SourceText,
		"now":         s.now().UnixMilli(),
		"reinforce":   model.ReinforcementFactor,
	})
}

// RetrieveContext runs the two activation tiers as separate queries and
// merges them: anchors (most recently updated edges for the user) at
// depth 0, then one-hop neighbors of the anchor node set at depth 1
// with decayed scores.
func (s *Neo4jGraphStore) RetrieveContext(ctx context.Context, userID string, limit int) ([]model.ScoredEdge, error) {
	session, err := s.readSession(ctx)
	if err != nil {
		return nil, err
	}
	defer session.Close(ctx)

	anchors, err := s.queryEdges(ctx, session, `
MATCH (s)-[r]->(d)
WHERE r.user_id = $user_id
RETURN s.id AS src, type(r) AS relation, d.id AS dst,
       r.confidence AS confidence, r.turn_id AS turn_id,
       r.user_id AS user_id, r.source_text AS source_text,
       r.last_updated AS last_updated, r.edge_id AS edge_id
ORDER BY r.last_updated DESC
LIMIT $limit
`, map[string]any{"user_id": userID, "limit": AnchorLimit})
	if err != nil {
		return nil, err
	}

	out := make([]model.ScoredEdge, 0, len(anchors)+SpreadLimit)
	anchorNodes := make([]string, 0, len(anchors)*2)
	seen := make(map[string]struct{}, len(anchors))
	for _, e := range anchors {
		out = append(out, model.ScoredEdge{Edge: e, Score: e.Confidence, Depth: 0})
		seen[e.EdgeID] = struct{}{}
		anchorNodes = append(anchorNodes, e.Src, e.Dst)
	}

	if len(anchorNodes) > 0 {
		spread, err := s.queryEdges(ctx, session, `
MATCH (anchor:Entity)-[r]-(neighbor:Entity)
WHERE anchor.id IN $anchors AND NOT neighbor.id IN $anchors
RETURN startNode(r).id AS src, type(r) AS relation, endNode(r).id AS dst,
       r.confidence AS confidence, r.turn_id AS turn_id,
       r.user_id AS user_id, r.source_text AS source_text,
       r.last_updated AS last_updated, r.edge_id AS edge_id
ORDER BY r.last_updated DESC
LIMIT $limit
`, map[string]any{"anchors": anchorNodes, "limit": SpreadLimit})
		if err != nil {
			return nil, err
		}
		for _, e := range spread {
			if _, dup := seen[e.EdgeID]; dup {
				continue
			}
			seen[e.EdgeID] = struct{}{}
			out = append(out, model.ScoredEdge{Edge: e, Score: e.Confidence * model.SpreadDecay, Depth: 1})
		}
	}

	sortScoredEdges(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Neo4jGraphStore) RecentEdgesForSubject(ctx context.Context, userID, src string, limit int) ([]model.Edge, error) {
	session, err := s.readSession(ctx)
	if err != nil {
		return nil, err
	}
	defer session.Close(ctx)
	return s.queryEdges(ctx, session, `
MATCH (s:Entity {id: $src})-[r]-(o)
WHERE r.user_id = $user_id
RETURN s.id AS src, type(r) AS relation, o.id AS dst,
       r.confidence AS confidence, r.turn_id AS turn_id,
       r.user_id AS user_id, r.source_text AS source_text,
       r.last_updated AS last_updated, r.edge_id AS edge_id
ORDER BY r.last_updated DESC
LIMIT $limit
`, map[string]any{"src": src, "user_id": userID, "limit": limit})
}

func (s *Neo4jGraphStore) RelatedNodes(ctx context.Context, entityID string, limit int) ([]model.Neighbor, error) {
	if limit <= 0 {
		limit = NeighborLimit
	}
	session, err := s.readSession(ctx)
	if err != nil {
		return nil, err
	}
	defer session.Close(ctx)
	result, err := session.Run(ctx, `
MATCH (s:Entity {id: $id})-[r]-(d:Entity)
RETURN d.id AS neighbor, type(r) AS relation
LIMIT $limit
`, map[string]any{"id": entityID, "limit": limit})
	if err != nil {
		return nil, fmt.Errorf("neo4j related nodes: %w", err)
	}
	defer result.Close(ctx)
	var out []model.Neighbor
	for result.Next(ctx) {
		rec := result.Record()
		if rec == nil {
			continue
		}
		n := model.Neighbor{}
		if v, ok := rec.Get("neighbor"); ok {
			n.ID = toString(v)
		}
		if v, ok := rec.Get("relation"); ok {
			n.Relation = toString(v)
		}
		out = append(out, n)
	}
	return out, result.Err()
}

func (s *Neo4jGraphStore) Wipe(ctx context.Context) error {
	session, err := s.writeSession(ctx)
	if err != nil {
		return err
	}
	defer session.Close(ctx)
	return s.exec(ctx, session, "MATCH (n) DETACH DELETE n", nil)
}

func (s *Neo4jGraphStore) HighDegreeEntities(ctx context.Context, threshold, limit int) ([]string, error) {
	session, err := s.readSession(ctx)
	if err != nil {
		return nil, err
	}
	defer session.Close(ctx)
	result, err := session.Run(ctx, `
MATCH (n:Entity)-[r]-(m)
WITH n, count(r) AS degree
WHERE degree > $threshold
RETURN n.id AS entity
ORDER BY degree DESC
LIMIT $limit
`, map[string]any{"threshold": threshold, "limit": limit})
	if err != nil {
		return nil, fmt.Errorf("neo4j high degree: %w", err)
	}
	defer result.Close(ctx)
	var out []string
	for result.Next(ctx) {
		rec := result.Record()
		if rec == nil {
			continue
		}
		if v, ok := rec.Get("entity"); ok {
			out = append(out, toString(v))
		}
	}
	return out, result.Err()
}

func (s *Neo4jGraphStore) EdgesAround(ctx context.Context, entityID string, limit int) ([]model.Edge, error) {
	session, err := s.readSession(ctx)
	if err != nil {
		return nil, err
	}
	defer session.Close(ctx)
	return s.queryEdges(ctx, session, `
MATCH (n:Entity {id: $id})-[r]-(m)
RETURN n.id AS src, type(r) AS relation, m.id AS dst,
       r.confidence AS confidence, r.turn_id AS turn_id,
       r.user_id AS user_id, r.source_text AS source_text,
       r.last_updated AS last_updated, r.edge_id AS edge_id
LIMIT $limit
`, map[string]any{"id": entityID, "limit": limit})
}

func (s *Neo4jGraphStore) DeleteEdges(ctx context.Context, edgeIDs []string) error {
	if len(edgeIDs) == 0 {
		return nil
	}
	session, err := s.writeSession(ctx)
	if err != nil {
		return err
	}
	defer session.Close(ctx)
	return s.exec(ctx, session, `
MATCH ()-[r]-()
WHERE r.edge_id IN $edge_ids
DELETE r
`, map[string]any{"edge_ids": edgeIDs})
}

func (s *Neo4jGraphStore) writeSession(ctx context.Context) (neo4jSession, error) {
	return s.session(ctx, AccessModeWrite)
}

func (s *Neo4jGraphStore) readSession(ctx context.Context) (neo4jSession, error) {
	return s.session(ctx, AccessModeRead)
}

func (s *Neo4jGraphStore) session(ctx context.Context, mode Neo4jAccessMode) (neo4jSession, error) {
	if s == nil || s.driver == nil {
		return nil, ErrNeo4jUnavailable
	}
	session, err := s.driver.NewSession(ctx, Neo4jSessionConfig{AccessMode: mode, DatabaseName: s.database})
	if err != nil {
		return nil, fmt.Errorf("neo4j new session: %w", err)
	}
	return session, nil
}

func (s *Neo4jGraphStore) exec(ctx context.Context, session neo4jSession, query string, params map[string]any) error {
	res, err := session.Run(ctx, query, params)
	if err != nil {
		return fmt.Errorf("neo4j run: %w", err)
	}
	if res != nil {
		_ = res.Close(ctx)
	}
	return nil
}

func (s *Neo4jGraphStore) queryEdges(ctx context.Context, session neo4jSession, query string, params map[string]any) ([]model.Edge, error) {
	result, err := session.Run(ctx, query, params)
	if err != nil {
		return nil, fmt.Errorf("neo4j query edges: %w", err)
	}
	defer result.Close(ctx)
	var out []model.Edge
	for result.Next(ctx) {
		rec := result.Record()
		if rec == nil {
			continue
		}
		out = append(out, mapEdgeRecord(rec))
	}
	if err := result.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Neo4jGraphStore) now() time.Time {
	if s == nil || s.nowFn == nil {
		return time.Now().UTC()
	}
	return s.nowFn().UTC()
}

func mapEdgeRecord(rec neo4jRecord) model.Edge {
	var e model.Edge
	if v, ok := rec.Get("src"); ok {
		e.Src = toString(v)
	}
	if v, ok := rec.Get("dst"); ok {
		e.Dst = toString(v)
	}
	if v, ok := rec.Get("relation"); ok {
		e.Relation = toString(v)
	}
	if v, ok := rec.Get("confidence"); ok {
		e.Confidence = toFloat64(v)
	}
	if v, ok := rec.Get("turn_id"); ok {
		e.TurnID = int(toInt64(v))
	}
	if v, ok := rec.Get("user_id"); ok {
		e.UserID = toString(v)
	}
	if v, ok := rec.Get("source_text"); ok {
		e.SourceText = toString(v)
	}
	if v, ok := rec.Get("last_updated"); ok {
		e.LastUpdated = time.UnixMilli(toInt64(v)).UTC()
	}
	if v, ok := rec.Get("edge_id"); ok {
		e.EdgeID = toString(v)
	}
	if e.EdgeID == "" {
		e.EdgeID = model.EdgeID(e.UserID, e.Src, e.Relation, e.Dst)
	}
	return e
}

func sortScoredEdges(edges []model.ScoredEdge) {
	// Stable insertion keeps anchor ordering for equal scores.
	for i := 1; i < len(edges); i++ {
		for j := i; j > 0 && edges[j].Score > edges[j-1].Score; j-- {
			edges[j], edges[j-1] = edges[j-1], edges[j]
		}
	}
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	case nil:
		return ""
	}
	return fmt.Sprintf("%v", v)
}

func toInt64(v any) int64 {
	switch t := v.(type) {
	case int:
		return int64(t)
	case int32:
		return int64(t)
	case int64:
		return t
	case float32:
		return int64(t)
	case float64:
		return int64(t)
	}
	return 0
}

func toFloat64(v any) float64 {
	switch t := v.(type) {
	case float32:
		return float64(t)
	case float64:
		return t
	case int:
		return float64(t)
	case int64:
		return float64(t)
	}
	return 0
}

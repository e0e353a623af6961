package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/engram-ai/engram/src/memory/model"
)

// PostgresGraphStore is the relational fallback when no graph engine is
// available: nodes and edges tables with the content-hash edge_id as
// primary key, so insert-or-update keeps the idempotence contract.
type PostgresGraphStore struct {
	pool  *pgxpool.Pool
	nowFn func() time.Time
}

var (
	_ GraphStore       = (*PostgresGraphStore)(nil)
	_ MaintenanceStore = (*PostgresGraphStore)(nil)
)

func NewPostgresGraphStore(pool *pgxpool.Pool) (*PostgresGraphStore, error) {
	if pool == nil {
		return nil, errors.New("pgx pool is nil")
	}
	return &PostgresGraphStore{pool: pool, nowFn: time.Now}, nil
}

// OpenPostgresGraphStore dials Postgres and ensures the schema exists.
func OpenPostgresGraphStore(ctx context.Context, dsn string) (*PostgresGraphStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	store, err := NewPostgresGraphStore(pool)
	if err != nil {
		pool.Close()
		return nil, err
	}
	if err := store.CreateSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

func (s *PostgresGraphStore) CreateSchema(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS nodes (
			node_id   TEXT PRIMARY KEY,
			node_type TEXT NOT NULL,
			last_seen TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS edges (
			edge_id      TEXT PRIMARY KEY,
			src          TEXT NOT NULL,
			dst          TEXT NOT NULL,
			relation     TEXT NOT NULL,
			confidence   DOUBLE PRECISION NOT NULL,
			turn_id      INTEGER,
			user_id      TEXT,
			source_text  TEXT,
			first_seen   TIMESTAMPTZ NOT NULL,
			last_updated TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS edges_user_updated ON edges (user_id, last_updated DESC)`,
		`CREATE INDEX IF NOT EXISTS edges_src ON edges (src)`,
		`CREATE INDEX IF NOT EXISTS edges_dst ON edges (dst)`,
	}
	for _, q := range queries {
		if _, err := s.pool.Exec(ctx, q); err != nil {
			return fmt.Errorf("postgres schema: %w", err)
		}
	}
	return nil
}

func (s *PostgresGraphStore) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

func (s *PostgresGraphStore) UpsertNode(ctx context.Context, node model.Node) error {
	nodeType := node.Type
	if nodeType == "" {
		nodeType = "unknown"
	}
	_, err := s.pool.Exec(ctx, `
INSERT INTO nodes (node_id, node_type, last_seen)
VALUES ($1, $2, $3)
ON CONFLICT (node_id) DO UPDATE SET last_seen = EXCLUDED.last_seen
`, node.ID, nodeType, s.now())
	return err
}

func (s *PostgresGraphStore) InsertEdge(ctx context.Context, edge model.Edge) error {
	now := s.now()
	relation := model.SanitizeRelation(edge.Relation)
	edgeID := model.EdgeID(edge.UserID, edge.Src, relation, edge.Dst)

	for _, id := range []string{edge.Src, edge.Dst} {
		if err := s.UpsertNode(ctx, model.Node{ID: id}); err != nil {
			return err
		}
	}

	_, err := s.pool.Exec(ctx, `
INSERT INTO edges (edge_id, src, dst, relation, confidence, turn_id, user_id, source_text, first_seen, last_updated)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
ON CONFLICT (edge_id) DO UPDATE SET
	confidence   = edges.confidence + (1.0 - edges.confidence) * $10,
	turn_id      = EXCLUDED.turn_id,
	last_updated = EXCLUDED.last_updated
`, edgeID, edge.Src, edge.Dst, relation, edge.Confidence, edge.TurnID, edge.UserID, edge.SourceText, now, model.ReinforcementFactor)
	return err
}

func (s *PostgresGraphStore) RetrieveContext(ctx context.Context, userID string, limit int) ([]model.ScoredEdge, error) {
	anchors, err := s.selectEdges(ctx, `
SELECT edge_id, src, dst, relation, confidence, turn_id, user_id, source_text, last_updated
FROM edges WHERE user_id = $1
ORDER BY last_updated DESC
LIMIT $2
`, userID, AnchorLimit)
	if err != nil {
		return nil, err
	}

	out := make([]model.ScoredEdge, 0, len(anchors)+SpreadLimit)
	seen := make(map[string]struct{}, len(anchors))
	anchorNodes := make([]string, 0, len(anchors)*2)
	for _, e := range anchors {
		out = append(out, model.ScoredEdge{Edge: e, Score: e.Confidence, Depth: 0})
		seen[e.EdgeID] = struct{}{}
		anchorNodes = append(anchorNodes, e.Src, e.Dst)
	}

	if len(anchorNodes) > 0 {
		spread, err := s.selectEdges(ctx, `
SELECT edge_id, src, dst, relation, confidence, turn_id, user_id, source_text, last_updated
FROM edges
WHERE (src = ANY($1) AND NOT dst = ANY($1))
   OR (dst = ANY($1) AND NOT src = ANY($1))
ORDER BY last_updated DESC
LIMIT $2
`, anchorNodes, SpreadLimit)
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

func (s *PostgresGraphStore) RecentEdgesForSubject(ctx context.Context, userID, src string, limit int) ([]model.Edge, error) {
	return s.selectEdges(ctx, `
SELECT edge_id, src, dst, relation, confidence, turn_id, user_id, source_text, last_updated
FROM edges
WHERE user_id = $1 AND (src = $2 OR dst = $2)
ORDER BY last_updated DESC
LIMIT $3
`, userID, src, limit)
}

func (s *PostgresGraphStore) RelatedNodes(ctx context.Context, entityID string, limit int) ([]model.Neighbor, error) {
	if limit <= 0 {
		limit = NeighborLimit
	}
	rows, err := s.pool.Query(ctx, `
SELECT CASE WHEN src = $1 THEN dst ELSE src END AS neighbor, relation
FROM edges
WHERE src = $1 OR dst = $1
LIMIT $2
`, entityID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Neighbor
	for rows.Next() {
		var n model.Neighbor
		if err := rows.Scan(&n.ID, &n.Relation); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *PostgresGraphStore) Wipe(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM edges`); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx, `DELETE FROM nodes`)
	return err
}

func (s *PostgresGraphStore) HighDegreeEntities(ctx context.Context, threshold, limit int) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
SELECT entity FROM (
	SELECT src AS entity FROM edges
	UNION ALL
	SELECT dst AS entity FROM edges
) endpoints
GROUP BY entity
HAVING count(*) > $1
ORDER BY count(*) DESC
LIMIT $2
`, threshold, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *PostgresGraphStore) EdgesAround(ctx context.Context, entityID string, limit int) ([]model.Edge, error) {
	return s.selectEdges(ctx, `
SELECT edge_id, src, dst, relation, confidence, turn_id, user_id, source_text, last_updated
FROM edges
WHERE src = $1 OR dst = $1
LIMIT $2
`, entityID, limit)
}

func (s *PostgresGraphStore) DeleteEdges(ctx context.Context, edgeIDs []string) error {
	if len(edgeIDs) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx, `DELETE FROM edges WHERE edge_id = ANY($1)`, edgeIDs)
	return err
}

func (s *PostgresGraphStore) selectEdges(ctx context.Context, query string, args ...any) ([]model.Edge, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Edge
	for rows.Next() {
		e, err := scanEdge(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanEdge(rows pgx.Rows) (model.Edge, error) {
	var (
		e          model.Edge
		turnID     *int
		userID     *string
		sourceText *string
	)
	if err := rows.Scan(&e.EdgeID, &e.Src, &e.Dst, &e.Relation, &e.Confidence, &turnID, &userID, &sourceText, &e.LastUpdated); err != nil {
		return model.Edge{}, err
	}
	if turnID != nil {
		e.TurnID = *turnID
	}
	if userID != nil {
		e.UserID = *userID
	}
	if sourceText != nil {
		e.SourceText = *sourceText
	}
	return e, nil
}

func (s *PostgresGraphStore) now() time.Time {
	if s == nil || s.nowFn == nil {
		return time.Now().UTC()
	}
	return s.nowFn().UTC()
}

package store

import (
	"context"
	"math"
	"strings"
	"testing"

	"github.com/engram-ai/engram/src/memory/model"
)

type fakeNeo4jDriver struct {
	session *fakeNeo4jSession
}

func (d *fakeNeo4jDriver) NewSession(context.Context, Neo4jSessionConfig) (neo4jSession, error) {
	return d.session, nil
}

func (d *fakeNeo4jDriver) Close(context.Context) error { return nil }

type runCall struct {
	query  string
	params map[string]any
}

type fakeNeo4jSession struct {
	calls   []runCall
	results []neo4jResult
}

func (s *fakeNeo4jSession) Run(_ context.Context, query string, params map[string]any) (neo4jResult, error) {
	s.calls = append(s.calls, runCall{query: query, params: params})
	if len(s.results) == 0 {
		return &fakeNeo4jResult{}, nil
	}
	res := s.results[0]
	s.results = s.results[1:]
	return res, nil
}

func (s *fakeNeo4jSession) Close(context.Context) error { return nil }

type fakeNeo4jResult struct {
	rows []map[string]any
	pos  int
}

func (r *fakeNeo4jResult) Next(context.Context) bool {
	if r.pos >= len(r.rows) {
		return false
	}
	r.pos++
	return true
}

func (r *fakeNeo4jResult) Record() neo4jRecord { return fakeNeo4jRecord(r.rows[r.pos-1]) }

func (r *fakeNeo4jResult) Err() error { return nil }

func (r *fakeNeo4jResult) Close(context.Context) error { return nil }

type fakeNeo4jRecord map[string]any

func (r fakeNeo4jRecord) Get(key string) (any, bool) {
	v, ok := r[key]
	return v, ok
}

func edgeRow(src, relation, dst string, confidence float64, userID string) map[string]any {
	return map[string]any{
		"src": src, "relation": relation, "dst": dst,
		"confidence": confidence, "turn_id": int64(1),
		"user_id": userID, "source_text": src + " " + relation + " " + dst,
		"last_updated": int64(1700000000000),
		"edge_id":      model.EdgeID(userID, src, relation, dst),
	}
}

func TestNeo4jInsertEdgeInterpolatesSanitizedRelation(t *testing.T) {
	session := &fakeNeo4jSession{}
	s, err := NewNeo4jGraphStore(&fakeNeo4jDriver{session: session}, "neo4j")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	err = s.InsertEdge(context.Background(), model.Edge{
		Src: "user", Dst: "kerala", Relation: "lives in; DROP",
		Confidence: 0.75, UserID: "u1",
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if len(session.calls) != 1 {
		t.Fatalf("expected 1 query, got %d", len(session.calls))
	}
	call := session.calls[0]
	if !strings.Contains(call.query, "[r:LIVESINDROP]") {
		t.Fatalf("relation not sanitized into query:\n%s", call.query)
	}
	if strings.Contains(call.query, ";") {
		t.Fatalf("raw relation text leaked into query:\n%s", call.query)
	}
	if call.params["edge_id"] != model.EdgeID("u1", "user", "LIVESINDROP", "kerala") {
		t.Fatalf("edge_id derived from unsanitized relation: %v", call.params["edge_id"])
	}
	if call.params["reinforce"] != model.ReinforcementFactor {
		t.Fatalf("reinforce param = %v", call.params["reinforce"])
	}
}

func TestNeo4jRetrieveContextMergesTiers(t *testing.T) {
	session := &fakeNeo4jSession{
		results: []neo4jResult{
			&fakeNeo4jResult{rows: []map[string]any{
				edgeRow("user", "VISITED", "paris", 0.9, "u1"),
			}},
			&fakeNeo4jResult{rows: []map[string]any{
				edgeRow("paris", "IS_IN", "france", 0.8, "u2"),
				edgeRow("user", "VISITED", "paris", 0.9, "u1"), // dup of the anchor
			}},
		},
	}
	s, err := NewNeo4jGraphStore(&fakeNeo4jDriver{session: session}, "neo4j")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	got, err := s.RetrieveContext(context.Background(), "u1", 10)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected anchor + deduped spread, got %d", len(got))
	}
	if got[0].Depth != 0 || math.Abs(got[0].Score-0.9) > 1e-9 {
		t.Fatalf("anchor tier wrong: %+v", got[0])
	}
	if got[1].Depth != 1 || math.Abs(got[1].Score-0.8*model.SpreadDecay) > 1e-9 {
		t.Fatalf("spread tier wrong: %+v", got[1])
	}

	// The spread query must exclude the anchor node set.
	if len(session.calls) != 2 {
		t.Fatalf("expected 2 queries, got %d", len(session.calls))
	}
	anchors, ok := session.calls[1].params["anchors"].([]string)
	if !ok || len(anchors) != 2 {
		t.Fatalf("anchors param = %v", session.calls[1].params["anchors"])
	}
}

func TestNeo4jRetrieveContextEmptyGraph(t *testing.T) {
	session := &fakeNeo4jSession{results: []neo4jResult{&fakeNeo4jResult{}}}
	s, err := NewNeo4jGraphStore(&fakeNeo4jDriver{session: session}, "neo4j")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	got, err := s.RetrieveContext(context.Background(), "u1", 10)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty result, got %d", len(got))
	}
	// No anchors means no spread query.
	if len(session.calls) != 1 {
		t.Fatalf("expected 1 query for empty graph, got %d", len(session.calls))
	}
}

func TestNeo4jStoreWithoutDriver(t *testing.T) {
	if _, err := NewNeo4jGraphStore(nil, "neo4j"); err == nil {
		t.Fatal("expected error for nil driver")
	}
	var s *Neo4jGraphStore
	if _, err := s.RetrieveContext(context.Background(), "u1", 5); err == nil {
		t.Fatal("expected ErrNeo4jUnavailable from nil store")
	}
}

func TestSortScoredEdgesStable(t *testing.T) {
	edges := []model.ScoredEdge{
		{Edge: model.Edge{EdgeID: "a"}, Score: 0.5},
		{Edge: model.Edge{EdgeID: "b"}, Score: 0.9},
		{Edge: model.Edge{EdgeID: "c"}, Score: 0.5},
	}
	sortScoredEdges(edges)
	if edges[0].EdgeID != "b" || edges[1].EdgeID != "a" || edges[2].EdgeID != "c" {
		t.Fatalf("order = %s %s %s", edges[0].EdgeID, edges[1].EdgeID, edges[2].EdgeID)
	}
}

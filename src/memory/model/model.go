package model

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
	"time"
)

// Node is an entity in the fact graph. Nodes are created on first
// reference and never deleted except by a full wipe.
type Node struct {
	ID       string    `json:"id"`
	Type     string    `json:"type"`
	LastSeen time.Time `json:"last_seen,omitempty"`
}

// Edge is a typed, confidence-weighted relation between two entities.
// EdgeID is content-addressable: the same (user, src, relation, dst)
// tuple always maps to the same edge.
type Edge struct {
	EdgeID      string    `json:"edge_id,omitempty"`
	Src         string    `json:"src"`
	Dst         string    `json:"dst"`
	Relation    string    `json:"relation"`
	Confidence  float64   `json:"confidence"`
	TurnID      int       `json:"turn_id,omitempty"`
	UserID      string    `json:"user_id,omitempty"`
	SourceText  string    `json:"source_text,omitempty"`
	FirstSeen   time.Time `json:"first_seen,omitempty"`
	LastUpdated time.Time `json:"last_updated,omitempty"`
}

// Statement renders the edge as a plain sentence for reranking and
// contradiction judging.
func (e Edge) Statement() string {
	return e.Src + " " + e.Relation + " " + e.Dst
}

// ScoredEdge is an edge returned by spreading-activation retrieval.
// Depth 0 edges are recency anchors scored by raw confidence; depth 1
// edges are one-hop neighbors scored at confidence times the decay.
type ScoredEdge struct {
	Edge
	Score float64 `json:"score"`
	Depth int     `json:"depth"`
}

// Neighbor is a direct graph neighbor of an entity.
type Neighbor struct {
	ID       string `json:"neighbor"`
	Relation string `json:"relation"`
}

// GraphDelta is the validated set of nodes and edges extracted from a
// single utterance. It lives for one turn: either its contents are
// persisted or the whole thing is discarded.
type GraphDelta struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// VectorMemory is a raw text chunk stored alongside its embedding.
type VectorMemory struct {
	DocID      string    `json:"doc_id"`
	Text       string    `json:"text"`
	Embedding  []float32 `json:"-"`
	UserID     string    `json:"user_id"`
	TurnID     int       `json:"turn_id"`
	Confidence float64   `json:"confidence"`
	Score      float64   `json:"score,omitempty"`
	CreatedAt  time.Time `json:"created_at,omitempty"`
}

// ReinforcementFactor governs how much a re-asserted fact gains:
// c <- c + (1-c)*factor. Monotonically increasing, asymptotic to 1.
const ReinforcementFactor = 0.2

// Reinforce applies the confidence reinforcement update.
func Reinforce(c float64) float64 {
	return c + (1-c)*ReinforcementFactor
}

// SpreadDecay is the fixed score decay applied to depth-1 neighbors
// during spreading-activation retrieval.
const SpreadDecay = 0.5

// EdgeID derives the content-addressable identifier for an edge. The
// hash is case-sensitive: "Kerala" and "kerala" are distinct facts.
func EdgeID(userID, src, relation, dst string) string {
	sum := md5.Sum([]byte(userID + ":" + src + ":" + relation + ":" + dst))
	return hex.EncodeToString(sum[:])
}

// DocID derives the content-addressable identifier for a vector memory
// from the owning user and the whitespace-trimmed text.
func DocID(userID, text string) string {
	sum := md5.Sum([]byte(userID + ":" + strings.TrimSpace(text)))
	return hex.EncodeToString(sum[:])
}

// GenericRelation is the schema-level fallback when a caller-supplied
// relation sanitizes down to nothing.
const GenericRelation = "RELATED_TO"

// SanitizeRelation reduces caller text to a safe schema-level relation
// type: alphanumerics and underscores only, uppercased. Anything else
// collapses to GenericRelation so user text can never inject arbitrary
// schema elements.
func SanitizeRelation(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r - ('a' - 'A'))
		case (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_':
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return GenericRelation
	}
	return b.String()
}

// ClampConfidence coerces an extracted confidence into [0,1]. Missing
// values (zero) default to full confidence, matching the extraction
// contract.
func ClampConfidence(c float64) float64 {
	if c == 0 {
		return 1.0
	}
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

package reasoning

import (
	"context"
	"encoding/json"
	"log"
	"strings"

	"github.com/engram-ai/engram/src/memory/model"
	"github.com/engram-ai/engram/src/models"
)

const extractionPrompt = `Return ONLY a JSON object describing a knowledge graph extracted from the user sentence.

Schema:
{
  "nodes": [{"id": "entity_name", "type": "category"}],
  "edges": [{"id": "e1", "src": "User", "dst": "entity_name", "relation": "verb_phrase"}]
}

Rules:
- Extract personal facts, preferences, locations, and simple family facts ("my mom's name is X").
- For greetings or questions with no personal fact, return {"nodes": [], "edges": []}.
- Do not output any text before or after the JSON object (no explanations, no code fences).`

// trivialUtterances are rejected locally, before any model call.
var trivialUtterances = map[string]struct{}{
	"hi": {}, "hello": {}, "hey": {},
	"thanks": {}, "thank you": {},
	"bye": {}, "goodbye": {},
}

const DefaultExtractionRetries = 2

// Extractor turns a free-text utterance into a GraphDelta using a small
// extraction model. A nil delta means "no fact here"; the extractor
// never returns an error to its caller.
type Extractor struct {
	LLM        models.Agent
	MaxRetries int
}

func NewExtractor(llm models.Agent) *Extractor {
	return &Extractor{LLM: llm, MaxRetries: DefaultExtractionRetries}
}

type rawNode struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

type rawEdge struct {
	ID         string  `json:"id"`
	Src        string  `json:"src"`
	Dst        string  `json:"dst"`
	Relation   string  `json:"relation"`
	Confidence float64 `json:"confidence"`
}

type rawGraph struct {
	Nodes []rawNode `json:"nodes"`
	Edges []rawEdge `json:"edges"`
}

// Extract runs the extraction model with bounded retries. Empty input,
// trivial utterances, unparseable output, and edge-less graphs all
// yield nil.
func (x *Extractor) Extract(ctx context.Context, text string) *model.GraphDelta {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if _, trivial := trivialUtterances[strings.ToLower(text)]; trivial {
		return nil
	}

	for attempt := 0; attempt <= x.MaxRetries; attempt++ {
		content, err := x.LLM.GenerateJSON(ctx, extractionPrompt+"\n\nUser sentence: "+text)
		if err != nil {
			if attempt < x.MaxRetries {
				log.Printf("[Extractor] retry %d after request error: %v", attempt+1, err)
				continue
			}
			log.Printf("[Extractor] giving up after request error: %v", err)
			return nil
		}

		graph := parseGraphJSON(content)
		if graph == nil {
			if attempt < x.MaxRetries {
				log.Printf("[Extractor] retry %d after invalid JSON: %.100s", attempt+1, content)
				continue
			}
			log.Printf("[Extractor] unparseable output: %.100s", content)
			return nil
		}

		delta := validateGraph(graph)
		if delta == nil {
			// Parsed fine, just no facts. Not worth a retry.
			return nil
		}
		log.Printf("[Extractor] extracted %d nodes, %d edges", len(delta.Nodes), len(delta.Edges))
		return delta
	}
	return nil
}

// parseGraphJSON tries three strategies in order: direct parse, parse
// after stripping markdown fences, then parse the first-{-to-last-}
// substring. Small models wrap JSON in prose often enough that all
// three earn their keep.
func parseGraphJSON(content string) *rawGraph {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}

	var graph rawGraph
	if err := json.Unmarshal([]byte(content), &graph); err == nil {
		return &graph
	}

	cleaned := stripFences(content)
	if err := json.Unmarshal([]byte(cleaned), &graph); err == nil {
		return &graph
	}

	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start >= 0 && end > start {
		if err := json.Unmarshal([]byte(content[start:end+1]), &graph); err == nil {
			return &graph
		}
	}
	return nil
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		s = s[start : end+1]
	}
	return strings.TrimSpace(s)
}

// validateGraph drops incomplete edges and returns nil when nothing
// usable remains.
func validateGraph(graph *rawGraph) *model.GraphDelta {
	var edges []model.Edge
	for _, e := range graph.Edges {
		if e.Src == "" || e.Dst == "" || e.Relation == "" {
			log.Printf("[Extractor] dropping incomplete edge %+v", e)
			continue
		}
		edges = append(edges, model.Edge{
			Src:        e.Src,
			Dst:        e.Dst,
			Relation:   e.Relation,
			Confidence: model.ClampConfidence(e.Confidence),
		})
	}
	if len(edges) == 0 {
		return nil
	}

	var nodes []model.Node
	for _, n := range graph.Nodes {
		if n.ID == "" {
			continue
		}
		nodeType := n.Type
		if nodeType == "" {
			nodeType = "unknown"
		}
		nodes = append(nodes, model.Node{ID: n.ID, Type: nodeType})
	}
	return &model.GraphDelta{Nodes: nodes, Edges: edges}
}

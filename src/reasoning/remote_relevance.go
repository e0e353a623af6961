package reasoning

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"
)

// RemoteRelevanceScorer calls a Cohere-style rerank endpoint:
// {model, query, documents[]} -> {results: [{index, relevance_score}]}.
// Configure with ENGRAM_RERANK_URL / ENGRAM_RERANK_API_KEY.
type RemoteRelevanceScorer struct {
	Endpoint string
	APIKey   string
	Model    string
	client   *http.Client
}

// NewRemoteRelevanceScorer returns nil when no endpoint is configured,
// which drops the reranker straight to its local fallback.
func NewRemoteRelevanceScorer() *RemoteRelevanceScorer {
	endpoint := os.Getenv("ENGRAM_RERANK_URL")
	if endpoint == "" {
		return nil
	}
	modelName := os.Getenv("ENGRAM_RERANK_MODEL")
	if modelName == "" {
		modelName = "rerank-v3.5"
	}
	return &RemoteRelevanceScorer{
		Endpoint: endpoint,
		APIKey:   os.Getenv("ENGRAM_RERANK_API_KEY"),
		Model:    modelName,
		client:   &http.Client{Timeout: 15 * time.Second},
	}
}

func (s *RemoteRelevanceScorer) Score(ctx context.Context, query string, documents []string) ([]float64, error) {
	if s == nil || s.Endpoint == "" {
		return nil, errors.New("rerank endpoint not configured")
	}

	payload := map[string]any{
		"model":     s.Model,
		"query":     query,
		"documents": documents,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.APIKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("rerank failed: %s", resp.Status)
	}

	var data struct {
		Results []struct {
			Index          int     `json:"index"`
			RelevanceScore float64 `json:"relevance_score"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("rerank decode: %w", err)
	}

	scores := make([]float64, len(documents))
	for _, res := range data.Results {
		if res.Index >= 0 && res.Index < len(scores) {
			scores[res.Index] = res.RelevanceScore
		}
	}
	return scores, nil
}

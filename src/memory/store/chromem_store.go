package store

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"

	"github.com/engram-ai/engram/src/memory/embed"
	"github.com/engram-ai/engram/src/memory/model"
)

// ChromemVectorStore keeps raw text memories in chromem-go, an embedded
// pure-Go vector database. With a persist path it survives restarts
// without any external service.
type ChromemVectorStore struct {
	db       *chromem.DB
	embedder embed.Embedder

	mu          sync.Mutex
	collections map[string]*chromem.Collection
}

var _ VectorStore = (*ChromemVectorStore)(nil)

// NewChromemVectorStore opens (or creates) the store. An empty persist
// path keeps everything in memory.
func NewChromemVectorStore(persistPath string, embedder embed.Embedder) (*ChromemVectorStore, error) {
	if embedder == nil {
		embedder = embed.DummyEmbedder{}
	}
	var (
		db  *chromem.DB
		err error
	)
	if persistPath == "" {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(persistPath, false)
		if err != nil {
			return nil, fmt.Errorf("chromem open %s: %w", persistPath, err)
		}
	}
	return &ChromemVectorStore{
		db:          db,
		embedder:    embedder,
		collections: make(map[string]*chromem.Collection),
	}, nil
}

// collection returns the per-user collection, creating it on first use.
// A collection per user keeps one user's memories invisible to another's
// queries without a filter clause.
func (s *ChromemVectorStore) collection(userID string) (*chromem.Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if col, ok := s.collections[userID]; ok {
		return col, nil
	}
	name := "memories_" + sanitizeCollectionName(userID)
	col, err := s.db.GetOrCreateCollection(name, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem collection %s: %w", name, err)
	}
	s.collections[userID] = col
	return col, nil
}

func (s *ChromemVectorStore) AddMemory(ctx context.Context, mem model.VectorMemory) error {
	text := strings.TrimSpace(mem.Text)
	if text == "" {
		return nil
	}
	col, err := s.collection(mem.UserID)
	if err != nil {
		return err
	}

	docID := mem.DocID
	if docID == "" {
		docID = model.DocID(mem.UserID, text)
	}
	embedding := mem.Embedding
	if len(embedding) == 0 {
		embedding, err = s.embedder.Embed(ctx, text)
		if err != nil {
			return fmt.Errorf("embed memory: %w", err)
		}
	}
	createdAt := mem.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	// AddDocument overwrites on duplicate id, so re-asserted text is a
	// no-op rather than a second copy.
	doc := chromem.Document{
		ID:        docID,
		Content:   text,
		Embedding: embedding,
		Metadata: map[string]string{
			"user_id":    mem.UserID,
			"turn_id":    strconv.Itoa(mem.TurnID),
			"confidence": strconv.FormatFloat(mem.Confidence, 'f', -1, 64),
			"created_at": createdAt.Format(time.RFC3339),
		},
	}
	if err := col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("chromem add: %w", err)
	}
	return nil
}

func (s *ChromemVectorStore) Search(ctx context.Context, query string, k int, userID string) []model.VectorMemory {
	if k <= 0 {
		return nil
	}
	col, err := s.collection(userID)
	if err != nil {
		log.Printf("[Chromem] search unavailable: %v", err)
		return nil
	}
	if count := col.Count(); count < k {
		if count == 0 {
			return nil
		}
		k = count
	}

	embedding, err := s.embedder.Embed(ctx, query)
	if err != nil {
		log.Printf("[Chromem] query embedding failed: %v", err)
		return nil
	}
	results, err := col.QueryEmbedding(ctx, embedding, k, nil, nil)
	if err != nil {
		log.Printf("[Chromem] query failed: %v", err)
		return nil
	}

	out := make([]model.VectorMemory, 0, len(results))
	for _, res := range results {
		out = append(out, vectorMemoryFromResult(res, userID))
	}
	return out
}

func (s *ChromemVectorStore) Wipe(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.Reset(); err != nil {
		return fmt.Errorf("chromem reset: %w", err)
	}
	s.collections = make(map[string]*chromem.Collection)
	return nil
}

func vectorMemoryFromResult(res chromem.Result, userID string) model.VectorMemory {
	mem := model.VectorMemory{
		DocID:     res.ID,
		Text:      res.Content,
		Embedding: res.Embedding,
		UserID:    userID,
		Score:     float64(res.Similarity),
	}
	if v := res.Metadata["turn_id"]; v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			mem.TurnID = n
		}
	}
	if v := res.Metadata["confidence"]; v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			mem.Confidence = f
		}
	}
	if v := res.Metadata["created_at"]; v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			mem.CreatedAt = t
		}
	}
	return mem
}

// sanitizeCollectionName maps a user id onto chromem's allowed
// collection-name alphabet.
func sanitizeCollectionName(userID string) string {
	if userID == "" {
		return "default"
	}
	var b strings.Builder
	for _, r := range userID {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' || r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

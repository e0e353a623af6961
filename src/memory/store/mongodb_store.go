package store

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/engram-ai/engram/src/memory/embed"
	"github.com/engram-ai/engram/src/memory/model"
)

// MongoVectorStore keeps raw text memories in MongoDB with an Atlas
// vector index over the embedding field. Documents are keyed by the
// content-hash doc id, so a re-asserted memory replaces itself.
type MongoVectorStore struct {
	client     *mongo.Client
	collection *mongo.Collection
	embedder   embed.Embedder
}

var _ VectorStore = (*MongoVectorStore)(nil)

const mongoCloseTimeout = 5 * time.Second

func NewMongoVectorStore(ctx context.Context, uri, database, collection string, embedder embed.Embedder) (*MongoVectorStore, error) {
	if uri == "" {
		return nil, errors.New("mongo uri is required")
	}
	if database == "" {
		return nil, errors.New("mongo database name is required")
	}
	if collection == "" {
		return nil, errors.New("mongo collection name is required")
	}
	if embedder == nil {
		embedder = embed.DummyEmbedder{}
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return &MongoVectorStore{
		client:     client,
		collection: client.Database(database).Collection(collection),
		embedder:   embedder,
	}, nil
}

// CreateSchema ensures the user/recency index exists. The vector search
// index itself is managed through Atlas, not the driver.
func (ms *MongoVectorStore) CreateSchema(ctx context.Context) error {
	if ms == nil || ms.collection == nil {
		return nil
	}
	_, err := ms.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}},
		Options: options.Index().SetName("user_created_at"),
	})
	return err
}

func (ms *MongoVectorStore) AddMemory(ctx context.Context, mem model.VectorMemory) error {
	if ms == nil || ms.collection == nil {
		return nil
	}
	text := strings.TrimSpace(mem.Text)
	if text == "" {
		return nil
	}
	docID := mem.DocID
	if docID == "" {
		docID = model.DocID(mem.UserID, text)
	}
	embedding := mem.Embedding
	if len(embedding) == 0 {
		var err error
		embedding, err = ms.embedder.Embed(ctx, text)
		if err != nil {
			return err
		}
	}
	createdAt := mem.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	doc := bson.M{
		"_id":        docID,
		"user_id":    mem.UserID,
		"text":       text,
		"embedding":  mongoEmbedding(embedding),
		"turn_id":    mem.TurnID,
		"confidence": mem.Confidence,
		"created_at": createdAt,
	}
	opts := options.Replace().SetUpsert(true)
	_, err := ms.collection.ReplaceOne(ctx, bson.M{"_id": docID}, doc, opts)
	return err
}

func (ms *MongoVectorStore) Search(ctx context.Context, query string, k int, userID string) []model.VectorMemory {
	if ms == nil || ms.collection == nil || k <= 0 {
		return nil
	}
	embedding, err := ms.embedder.Embed(ctx, query)
	if err != nil {
		log.Printf("[Mongo] query embedding failed: %v", err)
		return nil
	}

	pipeline := mongo.Pipeline{
		{
			{Key: "$vectorSearch", Value: bson.D{
				{Key: "index", Value: "vector_index"},
				{Key: "path", Value: "embedding"},
				{Key: "queryVector", Value: mongoEmbedding(embedding)},
				{Key: "numCandidates", Value: int64(k * 10)},
				{Key: "limit", Value: int64(k)},
				{Key: "filter", Value: bson.D{{Key: "user_id", Value: userID}}},
			}},
		},
		{
			{Key: "$addFields", Value: bson.D{
				{Key: "score", Value: bson.D{{Key: "$meta", Value: "vectorSearchScore"}}},
			}},
		},
	}

	cursor, err := ms.collection.Aggregate(ctx, pipeline)
	if err != nil {
		log.Printf("[Mongo] vector search failed: %v", err)
		return nil
	}
	defer cursor.Close(ctx)

	var out []model.VectorMemory
	for cursor.Next(ctx) {
		var doc mongoVectorDocument
		if err := cursor.Decode(&doc); err != nil {
			log.Printf("[Mongo] decode result: %v", err)
			continue
		}
		out = append(out, doc.toMemory())
	}
	if err := cursor.Err(); err != nil {
		log.Printf("[Mongo] cursor: %v", err)
	}
	return out
}

func (ms *MongoVectorStore) Wipe(ctx context.Context) error {
	if ms == nil || ms.collection == nil {
		return nil
	}
	_, err := ms.collection.DeleteMany(ctx, bson.M{})
	return err
}

// Close releases the underlying MongoDB client.
func (ms *MongoVectorStore) Close() error {
	if ms == nil || ms.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), mongoCloseTimeout)
	defer cancel()
	return ms.client.Disconnect(ctx)
}

type mongoVectorDocument struct {
	ID         string    `bson:"_id"`
	UserID     string    `bson:"user_id"`
	Text       string    `bson:"text"`
	Embedding  []float64 `bson:"embedding"`
	TurnID     int       `bson:"turn_id"`
	Confidence float64   `bson:"confidence"`
	CreatedAt  time.Time `bson:"created_at"`
	Score      float64   `bson:"score"`
}

func (doc mongoVectorDocument) toMemory() model.VectorMemory {
	embedding := make([]float32, len(doc.Embedding))
	for i, v := range doc.Embedding {
		embedding[i] = float32(v)
	}
	return model.VectorMemory{
		DocID:      doc.ID,
		Text:       doc.Text,
		Embedding:  embedding,
		UserID:     doc.UserID,
		TurnID:     doc.TurnID,
		Confidence: doc.Confidence,
		Score:      doc.Score,
		CreatedAt:  doc.CreatedAt,
	}
}

func mongoEmbedding(vec []float32) []float64 {
	if len(vec) == 0 {
		return nil
	}
	out := make([]float64, len(vec))
	for i, v := range vec {
		out[i] = float64(v)
	}
	return out
}

package embed

import (
	"context"
	"log"
	"os"
	"strings"
)

// Embedder is a pluggable text-embedding provider.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ---------- Dummy (fallback) ----------

type DummyEmbedder struct{}

func (DummyEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	return DummyEmbedding(text), nil
}

// DummyEmbedding produces a deterministic byte-histogram vector. Useful
// for tests and as the last-resort fallback when no provider works.
func DummyEmbedding(text string) []float32 {
	vec := make([]float32, 768)
	for i, ch := range []byte(text) {
		vec[i%768] += float32(ch) / 255.0
	}
	return vec
}

// AutoEmbedder chooses a provider from env:
// ENGRAM_EMBED_PROVIDER=openai|google|gemini|ollama|voyage|fastembed
// ENGRAM_EMBED_MODEL=<model string>
// Unset or failing providers fall back to the dummy embedder.
func AutoEmbedder() Embedder {
	provider := strings.ToLower(strings.TrimSpace(os.Getenv("ENGRAM_EMBED_PROVIDER")))
	model := strings.TrimSpace(os.Getenv("ENGRAM_EMBED_MODEL"))

	switch provider {
	case "openai":
		if e, err := NewOpenAIEmbedder(model); err == nil {
			return e
		}
	case "google", "gemini":
		if e, err := NewGeminiEmbedder(model); err == nil {
			return e
		}
	case "ollama":
		if e, err := NewOllamaEmbedder(model); err == nil {
			return e
		}
	case "voyage", "claude", "anthropic":
		if e, err := NewVoyageEmbedder(model); err == nil {
			return e
		}
	case "fastembed":
		if opts := defaultFastEmbedOptions(); opts != nil {
			if e, err := NewFastEmbed(context.Background(), opts); err == nil {
				return e
			}
		}
	}

	log.Printf("[Embed] AutoEmbedder: falling back to DummyEmbedder")
	return DummyEmbedder{}
}

// FastEmbedOptions configures the optional local fastembed backend.
type FastEmbedOptions struct {
	Model     string
	CacheDir  string
	MaxLength int
}

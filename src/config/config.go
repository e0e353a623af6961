package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config carries every runtime knob. Values come from the environment
// with the defaults below; a .env file in the working directory is
// loaded first when present.
type Config struct {
	// Session / retrieval
	RAMContextSize int
	TopKMemories   int
	AsyncWorkers   int
	QueueCapacity  int

	// Confidence
	MinConfidenceToStore float64

	// Contradiction gate
	TrivialRelations []string
	RecentEdgeWindow int
	// PreResponseGate runs the contradiction check before generating a
	// reply (visible rejection, higher latency). Off by default: the
	// check runs only inside the write path.
	PreResponseGate bool

	// Models
	GenerationModel string
	ExtractionModel string
	OllamaBaseURL   string

	// Graph store
	Neo4jURI      string
	Neo4jUser     string
	Neo4jPassword string
	Neo4jDatabase string
	PostgresDSN   string

	// Vector store
	MongoURI        string
	MongoDatabase   string
	MongoCollection string
	ChromemPath     string

	// Consolidation
	ClutterThreshold int
	ConsolidationCap int
	ClusterFactLimit int
	MinClusterSize   int
}

func Load() Config {
	_ = godotenv.Load() // best-effort; env vars win anyway

	return Config{
		RAMContextSize: envInt("RAM_CONTEXT_SIZE", 8),
		TopKMemories:   envInt("TOP_K_MEMORIES", 3),
		AsyncWorkers:   envInt("ASYNC_WORKERS", 1),
		QueueCapacity:  envInt("ASYNC_QUEUE_CAPACITY", 64),

		MinConfidenceToStore: envFloat("MIN_CONFIDENCE_TO_STORE", 0.65),

		TrivialRelations: envList("TRIVIAL_RELATIONS", nil),
		RecentEdgeWindow: envInt("RECENT_EDGE_WINDOW", 5),
		PreResponseGate:  envString("CONTRADICTION_POLICY", "write_only_gate") == "pre_response_gate",

		GenerationModel: envString("GENERATION_MODEL", "llama3:8b"),
		ExtractionModel: envString("EXTRACTION_MODEL", "phi3:mini"),
		OllamaBaseURL:   envString("OLLAMA_HOST", "http://localhost:11434"),

		Neo4jURI:      envString("NEO4J_URI", "neo4j://localhost:7687"),
		Neo4jUser:     envString("NEO4J_USER", "neo4j"),
		Neo4jPassword: envString("NEO4J_PASSWORD", "password"),
		Neo4jDatabase: envString("NEO4J_DATABASE", "neo4j"),
		PostgresDSN:   envString("POSTGRES_DSN", ""),

		MongoURI:        envString("MONGO_URI", ""),
		MongoDatabase:   envString("MONGO_DATABASE", "engram"),
		MongoCollection: envString("MONGO_COLLECTION", "memories"),
		ChromemPath:     envString("CHROMEM_PATH", ""),

		ClutterThreshold: envInt("CLUTTER_THRESHOLD", 3),
		ConsolidationCap: envInt("CONSOLIDATION_CANDIDATES", 3),
		ClusterFactLimit: envInt("CLUSTER_FACT_LIMIT", 10),
		MinClusterSize:   envInt("MIN_CLUSTER_SIZE", 3),
	}
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

// main.go — memory-augmented chat over the fast/slow pipeline.
// One-shot with -message, or an interactive loop when no message is given.
// Store backends are picked by flag; connection details come from the
// environment (see src/config).
//
// Examples:
//
//	go run ./cmd/app -provider dummy
//
//	export OPENAI_API_KEY=...
//	go run ./cmd/app -provider openai -model gpt-4o-mini -message "Where do I live?"
//
//	export POSTGRES_DSN=postgres://localhost/engram
//	go run ./cmd/app -graph postgres -vector chromem
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/engram-ai/engram/src/concurrent"
	"github.com/engram-ai/engram/src/config"
	"github.com/engram-ai/engram/src/llm"
	"github.com/engram-ai/engram/src/memory/embed"
	"github.com/engram-ai/engram/src/memory/engine"
	"github.com/engram-ai/engram/src/memory/session"
	"github.com/engram-ai/engram/src/memory/store"
	"github.com/engram-ai/engram/src/models"
	"github.com/engram-ai/engram/src/pipeline"
	"github.com/engram-ai/engram/src/reasoning"
)

var (
	flagProvider = flag.String("provider", "ollama", "LLM provider: openai|gemini|anthropic|ollama|dummy")
	flagModel    = flag.String("model", "", "Generation model ID (defaults to GENERATION_MODEL)")
	flagExtract  = flag.String("extract-model", "", "Extraction model ID (defaults to EXTRACTION_MODEL)")
	flagGraph    = flag.String("graph", "memory", "Graph store: neo4j|postgres|memory")
	flagVector   = flag.String("vector", "memory", "Vector store: mongo|chromem|memory")
	flagSession  = flag.String("session", "default", "Session ID for conversation continuity")
	flagMessage  = flag.String("message", "", "User message; empty starts the interactive loop")
	flagStdin    = flag.Bool("stdin", false, "Read the user message from STDIN")
	flagJSON     = flag.Bool("json", false, "Print JSON {response, memories, job_id} (one-shot only)")
	flagTimeout  = flag.Duration("timeout", 90*time.Second, "Per-turn timeout")
)

func main() {
	flag.Parse()

	cfg := config.Load()
	ctx := context.Background()

	graph, err := openGraphStore(ctx, *flagGraph, cfg)
	if err != nil {
		fail(err)
	}
	vectors, err := openVectorStore(ctx, *flagVector, cfg)
	if err != nil {
		fail(err)
	}

	genModel := *flagModel
	if genModel == "" {
		genModel = cfg.GenerationModel
	}
	extractModel := *flagExtract
	if extractModel == "" {
		extractModel = cfg.ExtractionModel
	}

	genLLM, err := models.NewLLMProvider(ctx, *flagProvider, genModel, "")
	if err != nil {
		fail(fmt.Errorf("generation model: %w", err))
	}
	extractLLM, err := models.NewLLMProvider(ctx, *flagProvider, extractModel, "")
	if err != nil {
		fail(fmt.Errorf("extraction model: %w", err))
	}

	buffer := session.NewRAMContext(cfg.RAMContextSize)
	slow := pipeline.NewSlowPipe(
		reasoning.NewExtractor(extractLLM),
		reasoning.NewContradictionJudge(extractLLM, cfg.TrivialRelations),
		graph, vectors, buffer,
	)
	slow.MinConfidence = cfg.MinConfidenceToStore
	slow.RecentEdgeWindow = cfg.RecentEdgeWindow

	scorers := []reasoning.RelevanceScorer{}
	if remote := reasoning.NewRemoteRelevanceScorer(); remote != nil {
		scorers = append(scorers, remote)
	}
	scorers = append(scorers, reasoning.LexicalScorer{})

	queue := concurrent.NewQueue(cfg.AsyncWorkers, cfg.QueueCapacity, concurrent.Block)
	defer queue.Close()

	fast := pipeline.NewFastPipe(graph, vectors, buffer,
		reasoning.NewReranker(scorers...), llm.NewGenerator(genLLM), slow, queue)
	fast.TopK = cfg.TopKMemories
	fast.PreResponseGate = cfg.PreResponseGate

	var consolidator *engine.Consolidator
	if mgraph, ok := graph.(interface {
		store.GraphStore
		store.MaintenanceStore
	}); ok {
		consolidator = engine.NewConsolidator(extractLLM, mgraph)
		consolidator.ClutterThreshold = cfg.ClutterThreshold
		consolidator.CandidateLimit = cfg.ConsolidationCap
		consolidator.FactLimit = cfg.ClusterFactLimit
		consolidator.MinClusterSize = cfg.MinClusterSize
	}

	msg, err := getMessage(*flagMessage, *flagStdin, os.Stdin)
	if err != nil {
		fail(err)
	}
	if strings.TrimSpace(msg) != "" {
		oneShot(ctx, fast, msg)
		return
	}

	interact(ctx, fast, graph, vectors, buffer, consolidator)
}

func oneShot(ctx context.Context, fast *pipeline.FastPipe, msg string) {
	ctx, cancel := context.WithTimeout(ctx, *flagTimeout)
	defer cancel()

	result := fast.Process(ctx, msg, *flagSession)
	if *flagJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(map[string]any{
			"response": result.Response,
			"memories": len(result.MemoriesUsed),
			"job_id":   result.JobID,
		})
		return
	}
	fmt.Println(result.Response)
}

func interact(ctx context.Context, fast *pipeline.FastPipe, graph store.GraphStore, vectors store.VectorStore, buffer *session.RAMContext, consolidator *engine.Consolidator) {
	fmt.Println("engram chat — type a message, 'sleep' to consolidate, 'reset' to wipe, 'exit' to quit")

	sc := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !sc.Scan() {
			break
		}
		input := strings.TrimSpace(sc.Text())
		if input == "" {
			continue
		}
		switch strings.ToLower(input) {
		case "exit", "quit":
			return
		case "sleep", "consolidate":
			if consolidator == nil {
				fmt.Println("consolidation is not supported by this graph store")
				continue
			}
			if err := consolidator.Run(ctx, *flagSession); err != nil {
				fmt.Println("consolidation failed:", err)
			} else {
				fmt.Println("memory consolidated")
			}
			continue
		}
		if pipeline.IsResetCommand(input) {
			if err := pipeline.Reset(ctx, graph, vectors, buffer); err != nil {
				fmt.Println("reset incomplete:", err)
			} else {
				fmt.Println("memory wiped")
			}
			continue
		}

		turnCtx, cancel := context.WithTimeout(ctx, *flagTimeout)
		result := fast.Process(turnCtx, input, *flagSession)
		cancel()
		fmt.Println(result.Response)
	}
	if err := sc.Err(); err != nil {
		fail(err)
	}
}

func openGraphStore(ctx context.Context, kind string, cfg config.Config) (store.GraphStore, error) {
	switch strings.ToLower(kind) {
	case "neo4j":
		gs, err := store.OpenNeo4jGraphStore(cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPassword, cfg.Neo4jDatabase)
		if err != nil {
			return nil, fmt.Errorf("neo4j: %w", err)
		}
		return gs, nil
	case "postgres":
		if cfg.PostgresDSN == "" {
			return nil, errors.New("postgres graph store requires POSTGRES_DSN")
		}
		gs, err := store.OpenPostgresGraphStore(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		return gs, nil
	case "", "memory":
		return store.NewInMemoryGraphStore(), nil
	default:
		return nil, fmt.Errorf("unknown graph store %q", kind)
	}
}

func openVectorStore(ctx context.Context, kind string, cfg config.Config) (store.VectorStore, error) {
	embedder := embed.AutoEmbedder()
	switch strings.ToLower(kind) {
	case "mongo":
		if cfg.MongoURI == "" {
			return nil, errors.New("mongo vector store requires MONGO_URI")
		}
		vs, err := store.NewMongoVectorStore(ctx, cfg.MongoURI, cfg.MongoDatabase, cfg.MongoCollection, embedder)
		if err != nil {
			return nil, fmt.Errorf("mongo: %w", err)
		}
		if err := vs.CreateSchema(ctx); err != nil {
			return nil, fmt.Errorf("mongo schema: %w", err)
		}
		return vs, nil
	case "chromem":
		vs, err := store.NewChromemVectorStore(cfg.ChromemPath, embedder)
		if err != nil {
			return nil, fmt.Errorf("chromem: %w", err)
		}
		return vs, nil
	case "", "memory":
		return store.NewInMemoryVectorStore(embedder), nil
	default:
		return nil, fmt.Errorf("unknown vector store %q", kind)
	}
}

func getMessage(flagMsg string, useStdin bool, r io.Reader) (string, error) {
	if useStdin {
		b, err := io.ReadAll(r)
		if err != nil {
			return "", err
		}
		return strings.TrimRight(string(b), "\n"), nil
	}
	return flagMsg, nil
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}

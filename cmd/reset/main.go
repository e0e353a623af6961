// main.go — wipes every memory store. Destructive; asks for
// confirmation unless -yes is set.
//
//	go run ./cmd/reset -graph postgres -vector chromem -yes
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/engram-ai/engram/src/config"
	"github.com/engram-ai/engram/src/memory/embed"
	"github.com/engram-ai/engram/src/memory/session"
	"github.com/engram-ai/engram/src/memory/store"
	"github.com/engram-ai/engram/src/pipeline"
)

var (
	flagGraph   = flag.String("graph", "memory", "Graph store: neo4j|postgres|memory")
	flagVector  = flag.String("vector", "memory", "Vector store: mongo|chromem|memory")
	flagYes     = flag.Bool("yes", false, "Skip the confirmation prompt")
	flagTimeout = flag.Duration("timeout", 30*time.Second, "Wipe timeout")
)

func main() {
	flag.Parse()

	if !*flagYes && !confirm() {
		fmt.Println("aborted")
		return
	}

	cfg := config.Load()
	ctx, cancel := context.WithTimeout(context.Background(), *flagTimeout)
	defer cancel()

	graph, err := openGraphStore(ctx, *flagGraph, cfg)
	if err != nil {
		fail(err)
	}
	vectors, err := openVectorStore(ctx, *flagVector, cfg)
	if err != nil {
		fail(err)
	}

	if err := pipeline.Reset(ctx, graph, vectors, session.NewRAMContext(cfg.RAMContextSize)); err != nil {
		fail(err)
	}
	fmt.Println("memory wiped")
}

func confirm() bool {
	fmt.Print("wipe ALL stored memory? [y/N] ")
	sc := bufio.NewScanner(os.Stdin)
	if !sc.Scan() {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(sc.Text()))
	return answer == "y" || answer == "yes"
}

func openGraphStore(ctx context.Context, kind string, cfg config.Config) (store.GraphStore, error) {
	switch strings.ToLower(kind) {
	case "neo4j":
		return store.OpenNeo4jGraphStore(cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPassword, cfg.Neo4jDatabase)
	case "postgres":
		if cfg.PostgresDSN == "" {
			return nil, errors.New("postgres graph store requires POSTGRES_DSN")
		}
		return store.OpenPostgresGraphStore(ctx, cfg.PostgresDSN)
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
		return store.NewMongoVectorStore(ctx, cfg.MongoURI, cfg.MongoDatabase, cfg.MongoCollection, embedder)
	case "chromem":
		return store.NewChromemVectorStore(cfg.ChromemPath, embedder)
	case "", "memory":
		return store.NewInMemoryVectorStore(embedder), nil
	default:
		return nil, fmt.Errorf("unknown vector store %q", kind)
	}
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}

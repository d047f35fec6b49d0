// Command memoryd runs the memory subsystem daemon. It wires the vector
// store, hybrid retriever, extraction pipeline, graph projection, and the
// background sync and retry queues, then idles until a shutdown signal.
//
// Startup sequence:
//  1. Load configuration from the optional YAML file and environment.
//  2. Open the storage backend (SQLite by default, Postgres via pgvector).
//  3. Build the embedding and extraction providers.
//  4. Construct the engine and start its projection workers.
//  5. Start the sync-queue drain loop, the retry-queue flusher, and the
//     queue-file watcher.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/esinecan/skynet-agent-sub000/internal/config"
	"github.com/esinecan/skynet-agent-sub000/internal/engine"
	"github.com/esinecan/skynet-agent-sub000/internal/extract"
	"github.com/esinecan/skynet-agent-sub000/internal/graph"
	"github.com/esinecan/skynet-agent-sub000/internal/llm"
	"github.com/esinecan/skynet-agent-sub000/internal/notify"
	"github.com/esinecan/skynet-agent-sub000/internal/retryq"
	"github.com/esinecan/skynet-agent-sub000/internal/search"
	"github.com/esinecan/skynet-agent-sub000/internal/storage"
	"github.com/esinecan/skynet-agent-sub000/internal/storage/jsonfile"
	"github.com/esinecan/skynet-agent-sub000/internal/storage/postgres"
	"github.com/esinecan/skynet-agent-sub000/internal/storage/sqlite"
	"github.com/esinecan/skynet-agent-sub000/internal/syncq"
	"github.com/esinecan/skynet-agent-sub000/internal/vector"
	"github.com/esinecan/skynet-agent-sub000/pkg/types"
)

var (
	configPath = flag.String("config", "", "Path to YAML config file (optional, env vars by default)")
	fullSync   = flag.Bool("full-sync", false, "Enqueue a full sync pass on startup")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := os.MkdirAll(cfg.Storage.DataPath, 0o700); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}

	embedder, err := llm.NewEmbeddingGenerator(providerConfig(cfg.Embedding))
	if err != nil {
		log.Fatalf("Failed to create embedding provider: %v", err)
	}
	extractor, err := llm.NewExtractionModel(providerConfig(cfg.Extractor))
	if err != nil {
		log.Fatalf("Failed to create extraction model: %v", err)
	}

	index, graphStore, closeStores, err := openStores(cfg, embedder.Dimensions())
	if err != nil {
		log.Fatalf("Failed to open storage backend: %v", err)
	}
	defer closeStores()

	store, err := vector.NewStore(index, embedder, vector.Config{
		BaseMinScore:   cfg.Retrieval.BaseMinScore,
		QueryCacheSize: cfg.Retrieval.QueryCacheSize,
	})
	if err != nil {
		log.Fatalf("Failed to create vector store: %v", err)
	}

	retriever := search.NewHybridRetriever(store)
	pipeline := extract.NewPipeline(extract.NewModelExtractor(extractor))
	graphSvc := graph.NewService(graphStore)

	// The retry queue replays through the engine and the engine pushes
	// into the retry queue; the closure breaks the construction cycle.
	var eng *engine.Engine
	retries := retryq.New(func(ctx context.Context, item types.RetryItem) error {
		return eng.RetrySync(ctx, item)
	}, cfg.Sync.RetryFlushInterval)

	eng, err = engine.New(store, retriever, pipeline, graphSvc, retries, engine.Config{
		Workers: cfg.Sync.ProjectionWorkers,
	})
	if err != nil {
		log.Fatalf("Failed to create engine: %v", err)
	}

	docs, err := jsonfile.New(cfg.Storage.DataPath)
	if err != nil {
		log.Fatalf("Failed to open queue documents: %v", err)
	}
	queue := syncq.NewQueue(docs)
	state := syncq.NewStateStore(docs)
	service := syncq.NewService(pipeline, graphSvc, state, nil, store)
	runner := syncq.NewRunner(queue, service.Process, cfg.Sync.DrainInterval)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := eng.Start(ctx, cfg.Sync.ProjectionWorkers); err != nil {
		log.Fatalf("Failed to start engine: %v", err)
	}
	retries.Start(ctx)
	runner.Start(ctx)

	var watcher *notify.QueueWatcher
	if cfg.Sync.WatchQueueFile {
		watcher = notify.NewQueueWatcher(docs.Path("sync-queue"), runner.Kick)
		if err := watcher.Start(); err != nil {
			log.Printf("Queue watcher unavailable, relying on drain interval: %v", err)
			watcher = nil
		}
	}

	if *fullSync {
		if err := queue.Enqueue(types.SyncItem{Type: types.SyncTypeFull, Priority: 10}); err != nil {
			log.Printf("Failed to enqueue full sync: %v", err)
		} else {
			runner.Kick()
		}
	}

	if err := eng.HealthCheck(ctx); err != nil {
		log.Printf("Health check degraded at startup: %v", err)
	}
	log.Printf("memoryd running (backend=%s, data=%s)", cfg.Storage.Backend, cfg.Storage.DataPath)

	<-ctx.Done()
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if watcher != nil {
		watcher.Stop()
	}
	runner.Stop(shutdownCtx)
	retries.Stop(shutdownCtx)
	eng.Shutdown(15 * time.Second)
	log.Println("memoryd stopped")
}

func providerConfig(p config.ProviderConfig) llm.ProviderConfig {
	return llm.ProviderConfig{
		Provider:          p.Provider,
		BaseURL:           p.BaseURL,
		APIKey:            p.APIKey,
		Model:             p.Model,
		Dimensions:        p.Dimensions,
		Timeout:           p.Timeout,
		RequestsPerSecond: p.RequestsPerSecond,
	}
}

// openStores opens the configured backend. SQLite shares one database file
// between the vector index and the graph store; Postgres carries the vector
// index via pgvector while the graph stays in a local SQLite file.
func openStores(cfg *config.Config, dimensions int) (storage.VectorIndex, storage.GraphStore, func(), error) {
	graphDB, err := sqlite.Open(filepath.Join(cfg.Storage.DataPath, "memoryd.db"))
	if err != nil {
		return nil, nil, nil, err
	}
	graphStore := sqlite.NewGraphStore(graphDB)

	switch cfg.Storage.Backend {
	case "postgres":
		index, err := postgres.NewVectorIndex(cfg.Storage.PostgresDSN, dimensions)
		if err != nil {
			_ = graphDB.Close()
			return nil, nil, nil, err
		}
		return index, graphStore, func() {
			_ = index.Close()
			_ = graphDB.Close()
		}, nil
	default:
		index := sqlite.NewVectorIndex(graphDB)
		return index, graphStore, func() { _ = graphDB.Close() }, nil
	}
}

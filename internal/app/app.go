package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/saved-ai/engine/internal/config"
	db "github.com/saved-ai/engine/internal/core/database"
	ingest "github.com/saved-ai/engine/internal/core/ingestion_engine"
	"github.com/saved-ai/engine/internal/core/llm"
	objectclient "github.com/saved-ai/engine/internal/core/object-client"
	"github.com/saved-ai/engine/internal/core/retrieval"
	"github.com/saved-ai/engine/internal/core/session"
	"github.com/saved-ai/engine/internal/core/vectorstore"
	"github.com/saved-ai/engine/internal/services"
)

type App struct {
	DBClient  *db.DatabaseClient
	Assistant *services.Assistant
	Server    *Server
	Reindexer *Reindexer

	embedder *llm.GeminiEmbedder
	llm      *llm.GeminiLLM
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	appCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	dbClient, err := db.NewDatabaseClient(appCtx, cfg)
	if err != nil {
		return nil, err
	}
	log.Println("Database initialized and ready.")

	store, err := vectorstore.NewStore(appCtx, dbClient.DB(), cfg.ShardPool, cfg.EmbedDim)
	if err != nil {
		return nil, fmt.Errorf("vector store: %w", err)
	}
	log.Printf("Vector store ready across %d shards.", len(cfg.ShardPool))

	objClient, err := objectclient.NewS3Client(appCtx, cfg)
	if err != nil {
		return nil, err
	}

	embedder, err := llm.NewGeminiEmbedder(appCtx, cfg.AIAPIKey, cfg.EmbedModel)
	if err != nil {
		return nil, fmt.Errorf("couldn't initialize the embedder, %w", err)
	}

	llmProvider, err := llm.NewGeminiLLM(appCtx, cfg.AIAPIKey, cfg.GenModel)
	if err != nil {
		return nil, fmt.Errorf("couldn't initialize the llm, %w", err)
	}

	router := ingest.NewShardRouter(dbClient, cfg.ShardPool)
	coordinator := ingest.NewCoordinator(dbClient, store, embedder, router, &ingest.IngestConfig{
		ChunkSize:    cfg.ChunkSize,
		ChunkOverlap: cfg.ChunkOverlap,
		BatchSize:    cfg.EmbedBatch,
	})
	retriever := retrieval.NewEngine(store, embedder)

	gate := session.NewGate(dbClient, session.QuotaPolicy{
		DailyActionLimit:   cfg.DailyActionLimit,
		StorageVolumeLimit: cfg.StorageVolumeLimit,
		Window:             24 * time.Hour,
	}, cfg.AllowlistIDs, nil)

	assistant := services.NewAssistant(dbClient, objClient, coordinator, retriever, llmProvider, gate, nil)

	server := NewServer(ctx, cfg, assistant, objClient)
	reindexer := NewReindexer(dbClient, coordinator,
		time.Duration(cfg.ReindexIntervalMin)*time.Minute,
		time.Duration(cfg.ReindexPauseSec)*time.Second)

	return &App{
		DBClient:  dbClient,
		Assistant: assistant,
		Server:    server,
		Reindexer: reindexer,
		embedder:  embedder,
		llm:       llmProvider,
	}, nil
}

func (a *App) Close() {
	if a.embedder != nil {
		_ = a.embedder.Close()
	}
	if a.llm != nil {
		_ = a.llm.Close()
	}
	if a.DBClient != nil {
		_ = a.DBClient.Close()
	}
}

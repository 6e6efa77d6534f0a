package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"agrichat/internal/config"
	"agrichat/internal/embedding"
	"agrichat/internal/llm"
	"agrichat/internal/rag/chunker"
	"agrichat/internal/rag/pipeline"
	"agrichat/internal/rag/processor"
	"agrichat/internal/rag/vectorstore"
	"agrichat/internal/rag_service/api"
	"agrichat/internal/rag_service/service"
	"agrichat/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger.Init(logger.ParseLevel(cfg.LogLevel))
	appLogger := logger.New("AgriChat")
	appLogger.WithField("region", cfg.Region).Info("Starting Agri-Chat service...")

	embedder, err := embedding.NewOpenAIModel(cfg.APIKey, cfg.LLMBaseURL, cfg.EmbeddingModel, cfg.LLMMaxRetries)
	if err != nil {
		log.Fatalf("Failed to create embedding client: %v", err)
	}

	completionModel, err := llm.NewOpenAI(llm.Config{
		APIKey:      cfg.APIKey,
		BaseURL:     cfg.LLMBaseURL,
		Model:       cfg.CompletionModel,
		MaxTokens:   cfg.MaxTokens,
		Temperature: float32(cfg.Temperature),
		MaxRetries:  cfg.LLMMaxRetries,
	})
	if err != nil {
		log.Fatalf("Failed to create completion client: %v", err)
	}

	store, err := vectorstore.NewOpenSearchStore(vectorstore.Config{
		Endpoint:            cfg.OpenSearchEndpoint,
		IndexName:           cfg.IndexName,
		Dimension:           cfg.EmbeddingDimension,
		TopK:                cfg.TopK,
		SimilarityThreshold: cfg.SimilarityThreshold,
		TextScoreDivisor:    cfg.TextScoreDivisor,
		IngestConcurrency:   cfg.IngestConcurrency,
	}, embedder, logger.New("VectorStore"))
	if err != nil {
		log.Fatalf("Failed to create vector store: %v", err)
	}

	ch, err := chunker.New(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		log.Fatalf("Failed to create chunker: %v", err)
	}

	svc := service.New(
		processor.New(ch, logger.New("Processor")),
		store,
		pipeline.NewOrchestrator(store, completionModel, logger.New("Orchestrator")),
		appLogger,
	)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(api.CORSMiddleware(cfg.CORSOrigins))
	api.RegisterRoutes(router, api.NewAPI(svc, logger.New("API")))

	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: router,
	}

	go func() {
		appLogger.WithField("addr", cfg.HTTPAddr).Info("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to serve HTTP: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		appLogger.WithError(err).Error("Forced shutdown")
	}
	appLogger.Info("Server gracefully stopped")
}

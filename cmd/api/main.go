package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/orgscan/backend/internal/api/handlers"
	rediscache "github.com/orgscan/backend/internal/cache/redis"
	"github.com/orgscan/backend/internal/doctext"
	"github.com/orgscan/backend/internal/domainage"
	"github.com/orgscan/backend/internal/intelligence"
	"github.com/orgscan/backend/internal/metrics"
	"github.com/orgscan/backend/internal/pipeline"
	"github.com/orgscan/backend/internal/review"
	"github.com/orgscan/backend/internal/risk"
	"github.com/orgscan/backend/internal/similarity"
	"github.com/orgscan/backend/internal/storage/sqlite"
	"github.com/orgscan/backend/internal/vector/milvus"
	"github.com/orgscan/backend/pkg/config"
	appLogger "github.com/orgscan/backend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting OrgScan Fraud Analysis API Server")

	metrics.Init()

	sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer sqliteClient.Close()

	err = sqliteClient.InitSchema()
	if err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	var (
		embeddingCache similarity.EmbeddingCache
		ageCache       domainage.AgeCache
	)
	if cfg.Redis.Enabled {
		redisClient, redisErr := rediscache.NewClient(
			cfg.Redis.Host,
			cfg.Redis.Port,
			cfg.Redis.Password,
			cfg.Redis.DB,
			time.Duration(cfg.Redis.TTLHours)*time.Hour,
		)
		if redisErr != nil {
			appLogger.Warn("Redis unavailable, running without cache", zap.Error(redisErr))
		} else {
			defer redisClient.Close()
			embeddingCache = redisClient
			ageCache = redisClient
		}
	}

	intelClient := intelligence.NewClient(
		cfg.Intelligence.APIKey,
		cfg.Intelligence.Model,
		cfg.Intelligence.Temperature,
		cfg.Intelligence.MaxTokens,
		cfg.Intelligence.TimeoutSec,
	)
	embedClient := intelligence.NewEmbeddingClient(
		cfg.Intelligence.APIKey,
		cfg.Embedding.Model,
	)

	var index similarity.Index
	switch cfg.Similarity.Backend {
	case "milvus":
		milvusIndex, milvusErr := milvus.NewIndex(
			cfg.Similarity.Milvus.Endpoint,
			cfg.Similarity.Milvus.CollectionName,
			cfg.Embedding.Dim,
		)
		if milvusErr != nil {
			appLogger.Fatal("Failed to create Milvus index", zap.Error(milvusErr))
		}
		defer milvusIndex.Close()

		if milvusErr = milvusIndex.EnsureCollection(context.Background()); milvusErr != nil {
			appLogger.Fatal("Failed to prepare Milvus collection", zap.Error(milvusErr))
		}
		index = milvusIndex
	default:
		index = similarity.NewStoreIndex(sqliteClient)
	}

	engine := similarity.NewEngine(embedClient, index, embeddingCache, cfg.Embedding.MaxChars)

	whoisClient := domainage.NewClient(cfg.Whois.BaseURL, cfg.Whois.TimeoutSec, ageCache)
	domainEvaluator := risk.NewDomainEvaluator(whoisClient)

	analysisPipeline := pipeline.NewService(
		sqliteClient,
		doctext.NewExtractor(),
		intelClient,
		engine,
		index,
		domainEvaluator,
	)
	reviewWorkflow := review.NewWorkflow(sqliteClient, index, review.LoggingDeleter{})

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PATCH, DELETE, OPTIONS",
	}))

	analysisHandler := handlers.NewAnalysisHandler(analysisPipeline, reviewWorkflow)
	reviewHandler := handlers.NewReviewHandler(reviewWorkflow)
	healthHandler := handlers.NewHealthHandler(intelClient, engine)

	api := app.Group("/api/v1")

	api.Post("/analyses", analysisHandler.AnalyzeDocument)
	api.Post("/analyses/rescan/:orgID", analysisHandler.Rescan)
	api.Get("/analyses/:id", analysisHandler.GetAnalysis)
	api.Get("/organizations/:orgID/analyses", analysisHandler.GetOrganizationAnalyses)

	api.Patch("/analyses/:id/approve", reviewHandler.ApproveAnalysis)
	api.Patch("/analyses/:id/reject", reviewHandler.RejectAnalysis)

	api.Get("/admin/pending", reviewHandler.GetPendingReview)
	api.Get("/admin/high-risk", reviewHandler.GetHighRiskPendingReview)
	api.Get("/admin/stats", reviewHandler.GetStats)

	api.Get("/health", healthHandler.Health)

	app.Get("/metrics", metrics.Handler())

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	app.Shutdown()
	appLogger.Info("Server stopped")
}

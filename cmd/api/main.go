package main

import (
	"context"
	"log"
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"docchat/internal/ai"
	"docchat/internal/config"
	"docchat/internal/database"
	"docchat/internal/database/migration"
	handlers "docchat/internal/http/handler"
	"docchat/internal/http/middleware"
	"docchat/internal/memory"
	"docchat/internal/otel"
	"docchat/internal/pipeline"
	"docchat/internal/repository/postgres"
	"docchat/internal/retrieval"
	"docchat/internal/service"
	"docchat/internal/storage"
	"docchat/internal/upload"
)

func main() {
	// Load configuration from environment variables (.env auto-loaded if present)
	cfg := config.Load()
	loc := time.UTC
	ctx := context.Background()

	// Tracing is optional; OTEL_SDK_DISABLED=true turns it into a no-op.
	shutdownTracing, err := otel.Init(ctx, loc)
	if err != nil {
		log.Fatalf("failed to initialize tracing: %v", err)
	}
	defer shutdownTracing(ctx)

	// Initialize PostgreSQL connection (with pooling via database/sql)
	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := migration.EnsureMigrated(ctx, db, loc, cfg.Database.Host); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	// Initialize reusable S3-compatible object storage client (MinIO-supported)
	objStore, err := storage.NewMinIO(cfg.MinIO)
	if err != nil {
		log.Fatalf("failed to initialize object storage: %v", err)
	}

	// Model backend for embeddings, completions and summaries
	aiClient, err := ai.NewClient(cfg.OpenAI)
	if err != nil {
		log.Fatalf("failed to initialize model backend: %v", err)
	}

	// Repositories
	docRepo := postgres.NewDocumentPostgres(db)
	segRepo := postgres.NewSegmentPostgres(db)
	convRepo := postgres.NewConversationPostgres(db)
	msgRepo := postgres.NewMessagePostgres(db)

	// Domain components
	uploads := upload.NewManager(objStore, cfg.Upload, pipeline.SupportedMediaTypes())
	uploads.StartReaper(ctx)
	pipe := pipeline.New(docRepo, aiClient, cfg.Pipeline)
	engine := retrieval.NewEngine(segRepo)
	mem := memory.NewManager(convRepo, msgRepo, aiClient, cfg.Memory)

	// Services
	docSvc := service.NewDocumentService(uploads, pipe, objStore, docRepo, aiClient)
	chatSvc := service.NewChatService(convRepo, msgRepo, docRepo, engine, mem, aiClient, aiClient, cfg.Retrieval.TopK)

	app := fiber.New(fiber.Config{
		ErrorHandler: handlers.ErrorHandler(),
		// Part bodies for large files can reach the large-tier part size.
		BodyLimit: int(cfg.Upload.LargePartSize) + 1024*1024,
	})

	// Register global middleware
	// RequestID middleware adds/propagates X-Request-ID and stores it in context
	app.Use(middleware.RequestID())
	// JSON Logger middleware for structured request logs
	app.Use(middleware.Logger())
	app.Use(otelfiber.Middleware())

	// Prometheus request counting plus the scrape endpoint
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	promMw, err := middleware.NewPrometheusMiddleware(registry)
	if err != nil {
		log.Fatalf("failed to initialize metrics: %v", err)
	}
	app.Use(promMw.Handler())
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	// Register HTTP routes with injected services
	handlers.RegisterRoutes(app, db, docSvc, chatSvc)

	addr := ":" + cfg.Port

	if err := app.Listen(addr); err != nil {
		log.Fatalf("failed to start server: %v", err)
	}
}

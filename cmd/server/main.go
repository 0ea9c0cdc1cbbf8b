package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/arturoeanton/go-semantic-autofill/internal/adapter/ai"
	"github.com/arturoeanton/go-semantic-autofill/internal/adapter/auth"
	"github.com/arturoeanton/go-semantic-autofill/internal/adapter/store"
	"github.com/arturoeanton/go-semantic-autofill/internal/handler"
	"github.com/arturoeanton/go-semantic-autofill/internal/mcp"
	"github.com/arturoeanton/go-semantic-autofill/internal/middleware"
	"github.com/arturoeanton/go-semantic-autofill/internal/port"
	"github.com/arturoeanton/go-semantic-autofill/internal/service"
	"github.com/arturoeanton/go-semantic-autofill/pkg/config"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/joho/godotenv"

	_ "github.com/lib/pq"
)

func main() {
	// ── Load .env file ───────────────────────────────────────────────────
	_ = godotenv.Load() // silently ignore if .env doesn't exist

	// ── Configuration ────────────────────────────────────────────────────
	cfg := config.Load()

	slog.Info("🚀 Starting FormSense",
		"port", cfg.Port,
		"ollama_embed", cfg.OllamaEmbedURL,
		"embed_model", cfg.OllamaEmbedModel,
		"mcp_enabled", cfg.MCPEnabled,
	)

	// ── Database ─────────────────────────────────────────────────────────
	pgStore, err := store.NewPostgresStore(cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pgStore.Close()

	// Reconcile the schema before serving any traffic. Legacy rows are
	// backfilled, field shapes normalized and duplicate identities merged;
	// the uniqueness index only goes live once the data satisfies it.
	if err := pgStore.Reconcile(context.Background()); err != nil {
		slog.Error("schema reconciliation failed", "error", err)
		os.Exit(1)
	}

	vectorIndex := store.NewVectorIndex(pgStore, cfg.EmbeddingDimension)

	// ── Adapters ─────────────────────────────────────────────────────────
	googleAuth := auth.NewGoogleProvider(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURL)
	githubAuth := auth.NewGitHubProvider(cfg.GitHubClientID, cfg.GitHubClientSecret, cfg.GitHubRedirectURL)

	providers := port.AuthProviderRegistry{
		"google": googleAuth,
		"github": githubAuth,
	}

	embedder := ai.NewOllamaProvider(ai.OllamaConfig{
		BaseURL: cfg.OllamaEmbedURL,
		Model:   cfg.OllamaEmbedModel,
		Token:   cfg.OllamaEmbedToken,
	})

	// ── Services ─────────────────────────────────────────────────────────
	authService := service.NewAuthService(providers, pgStore, cfg)
	submissionService := service.NewSubmissionService(pgStore)
	indexingService := service.NewIndexingService(embedder, vectorIndex)
	autofillService := service.NewAutofillService(embedder, vectorIndex,
		time.Duration(cfg.AutofillKeyTimeout)*time.Second)

	// ── Fiber App ────────────────────────────────────────────────────────
	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: []string{cfg.FrontendURL},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
	}))

	// Audit middleware (logs all requests)
	app.Use(middleware.AuditMiddleware(pgStore))

	// ── Public Routes ────────────────────────────────────────────────────
	authHandler := handler.NewAuthHandler(authService, cfg.FrontendURL)
	authHandler.Register(app)

	// Health check
	app.Get("/api/v1/health", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "healthy",
			"app":     cfg.AppName,
			"version": "1.0.0",
		})
	})

	// ── Protected Routes ─────────────────────────────────────────────────
	jwtMiddleware := middleware.JWTMiddleware(middleware.JWTConfig{
		Secret:    cfg.JWTSecret,
		Issuer:    cfg.JWTIssuer,
		ExpiresIn: time.Duration(cfg.JWTExpiration) * time.Hour,
	})

	api := app.Group("/api/v1", jwtMiddleware)

	authHandler.RegisterProtected(api)

	jobTracker := handler.NewJobTracker()

	submissionHandler := handler.NewSubmissionHandler(submissionService, indexingService, jobTracker)
	submissionHandler.Register(api)

	autofillHandler := handler.NewAutofillHandler(autofillService)
	autofillHandler.Register(api)

	jobsHandler := handler.NewJobsHandler(jobTracker)
	jobsHandler.Register(api)

	auditHandler := handler.NewAuditHandler(pgStore)
	auditHandler.Register(api)

	// ── MCP Server (separate port) ───────────────────────────────────────
	if cfg.MCPEnabled {
		mcpServer := mcp.NewServer(autofillService, submissionService, cfg.MCPPort)
		go func() {
			if err := mcpServer.Start(); err != nil {
				slog.Error("MCP server failed", "error", err)
			}
		}()
	}

	// ── Start ────────────────────────────────────────────────────────────
	slog.Info("🌐 Fiber listening", "port", cfg.Port)
	if err := app.Listen(":" + cfg.Port); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

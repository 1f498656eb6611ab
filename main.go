package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/dealdesk-crm/intake-engine/pkg/config"
	"github.com/dealdesk-crm/intake-engine/pkg/crypto"
	"github.com/dealdesk-crm/intake-engine/pkg/database"
	"github.com/dealdesk-crm/intake-engine/pkg/handlers"
	"github.com/dealdesk-crm/intake-engine/pkg/llm"
	"github.com/dealdesk-crm/intake-engine/pkg/logging"
	"github.com/dealdesk-crm/intake-engine/pkg/middleware"
	"github.com/dealdesk-crm/intake-engine/pkg/models"
	"github.com/dealdesk-crm/intake-engine/pkg/repositories"
	"github.com/dealdesk-crm/intake-engine/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := newLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Configuration loaded",
		zap.String("environment", cfg.Env),
		zap.String("base_url", cfg.BaseURL),
		zap.String("database", logging.SanitizeConnectionString(cfg.Database.ConnectionString())),
		zap.Bool("enrichment", cfg.Enrichment.IsAvailable()))

	ctx := context.Background()

	db, err := database.NewConnection(ctx, &database.Config{
		URL:            cfg.Database.ConnectionString(),
		MaxConnections: cfg.Database.MaxConnections,
	})
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	migrationDB, err := sql.Open("pgx", cfg.Database.ConnectionString())
	if err != nil {
		logger.Fatal("Failed to open migration connection", zap.Error(err))
	}
	if err := database.RunMigrations(migrationDB, cfg.MigrationsPath, logger); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}
	if err := migrationDB.Close(); err != nil {
		logger.Warn("Failed to close migration connection", zap.Error(err))
	}

	// Repositories
	streamRepo := repositories.NewStreamRepository(db)
	oppRepo := repositories.NewOpportunityRepository(db)
	eventRepo := repositories.NewIngestEventRepository(db)
	decisionRepo := repositories.NewDecisionRepository(db)
	actionRepo := repositories.NewActionRepository(db)
	taskRepo := repositories.NewTaskRepository(db)
	ownerRepo := repositories.NewOwnerRepository(db)
	settingsRepo := repositories.NewSettingsRepository(db, models.RouterSettings{
		AutoAssignEnabled:   cfg.Router.AutoAssignEnabled,
		AutoAssignThreshold: cfg.Router.AutoAssignThreshold,
	})

	// Optional collaborators
	var enricher services.Enricher = services.NoopEnricher{}
	if cfg.Enrichment.IsAvailable() {
		client, err := llm.NewClient(&llm.Config{
			Endpoint: cfg.Enrichment.Endpoint,
			Model:    cfg.Enrichment.Model,
			APIKey:   cfg.Enrichment.APIKey,
		}, logger)
		if err != nil {
			logger.Fatal("Failed to create LLM client", zap.Error(err))
		}
		enricher = services.NewLLMEnricher(client, time.Duration(cfg.Enrichment.TimeoutSeconds)*time.Second, logger)
	}

	var notifier services.Notifier = services.NewNoopNotifier(logger)

	var encryptor *crypto.SecretEncryptor
	if cfg.StreamSecretsKey != "" {
		encryptor, err = crypto.NewSecretEncryptor(cfg.StreamSecretsKey)
		if err != nil {
			logger.Fatal("Failed to create secret encryptor", zap.Error(err))
		}
	} else {
		logger.Warn("STREAM_SECRETS_KEY not set; HMAC-signed streams will reject")
	}

	// Services
	taskService := services.NewTaskService(taskRepo, cfg.BaseURL, logger)
	followUpService := services.NewFollowUpService(actionRepo, taskService, notifier, logger)
	assignmentService := services.NewAssignmentService(oppRepo, ownerRepo, decisionRepo, settingsRepo, followUpService, logger)
	ingestService := services.NewIngestService(streamRepo, oppRepo, eventRepo, assignmentService, enricher, encryptor, logger)

	mux := http.NewServeMux()

	handlers.NewHealthHandler(cfg, logger).RegisterRoutes(mux)
	handlers.NewIngestHandler(ingestService, logger).RegisterRoutes(mux)
	handlers.NewAssignmentHandler(assignmentService, logger).RegisterRoutes(mux)

	handler := middleware.RequestLogger(logger)(mux)

	addr := cfg.BindAddr + ":" + cfg.Port
	logger.Info("Starting intake-engine",
		zap.String("addr", addr),
		zap.String("version", cfg.Version))
	if err := http.ListenAndServe(addr, handler); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "local" || env == "dev" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

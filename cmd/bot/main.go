package main

import (
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ignite88-dev/finance-bot-cloud/internal/ai"
	"github.com/ignite88-dev/finance-bot-cloud/internal/audit"
	"github.com/ignite88-dev/finance-bot-cloud/internal/bot"
	"github.com/ignite88-dev/finance-bot-cloud/internal/cache"
	"github.com/ignite88-dev/finance-bot-cloud/internal/confirm"
	"github.com/ignite88-dev/finance-bot-cloud/internal/group"
	"github.com/ignite88-dev/finance-bot-cloud/internal/ledger"
	"github.com/ignite88-dev/finance-bot-cloud/internal/memory"
	"github.com/ignite88-dev/finance-bot-cloud/internal/ratelimit"
	"github.com/ignite88-dev/finance-bot-cloud/internal/storage"
	"github.com/ignite88-dev/finance-bot-cloud/pkg/config"
	"github.com/ignite88-dev/finance-bot-cloud/pkg/retry"
)

func main() {
	// Initialize logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	// Load .env for local development; real deployments use the environment.
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.LoadConfig("config.yaml")
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err), zap.String("path", "config.yaml"))
	}

	// Initialize storage
	var store storage.Storage
	if cfg.Database.UseInMemory {
		logger.Info("Using in-memory storage")
		store = storage.NewMemoryStorage()
	} else {
		logger.Info("Using PostgreSQL storage")
		dbConfig := storage.DatabaseConfig{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			DBName:   cfg.Database.DBName,
			SSLMode:  cfg.Database.SSLMode,
		}
		store, err = storage.NewPostgresStorage(dbConfig, logger)
		if err != nil {
			logger.Fatal("Failed to initialize storage", zap.Error(err))
		}
	}
	defer store.Close()

	// Initialize cache
	c, err := cache.New()
	if err != nil {
		logger.Fatal("Failed to initialize cache", zap.Error(err))
	}
	defer c.Close()

	auditLog := audit.NewLogger(store, logger)

	// Initialize AI providers: OpenAI primary, Anthropic secondary when
	// configured.
	primary := ai.NewOpenAIProvider(cfg.AI.OpenAIAPIKey, cfg.AI.OpenAIModel)
	var secondary ai.Provider
	if cfg.AI.AnthropicAPIKey != "" {
		secondary = ai.NewAnthropicProvider(cfg.AI.AnthropicAPIKey, cfg.AI.AnthropicModel)
	}
	aiClient, err := ai.NewClient(primary, secondary,
		cfg.AI.MaxTokens, cfg.AI.Temperature,
		time.Duration(cfg.AI.TimeoutSeconds)*time.Second, logger)
	if err != nil {
		logger.Fatal("Failed to initialize AI client", zap.Error(err))
	}
	transcriber := ai.NewTranscriber(cfg.AI.OpenAIAPIKey)

	// Initialize services
	groups := group.NewService(store, c, group.TTLs{
		Group:    cfg.Cache.GroupTTL,
		Settings: cfg.Cache.SettingsTTL,
		User:     cfg.Cache.UserTTL,
	}, cfg.Admins.SuperAdminIDs, logger)

	mem := memory.NewStore(store, c, cfg.Cache.MemoryTTL, cfg.Limits.MemoryWindow, logger)
	recorder := ledger.NewRecorder(store, auditLog, retry.DefaultConfig, logger)
	confirms := confirm.NewRegistry(cfg.Limits.ConfirmationTTL)
	limiter := ratelimit.NewLimiter(cfg.Limits.UserRequestsPerMinute, time.Minute)
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			limiter.Cleanup()
		}
	}()

	orchestrator := bot.NewOrchestrator(groups, mem, aiClient, recorder, confirms, limiter, auditLog, logger)

	// Initialize bot
	b, err := bot.New(cfg.Telegram.Token, orchestrator, transcriber, logger)
	if err != nil {
		logger.Fatal("Failed to create bot", zap.Error(err))
	}

	// Start the bot
	if err := b.Start(); err != nil {
		logger.Fatal("Bot error", zap.Error(err))
	}
}

package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/boddenberg/crm-leads-bfa-go/internal/config"
	"github.com/boddenberg/crm-leads-bfa-go/internal/domain"
	"github.com/boddenberg/crm-leads-bfa-go/internal/gateway"
	"github.com/boddenberg/crm-leads-bfa-go/internal/infra/ai"
	"github.com/boddenberg/crm-leads-bfa-go/internal/infra/events"
	"github.com/boddenberg/crm-leads-bfa-go/internal/infra/observability"
	"github.com/boddenberg/crm-leads-bfa-go/internal/infra/resilience"
	"github.com/boddenberg/crm-leads-bfa-go/internal/infra/sqlite"
	"github.com/boddenberg/crm-leads-bfa-go/internal/store"

	"go.uber.org/zap"
)

// app is the wiring shared by every subcommand: config, logging, the
// restored store with its journal and publisher, and the model gateway.
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	metrics   *observability.Metrics
	store     *store.State
	journal   *sqlite.Journal
	publisher *events.Publisher
	gateway   *gateway.Gateway

	closers []func() error
}

func newApp(ctx context.Context) (*app, error) {
	// --- Load .env file (for local development) ---
	if err := config.LoadDotEnv(envFiles...); err != nil {
		return nil, fmt.Errorf("loading env files: %w", err)
	}

	// --- Config ---
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)
	a := &app{cfg: cfg, logger: logger, metrics: observability.NewMetrics()}

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.String("ai_provider", cfg.AIProvider),
		zap.String("ai_model", cfg.AIModel),
		zap.Duration("ai_timeout", cfg.AITimeout),
		zap.Int("ai_max_retries", cfg.AIMaxRetries),
		zap.Int("ai_max_concurrency", cfg.AIMaxConcurrency),
		zap.Int("import_chunk_size", cfg.ImportChunkSize),
		zap.Int("advisor_min_chars", cfg.AdvisorMinChars),
		zap.String("db_path", cfg.DBPath),
		zap.Bool("rabbitmq", cfg.RabbitMQURL != ""),
	)

	// --- Store, restored from the journal ---
	a.store = store.New(logger)

	a.journal, err = sqlite.Open(cfg.DBPath, logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.journal.Close)

	history, err := a.journal.Load(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	if err := a.store.Replay(history); err != nil {
		a.Close()
		return nil, err
	}
	logger.Info("store restored", zap.Int("events", len(history)))
	a.store.Subscribe(a.journal)

	// --- Event publishing ---
	a.publisher, err = events.NewPublisher(cfg.RabbitMQURL, cfg.RabbitMQExchange, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.closers = append(a.closers, a.publisher.Close)
	if a.publisher.Enabled() {
		a.store.Subscribe(a.publisher)
	}

	// --- Model gateway ---
	model, err := ai.NewModelClient(&http.Client{}, ai.Options{
		Provider: cfg.AIProvider,
		APIKey:   cfg.AIAPIKey,
		Model:    cfg.AIModel,
		BaseURL:  cfg.AIBaseURL,
		Timeout:  cfg.AITimeout,
		Resilience: resilience.Config{
			MaxRetries:     cfg.AIMaxRetries,
			InitialBackoff: cfg.AIInitialBackoff,
			MaxConcurrency: cfg.AIMaxConcurrency,
		},
	}, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	if cfg.AIAPIKey == "" {
		logger.Warn("ai_api_key not set, every model call will fall back")
	}
	a.gateway = gateway.New(model, a.metrics, logger)

	return a, nil
}

// session is the default tenant context used without bearer tokens.
func (a *app) session() domain.Session {
	return domain.Session{
		TenantID:   a.cfg.DefaultTenantID,
		TenantName: a.cfg.DefaultTenantName,
		Currency:   a.cfg.DefaultCurrency,
		Timezone:   a.cfg.DefaultTimezone,
		UserID:     a.cfg.DefaultUserID,
		UserName:   a.cfg.DefaultUserName,
	}
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close failed", zap.Error(err))
		}
	}
	a.closers = nil
	_ = a.logger.Sync()
}

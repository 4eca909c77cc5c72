package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/boddenberg/crm-leads-bfa-go/internal/domain"
	"github.com/boddenberg/crm-leads-bfa-go/internal/handler"
	"github.com/boddenberg/crm-leads-bfa-go/internal/infra/cache"
	"github.com/boddenberg/crm-leads-bfa-go/internal/infra/observability"
	"github.com/boddenberg/crm-leads-bfa-go/internal/service"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()
		return serve(a)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve(a *app) error {
	cfg, logger := a.cfg, a.logger

	// --- Tracing ---
	shutdownTracer, err := observability.InitTracer(cfg.OTLPEndpoint, observability.ServiceName)
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	defer shutdownTracer(context.Background())

	// --- Caches ---
	stageCache := cache.New[domain.StageSuggestion](cfg.CacheTTL)
	defer stageCache.Close()
	jobCache := cache.New[domain.ImportJob](cfg.ImportJobTTL)
	defer jobCache.Close()

	// --- Services ---
	importer := service.NewImporter(a.gateway, a.store, cfg.ImportChunkSize, a.metrics, logger)
	imports := service.NewImportJobs(importer, jobCache, logger)
	advisor := service.NewStageAdvisor(a.gateway, stageCache, cfg.AdvisorMinChars, a.metrics, logger)
	outreach := service.NewOutreachGenerator(a.gateway, a.metrics, logger)

	deps := handler.Deps{
		Leads:      service.NewLeadService(a.store, outreach, advisor, a.metrics, logger),
		Imports:    imports,
		Triage:     service.NewTriageAgent(a.gateway, a.store, a.metrics, logger),
		Advisor:    advisor,
		Analyzer:   service.NewLeadAnalyzer(a.gateway, a.store, a.metrics, logger),
		Automation: service.NewAutomationService(a.store, logger),
		Dashboard:  service.NewDashboardService(a.store),
		Sessions:   service.NewSessions(cfg.JWTSecret, 0, a.session()),
		Metrics:    a.metrics,
		Checks: []handler.Check{
			{Name: "journal", Ping: a.journal.Ping},
		},
		Provider:        cfg.AIProvider,
		AdvisorDebounce: cfg.AdvisorDebounce,
		ImportMaxBytes:  cfg.ImportMaxBytes,
	}
	if cfg.JWTSecret == "" {
		logger.Warn("jwt_secret not set, all requests run as the default tenant",
			zap.String("tenant_id", cfg.DefaultTenantID))
	}

	// --- Router ---
	router := handler.NewRouter(deps, logger)

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  cfg.HTTPTimeout,
		WriteTimeout: cfg.AITimeout + cfg.HTTPTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// --- Graceful shutdown ---
	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}

	logger.Info("server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced shutdown: %w", err)
	}
	// let running imports commit before the journal closes
	imports.Wait()

	logger.Info("server stopped")
	return nil
}

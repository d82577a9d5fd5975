package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/risicle/digitalmarketplace-supplier-frontend/config"
	"github.com/risicle/digitalmarketplace-supplier-frontend/content"
	"github.com/risicle/digitalmarketplace-supplier-frontend/handlers"
	"github.com/risicle/digitalmarketplace-supplier-frontend/middleware"
	"github.com/risicle/digitalmarketplace-supplier-frontend/services/dataapi"
	"github.com/risicle/digitalmarketplace-supplier-frontend/services/documents"
	"github.com/risicle/digitalmarketplace-supplier-frontend/services/notify"
	"github.com/risicle/digitalmarketplace-supplier-frontend/session"
	"github.com/risicle/digitalmarketplace-supplier-frontend/templates"
)

func main() {
	// Load .env file if it exists (optional - fails silently if not found)
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{AddSource: true}))
	slog.SetDefault(logger)

	slog.Info("Starting supplier frontend initialization")

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	contentLoader, err := content.NewLoader()
	if err != nil {
		slog.Error("Failed to load content manifests", "error", err)
		os.Exit(1)
	}
	renderer, err := templates.NewRenderer(cfg.AssetsURL)
	if err != nil {
		slog.Error("Failed to parse templates", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	store, err := documents.NewStore(ctx, documents.Config{
		Bucket:   cfg.DocumentsBucket,
		Region:   cfg.DocumentsRegion,
		Endpoint: cfg.DocumentsEndpoint,
	})
	if err != nil {
		slog.Error("Failed to initialize document store", "error", err)
		os.Exit(1)
	}

	server := handlers.NewServer(handlers.Options{
		DataAPI:            dataapi.New(cfg.DataAPIURL, cfg.DataAPIAuthToken),
		Mailer:             notify.New(cfg.NotifyAPIURL, cfg.NotifyAPIKey, cfg.NotifyFromName, cfg.NotifyFromAddress),
		Store:              store,
		Sessions:           session.NewManager(cfg.SessionSecret, cfg.SecureCookies),
		Renderer:           renderer,
		Content:            contentLoader,
		ClarificationEmail: cfg.ClarificationEmail,
		FollowUpEmail:      cfg.FollowUpEmail,
		ContractVariations: cfg.FeatureContractVariations,
	})

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := middleware.NewMetrics(registry)
	rateLimiter := middleware.NewRateLimiter(cfg.RateLimitPerSecond, cfg.RateLimitBurst)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recover)
	router.Use(middleware.Logging)
	router.Use(metrics.Middleware)
	router.Use(middleware.SecurityHeaders)
	router.Use(rateLimiter.Middleware)
	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	server.Routes(router)

	httpServer := &http.Server{
		Addr:         cfg.ServerAddress,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("Supplier frontend starting", "addr", cfg.ServerAddress)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down supplier frontend...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Supplier frontend stopped")
}

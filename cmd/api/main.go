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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/lab-booking-bot/cmd/mainconfig"
	"github.com/wolfman30/lab-booking-bot/internal/api/router"
	"github.com/wolfman30/lab-booking-bot/internal/app/bootstrap"
	"github.com/wolfman30/lab-booking-bot/internal/archive"
	appconfig "github.com/wolfman30/lab-booking-bot/internal/config"
	"github.com/wolfman30/lab-booking-bot/internal/conversation"
	"github.com/wolfman30/lab-booking-bot/internal/http/handlers"
	"github.com/wolfman30/lab-booking-bot/internal/messaging"
	"github.com/wolfman30/lab-booking-bot/internal/observability/metrics"
	"github.com/wolfman30/lab-booking-bot/pkg/logging"
)

func main() {
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting lab booking bot",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metricsHandler, botMetrics := setupMetrics()

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		defer redisClient.Close()
	}

	sender, reason := bootstrap.BuildMessenger(cfg, logger, botMetrics)
	if sender == nil {
		logger.Error("whatsapp messenger not configured", "reason", reason)
		os.Exit(1)
	}

	var archiver conversation.Archiver
	if cfg.PrescriptionBucket != "" {
		awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			logger.Error("failed to load AWS config", "error", err)
			os.Exit(1)
		}
		archiver = archive.NewStore(mainconfig.NewS3Client(awsCfg, cfg), cfg.PrescriptionBucket, logger)
		logger.Info("prescription archive enabled", "bucket", cfg.PrescriptionBucket)
	}

	dispatcher, err := bootstrap.BuildDispatcher(cfg, bootstrap.ConversationDeps{
		Redis:     redisClient,
		Messenger: sender,
		Media:     messaging.NewMediaFetcher(cfg.TwilioAccountSID, cfg.TwilioAuthToken),
		Archive:   archiver,
		Metrics:   botMetrics,
	}, logger)
	if err != nil {
		logger.Error("failed to build dispatcher", "error", err)
		os.Exit(1)
	}

	r := router.New(&router.Config{
		Logger:             logger,
		Chatbot:            handlers.NewChatbotHandler(dispatcher, bootstrap.BuildSignatureValidator(cfg), logger),
		MetricsHandler:     metricsHandler,
		RateLimitPerSecond: cfg.RateLimitPerSecond,
		RateLimitBurst:     cfg.RateLimitBurst,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

// setupMetrics registers the bot metrics and runtime collectors on a private
// registry and returns its scrape handler.
func setupMetrics() (http.Handler, *metrics.BotMetrics) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), metrics.NewBotMetrics(registry)
}

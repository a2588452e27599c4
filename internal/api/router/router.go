package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/lab-booking-bot/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/lab-booking-bot/internal/http/middleware"
	"github.com/wolfman30/lab-booking-bot/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger         *logging.Logger
	Chatbot        *handlers.ChatbotHandler
	MetricsHandler http.Handler

	// RateLimitPerSecond <= 0 disables the webhook limiter.
	RateLimitPerSecond float64
	RateLimitBurst     int
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/health", cfg.Chatbot.HealthCheck)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Group(func(webhook chi.Router) {
		// Signature check runs first; the limiter keys on the From field.
		webhook.Use(cfg.Chatbot.VerifySignature)
		if cfg.RateLimitPerSecond > 0 {
			burst := cfg.RateLimitBurst
			if burst < 1 {
				burst = 1
			}
			webhook.Use(httpmiddleware.RateLimit(cfg.RateLimitPerSecond, burst))
		}
		webhook.Post("/chatbot", cfg.Chatbot.Webhook)
	})

	return r
}

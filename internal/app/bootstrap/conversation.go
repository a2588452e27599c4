package bootstrap

import (
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/lab-booking-bot/internal/backend"
	appconfig "github.com/wolfman30/lab-booking-bot/internal/config"
	"github.com/wolfman30/lab-booking-bot/internal/conversation"
	"github.com/wolfman30/lab-booking-bot/internal/observability/metrics"
	"github.com/wolfman30/lab-booking-bot/pkg/logging"
)

// ConversationDeps are the collaborators built before the dispatcher.
type ConversationDeps struct {
	Redis     *redis.Client
	Messenger conversation.Messenger
	Media     conversation.MediaFetcher
	Archive   conversation.Archiver
	Metrics   *metrics.BotMetrics
}

// BuildDispatcher wires the lab backend client, the session stores and the
// conversation flows.
func BuildDispatcher(cfg *appconfig.Config, deps ConversationDeps, logger *logging.Logger) (*conversation.Dispatcher, error) {
	if cfg == nil {
		return nil, errors.New("bootstrap: config is required")
	}
	if deps.Messenger == nil {
		return nil, errors.New("bootstrap: messenger is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	sessions := BuildSessionBackends(deps.Redis, cfg, logger)
	client := backend.NewClient(cfg.Endpoints, cfg.BackendTimeout, logger, deps.Metrics)
	loc := cfg.Location()
	logger.Info("conversation dispatcher ready", "timezone", loc.String(), "archive", deps.Archive != nil)

	return conversation.NewDispatcher(conversation.Options{
		Backend:   client,
		Messenger: deps.Messenger,
		Media:     deps.Media,
		Store:     sessions.Store,
		Scratch:   sessions.Scratch,
		Locker:    sessions.Locker,
		Archive:   deps.Archive,
		Templates: cfg.Templates,
		Location:  loc,
		Logger:    logger,
		Metrics:   deps.Metrics,
	}), nil
}

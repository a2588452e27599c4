package bootstrap

import (
	"strings"

	appconfig "github.com/wolfman30/lab-booking-bot/internal/config"
	"github.com/wolfman30/lab-booking-bot/internal/messaging"
	"github.com/wolfman30/lab-booking-bot/internal/observability/metrics"
	"github.com/wolfman30/lab-booking-bot/pkg/logging"
)

// BuildMessenger creates the Twilio WhatsApp sender. It returns nil and a
// reason when credentials are missing.
func BuildMessenger(cfg *appconfig.Config, logger *logging.Logger, m *metrics.BotMetrics) (*messaging.WhatsAppSender, string) {
	if cfg == nil {
		return nil, "missing config"
	}
	switch {
	case strings.TrimSpace(cfg.TwilioAccountSID) == "":
		return nil, "TWILIO_ACCOUNT_SID not set"
	case strings.TrimSpace(cfg.TwilioAuthToken) == "":
		return nil, "TWILIO_AUTH_TOKEN not set"
	case strings.TrimSpace(cfg.TwilioFromNumber) == "":
		return nil, "TWILIO_WHATSAPP_FROM not set"
	}
	sender := messaging.NewWhatsAppSender(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFromNumber, logger).
		WithBaseURL(cfg.TwilioAPIBaseURL).
		WithMetrics(m)
	return sender, ""
}

// BuildSignatureValidator returns nil when webhook signatures are not checked.
// TWILIO_WEBHOOK_SECRET wins; otherwise the auth token is used when
// validation is switched on.
func BuildSignatureValidator(cfg *appconfig.Config) *messaging.SignatureValidator {
	if cfg == nil {
		return nil
	}
	key := strings.TrimSpace(cfg.TwilioWebhookSecret)
	if key == "" && cfg.ValidateSignatures {
		key = cfg.TwilioAuthToken
	}
	return messaging.NewSignatureValidator(key, cfg.PublicBaseURL)
}

package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/lab-booking-bot/internal/observability/metrics"
	"github.com/wolfman30/lab-booking-bot/pkg/logging"
)

var twilioSendTracer = otel.Tracer("labbot.internal.messaging.twilio_send")

const (
	defaultTwilioBaseURL = "https://api.twilio.com"
	maxSendAttempts      = 3
)

// WhatsAppSender posts WhatsApp messages through Twilio's Messages API.
type WhatsAppSender struct {
	accountSID string
	authToken  string
	from       string
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
	metrics    *metrics.BotMetrics
}

// NewWhatsAppSender builds a sender. from may be given with or without the
// "whatsapp:" prefix.
func NewWhatsAppSender(accountSID, authToken, from string, logger *logging.Logger) *WhatsAppSender {
	if logger == nil {
		logger = logging.Default()
	}
	from = strings.TrimSpace(from)
	if from != "" && !strings.HasPrefix(from, channelPrefix) {
		from = channelPrefix + from
	}
	return &WhatsAppSender{
		accountSID: accountSID,
		authToken:  authToken,
		from:       from,
		baseURL:    defaultTwilioBaseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

// WithBaseURL points the sender at another API host.
func (s *WhatsAppSender) WithBaseURL(baseURL string) *WhatsAppSender {
	if strings.TrimSpace(baseURL) != "" {
		s.baseURL = strings.TrimRight(baseURL, "/")
	}
	return s
}

// WithMetrics records every send outcome.
func (s *WhatsAppSender) WithMetrics(m *metrics.BotMetrics) *WhatsAppSender {
	s.metrics = m
	return s
}

// SendText sends a freeform message.
func (s *WhatsAppSender) SendText(ctx context.Context, to, body string) error {
	if strings.TrimSpace(body) == "" {
		return errors.New("messaging: body required")
	}
	payload := url.Values{}
	payload.Set("Body", body)
	_, err := s.send(ctx, "text", to, payload)
	return err
}

// SendTemplate sends a content template. vars are serialised as a flat JSON
// object into ContentVariables. It returns the provider message SID.
func (s *WhatsAppSender) SendTemplate(ctx context.Context, to, contentSID string, vars map[string]string) (string, error) {
	if strings.TrimSpace(contentSID) == "" {
		return "", errors.New("messaging: content sid required")
	}
	payload := url.Values{}
	payload.Set("ContentSid", contentSID)
	if len(vars) > 0 {
		encoded, err := json.Marshal(vars)
		if err != nil {
			return "", fmt.Errorf("messaging: encode content variables: %w", err)
		}
		payload.Set("ContentVariables", string(encoded))
	}
	return s.send(ctx, "template", to, payload)
}

func (s *WhatsAppSender) send(ctx context.Context, kind, to string, payload url.Values) (sid string, err error) {
	defer func() { s.metrics.ObserveOutbound(kind, err) }()

	if s.accountSID == "" || s.authToken == "" {
		return "", errors.New("messaging: twilio credentials missing")
	}
	if s.from == "" {
		return "", errors.New("messaging: from required")
	}
	address, err := ToChannelAddress(to)
	if err != nil {
		return "", err
	}

	ctx, span := twilioSendTracer.Start(ctx, "messaging.twilio.send")
	defer span.End()
	span.SetAttributes(
		attribute.String("labbot.message_kind", kind),
		attribute.String("labbot.to", address),
	)

	payload.Set("To", address)
	payload.Set("From", s.from)
	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", s.baseURL, s.accountSID)

	var lastErr error
	for attempt := 1; attempt <= maxSendAttempts; attempt++ {
		sid, retry, err := s.post(ctx, endpoint, payload)
		if err == nil {
			s.logger.Debug("whatsapp message sent", "kind", kind, "to", address, "sid", sid)
			return sid, nil
		}
		lastErr = err
		if !retry || attempt == maxSendAttempts {
			break
		}
		select {
		case <-ctx.Done():
			lastErr = ctx.Err()
			attempt = maxSendAttempts
		case <-time.After(time.Duration(200+rand.Intn(300)) * time.Millisecond):
		}
	}

	span.RecordError(lastErr)
	s.logger.Warn("whatsapp send failed", "kind", kind, "to", address, "error", lastErr)
	return "", lastErr
}

// post performs one attempt. retry reports whether Twilio answered with a
// transient status. Transport errors are not retried since the message may
// already have been accepted.
func (s *WhatsAppSender) post(ctx context.Context, endpoint string, payload url.Values) (string, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(payload.Encode()))
	if err != nil {
		return "", false, err
	}
	req.SetBasicAuth(s.accountSID, s.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", false, err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		var parsed struct {
			SID string `json:"sid"`
		}
		_ = json.Unmarshal(body, &parsed)
		return parsed.SID, false, nil
	}
	sendErr := fmt.Errorf("twilio send failed: %s", formatTwilioError(resp.StatusCode, body))
	retry := resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests
	return "", retry, sendErr
}

type twilioAPIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func formatTwilioError(status int, body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return fmt.Sprintf("status %d", status)
	}
	var parsed twilioAPIError
	if err := json.Unmarshal([]byte(trimmed), &parsed); err == nil && parsed.Message != "" {
		if parsed.Code != 0 {
			return fmt.Sprintf("status %d code %d: %s", status, parsed.Code, parsed.Message)
		}
		return fmt.Sprintf("status %d: %s", status, parsed.Message)
	}
	return fmt.Sprintf("status %d: %s", status, trimmed)
}

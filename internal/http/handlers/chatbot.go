package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/wolfman30/lab-booking-bot/internal/conversation"
	"github.com/wolfman30/lab-booking-bot/internal/messaging"
	"github.com/wolfman30/lab-booking-bot/pkg/logging"
)

var chatbotTracer = otel.Tracer("labbot.internal.http.handlers")

// Processor runs one inbound message through the conversation.
type Processor interface {
	Process(ctx context.Context, in conversation.Inbound) (conversation.Result, error)
}

// ChatbotHandler serves the Twilio WhatsApp webhook.
type ChatbotHandler struct {
	processor Processor
	validator *messaging.SignatureValidator
	logger    *logging.Logger
}

// NewChatbotHandler wires the webhook. A nil validator skips signature checks.
func NewChatbotHandler(processor Processor, validator *messaging.SignatureValidator, logger *logging.Logger) *ChatbotHandler {
	if logger == nil {
		logger = logging.Default()
	}
	if processor == nil {
		panic("handlers: processor cannot be nil")
	}
	return &ChatbotHandler{processor: processor, validator: validator, logger: logger}
}

// VerifySignature rejects webhook calls whose X-Twilio-Signature does not
// match. It must run before anything that trusts the form fields.
func (h *ChatbotHandler) VerifySignature(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := h.validator.Validate(r); err != nil {
			if errors.Is(err, messaging.ErrBadSignature) {
				h.logger.Warn("invalid twilio signature", "path", r.URL.Path)
				writeResult(w, http.StatusUnauthorized, conversation.Result{Status: conversation.StatusError, Error: "invalid signature"})
				return
			}
			writeResult(w, http.StatusBadRequest, conversation.Result{Status: conversation.StatusError, Error: "malformed request"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Webhook handles POST /chatbot. The body is the conversation result as JSON.
// Signatures are checked by VerifySignature.
func (h *ChatbotHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	ctx, span := chatbotTracer.Start(r.Context(), "http.chatbot.webhook")
	defer span.End()

	msg, err := messaging.ParseInbound(r)
	if err != nil {
		h.logger.Error("failed to parse webhook", "error", err)
		span.RecordError(err)
		writeResult(w, http.StatusBadRequest, conversation.Result{Status: conversation.StatusError, Error: "malformed request"})
		return
	}
	span.SetAttributes(attribute.String("twilio.message_sid", msg.MessageSID))
	h.logger.Info("message received", "message_sid", msg.MessageSID, "has_media", msg.MediaURL() != "")

	res, err := h.processor.Process(ctx, conversation.Inbound{
		From:     msg.From,
		Body:     msg.Body,
		MediaURL: msg.MediaURL(),
	})
	switch {
	case errors.Is(err, messaging.ErrInvalidFormat):
		h.logger.Warn("rejected sender", "error", err)
		writeResult(w, http.StatusBadRequest, conversation.Result{Status: conversation.StatusError, Error: "invalid mobile number format"})
		return
	case err != nil:
		h.logger.Error("failed to process message", "error", err, "message_sid", msg.MessageSID)
		span.RecordError(err)
		span.SetStatus(codes.Error, "process failed")
		writeResult(w, http.StatusInternalServerError, conversation.Result{Status: conversation.StatusError, Error: "internal error"})
		return
	}

	span.SetAttributes(attribute.String("conversation.status", res.Status))
	writeResult(w, http.StatusOK, res)
}

// HealthCheck returns a simple health check response.
func (h *ChatbotHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func writeResult(w http.ResponseWriter, status int, res conversation.Result) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(res)
}

// Package backend talks to the lab's patient-app API and its booking database API.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/lab-booking-bot/internal/config"
	"github.com/wolfman30/lab-booking-bot/internal/observability/metrics"
	"github.com/wolfman30/lab-booking-bot/pkg/logging"
)

var tracer = otel.Tracer("labbot.internal.backend")

const defaultTimeout = 20 * time.Second

var (
	// ErrNotFound marks a lookup that found nothing.
	ErrNotFound = errors.New("backend: not found")
	// ErrRejected marks a response whose SuccessFlag was not true.
	ErrRejected = errors.New("backend: request rejected")
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Status int
	Body   []byte
}

func (e *StatusError) Error() string {
	msg := string(e.Body)
	if len(msg) > 300 {
		msg = msg[:300]
	}
	return fmt.Sprintf("backend returned %d: %s", e.Status, msg)
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, status int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Status == status
}

// Client wraps every lab backend call used by the conversation.
type Client struct {
	httpClient *http.Client
	endpoints  config.Endpoints
	logger     *logging.Logger
	metrics    *metrics.BotMetrics
}

// NewClient constructs a backend client.
func NewClient(endpoints config.Endpoints, timeout time.Duration, logger *logging.Logger, m *metrics.BotMetrics) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		endpoints:  endpoints,
		logger:     logger,
		metrics:    m,
	}
}

func (c *Client) doJSON(ctx context.Context, op, method, endpoint string, body any, out any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("%s: marshal request: %w", op, err)
		}
	}
	return c.do(ctx, op, method, endpoint, "application/json", payload, body != nil, out)
}

func (c *Client) do(ctx context.Context, op, method, endpoint, contentType string, payload []byte, hasBody bool, out any) (err error) {
	ctx, span := tracer.Start(ctx, "backend."+op)
	defer span.End()
	span.SetAttributes(attribute.String("http.method", method))

	start := time.Now()
	defer func() {
		c.metrics.ObserveBackend(op, err, time.Since(start).Seconds())
		if err != nil {
			span.RecordError(err)
		}
	}()

	var bodyReader io.Reader
	if hasBody {
		bodyReader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, bodyReader)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if hasBody {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: http request: %w", op, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: read response: %w", op, err)
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		se := &StatusError{Status: resp.StatusCode, Body: respBody}
		c.logger.Warn("backend non-2xx response", "op", op, "status", resp.StatusCode, "body", se.Error())
		// Callers inspect 404 bodies, so decode them when asked.
		if out != nil && len(respBody) > 0 {
			_ = json.Unmarshal(respBody, out)
		}
		return fmt.Errorf("%s: %w", op, se)
	}

	if len(respBody) == 0 || out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

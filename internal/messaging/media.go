package messaging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
)

var mediaTracer = otel.Tracer("labbot.internal.messaging.media")

const maxMediaBytes = 16 << 20

// ErrMediaTooLarge is returned when an attachment exceeds the download limit.
var ErrMediaTooLarge = errors.New("media too large")

// Media is a downloaded attachment.
type Media struct {
	ContentType string
	Data        []byte
}

// MediaFetcher downloads inbound attachments. Twilio media URLs require the
// account credentials as basic auth.
type MediaFetcher struct {
	accountSID string
	authToken  string
	httpClient *http.Client
}

func NewMediaFetcher(accountSID, authToken string) *MediaFetcher {
	return &MediaFetcher{
		accountSID: accountSID,
		authToken:  authToken,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Fetch downloads mediaURL. The content type is returned lowercased without
// parameters.
func (f *MediaFetcher) Fetch(ctx context.Context, mediaURL string) (*Media, error) {
	ctx, span := mediaTracer.Start(ctx, "messaging.media.fetch")
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return nil, fmt.Errorf("messaging: build media request: %w", err)
	}
	if f.accountSID != "" {
		req.SetBasicAuth(f.accountSID, f.authToken)
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("messaging: fetch media: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("messaging: fetch media: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxMediaBytes+1))
	if err != nil {
		return nil, fmt.Errorf("messaging: read media: %w", err)
	}
	if len(data) > maxMediaBytes {
		return nil, fmt.Errorf("messaging: media exceeds %d bytes: %w", maxMediaBytes, ErrMediaTooLarge)
	}
	contentType := strings.ToLower(resp.Header.Get("Content-Type"))
	if i := strings.Index(contentType, ";"); i >= 0 {
		contentType = contentType[:i]
	}
	return &Media{ContentType: strings.TrimSpace(contentType), Data: data}, nil
}

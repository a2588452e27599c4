package messaging

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// ErrBadSignature means X-Twilio-Signature did not match the request.
var ErrBadSignature = errors.New("messaging: invalid twilio signature")

// SignatureValidator checks X-Twilio-Signature against the public webhook URL.
type SignatureValidator struct {
	authToken string
	publicURL string
}

// NewSignatureValidator returns nil when no token is configured; a nil
// validator accepts everything.
func NewSignatureValidator(authToken, publicBaseURL string) *SignatureValidator {
	if strings.TrimSpace(authToken) == "" {
		return nil
	}
	return &SignatureValidator{authToken: authToken, publicURL: strings.TrimRight(publicBaseURL, "/")}
}

// Validate parses the form and compares signatures.
func (v *SignatureValidator) Validate(r *http.Request) error {
	if v == nil {
		return nil
	}
	signature := r.Header.Get("X-Twilio-Signature")
	if signature == "" {
		return ErrBadSignature
	}
	if err := r.ParseForm(); err != nil {
		return fmt.Errorf("messaging: parse form: %w", err)
	}
	webhookURL := v.publicURL + r.URL.RequestURI()
	if v.publicURL == "" {
		webhookURL = requestURL(r)
	}
	expected := computeSignature(signaturePayload(webhookURL, r.PostForm), v.authToken)
	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return ErrBadSignature
	}
	return nil
}

// requestURL rebuilds the absolute URL Twilio called, honouring proxy headers.
func requestURL(r *http.Request) string {
	if r.URL.Scheme != "" {
		return r.URL.String()
	}
	scheme := r.Header.Get("X-Forwarded-Proto")
	if scheme == "" {
		scheme = "https"
		if r.TLS == nil {
			scheme = "http"
		}
	}
	host := r.Header.Get("X-Forwarded-Host")
	if host == "" {
		host = r.Host
	}
	return scheme + "://" + host + r.URL.RequestURI()
}

// signaturePayload is the URL followed by every POST param, keys sorted.
func signaturePayload(webhookURL string, params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(webhookURL)
	for _, key := range keys {
		for _, value := range params[key] {
			b.WriteString(key)
			b.WriteString(value)
		}
	}
	return b.String()
}

func computeSignature(data, key string) string {
	h := hmac.New(sha1.New, []byte(key))
	h.Write([]byte(data))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// InboundMessage is the subset of a Twilio WhatsApp webhook the bot reads.
type InboundMessage struct {
	MessageSID string
	From       string
	To         string
	Body       string
	MediaURLs  []string
}

// MediaURL returns the first attachment or "".
func (m InboundMessage) MediaURL() string {
	if len(m.MediaURLs) == 0 {
		return ""
	}
	return m.MediaURLs[0]
}

// ParseInbound reads the webhook form.
func ParseInbound(r *http.Request) (InboundMessage, error) {
	if err := r.ParseForm(); err != nil {
		return InboundMessage{}, fmt.Errorf("messaging: parse form: %w", err)
	}
	msg := InboundMessage{
		MessageSID: r.FormValue("MessageSid"),
		From:       r.FormValue("From"),
		To:         r.FormValue("To"),
		Body:       r.FormValue("Body"),
	}
	count, _ := strconv.Atoi(r.FormValue("NumMedia"))
	if count < 1 && r.FormValue("MediaUrl0") != "" {
		count = 1
	}
	for i := 0; i < count; i++ {
		if u := r.FormValue(fmt.Sprintf("MediaUrl%d", i)); u != "" {
			msg.MediaURLs = append(msg.MediaURLs, u)
		}
	}
	return msg, nil
}

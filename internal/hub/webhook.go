package hub

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// WebhookSink forwards hub messages via HTTP POST to a webhook URL
// with optional HMAC-SHA256 signing.
type WebhookSink struct {
	url        string
	secret     string
	topics     map[string]bool
	client     *http.Client
	maxRetries uint64
}

// WebhookOption customises a WebhookSink.
type WebhookOption func(*WebhookSink)

// WithTopics restricts forwarding to the given topics. No topics means all.
func WithTopics(topics ...string) WebhookOption {
	return func(s *WebhookSink) {
		for _, t := range topics {
			s.topics[t] = true
		}
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) WebhookOption {
	return func(s *WebhookSink) { s.client = c }
}

// WithMaxRetries sets how many times a failed delivery is retried.
func WithMaxRetries(n uint64) WebhookOption {
	return func(s *WebhookSink) { s.maxRetries = n }
}

// NewWebhookSink creates a sink posting to url. secret may be empty.
func NewWebhookSink(url, secret string, opts ...WebhookOption) *WebhookSink {
	s := &WebhookSink{
		url:        url,
		secret:     secret,
		topics:     make(map[string]bool),
		client:     &http.Client{Timeout: 15 * time.Second},
		maxRetries: 2,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name implements Sink.
func (s *WebhookSink) Name() string {
	return "webhook:" + s.url
}

// Send posts the message as JSON. Topics the sink is not subscribed to are skipped.
func (s *WebhookSink) Send(ctx context.Context, msg Message) error {
	if len(s.topics) > 0 && !s.topics[msg.Topic] {
		return nil
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	var signature string
	if s.secret != "" {
		mac := hmac.New(sha256.New, []byte(s.secret))
		mac.Write(body)
		signature = "sha256=" + hex.EncodeToString(mac.Sum(nil))
	}

	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("build webhook request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", "SalesAgent-Webhook/1.0")
		req.Header.Set("X-SalesAgent-Topic", msg.Topic)
		if signature != "" {
			req.Header.Set("X-SalesAgent-Signature", signature)
		}

		resp, err := s.client.Do(req)
		if err != nil {
			return err
		}
		resp.Body.Close()
		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return nil
		case resp.StatusCode >= 400 && resp.StatusCode < 500:
			return backoff.Permanent(fmt.Errorf("webhook HTTP %d from %s", resp.StatusCode, s.url))
		default:
			return fmt.Errorf("webhook HTTP %d from %s", resp.StatusCode, s.url)
		}
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 200 * time.Millisecond
	policy.MaxInterval = 2 * time.Second
	b := backoff.WithContext(backoff.WithMaxRetries(policy, s.maxRetries), ctx)

	if err := backoff.Retry(op, b); err != nil {
		return fmt.Errorf("webhook %s: %w", s.url, err)
	}
	return nil
}

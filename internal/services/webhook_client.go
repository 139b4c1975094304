package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/audit-trail/backend/internal/auth"
	"github.com/audit-trail/backend/internal/events"
)

// WebhookClient delivers audit events to an external HTTP endpoint.
// When a secret is set each request carries X-Audit-Timestamp and an
// HMAC-SHA256 X-Audit-Signature over "<timestamp>.<body>".
type WebhookClient struct {
	url        string
	secret     string
	httpClient *http.Client
	maxRetries int
	retryDelay time.Duration
	log        *zap.Logger
}

func NewWebhookClient(url, secret string, timeout time.Duration, maxRetries int, log *zap.Logger) *WebhookClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &WebhookClient{
		url:    url,
		secret: secret,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		maxRetries: maxRetries,
		retryDelay: 500 * time.Millisecond,
		log:        log,
	}
}

// Deliver posts the event. Transport errors and 5xx answers are retried
// with a linearly growing delay; 4xx answers are returned at once.
func (c *WebhookClient) Deliver(ctx context.Context, event events.Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(time.Duration(attempt) * c.retryDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		retry, err := c.post(ctx, event, body)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retry {
			break
		}
		c.log.Debug("webhook attempt failed", zap.String("event_id", event.ID), zap.Int("attempt", attempt+1), zap.Error(err))
	}
	return lastErr
}

func (c *WebhookClient) post(ctx context.Context, event events.Event, body []byte) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Audit-Event", event.Type)
	req.Header.Set("X-Audit-Event-Id", event.ID)
	if c.secret != "" {
		now := time.Now()
		req.Header.Set("X-Audit-Timestamp", strconv.FormatInt(now.Unix(), 10))
		req.Header.Set("X-Audit-Signature", auth.SignPayload(c.secret, now, body))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ctx.Err() == nil, fmt.Errorf("webhook unavailable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return resp.StatusCode >= 500, fmt.Errorf("webhook returned %d: %s", resp.StatusCode, string(b))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	c.log.Debug("webhook delivered", zap.String("event_id", event.ID), zap.Int("status", resp.StatusCode))
	return false, nil
}

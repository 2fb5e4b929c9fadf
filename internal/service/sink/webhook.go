package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// WebhookSink POSTs the order record as JSON to a configured URL. The POS
// push is the same contract with an auth header.
type WebhookSink struct {
	name      string
	url       string
	authToken string
	client    *http.Client
}

// NewWebhook builds a plain notification webhook sink.
func NewWebhook(name, url string) *WebhookSink {
	return &WebhookSink{
		name:   name,
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// NewPOS builds the POS push sink: same wire shape, bearer-authenticated.
func NewPOS(url, token string) *WebhookSink {
	s := NewWebhook("pos", url)
	s.authToken = token
	return s
}

// Name implements Sink.
func (s *WebhookSink) Name() string { return s.name }

// Deliver implements Sink. The request honors ctx so a slow endpoint can
// never stall call-ending cleanup.
func (s *WebhookSink) Deliver(ctx context.Context, record Record) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("sink %s: encode: %w", s.name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("sink %s: request: %w", s.name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+s.authToken)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("sink %s: post: %w", s.name, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("sink %s: status %d", s.name, resp.StatusCode)
	}
	return nil
}

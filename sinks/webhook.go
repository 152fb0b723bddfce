// Copyright (c) 2025 The btcwatch developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package sinks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/toole-brendan/btcwatch/events"
)

const (
	// DefaultWebhookMaxRetries is how many times a failed POST is
	// retried.
	DefaultWebhookMaxRetries = 3

	// webhookTimeout bounds one POST.
	webhookTimeout = 5 * time.Second

	// webhookBackoffStep and webhookBackoffCap shape the linear retry
	// backoff: min(cap, step*attempt).
	webhookBackoffStep = 250 * time.Millisecond
	webhookBackoffCap  = 2 * time.Second
)

// WebhookSink POSTs activity JSON to an HTTP endpoint, retrying network
// errors and 5xx replies.
type WebhookSink struct {
	url        string
	headers    map[string]string
	maxRetries int
	client     *http.Client
}

// NewWebhookSink creates a webhook sink. maxRetries below zero selects the
// default; client may be nil.
func NewWebhookSink(url string, headers map[string]string, maxRetries int, client *http.Client) *WebhookSink {
	if maxRetries < 0 {
		maxRetries = DefaultWebhookMaxRetries
	}
	if client == nil {
		client = &http.Client{Timeout: webhookTimeout}
	}
	return &WebhookSink{
		url:        url,
		headers:    headers,
		maxRetries: maxRetries,
		client:     client,
	}
}

// Kind implements Sink.
func (s *WebhookSink) Kind() string { return "webhook" }

// Send implements Sink.
func (s *WebhookSink) Send(ctx context.Context, ev *events.AddressActivityFound) error {
	body, err := json.Marshal(newPayload(ev))
	if err != nil {
		return fmt.Errorf("marshal activity: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(attempt) * webhookBackoffStep
			if delay > webhookBackoffCap {
				delay = webhookBackoffCap
			}
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		retryable, err := s.post(ctx, body)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable {
			break
		}
		log.Debugf("webhook delivery failed (attempt %d/%d): %v",
			attempt+1, s.maxRetries+1, err)
	}
	return lastErr
}

// post performs one POST and reports whether a failure may be retried.
func (s *WebhookSink) post(ctx context.Context, body []byte) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url,
		bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")
	for name, value := range s.headers {
		req.Header.Set(name, value)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return true, fmt.Errorf("webhook post: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode <= 299:
		return false, nil
	case resp.StatusCode >= 500:
		return true, fmt.Errorf("webhook status %d", resp.StatusCode)
	default:
		return false, fmt.Errorf("webhook status %d", resp.StatusCode)
	}
}

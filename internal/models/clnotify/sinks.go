package clnotify

import (
	"bytes"
	"context"
	"fmt"
	"haultrack/internal/models/clalerts"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

// Payload est le corps envoyé aux webhooks et publié sur redis
type Payload struct {
	Alert     clalerts.Alert `json:"alert"`
	Channel   string         `json:"channel"`
	Source    string         `json:"source"`
	Timestamp time.Time      `json:"timestamp"`
}

func newPayload(channel string, alert clalerts.Alert) Payload {
	return Payload{
		Alert:     alert,
		Channel:   channel,
		Source:    "haultrack",
		Timestamp: time.Now().UTC(),
	}
}

// WebhookSink poste l'alerte en JSON sur une URL
type WebhookSink struct {
	url    string
	client *http.Client
}

func NewWebhookSink(url string, client *http.Client) *WebhookSink {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &WebhookSink{url: url, client: client}
}

func (w *WebhookSink) Send(ctx context.Context, channel string, alert clalerts.Alert) error {
	body, err := json.Marshal(newPayload(channel, alert))
	if err != nil {
		return fmt.Errorf("encode alert: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "haultrack-alerts")

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// RedisSink publie l'alerte pour les workers email/sms abonnés au canal
type RedisSink struct {
	client *redis.Client
	prefix string
}

func NewRedisSink(client *redis.Client, prefix string) *RedisSink {
	if prefix == "" {
		prefix = "haultrack:alerts"
	}
	return &RedisSink{client: client, prefix: prefix}
}

func (r *RedisSink) Topic(channel string) string {
	return r.prefix + ":" + channel
}

func (r *RedisSink) Send(ctx context.Context, channel string, alert clalerts.Alert) error {
	body, err := json.Marshal(newPayload(channel, alert))
	if err != nil {
		return fmt.Errorf("encode alert: %w", err)
	}
	return r.client.Publish(ctx, r.Topic(channel), body).Err()
}

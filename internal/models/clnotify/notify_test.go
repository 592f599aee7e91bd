package clnotify

import (
	"context"
	"errors"
	"haultrack/internal/models/clalerts"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu       sync.Mutex
	channels []string
	err      error
	delay    time.Duration
}

func (s *recordingSink) Send(ctx context.Context, channel string, alert clalerts.Alert) error {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channels = append(s.channels, channel)
	return s.err
}

func (s *recordingSink) sent() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.channels...)
}

func sampleAlert() clalerts.Alert {
	return clalerts.Alert{
		ID:           7,
		Type:         "competitor_visits",
		Severity:     clalerts.SeverityHigh,
		Message:      "Competitor surge: competitor_visits is 5",
		Timestamp:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		SourceRuleID: 1,
		Value:        5,
	}
}

func TestDispatchRoutesChannels(t *testing.T) {
	d := NewDispatcher(time.Second)
	email := &recordingSink{}
	sms := &recordingSink{err: errors.New("gateway down")}
	d.Register("Email", email)
	d.Register("sms", sms)

	d.Dispatch(sampleAlert(), []string{"email", "sms", "pager"})
	d.Wait()

	assert.Equal(t, []string{"email"}, email.sent())
	assert.Equal(t, []string{"sms"}, sms.sent())
	assert.Equal(t, []string{"dashboard", "email", "sms"}, d.Channels())
}

func TestDispatchDoesNotBlockOnSlowSink(t *testing.T) {
	d := NewDispatcher(50 * time.Millisecond)
	slow := &recordingSink{delay: time.Second}
	d.Register("email", slow)

	start := time.Now()
	d.Dispatch(sampleAlert(), []string{"email"})
	assert.Less(t, time.Since(start), 20*time.Millisecond)

	d.Wait()
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Empty(t, slow.sent())
}

type panicSink struct{}

func (panicSink) Send(ctx context.Context, channel string, alert clalerts.Alert) error {
	panic("boom")
}

func TestDispatchRecoversSinkPanic(t *testing.T) {
	d := NewDispatcher(time.Second)
	d.Register("sms", panicSink{})

	assert.NotPanics(t, func() {
		d.Dispatch(sampleAlert(), []string{"sms"})
		d.Wait()
	})
}

func TestWebhookSink(t *testing.T) {
	var got Payload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	sink := NewWebhookSink(server.URL, nil)
	require.NoError(t, sink.Send(context.Background(), "slack", sampleAlert()))

	assert.Equal(t, "slack", got.Channel)
	assert.Equal(t, "haultrack", got.Source)
	assert.Equal(t, uint(7), got.Alert.ID)
	assert.Equal(t, clalerts.SeverityHigh, got.Alert.Severity)
}

func TestWebhookSinkErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	err := NewWebhookSink(server.URL, nil).Send(context.Background(), "slack", sampleAlert())
	assert.ErrorContains(t, err, "502")
}

func TestRedisSinkTopicAndUnreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	sink := NewRedisSink(client, "")
	assert.Equal(t, "haultrack:alerts:email", sink.Topic("email"))
	assert.Error(t, sink.Send(context.Background(), "email", sampleAlert()))
}

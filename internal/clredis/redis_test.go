package clredis

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func TestKeyPrefix(t *testing.T) {
	c := New(nil, "haultrack:summary", 0)
	assert.Equal(t, "haultrack:summary:24h0m0s", c.key("24h0m0s"))
	assert.Equal(t, 24*time.Hour, c.expiration)
}

func TestGetUnreachableServerReturnsError(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()
	c := New(client, "test", time.Minute)

	var out map[string]int
	found, err := c.Get(context.Background(), "missing", &out)
	assert.Error(t, err)
	assert.False(t, found)
	assert.Error(t, c.Set(context.Background(), "k", map[string]int{"a": 1}))
}

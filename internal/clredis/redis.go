package clredis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

// JSONCache conserve des valeurs sérialisées en JSON sous un préfixe commun.
// Sert de dernier état connu pour le tableau de bord quand la base ne répond plus.
type JSONCache struct {
	client     *redis.Client
	prefix     string
	expiration time.Duration
}

func NewClient(addr string, db int, password string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		DB:       db,
		Password: password,
	})
}

func New(client *redis.Client, prefix string, expiration time.Duration) *JSONCache {
	if expiration <= 0 {
		expiration = 24 * time.Hour
	}
	return &JSONCache{
		client:     client,
		prefix:     prefix,
		expiration: expiration,
	}
}

func (r *JSONCache) key(id string) string {
	return r.prefix + ":" + id
}

func (r *JSONCache) Set(ctx context.Context, id string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", id, err)
	}
	return r.client.Set(ctx, r.key(id), data, r.expiration).Err()
}

// Get remplit value et retourne false si la clé n'existe pas
func (r *JSONCache) Get(ctx context.Context, id string, value any) (bool, error) {
	data, err := r.client.Get(ctx, r.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, value); err != nil {
		return false, fmt.Errorf("decode %s: %w", id, err)
	}
	return true, nil
}

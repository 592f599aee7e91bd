package clanalytics

import (
	"context"
	"sync"

	"github.com/goccy/go-json"
)

// MemoryCache garde le dernier résumé dans le processus quand redis n'est pas configuré
type MemoryCache struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{data: make(map[string][]byte)}
}

func (m *MemoryCache) Set(ctx context.Context, id string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.data[id] = data
	m.mu.Unlock()
	return nil
}

func (m *MemoryCache) Get(ctx context.Context, id string, value any) (bool, error) {
	m.mu.RLock()
	data, ok := m.data[id]
	m.mu.RUnlock()
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(data, value)
}

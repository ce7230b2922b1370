package orclient

import (
	"context"
	"sync"
	"time"

	"github.com/elee1766/chatmux/src/aisdk"
)

// ModelCache keeps the model list for a TTL
type ModelCache struct {
	mu        sync.RWMutex
	listCache *cachedModelList
	ttl       time.Duration
	client    *Client
	now       func() time.Time
}

type cachedModelList struct {
	models    []*aisdk.ModelInfo
	fetchedAt time.Time
}

// NewModelCache creates a new model cache
func NewModelCache(client *Client, ttl time.Duration) *ModelCache {
	return &ModelCache{
		ttl:    ttl,
		client: client,
		now:    time.Now,
	}
}

// GetModelList gets the model list from cache or fetches it
func (mc *ModelCache) GetModelList(ctx context.Context) ([]*aisdk.ModelInfo, error) {
	mc.mu.RLock()
	cached := mc.listCache
	mc.mu.RUnlock()

	if cached != nil && mc.now().Sub(cached.fetchedAt) < mc.ttl {
		return cached.models, nil
	}

	models, err := mc.client.listModelsUncached(ctx)
	if err != nil {
		return nil, err
	}

	mc.mu.Lock()
	mc.listCache = &cachedModelList{
		models:    models,
		fetchedAt: mc.now(),
	}
	mc.mu.Unlock()

	return models, nil
}

// ClearCache drops the cached list
func (mc *ModelCache) ClearCache() {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.listCache = nil
}

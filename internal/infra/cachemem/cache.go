package cachemem

import (
	"context"
	"sync"
	"time"

	"crossid/internal/domain"
	"crossid/internal/usecase"
)

// Cache is the in-process DID document cache used when no redis is configured.
type Cache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	doc       domain.DidDocument
	expiresAt time.Time
	hasExpiry bool
}

func New() *Cache {
	return &Cache{
		entries: make(map[string]cacheEntry),
	}
}

func (c *Cache) Get(ctx context.Context, did string) (*domain.DidDocument, bool, error) {
	if c == nil {
		return nil, false, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[did]
	if !ok {
		return nil, false, nil
	}
	if entry.hasExpiry && time.Now().After(entry.expiresAt) {
		delete(c.entries, did)
		return nil, false, nil
	}
	doc := entry.doc
	return &doc, true, nil
}

func (c *Cache) Put(ctx context.Context, did string, doc domain.DidDocument, ttl time.Duration) error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	entry := cacheEntry{doc: doc}
	if ttl > 0 {
		entry.hasExpiry = true
		entry.expiresAt = time.Now().Add(ttl)
	}
	c.entries[did] = entry
	return nil
}

func (c *Cache) Invalidate(ctx context.Context, did string) error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, did)
	return nil
}

var _ usecase.DocumentCache = (*Cache)(nil)

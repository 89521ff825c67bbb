package cacheredis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"crossid/internal/domain"
	"crossid/internal/usecase"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "crossid:diddoc:"

// Cache stores resolved DID documents in redis so resolution survives process
// restarts and is shared between instances.
type Cache struct {
	client *redis.Client
}

func New(addr, password string, db int) (*Cache, error) {
	if addr == "" {
		return nil, errors.New("redis addr is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &Cache{client: client}, nil
}

type cachedDocument struct {
	Document       domain.DidDocument `json:"document"`
	DID            string             `json:"did"`
	Version        int64              `json:"version"`
	ContentAddress string             `json:"content_address"`
}

func (c *Cache) Get(ctx context.Context, did string) (*domain.DidDocument, bool, error) {
	if c == nil || c.client == nil {
		return nil, false, nil
	}
	raw, err := c.client.Get(ctx, keyPrefix+did).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	var cached cachedDocument
	if err := json.Unmarshal(raw, &cached); err != nil {
		return nil, false, err
	}
	doc := cached.Document
	doc.DID = cached.DID
	doc.Version = cached.Version
	doc.ContentAddress = cached.ContentAddress
	return &doc, true, nil
}

func (c *Cache) Put(ctx context.Context, did string, doc domain.DidDocument, ttl time.Duration) error {
	if c == nil || c.client == nil {
		return nil
	}
	raw, err := json.Marshal(cachedDocument{
		Document:       doc,
		DID:            doc.DID,
		Version:        doc.Version,
		ContentAddress: doc.ContentAddress,
	})
	if err != nil {
		return err
	}
	if ttl < 0 {
		ttl = 0
	}
	return c.client.Set(ctx, keyPrefix+did, raw, ttl).Err()
}

func (c *Cache) Invalidate(ctx context.Context, did string) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Del(ctx, keyPrefix+did).Err()
}

var _ usecase.DocumentCache = (*Cache)(nil)

// Package redis stores fallback proposals in Redis.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"energodoc/internal/config"
	"energodoc/internal/port"
)

// Cache implements port.ProposalCache on a Redis client. Concurrent reads of
// the same key share one round trip.
type Cache struct {
	client redis.UniversalClient
	prefix string
	group  singleflight.Group
	log    *zap.Logger
}

// NewClient opens a Redis client from config and pings it.
func NewClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("pinging redis at %s: %w", cfg.Addr, err)
	}
	return client, nil
}

// New creates a Cache. Keys are stored as prefix+key.
func New(client redis.UniversalClient, prefix string, log *zap.Logger) *Cache {
	return &Cache{client: client, prefix: prefix, log: log}
}

func (c *Cache) fullKey(key string) string {
	return c.prefix + key
}

func (c *Cache) Get(ctx context.Context, key string) (*port.MappingProposal, bool, error) {
	v, err, _ := c.group.Do(key, func() (any, error) {
		data, err := c.client.Get(ctx, c.fullKey(key)).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("reading proposal %s: %w", key, err)
		}
		return data, nil
	})
	if err != nil {
		return nil, false, err
	}
	if v == nil {
		return nil, false, nil
	}
	var p port.MappingProposal
	if err := json.Unmarshal(v.([]byte), &p); err != nil {
		// A corrupt entry behaves like a miss and gets overwritten.
		c.log.Warn("redis.Cache: dropping undecodable entry", zap.String("key", key), zap.Error(err))
		return nil, false, nil
	}
	return &p, true, nil
}

func (c *Cache) Set(ctx context.Context, key string, p *port.MappingProposal, ttl time.Duration) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encoding proposal: %w", err)
	}
	if err := c.client.Set(ctx, c.fullKey(key), data, ttl).Err(); err != nil {
		return fmt.Errorf("writing proposal %s: %w", key, err)
	}
	return nil
}

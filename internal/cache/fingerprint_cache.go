// Package cache provides an optional Redis-backed fingerprint cache. Entries
// are keyed by the SHA-256 checksum of the raw upload bytes, so a repeat
// upload of identical bytes skips the decode and transform work entirely.
// The cache is a TTL-bounded accelerator; nothing in it is authoritative.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "snapmatch:fp:"

// ErrNotFound signals the requested checksum has no cached fingerprint.
var ErrNotFound = errors.New("cache: not found")

// FingerprintCache provides typed helpers on top of redis.Client.
type FingerprintCache struct {
	client *redis.Client
	ttl    time.Duration
}

// New connects to Redis and validates connectivity.
func New(redisURL string, ttl time.Duration) (*FingerprintCache, error) {
	if redisURL == "" {
		return nil, errors.New("cache: redis URL is empty")
	}
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("cache: parse url: %w", err)
	}
	client := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("cache: ping redis: %w", err)
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &FingerprintCache{client: client, ttl: ttl}, nil
}

// Close closes the underlying Redis connection.
func (c *FingerprintCache) Close() error {
	return c.client.Close()
}

// Get fetches the cached fingerprint for a content checksum.
func (c *FingerprintCache) Get(ctx context.Context, checksum string) (string, error) {
	val, err := c.client.Get(ctx, keyPrefix+checksum).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNotFound
		}
		return "", err
	}
	return val, nil
}

// Put stores a fingerprint under its content checksum with the configured TTL.
func (c *FingerprintCache) Put(ctx context.Context, checksum, fingerprint string) error {
	return c.client.Set(ctx, keyPrefix+checksum, fingerprint, c.ttl).Err()
}

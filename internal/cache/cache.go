// Package cache stores scan results keyed by the hash of the encoded image.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/redis/go-redis/v9"

	"github.com/ericlevine/qrdecode"
)

const keyPrefix = "qrdecode:"

// Store caches results. A miss is reported by ok == false with a nil error.
type Store interface {
	Get(ctx context.Context, key string) (results []qrdecode.DecodeResult, ok bool, err error)
	Set(ctx context.Context, key string, results []qrdecode.DecodeResult) error
	Close() error
}

// Key derives the cache key for an encoded image.
func Key(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Redis keeps results in Redis with a TTL.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// RedisOptions configure a Redis store.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// NewRedis connects lazily; use Ping to check the connection.
func NewRedis(opts RedisOptions) *Redis {
	return &Redis{
		client: redis.NewClient(&redis.Options{
			Addr:     opts.Addr,
			Password: opts.Password,
			DB:       opts.DB,
		}),
		ttl: opts.TTL,
	}
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Get(ctx context.Context, key string) ([]qrdecode.DecodeResult, bool, error) {
	data, err := r.client.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache: redis get: %w", err)
	}
	var results []qrdecode.DecodeResult
	if err := json.Unmarshal(data, &results); err != nil {
		return nil, false, fmt.Errorf("cache: decode entry: %w", err)
	}
	return results, true, nil
}

func (r *Redis) Set(ctx context.Context, key string, results []qrdecode.DecodeResult) error {
	data, err := json.Marshal(results)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, keyPrefix+key, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("cache: redis set: %w", err)
	}
	return nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}

// Memory keeps the most recently used results in process. Entries do not
// expire.
type Memory struct {
	lru *lru.Cache
}

// NewMemory returns a store holding at most size entries.
func NewMemory(size int) (*Memory, error) {
	c, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("cache: %w", err)
	}
	return &Memory{lru: c}, nil
}

func (m *Memory) Get(_ context.Context, key string) ([]qrdecode.DecodeResult, bool, error) {
	v, ok := m.lru.Get(key)
	if !ok {
		return nil, false, nil
	}
	return clone(v.([]qrdecode.DecodeResult)), true, nil
}

func (m *Memory) Set(_ context.Context, key string, results []qrdecode.DecodeResult) error {
	m.lru.Add(key, clone(results))
	return nil
}

func (m *Memory) Close() error {
	m.lru.Purge()
	return nil
}

// clone copies results so callers cannot alias cached alignment patterns.
func clone(results []qrdecode.DecodeResult) []qrdecode.DecodeResult {
	out := make([]qrdecode.DecodeResult, len(results))
	copy(out, results)
	for i := range out {
		if a := out[i].Alignment; a != nil {
			ac := *a
			out[i].Alignment = &ac
		}
	}
	return out
}

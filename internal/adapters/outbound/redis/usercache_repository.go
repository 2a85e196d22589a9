// Package redis provides a Redis implementation of the UserCacheRepository port.
//
// Each record is one JSON string under prefix:user_caches:network:address.
// Creates use SETNX; updates use WATCH/MULTI so a concurrent writer aborts
// the transaction instead of being silently overwritten.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/keymesh/socialproof/internal/domain/entity"
	"github.com/keymesh/socialproof/internal/ports/outbound"
)

// Compile-time check that UserCacheRepository implements outbound.UserCacheRepository
var _ outbound.UserCacheRepository = (*UserCacheRepository)(nil)

// maxUpdateAttempts bounds optimistic-lock retries for one Update.
const maxUpdateAttempts = 5

// Config holds Redis connection configuration.
type Config struct {
	// Addr is the Redis server address (e.g., "localhost:6379")
	Addr string
	// Password for Redis authentication (empty for no auth)
	Password string
	// DB is the Redis database number (0-15)
	DB int
	// TTL expires records that are not rewritten; zero keeps them forever.
	TTL time.Duration
	// KeyPrefix is prepended to all keys
	KeyPrefix string
}

// ConfigDefaults returns sensible defaults for the Redis repository.
func ConfigDefaults() Config {
	return Config{
		Addr:      "localhost:6379",
		DB:        0,
		TTL:       0,
		KeyPrefix: "socialproof",
	}
}

// UserCacheRepository is a Redis implementation of outbound.UserCacheRepository.
type UserCacheRepository struct {
	client    *redis.Client
	ttl       time.Duration
	keyPrefix string
	logger    *slog.Logger
}

// NewUserCacheRepository creates a new Redis user cache repository.
func NewUserCacheRepository(cfg Config, logger *slog.Logger) (*UserCacheRepository, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = ConfigDefaults().KeyPrefix
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if logger == nil {
		logger = slog.Default()
	}

	return &UserCacheRepository{
		client:    client,
		ttl:       cfg.TTL,
		keyPrefix: cfg.KeyPrefix,
		logger:    logger.With("component", "redis-user-caches"),
	}, nil
}

// Ping checks the Redis connection.
func (r *UserCacheRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (r *UserCacheRepository) Close() error {
	return r.client.Close()
}

// key generates a key in the format prefix:user_caches:network:address
func (r *UserCacheRepository) key(key entity.RecordKey) string {
	return fmt.Sprintf("%s:user_caches:%d:%s", r.keyPrefix, key.NetworkID, entity.NormalizeAddress(key.UserAddress))
}

// Create stores cache if no record exists for its key.
func (r *UserCacheRepository) Create(ctx context.Context, cache *entity.UserCache) (*entity.UserCache, error) {
	key := cache.Key()
	if err := key.Validate(); err != nil {
		return nil, err
	}

	stored := cache.Clone()
	stored.UserAddress = key.UserAddress
	data, err := json.Marshal(stored)
	if err != nil {
		return nil, fmt.Errorf("failed to encode user cache: %w", err)
	}

	ok, err := r.client.SetNX(ctx, r.key(key), data, r.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to create user cache %s: %w", key, err)
	}
	if !ok {
		return nil, fmt.Errorf("user cache %s: %w", key, entity.ErrAlreadyExists)
	}
	return stored, nil
}

// Get returns the cache for key, or nil if absent.
func (r *UserCacheRepository) Get(ctx context.Context, key entity.RecordKey) (*entity.UserCache, error) {
	data, err := r.client.Get(ctx, r.key(key)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user cache %s: %w", key, err)
	}
	return decodeUserCache(data)
}

// Update merges the provided fields into the stored record.
func (r *UserCacheRepository) Update(ctx context.Context, key entity.RecordKey, update entity.UserCacheUpdate) (*entity.UserCache, error) {
	redisKey := r.key(key)
	var result *entity.UserCache

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, redisKey).Bytes()
		if err == redis.Nil {
			return fmt.Errorf("user cache %s: %w", key, entity.ErrNotFound)
		}
		if err != nil {
			return err
		}

		cache, err := decodeUserCache(data)
		if err != nil {
			return err
		}
		update.Apply(cache)

		encoded, err := json.Marshal(cache)
		if err != nil {
			return fmt.Errorf("failed to encode user cache: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if r.ttl > 0 {
				pipe.Set(ctx, redisKey, encoded, r.ttl)
			} else {
				pipe.Set(ctx, redisKey, encoded, redis.KeepTTL)
			}
			return nil
		})
		if err != nil {
			return err
		}
		result = cache
		return nil
	}

	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		err := r.client.Watch(ctx, txf, redisKey)
		if errors.Is(err, redis.TxFailedErr) {
			r.logger.Debug("user cache update raced, retrying", "key", redisKey, "attempt", attempt+1)
			continue
		}
		if err != nil {
			if errors.Is(err, entity.ErrNotFound) {
				return nil, err
			}
			return nil, fmt.Errorf("failed to update user cache %s: %w", key, err)
		}
		return result, nil
	}
	return nil, fmt.Errorf("user cache %s: %w", key, entity.ErrConflict)
}

// Delete removes the record for key. Deleting a missing key is not an error.
func (r *UserCacheRepository) Delete(ctx context.Context, key entity.RecordKey) error {
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		return fmt.Errorf("failed to delete user cache %s: %w", key, err)
	}
	return nil
}

func decodeUserCache(data []byte) (*entity.UserCache, error) {
	var cache entity.UserCache
	if err := json.Unmarshal(data, &cache); err != nil {
		return nil, fmt.Errorf("failed to decode user cache: %w", err)
	}
	return &cache, nil
}

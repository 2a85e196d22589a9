package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/keymesh/socialproof/internal/domain/entity"
	"github.com/keymesh/socialproof/internal/ports/outbound"
)

// Compile-time check that UserCacheRepository implements outbound.UserCacheRepository
var _ outbound.UserCacheRepository = (*UserCacheRepository)(nil)

// UserCacheRepository is an in-memory UserCacheRepository for tests and local runs.
type UserCacheRepository struct {
	mu     sync.RWMutex
	caches map[string]*entity.UserCache
}

// NewUserCacheRepository creates an empty repository.
func NewUserCacheRepository() *UserCacheRepository {
	return &UserCacheRepository{caches: make(map[string]*entity.UserCache)}
}

// Create inserts cache, failing if the key is taken.
func (r *UserCacheRepository) Create(ctx context.Context, cache *entity.UserCache) (*entity.UserCache, error) {
	key := cache.Key()
	if err := key.Validate(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.caches[key.String()]; ok {
		return nil, fmt.Errorf("user cache %s: %w", key, entity.ErrAlreadyExists)
	}
	stored := cache.Clone()
	stored.UserAddress = key.UserAddress
	r.caches[key.String()] = stored
	return stored.Clone(), nil
}

// Get returns the cache record for key, or nil if absent.
func (r *UserCacheRepository) Get(ctx context.Context, key entity.RecordKey) (*entity.UserCache, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.caches[key.String()].Clone(), nil
}

// Update merges the provided fields into the stored record.
func (r *UserCacheRepository) Update(ctx context.Context, key entity.RecordKey, update entity.UserCacheUpdate) (*entity.UserCache, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cache, ok := r.caches[key.String()]
	if !ok {
		return nil, fmt.Errorf("user cache %s: %w", key, entity.ErrNotFound)
	}
	update.Apply(cache)
	return cache.Clone(), nil
}

// Delete removes the record for key.
func (r *UserCacheRepository) Delete(ctx context.Context, key entity.RecordKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.caches, key.String())
	return nil
}

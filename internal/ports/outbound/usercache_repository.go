package outbound

import (
	"context"

	"github.com/keymesh/socialproof/internal/domain/entity"
)

// UserCacheRepository persists cached identities and verification states.
type UserCacheRepository interface {
	// Create inserts a cache record. Returns entity.ErrAlreadyExists if the key is taken.
	Create(ctx context.Context, cache *entity.UserCache) (*entity.UserCache, error)

	// Get returns the cache record for key, or nil (with no error) if absent.
	Get(ctx context.Context, key entity.RecordKey) (*entity.UserCache, error)

	// Update merges the provided fields and returns the post-update record.
	// Returns entity.ErrNotFound if no record exists for key.
	Update(ctx context.Context, key entity.RecordKey, update entity.UserCacheUpdate) (*entity.UserCache, error)

	// Delete removes the record. Deleting a missing key is not an error.
	Delete(ctx context.Context, key entity.RecordKey) error
}

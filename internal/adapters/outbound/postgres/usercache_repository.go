package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/keymesh/socialproof/internal/domain/entity"
	"github.com/keymesh/socialproof/internal/ports/outbound"
)

// Compile-time check that UserCacheRepository implements outbound.UserCacheRepository
var _ outbound.UserCacheRepository = (*UserCacheRepository)(nil)

const userCacheColumns = `network_id, user_address, identity, verifications`

// UserCacheRepository stores UserCaches in the user_caches table.
type UserCacheRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewUserCacheRepository creates a new PostgreSQL user cache repository.
func NewUserCacheRepository(pool *pgxpool.Pool, logger *slog.Logger) (*UserCacheRepository, error) {
	if pool == nil {
		return nil, fmt.Errorf("database pool cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &UserCacheRepository{
		pool:   pool,
		logger: logger.With("component", "postgres-user-caches"),
	}, nil
}

// Create inserts cache. Returns entity.ErrAlreadyExists if the key is taken.
func (r *UserCacheRepository) Create(ctx context.Context, cache *entity.UserCache) (*entity.UserCache, error) {
	key := cache.Key()
	if err := key.Validate(); err != nil {
		return nil, err
	}

	identity, err := marshalIdentity(cache.Identity)
	if err != nil {
		return nil, err
	}
	verifications, err := marshalVerifications(cache.Verifications)
	if err != nil {
		return nil, err
	}
	if verifications == nil {
		verifications = []byte("{}")
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO user_caches (network_id, user_address, identity, verifications)
		VALUES ($1, $2, $3::jsonb, $4::jsonb)
		RETURNING `+userCacheColumns,
		int(key.NetworkID), key.UserAddress, identity, verifications)

	stored, err := scanUserCache(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("user cache %s: %w", key, entity.ErrAlreadyExists)
		}
		return nil, fmt.Errorf("failed to create user cache %s: %w", key, err)
	}
	return stored, nil
}

// Get returns the cache for key, or nil if none exists.
func (r *UserCacheRepository) Get(ctx context.Context, key entity.RecordKey) (*entity.UserCache, error) {
	key = entity.NewRecordKey(key.NetworkID, key.UserAddress)
	row := r.pool.QueryRow(ctx, `
		SELECT `+userCacheColumns+`
		FROM user_caches
		WHERE network_id = $1 AND user_address = $2`,
		int(key.NetworkID), key.UserAddress)

	cache, err := scanUserCache(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user cache %s: %w", key, err)
	}
	return cache, nil
}

// Update merges the provided fields. NULL parameters leave their column untouched.
func (r *UserCacheRepository) Update(ctx context.Context, key entity.RecordKey, update entity.UserCacheUpdate) (*entity.UserCache, error) {
	key = entity.NewRecordKey(key.NetworkID, key.UserAddress)

	identity, err := marshalIdentity(update.Identity)
	if err != nil {
		return nil, err
	}
	verifications, err := marshalVerifications(update.Verifications)
	if err != nil {
		return nil, err
	}

	row := r.pool.QueryRow(ctx, `
		UPDATE user_caches SET
			identity      = COALESCE($3::jsonb, identity),
			verifications = COALESCE($4::jsonb, verifications),
			updated_at    = NOW()
		WHERE network_id = $1 AND user_address = $2
		RETURNING `+userCacheColumns,
		int(key.NetworkID), key.UserAddress, identity, verifications)

	cache, err := scanUserCache(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("user cache %s: %w", key, entity.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update user cache %s: %w", key, err)
	}
	return cache, nil
}

// Delete removes the cache for key. Deleting a missing record is not an error.
func (r *UserCacheRepository) Delete(ctx context.Context, key entity.RecordKey) error {
	key = entity.NewRecordKey(key.NetworkID, key.UserAddress)
	if _, err := r.pool.Exec(ctx,
		`DELETE FROM user_caches WHERE network_id = $1 AND user_address = $2`,
		int(key.NetworkID), key.UserAddress); err != nil {
		return fmt.Errorf("failed to delete user cache %s: %w", key, err)
	}
	return nil
}

// Ping checks database connectivity.
func (r *UserCacheRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func scanUserCache(row pgx.Row) (*entity.UserCache, error) {
	var (
		networkID               int
		cache                   entity.UserCache
		identity, verifications []byte
	)
	if err := row.Scan(&networkID, &cache.UserAddress, &identity, &verifications); err != nil {
		return nil, err
	}
	cache.NetworkID = entity.NetworkID(networkID)

	if len(identity) > 0 {
		if err := json.Unmarshal(identity, &cache.Identity); err != nil {
			return nil, fmt.Errorf("decoding identity: %w", err)
		}
	}
	if err := json.Unmarshal(verifications, &cache.Verifications); err != nil {
		return nil, fmt.Errorf("decoding verifications: %w", err)
	}
	return &cache, nil
}

func marshalIdentity(id *entity.Identity) ([]byte, error) {
	if id == nil {
		return nil, nil
	}
	data, err := json.Marshal(id)
	if err != nil {
		return nil, fmt.Errorf("encoding identity: %w", err)
	}
	return data, nil
}

func marshalVerifications(v entity.CachedVerifications) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding verifications: %w", err)
	}
	return data, nil
}

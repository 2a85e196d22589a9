package testutil

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keymesh/socialproof/internal/domain/entity"
	"github.com/keymesh/socialproof/internal/ports/outbound"
)

var addrSeq atomic.Int64

// UniqueAddress returns a fresh, valid, lowercase address for tests sharing one store.
func UniqueAddress() string {
	return fmt.Sprintf("0x%040x", addrSeq.Add(1))
}

// SampleSocial returns a checked binding for platform.
func SampleSocial(platform entity.Platform, addr string) entity.BoundSocial {
	return entity.BoundSocial{
		Platform: platform,
		Status:   entity.BindingChecked,
		SignedClaim: entity.SignedClaim{
			Claim:     entity.Claim{UserAddress: addr, PublicKey: "0x02"},
			Signature: "0x03",
		},
		ProofURL: "https://twitter.com/statuses/1",
		Username: "alice",
	}
}

// RunVerificationRepositoryContract exercises the behaviour every
// outbound.VerificationRepository must share.
func RunVerificationRepositoryContract(t *testing.T, repo outbound.VerificationRepository) {
	t.Helper()
	ctx := context.Background()

	t.Run("create then get returns empty record", func(t *testing.T) {
		key := entity.NewRecordKey(entity.NetworkRinkeby, UniqueAddress())

		created, err := repo.Create(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, key.NetworkID, created.NetworkID)
		assert.Equal(t, key.UserAddress, created.UserAddress)

		got, err := repo.Get(ctx, key)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Empty(t, got.BindingSocials)
		assert.Empty(t, got.BoundSocials)
		assert.Equal(t, int64(0), got.LastFetchBlock)
	})

	t.Run("duplicate create fails with already exists", func(t *testing.T) {
		key := entity.NewRecordKey(entity.NetworkMainnet, UniqueAddress())
		_, err := repo.Create(ctx, key)
		require.NoError(t, err)

		_, err = repo.Create(ctx, key)
		assert.ErrorIs(t, err, entity.ErrAlreadyExists)
	})

	t.Run("same address on another network is a different record", func(t *testing.T) {
		addr := UniqueAddress()
		_, err := repo.Create(ctx, entity.NewRecordKey(entity.NetworkMainnet, addr))
		require.NoError(t, err)
		_, err = repo.Create(ctx, entity.NewRecordKey(entity.NetworkKovan, addr))
		assert.NoError(t, err)
	})

	t.Run("get missing returns nil without error", func(t *testing.T) {
		got, err := repo.Get(ctx, entity.NewRecordKey(entity.NetworkMainnet, UniqueAddress()))
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("update merges only provided fields", func(t *testing.T) {
		addr := UniqueAddress()
		key := entity.NewRecordKey(entity.NetworkMainnet, addr)
		_, err := repo.Create(ctx, key)
		require.NoError(t, err)

		social := SampleSocial(entity.PlatformTwitter, addr)
		_, err = repo.Update(ctx, key, entity.VerificationsUpdate{
			BoundSocials: entity.SocialMap{entity.PlatformTwitter: social},
		})
		require.NoError(t, err)

		block := int64(1234)
		updated, err := repo.Update(ctx, key, entity.VerificationsUpdate{LastFetchBlock: &block})
		require.NoError(t, err)
		assert.Equal(t, int64(1234), updated.LastFetchBlock)
		assert.Equal(t, social, updated.BoundSocials[entity.PlatformTwitter])

		got, err := repo.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, updated, got)
		assert.Empty(t, got.BindingSocials)
	})

	t.Run("update missing fails with not found", func(t *testing.T) {
		block := int64(1)
		_, err := repo.Update(ctx, entity.NewRecordKey(entity.NetworkMainnet, UniqueAddress()),
			entity.VerificationsUpdate{LastFetchBlock: &block})
		assert.ErrorIs(t, err, entity.ErrNotFound)
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		key := entity.NewRecordKey(entity.NetworkMainnet, UniqueAddress())
		_, err := repo.Create(ctx, key)
		require.NoError(t, err)

		require.NoError(t, repo.Delete(ctx, key))
		require.NoError(t, repo.Delete(ctx, key))

		got, err := repo.Get(ctx, key)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("mixed case addresses share a record", func(t *testing.T) {
		addr := "0xABCDEF" + UniqueAddress()[8:]
		_, err := repo.Create(ctx, entity.NewRecordKey(entity.NetworkMainnet, addr))
		require.NoError(t, err)

		got, err := repo.Get(ctx, entity.NewRecordKey(entity.NetworkMainnet, entity.NormalizeAddress(addr)))
		require.NoError(t, err)
		assert.NotNil(t, got)
	})
}

// RunUserCacheRepositoryContract exercises the behaviour every
// outbound.UserCacheRepository must share.
func RunUserCacheRepositoryContract(t *testing.T, repo outbound.UserCacheRepository) {
	t.Helper()
	ctx := context.Background()

	t.Run("create then get round-trips identity", func(t *testing.T) {
		key := entity.NewRecordKey(entity.NetworkMainnet, UniqueAddress())
		cache := entity.NewUserCache(key)
		cache.Identity = &entity.Identity{PublicKey: "0xabc", BlockNumber: 42, BlockHash: "0xhash"}

		_, err := repo.Create(ctx, cache)
		require.NoError(t, err)

		got, err := repo.Get(ctx, key)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, cache.Identity, got.Identity)
	})

	t.Run("duplicate create fails with already exists", func(t *testing.T) {
		cache := entity.NewUserCache(entity.NewRecordKey(entity.NetworkMainnet, UniqueAddress()))
		_, err := repo.Create(ctx, cache)
		require.NoError(t, err)
		_, err = repo.Create(ctx, cache)
		assert.ErrorIs(t, err, entity.ErrAlreadyExists)
	})

	t.Run("get missing returns nil", func(t *testing.T) {
		got, err := repo.Get(ctx, entity.NewRecordKey(entity.NetworkMainnet, UniqueAddress()))
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("update verifications keeps identity", func(t *testing.T) {
		key := entity.NewRecordKey(entity.NetworkMainnet, UniqueAddress())
		cache := entity.NewUserCache(key)
		cache.Identity = &entity.Identity{PublicKey: "0xabc", BlockNumber: 1, BlockHash: "0x01"}
		_, err := repo.Create(ctx, cache)
		require.NoError(t, err)

		verifications := entity.NewCachedVerifications()
		block := int64(99)
		verifications[entity.PlatformTwitter] = entity.CachedVerification{LastFetchBlock: &block}

		updated, err := repo.Update(ctx, key, entity.UserCacheUpdate{Verifications: verifications})
		require.NoError(t, err)
		assert.Equal(t, cache.Identity, updated.Identity)
		require.NotNil(t, updated.Verifications[entity.PlatformTwitter].LastFetchBlock)
		assert.Equal(t, int64(99), *updated.Verifications[entity.PlatformTwitter].LastFetchBlock)
	})

	t.Run("update missing fails with not found", func(t *testing.T) {
		_, err := repo.Update(ctx, entity.NewRecordKey(entity.NetworkMainnet, UniqueAddress()),
			entity.UserCacheUpdate{Identity: &entity.Identity{PublicKey: "0x01"}})
		assert.ErrorIs(t, err, entity.ErrNotFound)
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		key := entity.NewRecordKey(entity.NetworkMainnet, UniqueAddress())
		require.NoError(t, repo.Delete(ctx, key))
		_, err := repo.Create(ctx, entity.NewUserCache(key))
		require.NoError(t, err)
		require.NoError(t, repo.Delete(ctx, key))
		require.NoError(t, repo.Delete(ctx, key))
	})
}

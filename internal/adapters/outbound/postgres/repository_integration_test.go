//go:build integration

package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keymesh/socialproof/internal/domain/entity"
	"github.com/keymesh/socialproof/internal/testutil"
)

func TestPostgresRepositories(t *testing.T) {
	pool, _, cleanup := testutil.SetupPostgres(t)
	defer cleanup()

	verifications, err := NewVerificationRepository(pool, nil)
	require.NoError(t, err)
	caches, err := NewUserCacheRepository(pool, nil)
	require.NoError(t, err)

	t.Run("verification contract", func(t *testing.T) {
		testutil.RunVerificationRepositoryContract(t, verifications)
	})

	t.Run("user cache contract", func(t *testing.T) {
		testutil.RunUserCacheRepositoryContract(t, caches)
	})

	t.Run("negative watermark is rejected before the query", func(t *testing.T) {
		key := entity.NewRecordKey(entity.NetworkMainnet, testutil.UniqueAddress())
		_, err := verifications.Create(context.Background(), key)
		require.NoError(t, err)

		block := int64(-1)
		_, err = verifications.Update(context.Background(), key, entity.VerificationsUpdate{LastFetchBlock: &block})
		assert.ErrorIs(t, err, entity.ErrInvalidInput)
	})

	t.Run("ping", func(t *testing.T) {
		assert.NoError(t, caches.Ping(context.Background()))
	})
}

func TestOpenPool(t *testing.T) {
	dsn, cleanup := testutil.StartPostgres(t)
	defer cleanup()

	pool, err := OpenPool(context.Background(), DefaultDBConfig(dsn))
	require.NoError(t, err)
	defer pool.Close()

	_, err = OpenPool(context.Background(), DefaultDBConfig("not a url"))
	assert.Error(t, err)
}

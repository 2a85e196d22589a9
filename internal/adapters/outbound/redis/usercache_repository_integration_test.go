//go:build integration

package redis

import (
	"context"
	"testing"
	"time"

	"github.com/keymesh/socialproof/internal/domain/entity"
	"github.com/keymesh/socialproof/internal/testutil"
)

func setupRedis(t *testing.T, ttl time.Duration) *UserCacheRepository {
	t.Helper()
	addr, cleanup := testutil.StartRedis(t)
	t.Cleanup(cleanup)

	repo, err := NewUserCacheRepository(Config{Addr: addr, TTL: ttl, KeyPrefix: "test"}, nil)
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	ctx := context.Background()
	for i := 0; i < 30; i++ {
		if err := repo.Ping(ctx); err == nil {
			return repo
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatal("timed out waiting for redis")
	return nil
}

func TestUserCacheRepository_Contract(t *testing.T) {
	testutil.RunUserCacheRepositoryContract(t, setupRedis(t, 0))
}

func TestUserCacheRepository_TTL(t *testing.T) {
	repo := setupRedis(t, time.Second)
	ctx := context.Background()
	key := entity.NewRecordKey(entity.NetworkMainnet, testutil.UniqueAddress())

	if _, err := repo.Create(ctx, entity.NewUserCache(key)); err != nil {
		t.Fatalf("create: %v", err)
	}
	time.Sleep(1500 * time.Millisecond)

	got, err := repo.Get(ctx, key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Errorf("expected record to expire, got %+v", got)
	}
}

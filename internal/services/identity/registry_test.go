package identity

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keymesh/socialproof/internal/adapters/outbound/memory"
	"github.com/keymesh/socialproof/internal/domain/entity"
	"github.com/keymesh/socialproof/internal/ports/outbound"
	"github.com/keymesh/socialproof/internal/testutil"
)

func TestRegistry_NetworksAreDisjoint(t *testing.T) {
	var factoryCalls atomic.Int32
	resolvers := map[entity.NetworkID]*mockResolver{
		entity.NetworkMainnet: {getIdentityFn: func(context.Context, string) (outbound.ChainIdentity, error) {
			return outbound.ChainIdentity{PublicKey: "0xaaaa", BlockNumber: 1}, nil
		}},
		entity.NetworkRinkeby: {getIdentityFn: func(context.Context, string) (outbound.ChainIdentity, error) {
			return outbound.ChainIdentity{PublicKey: "0xbbbb", BlockNumber: 2}, nil
		}},
	}
	reg, err := NewRegistry(Config{}, memory.NewUserCacheRepository(), func(n entity.NetworkID) (outbound.IdentityResolver, error) {
		factoryCalls.Add(1)
		r, ok := resolvers[n]
		if !ok {
			return nil, errors.New("no rpc configured")
		}
		return r, nil
	})
	require.NoError(t, err)

	ctx := context.Background()
	addr := testutil.UniqueAddress()

	main, err := reg.GetIdentity(ctx, entity.NetworkMainnet, addr)
	require.NoError(t, err)
	rinkeby, err := reg.GetIdentity(ctx, entity.NetworkRinkeby, addr)
	require.NoError(t, err)

	assert.Equal(t, "0xaaaa", main.PublicKey)
	assert.Equal(t, "0xbbbb", rinkeby.PublicKey)

	_, err = reg.GetIdentity(ctx, entity.NetworkMainnet, addr)
	require.NoError(t, err)
	assert.Equal(t, int32(2), factoryCalls.Load(), "caches are created once per network")

	_, err = reg.GetIdentity(ctx, entity.NetworkKovan, addr)
	assert.Error(t, err)
}

func TestRegistry_SelectSwitchesActiveNetwork(t *testing.T) {
	reg, err := NewRegistry(Config{}, memory.NewUserCacheRepository(), func(entity.NetworkID) (outbound.IdentityResolver, error) {
		return &mockResolver{}, nil
	})
	require.NoError(t, err)

	active, err := reg.Active()
	require.NoError(t, err)
	assert.Equal(t, entity.NetworkMainnet, active.NetworkID())

	_, err = reg.Select(entity.NetworkRopsten)
	require.NoError(t, err)
	active, err = reg.Active()
	require.NoError(t, err)
	assert.Equal(t, entity.NetworkRopsten, active.NetworkID())

	_, err = reg.Select(0)
	assert.ErrorIs(t, err, entity.ErrInvalidInput)
}

func TestRegistry_VerificationsAreScopedByNetwork(t *testing.T) {
	reg, err := NewRegistry(Config{}, memory.NewUserCacheRepository(), func(entity.NetworkID) (outbound.IdentityResolver, error) {
		return &mockResolver{}, nil
	})
	require.NoError(t, err)

	ctx := context.Background()
	addr := testutil.UniqueAddress()
	social := testutil.SampleSocial(entity.PlatformFacebook, addr)

	v := entity.NewCachedVerifications()
	v[entity.PlatformFacebook] = entity.CachedVerification{SocialProof: &social}
	require.NoError(t, reg.SetVerifications(ctx, entity.NetworkKovan, addr, v))

	kovan, err := reg.GetVerifications(ctx, entity.NetworkKovan, addr)
	require.NoError(t, err)
	assert.NotNil(t, kovan[entity.PlatformFacebook].SocialProof)

	mainnet, err := reg.GetVerifications(ctx, entity.NetworkMainnet, addr)
	require.NoError(t, err)
	assert.Nil(t, mainnet[entity.PlatformFacebook].SocialProof)
}

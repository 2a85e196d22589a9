package verification

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keymesh/socialproof/internal/adapters/outbound/memory"
	"github.com/keymesh/socialproof/internal/domain/entity"
	"github.com/keymesh/socialproof/internal/testutil"
)

// fakeProfiles is an in-memory ProfileStore.
type fakeProfiles struct {
	mu            sync.Mutex
	identities    map[string]*entity.Identity
	verifications map[string]entity.CachedVerifications
	setCalls      int
}

func newFakeProfiles() *fakeProfiles {
	return &fakeProfiles{
		identities:    make(map[string]*entity.Identity),
		verifications: make(map[string]entity.CachedVerifications),
	}
}

func profileKey(n entity.NetworkID, addr string) string {
	return entity.NewRecordKey(n, addr).String()
}

func (f *fakeProfiles) GetIdentity(_ context.Context, n entity.NetworkID, addr string) (*entity.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.identities[profileKey(n, addr)]
	if !ok {
		return nil, entity.ErrNotFound
	}
	return id, nil
}

func (f *fakeProfiles) GetVerifications(_ context.Context, n entity.NetworkID, addr string) (entity.CachedVerifications, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := entity.NewCachedVerifications()
	for p, v := range f.verifications[profileKey(n, addr)].Clone() {
		out[p] = v
	}
	return out, nil
}

func (f *fakeProfiles) SetVerifications(_ context.Context, n entity.NetworkID, addr string, v entity.CachedVerifications) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setCalls++
	f.verifications[profileKey(n, addr)] = v.Clone()
	return nil
}

func newTestService(t *testing.T, opts ...Option) (*Service, *memory.VerificationRepository) {
	t.Helper()
	repo := memory.NewVerificationRepository()
	svc, err := NewService(repo, nil, opts...)
	require.NoError(t, err)
	return svc, repo
}

func TestNewService_RequiresRepository(t *testing.T) {
	_, err := NewService(nil, nil)
	assert.Error(t, err)
}

func TestEnsure_CreatesOnce(t *testing.T) {
	svc, repo := newTestService(t)
	key := entity.NewRecordKey(entity.NetworkMainnet, testutil.UniqueAddress())

	first, err := svc.Ensure(context.Background(), key)
	require.NoError(t, err)
	assert.Empty(t, first.BoundSocials)
	assert.Equal(t, int64(0), first.LastFetchBlock)

	_, err = svc.Ensure(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, 1, repo.Len())
}

func TestBindingLifecycle(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	addr := testutil.UniqueAddress()
	key := entity.NewRecordKey(entity.NetworkRinkeby, addr)
	social := testutil.SampleSocial(entity.PlatformTwitter, addr)

	pending := social
	pending.Status = entity.BindingPending
	record, err := svc.StartBinding(ctx, key, pending)
	require.NoError(t, err)
	assert.Contains(t, record.BindingSocials, entity.PlatformTwitter)
	assert.NotContains(t, record.BoundSocials, entity.PlatformTwitter)

	record, err = svc.CompleteBinding(ctx, key, social)
	require.NoError(t, err)
	assert.NotContains(t, record.BindingSocials, entity.PlatformTwitter)
	require.Contains(t, record.BoundSocials, entity.PlatformTwitter)
	assert.Equal(t, entity.BindingChecked, record.BoundSocials[entity.PlatformTwitter].Status)

	// Restarting a binding drops the stale bound entry.
	record, err = svc.StartBinding(ctx, key, pending)
	require.NoError(t, err)
	assert.NotContains(t, record.BoundSocials, entity.PlatformTwitter)

	record, err = svc.Unbind(ctx, key, entity.PlatformTwitter)
	require.NoError(t, err)
	assert.Empty(t, record.BindingSocials)
	assert.Empty(t, record.BoundSocials)
}

func TestCompleteBinding_LeavesOtherPlatforms(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	addr := testutil.UniqueAddress()
	key := entity.NewRecordKey(entity.NetworkMainnet, addr)

	_, err := svc.CompleteBinding(ctx, key, testutil.SampleSocial(entity.PlatformFacebook, addr))
	require.NoError(t, err)
	record, err := svc.CompleteBinding(ctx, key, testutil.SampleSocial(entity.PlatformTwitter, addr))
	require.NoError(t, err)

	assert.Len(t, record.BoundSocials, 2)
}

func TestCompleteBinding_SyncsProfile(t *testing.T) {
	profiles := newFakeProfiles()
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	svc, _ := newTestService(t, WithProfileSync(profiles, func() time.Time { return at }))
	ctx := context.Background()
	addr := testutil.UniqueAddress()
	key := entity.NewRecordKey(entity.NetworkMainnet, addr)

	_, err := svc.CompleteBinding(ctx, key, testutil.SampleSocial(entity.PlatformTwitter, addr))
	require.NoError(t, err)

	v, err := profiles.GetVerifications(ctx, entity.NetworkMainnet, addr)
	require.NoError(t, err)
	cached := v[entity.PlatformTwitter]
	require.NotNil(t, cached.SocialProof)
	require.NotNil(t, cached.VerifiedStatus)
	assert.Equal(t, entity.VerifyValid, cached.VerifiedStatus.Status)
	assert.Equal(t, at, cached.VerifiedStatus.LastVerifiedAt)
	require.NotNil(t, cached.LastFetchBlock)
	assert.Equal(t, int64(0), *cached.LastFetchBlock)
}

func TestUnbind_MissingRecord(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Unbind(context.Background(), entity.NewRecordKey(entity.NetworkMainnet, testutil.UniqueAddress()), entity.PlatformTwitter)
	assert.ErrorIs(t, err, entity.ErrNotFound)
}

func TestAdvanceWatermark_IsMonotonic(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	key := entity.NewRecordKey(entity.NetworkMainnet, testutil.UniqueAddress())

	record, err := svc.AdvanceWatermark(ctx, key, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(100), record.LastFetchBlock)

	record, err = svc.AdvanceWatermark(ctx, key, 50)
	require.NoError(t, err)
	assert.Equal(t, int64(100), record.LastFetchBlock)

	record, err = svc.AdvanceWatermark(ctx, key, 150)
	require.NoError(t, err)
	assert.Equal(t, int64(150), record.LastFetchBlock)
}

func TestRemove(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	key := entity.NewRecordKey(entity.NetworkMainnet, testutil.UniqueAddress())

	_, err := svc.Ensure(ctx, key)
	require.NoError(t, err)
	require.NoError(t, svc.Remove(ctx, key))
	require.NoError(t, svc.Remove(ctx, key))
	assert.Equal(t, 0, repo.Len())
}

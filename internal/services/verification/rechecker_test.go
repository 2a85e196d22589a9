package verification

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keymesh/socialproof/internal/adapters/outbound/memory"
	"github.com/keymesh/socialproof/internal/domain/entity"
	"github.com/keymesh/socialproof/internal/testutil"
)

type stubAdapter struct {
	platform   entity.Platform
	candidates []entity.Candidate
	fetchErr   error
	fetches    int
}

func (s *stubAdapter) Platform() entity.Platform { return s.platform }
func (s *stubAdapter) Steps() []string           { return []string{"Done"} }

func (s *stubAdapter) BuildClaimText(claim entity.SignedClaim) string { return claim.Text() }

func (s *stubAdapter) FetchCandidates(context.Context, entity.PlatformIdentity) ([]entity.Candidate, error) {
	s.fetches++
	return s.candidates, s.fetchErr
}

func (s *stubAdapter) ProofURL(id string, _ entity.PlatformIdentity) (string, error) {
	return "https://example.com/" + id, nil
}

func (s *stubAdapter) RecheckIdentity(social entity.BoundSocial) (entity.PlatformIdentity, error) {
	if social.Username == "" {
		return entity.PlatformIdentity{}, errors.New("no username")
	}
	return entity.PlatformIdentity{Username: social.Username}, nil
}

type stubVerifier struct {
	ok bool
}

func (v stubVerifier) Verify([]byte, string, string) (bool, error) { return v.ok, nil }

type recheckFixture struct {
	rechecker *Rechecker
	profiles  *fakeProfiles
	adapter   *stubAdapter
	events    *memory.EventSink
	addr      string
	social    entity.BoundSocial
	now       time.Time
}

func newRecheckFixture(t *testing.T, verified bool) *recheckFixture {
	t.Helper()
	f := &recheckFixture{
		profiles: newFakeProfiles(),
		adapter:  &stubAdapter{platform: entity.PlatformTwitter},
		events:   memory.NewEventSink(),
		addr:     testutil.UniqueAddress(),
		now:      time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	f.social = testutil.SampleSocial(entity.PlatformTwitter, f.addr)

	v := entity.NewCachedVerifications()
	v[entity.PlatformTwitter] = entity.CachedVerification{SocialProof: &f.social}
	require.NoError(t, f.profiles.SetVerifications(context.Background(), entity.NetworkMainnet, f.addr, v))
	f.profiles.identities[profileKey(entity.NetworkMainnet, f.addr)] = &entity.Identity{PublicKey: f.social.SignedClaim.Claim.PublicKey}

	r, err := NewRechecker(RecheckerConfig{Events: f.events, Now: func() time.Time { return f.now }},
		f.profiles, stubVerifier{ok: verified}, f.adapter)
	require.NoError(t, err)
	f.rechecker = r
	return f
}

func (f *recheckFixture) publishClaim() {
	f.adapter.candidates = append(f.adapter.candidates, entity.Candidate{ID: "1", Text: f.social.SignedClaim.Text()})
}

func (f *recheckFixture) storedStatus(t *testing.T) *entity.VerifyStatus {
	t.Helper()
	v, err := f.profiles.GetVerifications(context.Background(), entity.NetworkMainnet, f.addr)
	require.NoError(t, err)
	return v[entity.PlatformTwitter].VerifiedStatus
}

func TestRecheck_Valid(t *testing.T) {
	f := newRecheckFixture(t, true)
	f.publishClaim()

	status, err := f.rechecker.Recheck(context.Background(), entity.NetworkMainnet, f.addr, entity.PlatformTwitter)
	require.NoError(t, err)
	assert.Equal(t, entity.VerifyValid, status.Status)
	assert.Equal(t, f.now, status.LastVerifiedAt)

	stored := f.storedStatus(t)
	require.NotNil(t, stored)
	assert.Equal(t, entity.VerifyValid, stored.Status)

	events := f.events.GetVerificationEvents()
	require.Len(t, events, 1)
	assert.Equal(t, entity.PlatformTwitter, events[0].Platform)
}

func TestRecheck_Outcomes(t *testing.T) {
	tests := []struct {
		name     string
		verified bool
		publish  bool
		mutate   func(f *recheckFixture)
		want     entity.VerifyResult
	}{
		{name: "claim removed", verified: true, want: entity.VerifyNotFound},
		{name: "bad signature", verified: false, publish: true, want: entity.VerifyInvalid},
		{
			name: "public key rotated", verified: true, publish: true,
			mutate: func(f *recheckFixture) {
				f.profiles.identities[profileKey(entity.NetworkMainnet, f.addr)] = &entity.Identity{PublicKey: "0xother"}
			},
			want: entity.VerifyInvalid,
		},
		{
			name: "identity gone", verified: true, publish: true,
			mutate: func(f *recheckFixture) {
				delete(f.profiles.identities, profileKey(entity.NetworkMainnet, f.addr))
			},
			want: entity.VerifyInvalid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newRecheckFixture(t, tt.verified)
			if tt.publish {
				f.publishClaim()
			}
			if tt.mutate != nil {
				tt.mutate(f)
			}

			status, err := f.rechecker.Recheck(context.Background(), entity.NetworkMainnet, f.addr, entity.PlatformTwitter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, status.Status)
			assert.Equal(t, tt.want, f.storedStatus(t).Status)
		})
	}
}

func TestRecheck_FetchFailureLeavesStatus(t *testing.T) {
	f := newRecheckFixture(t, true)
	f.adapter.fetchErr = entity.ErrTransientIO

	_, err := f.rechecker.Recheck(context.Background(), entity.NetworkMainnet, f.addr, entity.PlatformTwitter)
	assert.ErrorIs(t, err, entity.ErrTransientIO)
	assert.Nil(t, f.storedStatus(t))
	assert.Empty(t, f.events.GetEvents())
}

func TestRecheck_Errors(t *testing.T) {
	f := newRecheckFixture(t, true)

	_, err := f.rechecker.Recheck(context.Background(), entity.NetworkMainnet, f.addr, entity.PlatformFacebook)
	assert.ErrorIs(t, err, entity.ErrInvalidInput, "no adapter registered")

	_, err = f.rechecker.Recheck(context.Background(), entity.NetworkMainnet, testutil.UniqueAddress(), entity.PlatformTwitter)
	assert.ErrorIs(t, err, entity.ErrNotFound)
}

func TestRefreshStale(t *testing.T) {
	f := newRecheckFixture(t, true)
	f.publishClaim()
	ctx := context.Background()

	platforms, err := f.rechecker.RefreshStale(ctx, entity.NetworkMainnet, f.addr)
	require.NoError(t, err)
	assert.Equal(t, []entity.Platform{entity.PlatformTwitter}, platforms)
	assert.Equal(t, 1, f.adapter.fetches)

	// Fresh statuses are skipped.
	f.now = f.now.Add(time.Hour)
	platforms, err = f.rechecker.RefreshStale(ctx, entity.NetworkMainnet, f.addr)
	require.NoError(t, err)
	assert.Empty(t, platforms)
	assert.Equal(t, 1, f.adapter.fetches)

	f.now = f.now.Add(entity.RecheckInterval)
	platforms, err = f.rechecker.RefreshStale(ctx, entity.NetworkMainnet, f.addr)
	require.NoError(t, err)
	assert.Len(t, platforms, 1)
	assert.Equal(t, 2, f.adapter.fetches)
}

func TestRefreshStale_CollectsErrors(t *testing.T) {
	f := newRecheckFixture(t, true)
	f.adapter.fetchErr = entity.ErrTransientIO

	platforms, err := f.rechecker.RefreshStale(context.Background(), entity.NetworkMainnet, f.addr)
	assert.ErrorIs(t, err, entity.ErrTransientIO)
	assert.Empty(t, platforms)
}

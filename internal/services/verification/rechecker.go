package verification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/keymesh/socialproof/internal/domain/entity"
	"github.com/keymesh/socialproof/internal/ports/outbound"
)

// ProfileStore is the cached identity and verification state the rechecker reads and writes.
type ProfileStore interface {
	GetIdentity(ctx context.Context, networkID entity.NetworkID, userAddress string) (*entity.Identity, error)
	GetVerifications(ctx context.Context, networkID entity.NetworkID, userAddress string) (entity.CachedVerifications, error)
	SetVerifications(ctx context.Context, networkID entity.NetworkID, userAddress string, verifications entity.CachedVerifications) error
}

// RecheckerConfig holds configuration for the Rechecker.
type RecheckerConfig struct {
	Logger *slog.Logger
	Events outbound.EventSink
	Now    func() time.Time
}

// Rechecker re-runs the proof check for bound socials and stores a fresh VerifyStatus.
type Rechecker struct {
	adapters map[entity.Platform]outbound.PlatformAdapter
	verifier outbound.SignatureVerifier
	profiles ProfileStore
	events   outbound.EventSink
	now      func() time.Time
	logger   *slog.Logger
}

// NewRechecker creates a Rechecker over the given platform adapters.
func NewRechecker(config RecheckerConfig, profiles ProfileStore, verifier outbound.SignatureVerifier, adapters ...outbound.PlatformAdapter) (*Rechecker, error) {
	if profiles == nil {
		return nil, fmt.Errorf("profile store is required")
	}
	if verifier == nil {
		return nil, fmt.Errorf("signature verifier is required")
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	byPlatform := make(map[entity.Platform]outbound.PlatformAdapter, len(adapters))
	for _, a := range adapters {
		byPlatform[a.Platform()] = a
	}
	return &Rechecker{
		adapters: byPlatform,
		verifier: verifier,
		profiles: profiles,
		events:   config.Events,
		now:      config.Now,
		logger:   config.Logger.With("component", "rechecker"),
	}, nil
}

// Recheck verifies the cached binding for platform and stores the outcome.
// A fetch failure is returned and leaves the stored status untouched.
func (r *Rechecker) Recheck(ctx context.Context, networkID entity.NetworkID, userAddress string, platform entity.Platform) (entity.VerifyStatus, error) {
	adapter, ok := r.adapters[platform]
	if !ok {
		return entity.VerifyStatus{}, fmt.Errorf("%w: no adapter for platform %q", entity.ErrInvalidInput, platform)
	}

	verifications, err := r.profiles.GetVerifications(ctx, networkID, userAddress)
	if err != nil {
		return entity.VerifyStatus{}, fmt.Errorf("loading verifications: %w", err)
	}
	cached := verifications[platform]
	if cached.SocialProof == nil {
		return entity.VerifyStatus{}, fmt.Errorf("no %s binding for %s: %w", platform, userAddress, entity.ErrNotFound)
	}
	social := *cached.SocialProof

	result, err := r.evaluate(ctx, adapter, networkID, userAddress, social)
	if err != nil {
		return entity.VerifyStatus{}, err
	}

	status := entity.NewVerifyStatus(result, r.now())
	cached.VerifiedStatus = &status
	verifications[platform] = cached
	if err := r.profiles.SetVerifications(ctx, networkID, userAddress, verifications); err != nil {
		return entity.VerifyStatus{}, fmt.Errorf("storing verify status: %w", err)
	}

	r.logger.Info("binding rechecked", "network", networkID, "address", userAddress, "platform", platform, "result", result)
	if r.events != nil {
		event := outbound.VerificationEvent{
			ID:          uuid.NewString(),
			NetworkID:   networkID,
			UserAddress: entity.NormalizeAddress(userAddress),
			Platform:    platform,
			Status:      status,
		}
		if err := r.events.Publish(ctx, event); err != nil {
			r.logger.Warn("failed to publish verification event", "error", err)
		}
	}
	return status, nil
}

func (r *Rechecker) evaluate(ctx context.Context, adapter outbound.PlatformAdapter, networkID entity.NetworkID, userAddress string, social entity.BoundSocial) (entity.VerifyResult, error) {
	identity, err := adapter.RecheckIdentity(social)
	if err != nil {
		return entity.VerifyInvalid, nil
	}

	candidates, err := adapter.FetchCandidates(ctx, identity)
	if err != nil {
		return entity.VerifyUnknown, fmt.Errorf("fetching %s content: %w", adapter.Platform(), err)
	}
	text := adapter.BuildClaimText(social.SignedClaim)
	found := false
	for _, c := range candidates {
		if c.Text == text {
			found = true
			break
		}
	}
	if !found {
		return entity.VerifyNotFound, nil
	}

	claim := social.SignedClaim.Claim
	if entity.NormalizeAddress(claim.UserAddress) != entity.NormalizeAddress(userAddress) {
		return entity.VerifyInvalid, nil
	}

	chainIdentity, err := r.profiles.GetIdentity(ctx, networkID, userAddress)
	if errors.Is(err, entity.ErrNotFound) {
		return entity.VerifyInvalid, nil
	}
	if err != nil {
		return entity.VerifyUnknown, fmt.Errorf("loading identity: %w", err)
	}
	if !strings.EqualFold(chainIdentity.PublicKey, claim.PublicKey) {
		return entity.VerifyInvalid, nil
	}

	payload, err := claim.Payload()
	if err != nil {
		return entity.VerifyUnknown, err
	}
	ok, err := r.verifier.Verify(payload, social.SignedClaim.Signature, chainIdentity.PublicKey)
	if err != nil || !ok {
		return entity.VerifyInvalid, nil
	}
	return entity.VerifyValid, nil
}

// RefreshStale rechecks every bound social whose status needs it and returns
// the platforms that were rechecked. Failures for one platform do not stop the others.
func (r *Rechecker) RefreshStale(ctx context.Context, networkID entity.NetworkID, userAddress string) ([]entity.Platform, error) {
	verifications, err := r.profiles.GetVerifications(ctx, networkID, userAddress)
	if err != nil {
		return nil, fmt.Errorf("loading verifications: %w", err)
	}

	now := r.now()
	var rechecked []entity.Platform
	var errs []error
	for _, platform := range entity.Platforms {
		cached := verifications[platform]
		if cached.SocialProof == nil {
			continue
		}
		if cached.VerifiedStatus != nil && !cached.VerifiedStatus.NeedsRecheck(now) {
			continue
		}
		if _, err := r.Recheck(ctx, networkID, userAddress, platform); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", platform, err))
			continue
		}
		rechecked = append(rechecked, platform)
	}
	return rechecked, errors.Join(errs...)
}

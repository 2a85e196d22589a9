// Package verification persists social bindings and re-checks them once they go stale.
package verification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/keymesh/socialproof/internal/domain/entity"
	"github.com/keymesh/socialproof/internal/ports/outbound"
)

// Service applies binding transitions to VerificationsRecords.
//
// Each transition is a Get followed by an Update; there is no lock across the
// two calls, so concurrent writers to the same key resolve as last-write-wins.
type Service struct {
	repo     outbound.VerificationRepository
	profiles ProfileStore
	now      func() time.Time
	logger   *slog.Logger
}

// Option customizes a Service.
type Option func(*Service)

// WithProfileSync mirrors completed bindings into the cached verifications of
// profiles, marked valid as of the completion time.
func WithProfileSync(profiles ProfileStore, now func() time.Time) Option {
	return func(s *Service) {
		s.profiles = profiles
		if now != nil {
			s.now = now
		}
	}
}

// NewService creates a Service over repo.
func NewService(repo outbound.VerificationRepository, logger *slog.Logger, opts ...Option) (*Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("verification repository is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		repo:   repo,
		now:    time.Now,
		logger: logger.With("component", "verification-service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Get returns the record for key, or nil if none exists.
func (s *Service) Get(ctx context.Context, key entity.RecordKey) (*entity.VerificationsRecord, error) {
	return s.repo.Get(ctx, key)
}

// Ensure returns the record for key, creating an empty one if needed.
func (s *Service) Ensure(ctx context.Context, key entity.RecordKey) (*entity.VerificationsRecord, error) {
	record, err := s.repo.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("loading verifications %s: %w", key, err)
	}
	if record != nil {
		return record, nil
	}

	record, err = s.repo.Create(ctx, key)
	if errors.Is(err, entity.ErrAlreadyExists) {
		// Lost a create race; the other writer's record is as good as ours.
		record, err = s.repo.Get(ctx, key)
		if err == nil && record == nil {
			return nil, fmt.Errorf("verifications %s vanished after create race: %w", key, entity.ErrConflict)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("creating verifications %s: %w", key, err)
	}
	return record, nil
}

// StartBinding stores social as pending and drops any bound entry for its platform.
func (s *Service) StartBinding(ctx context.Context, key entity.RecordKey, social entity.BoundSocial) (*entity.VerificationsRecord, error) {
	return s.transition(ctx, key, func(r *entity.VerificationsRecord) { r.StartBinding(social) })
}

// CompleteBinding moves social's platform to the bound map.
func (s *Service) CompleteBinding(ctx context.Context, key entity.RecordKey, social entity.BoundSocial) (*entity.VerificationsRecord, error) {
	record, err := s.transition(ctx, key, func(r *entity.VerificationsRecord) { r.CompleteBinding(social) })
	if err != nil {
		return nil, err
	}
	s.logger.Info("binding stored", "key", key.String(), "platform", social.Platform)

	if s.profiles != nil {
		if err := s.syncProfile(ctx, key, record, social); err != nil {
			return nil, fmt.Errorf("syncing cached verifications %s: %w", key, err)
		}
	}
	return record, nil
}

func (s *Service) syncProfile(ctx context.Context, key entity.RecordKey, record *entity.VerificationsRecord, social entity.BoundSocial) error {
	verifications, err := s.profiles.GetVerifications(ctx, key.NetworkID, key.UserAddress)
	if err != nil {
		return err
	}
	bound := record.BoundSocials[social.Platform]
	block := record.LastFetchBlock
	status := entity.NewVerifyStatus(entity.VerifyValid, s.now())
	verifications[social.Platform] = entity.CachedVerification{
		SocialProof:    &bound,
		LastFetchBlock: &block,
		VerifiedStatus: &status,
	}
	return s.profiles.SetVerifications(ctx, key.NetworkID, key.UserAddress, verifications)
}

// Unbind removes platform from both maps.
func (s *Service) Unbind(ctx context.Context, key entity.RecordKey, platform entity.Platform) (*entity.VerificationsRecord, error) {
	record, err := s.repo.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("loading verifications %s: %w", key, err)
	}
	if record == nil {
		return nil, fmt.Errorf("verifications %s: %w", key, entity.ErrNotFound)
	}
	delete(record.BindingSocials, platform)
	delete(record.BoundSocials, platform)
	return s.repo.Update(ctx, key, entity.UpdateFromRecord(record))
}

// AdvanceWatermark raises LastFetchBlock to block. Lower values are ignored.
func (s *Service) AdvanceWatermark(ctx context.Context, key entity.RecordKey, block int64) (*entity.VerificationsRecord, error) {
	record, err := s.Ensure(ctx, key)
	if err != nil {
		return nil, err
	}
	if block <= record.LastFetchBlock {
		return record, nil
	}
	return s.repo.Update(ctx, key, entity.VerificationsUpdate{LastFetchBlock: &block})
}

// Remove deletes the record for key.
func (s *Service) Remove(ctx context.Context, key entity.RecordKey) error {
	return s.repo.Delete(ctx, key)
}

func (s *Service) transition(ctx context.Context, key entity.RecordKey, apply func(*entity.VerificationsRecord)) (*entity.VerificationsRecord, error) {
	record, err := s.Ensure(ctx, key)
	if err != nil {
		return nil, err
	}
	apply(record)

	updated, err := s.repo.Update(ctx, key, entity.UpdateFromRecord(record))
	if err != nil {
		return nil, fmt.Errorf("updating verifications %s: %w", key, err)
	}
	return updated, nil
}

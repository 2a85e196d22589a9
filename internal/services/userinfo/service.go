// Package userinfo serves aggregated user profiles from the remote directory.
package userinfo

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/keymesh/socialproof/internal/domain/entity"
	"github.com/keymesh/socialproof/internal/pkg/ttlcache"
	"github.com/keymesh/socialproof/internal/ports/inbound"
	"github.com/keymesh/socialproof/internal/ports/outbound"
)

const gravatarURL = "https://www.gravatar.com/avatar/"

const tracerName = "github.com/keymesh/socialproof/internal/services/userinfo"

// DefaultTTL is how long a lookup result is reused.
const DefaultTTL = 5 * time.Minute

// twitterDefaultAvatarPath marks Twitter's generic placeholder avatars.
const twitterDefaultAvatarPath = "default_profile_images"

// Compile-time check that Service implements inbound.DirectoryService.
var _ inbound.DirectoryService = (*Service)(nil)

// Config holds configuration for the Service.
type Config struct {
	// TTL is how long a lookup is served from memory.
	TTL time.Duration

	Logger  *slog.Logger
	Metrics outbound.MetricsRecorder
	Now     ttlcache.Clock
}

// ConfigDefaults returns default configuration.
func ConfigDefaults() Config {
	return Config{
		TTL:     DefaultTTL,
		Logger:  slog.Default(),
		Metrics: outbound.NopMetrics{},
		Now:     time.Now,
	}
}

// Service looks up and searches directory profiles.
type Service struct {
	config Config
	client outbound.DirectoryClient
	logger *slog.Logger

	group   singleflight.Group
	lookups *ttlcache.Cache[string, []entity.Profile]
}

// NewService creates a Service backed by client.
func NewService(config Config, client outbound.DirectoryClient) (*Service, error) {
	if client == nil {
		return nil, fmt.Errorf("directory client is required")
	}

	defaults := ConfigDefaults()
	if config.TTL == 0 {
		config.TTL = defaults.TTL
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}
	if config.Metrics == nil {
		config.Metrics = defaults.Metrics
	}
	if config.Now == nil {
		config.Now = defaults.Now
	}

	return &Service{
		config:  config,
		client:  client,
		logger:  config.Logger.With("component", "userinfo"),
		lookups: ttlcache.New[string, []entity.Profile](config.TTL, config.Now),
	}, nil
}

// Search returns profiles whose username starts with prefix. Results are never cached.
func (s *Service) Search(ctx context.Context, networkID entity.NetworkID, prefix string) ([]entity.Profile, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "userinfo.search",
		trace.WithAttributes(
			attribute.Int("network", int(networkID)),
			attribute.String("prefix", prefix),
		),
	)
	defer span.End()

	rows, err := s.client.Search(ctx, networkID, prefix)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "directory search failed")
		return nil, fmt.Errorf("searching users with prefix %q: %w", prefix, err)
	}
	return Aggregate(rows), nil
}

// Lookup returns the profiles matching an address or a username.
//
// Results are cached per network and literal key for the configured TTL.
// Concurrent callers for the same key share one fetch. Failures are not cached.
func (s *Service) Lookup(ctx context.Context, networkID entity.NetworkID, addressOrUsername string) ([]entity.Profile, error) {
	if strings.TrimSpace(addressOrUsername) == "" {
		return nil, fmt.Errorf("%w: address or username is required", entity.ErrInvalidInput)
	}

	key := fmt.Sprintf("%d:%s", networkID, addressOrUsername)
	if profiles, ok := s.lookups.Get(key); ok {
		s.config.Metrics.RecordCacheLookup(ctx, "userinfo", true)
		return cloneProfiles(profiles), nil
	}
	s.config.Metrics.RecordCacheLookup(ctx, "userinfo", false)

	ch := s.group.DoChan(key, func() (any, error) {
		profiles, err := s.fetch(context.WithoutCancel(ctx), networkID, addressOrUsername)
		if err != nil {
			return nil, err
		}
		s.lookups.Set(key, profiles)
		return profiles, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return cloneProfiles(res.Val.([]entity.Profile)), nil
	}
}

func (s *Service) fetch(ctx context.Context, networkID entity.NetworkID, addressOrUsername string) ([]entity.Profile, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "userinfo.lookup",
		trace.WithAttributes(attribute.Int("network", int(networkID))),
	)
	defer span.End()

	query := outbound.UserQuery{Username: addressOrUsername}
	if entity.IsAddress(addressOrUsername) {
		query = outbound.UserQuery{UserAddress: addressOrUsername}
	}

	rows, err := s.client.Users(ctx, networkID, query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "directory lookup failed")
		return nil, fmt.Errorf("looking up %q: %w", addressOrUsername, err)
	}

	profiles := Aggregate(rows)
	span.SetAttributes(attribute.Int("profiles", len(profiles)))
	s.logger.Debug("directory lookup", "network", networkID, "key", addressOrUsername, "rows", len(rows))
	return profiles, nil
}

// LookupByAddress returns the profile of userAddress, or nil if the directory has none.
func (s *Service) LookupByAddress(ctx context.Context, networkID entity.NetworkID, userAddress string) (*entity.Profile, error) {
	profiles, err := s.Lookup(ctx, networkID, userAddress)
	if err != nil {
		return nil, err
	}
	if len(profiles) == 0 {
		return nil, nil
	}
	return &profiles[0], nil
}

// Purge drops every cached lookup.
func (s *Service) Purge() {
	s.lookups.Purge()
}

// StartCleanup drops expired lookups every interval until stop is called.
func (s *Service) StartCleanup(interval time.Duration) (stop func()) {
	if interval <= 0 {
		return func() {}
	}
	done := make(chan struct{})
	go s.lookups.RunCleanup(interval, done)
	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}

// Aggregate merges per-platform directory rows into one profile per address,
// in order of first appearance.
//
// The first row of an address sets DisplayUsername. While no description is
// set, a Twitter row overrides Description and DisplayUsername with its
// non-empty profile fields. The first usable Twitter avatar wins; only an
// address with none falls back to its first gravatar. Every row adds one
// verification entry.
func Aggregate(rows []entity.RawUserInfo) []entity.Profile {
	type state struct {
		index       int
		displaySet  bool
		described   bool
		avatarFound bool
		gravatar    string
	}

	result := make([]entity.Profile, 0, len(rows))
	seen := make(map[string]*state)

	for _, row := range rows {
		st, ok := seen[row.UserAddress]
		if !ok {
			st = &state{index: len(result)}
			seen[row.UserAddress] = st
			result = append(result, entity.Profile{
				UserAddress:   row.UserAddress,
				Verifications: []entity.ProfileVerification{},
			})
		}
		p := &result[st.index]

		if !st.displaySet {
			p.DisplayUsername = row.Username
			st.displaySet = true
		}

		if !st.described && row.PlatformName == entity.PlatformTwitter && row.TwitterOAuthInfo != nil {
			if row.TwitterOAuthInfo.Description != "" {
				p.Description = row.TwitterOAuthInfo.Description
				st.described = true
			}
			if row.TwitterOAuthInfo.Name != "" {
				p.DisplayUsername = row.TwitterOAuthInfo.Name
			}
		}

		v := entity.ProfileVerification{PlatformName: row.PlatformName, Username: row.Username}
		if row.PlatformName == entity.PlatformTwitter && row.TwitterOAuthInfo != nil {
			info := *row.TwitterOAuthInfo
			v.Info = &info
		}
		p.Verifications = append(p.Verifications, v)

		if !st.avatarFound && row.PlatformName == entity.PlatformTwitter && row.TwitterOAuthInfo != nil {
			if url := TwitterProfileImageURL(*row.TwitterOAuthInfo); url != "" {
				p.AvatarImgURL = url
				st.avatarFound = true
			}
		}
		if st.gravatar == "" {
			st.gravatar = row.GravatarHash
		}
	}

	for _, st := range seen {
		if !st.avatarFound && st.gravatar != "" {
			result[st.index].AvatarImgURL = gravatarURL + st.gravatar
		}
	}
	return result
}

// TwitterProfileImageURL returns the profile image, or "" for Twitter's default placeholder.
func TwitterProfileImageURL(info entity.TwitterOAuthInfo) string {
	if strings.Contains(info.ProfileImageURLHTTPS, twitterDefaultAvatarPath) {
		return ""
	}
	return info.ProfileImageURLHTTPS
}

func cloneProfiles(in []entity.Profile) []entity.Profile {
	if in == nil {
		return nil
	}
	out := make([]entity.Profile, len(in))
	for i, p := range in {
		out[i] = p
		out[i].Verifications = make([]entity.ProfileVerification, len(p.Verifications))
		for j, v := range p.Verifications {
			out[i].Verifications[j] = v
			if v.Info != nil {
				info := *v.Info
				out[i].Verifications[j].Info = &info
			}
		}
	}
	return out
}

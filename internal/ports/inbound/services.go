// Package inbound contains the primary/inbound ports.
// These interfaces define the use cases that the application exposes.
package inbound

import (
	"context"

	"github.com/keymesh/socialproof/internal/domain/entity"
)

// IdentityService serves cached chain identities, avatars and verification state.
type IdentityService interface {
	GetIdentity(ctx context.Context, networkID entity.NetworkID, userAddress string) (*entity.Identity, error)
	GetAvatarHash(ctx context.Context, networkID entity.NetworkID, userAddress string) (string, error)
	GetVerifications(ctx context.Context, networkID entity.NetworkID, userAddress string) (entity.CachedVerifications, error)
}

// DirectoryService serves aggregated user profiles from the remote directory.
type DirectoryService interface {
	Lookup(ctx context.Context, networkID entity.NetworkID, addressOrUsername string) ([]entity.Profile, error)
	Search(ctx context.Context, networkID entity.NetworkID, prefix string) ([]entity.Profile, error)
}

// RecheckService re-verifies stale bindings.
type RecheckService interface {
	RefreshStale(ctx context.Context, networkID entity.NetworkID, userAddress string) ([]entity.Platform, error)
}

// HealthChecker reports whether the service's backing stores are reachable.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

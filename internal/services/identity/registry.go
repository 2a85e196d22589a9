package identity

import (
	"context"
	"fmt"
	"sync"

	"github.com/keymesh/socialproof/internal/domain/entity"
	"github.com/keymesh/socialproof/internal/ports/outbound"
)

// ResolverFactory returns the chain resolver for a network.
type ResolverFactory func(networkID entity.NetworkID) (outbound.IdentityResolver, error)

// Registry owns one Cache per network so identities from different networks
// never share a namespace. Switching networks is an explicit Select.
type Registry struct {
	config    Config
	store     outbound.UserCacheRepository
	resolvers ResolverFactory

	mu     sync.Mutex
	caches map[entity.NetworkID]*Cache
	active entity.NetworkID
}

// NewRegistry creates a registry. config.NetworkID becomes the initially selected network.
func NewRegistry(config Config, store outbound.UserCacheRepository, resolvers ResolverFactory) (*Registry, error) {
	if store == nil {
		return nil, fmt.Errorf("user cache repository is required")
	}
	if resolvers == nil {
		return nil, fmt.Errorf("resolver factory is required")
	}
	if config.NetworkID <= 0 {
		config.NetworkID = ConfigDefaults().NetworkID
	}
	return &Registry{
		config:    config,
		store:     store,
		resolvers: resolvers,
		caches:    make(map[entity.NetworkID]*Cache),
		active:    config.NetworkID,
	}, nil
}

// For returns the cache for networkID, creating it on first use.
func (r *Registry) For(networkID entity.NetworkID) (*Cache, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.caches[networkID]; ok {
		return c, nil
	}
	if networkID <= 0 {
		return nil, fmt.Errorf("%w: network id must be positive", entity.ErrInvalidInput)
	}
	resolver, err := r.resolvers(networkID)
	if err != nil {
		return nil, fmt.Errorf("resolver for network %s: %w", networkID, err)
	}
	cfg := r.config
	cfg.NetworkID = networkID
	c, err := NewCache(cfg, r.store, resolver)
	if err != nil {
		return nil, err
	}
	r.caches[networkID] = c
	return c, nil
}

// Select makes networkID the active network and returns its cache.
func (r *Registry) Select(networkID entity.NetworkID) (*Cache, error) {
	c, err := r.For(networkID)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.active = networkID
	r.mu.Unlock()
	return c, nil
}

// Active returns the cache of the selected network.
func (r *Registry) Active() (*Cache, error) {
	r.mu.Lock()
	active := r.active
	r.mu.Unlock()
	return r.For(active)
}

// Reset discards every network's in-memory cache.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.caches {
		c.Reset()
	}
	r.caches = make(map[entity.NetworkID]*Cache)
}

// GetIdentity returns the identity of userAddress on networkID.
func (r *Registry) GetIdentity(ctx context.Context, networkID entity.NetworkID, userAddress string) (*entity.Identity, error) {
	c, err := r.For(networkID)
	if err != nil {
		return nil, err
	}
	return c.GetIdentity(ctx, userAddress)
}

// GetAvatarHash returns the avatar hash of userAddress on networkID.
func (r *Registry) GetAvatarHash(ctx context.Context, networkID entity.NetworkID, userAddress string) (string, error) {
	c, err := r.For(networkID)
	if err != nil {
		return "", err
	}
	return c.GetAvatarHash(ctx, userAddress)
}

// GetVerifications returns the cached verifications of userAddress on networkID.
func (r *Registry) GetVerifications(ctx context.Context, networkID entity.NetworkID, userAddress string) (entity.CachedVerifications, error) {
	c, err := r.For(networkID)
	if err != nil {
		return nil, err
	}
	return c.GetVerifications(ctx, userAddress)
}

// SetVerifications stores the cached verifications of userAddress on networkID.
func (r *Registry) SetVerifications(ctx context.Context, networkID entity.NetworkID, userAddress string, verifications entity.CachedVerifications) error {
	c, err := r.For(networkID)
	if err != nil {
		return err
	}
	return c.SetVerifications(ctx, userAddress, verifications)
}
